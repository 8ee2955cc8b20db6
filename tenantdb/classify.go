package tenantdb

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind is the client-facing class of a database failure.
type Kind uint8

const (
	KindInternal Kind = iota
	KindConflict
	KindValidation
)

// Status returns the HTTP status for k.
func (k Kind) Status() int {
	switch k {
	case KindConflict:
		return 409
	case KindValidation:
		return 400
	default:
		return 500
	}
}

func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Classify maps a driver error to a Kind by SQLSTATE. Anything that is not
// a recognised Postgres error is internal.
func Classify(err error) Kind {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return KindInternal
	}
	switch pgErr.Code {
	case "23505":
		return KindConflict
	case "23503", "23502", "23514", "22P02", "22001":
		return KindValidation
	default:
		return KindInternal
	}
}
