package tenantdb

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		kind   Kind
		status int
	}{
		{&pgconn.PgError{Code: "23505"}, KindConflict, 409},
		{&pgconn.PgError{Code: "23503"}, KindValidation, 400},
		{&pgconn.PgError{Code: "23502"}, KindValidation, 400},
		{&pgconn.PgError{Code: "23514"}, KindValidation, 400},
		{&pgconn.PgError{Code: "22P02"}, KindValidation, 400},
		{fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "22001"}), KindValidation, 400},
		{&pgconn.PgError{Code: "40001"}, KindInternal, 500},
		{errors.New("connection reset"), KindInternal, 500},
	}
	for _, tc := range cases {
		got := Classify(tc.err)
		if got != tc.kind || got.Status() != tc.status {
			t.Fatalf("Classify(%v) = %v/%d, want %v/%d", tc.err, got, got.Status(), tc.kind, tc.status)
		}
	}
}
