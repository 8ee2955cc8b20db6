package cache

import (
	"errors"
	"log/slog"
	"time"
)

// ErrUnavailable wraps every Redis failure surfaced by this package.
var ErrUnavailable = errors.New("cache: redis unavailable")

type options struct {
	logger *slog.Logger
	now    func() time.Time
}

// Option customises a primitive.
type Option func(*options)

// WithLogger sets the logger used for best-effort failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
