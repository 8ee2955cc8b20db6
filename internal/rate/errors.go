package rate

import "errors"

// ErrRateLimited is returned when a window is exhausted.
var ErrRateLimited = errors.New("rate limited")
