package fetch

import (
	"errors"
	"fmt"

	"github.com/harshcurious/fpl-analytics/pkg/cache"
)

// ErrUpstreamUnavailable is returned when the loader failed and no cached
// value could be served instead.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// UpstreamError describes a fetch that could not be answered at all.
// It matches ErrUpstreamUnavailable with errors.Is and unwraps to the loader error.
type UpstreamError struct {
	Key cache.Key
	Err error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s for key %s: %v", ErrUpstreamUnavailable, e.Key, e.Err)
	}
	return fmt.Sprintf("%s for key %s", ErrUpstreamUnavailable, e.Key)
}

// Is reports whether target is ErrUpstreamUnavailable.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}
