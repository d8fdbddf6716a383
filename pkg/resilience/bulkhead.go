package resilience

import (
	"fmt"
	"runtime/debug"

	apperrors "github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/errors"
)

// Isolate runs fn and converts a panic into an error wrapping
// ErrTaskFailed, so one broken task cannot take down the batch it runs in.
// Errors returned by fn are wrapped the same way.
func Isolate(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v\n%s", apperrors.ErrTaskFailed, name, r, debug.Stack())
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("%w: %s: %w", apperrors.ErrTaskFailed, name, err)
	}
	return nil
}
