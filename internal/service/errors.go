package service

import (
	"errors"
	"fmt"

	"github.com/maheshrc27/postflow/internal/validation"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrStateConflict = errors.New("state conflict")
	ErrInvalidInput  = errors.New("invalid input")
)

// ValidationFailedError carries the full validation result of a post that
// could not be published.
type ValidationFailedError struct {
	Result *validation.Result
}

func (e *ValidationFailedError) Error() string {
	n := len(e.Result.Common)
	for _, errs := range e.Result.Platforms {
		n += len(errs)
	}
	return fmt.Sprintf("post failed validation with %d error(s)", n)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}
