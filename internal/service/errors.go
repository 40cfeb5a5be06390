package service

import (
	"errors"
	"fmt"

	"docflow/internal/auth"
	"docflow/internal/repository"
)

// Error taxonomy. Operations wrap these with fmt.Errorf("%w: ...") so handlers can map them with errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrDuplicate          = errors.New("duplicate document")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrExtraction         = errors.New("extraction failed")
	ErrRender             = errors.New("render failed")
	ErrCircuitBreakerStop = errors.New("circuit breaker stop")
	ErrForbidden          = auth.ErrForbidden
)

// notFound translates repository.ErrNotFound into ErrNotFound naming the entity.
func notFound(err error, kind, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return err
}
