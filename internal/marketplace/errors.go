package marketplace

import (
	"errors"
	"fmt"

	"github.com/factorhub/marketplace/internal/models"
	"github.com/factorhub/marketplace/internal/store"
)

// Errors returned by Service operations. Callers match them with errors.Is;
// the returned error usually wraps one of these with more context.
var (
	// ErrNotFound is returned when the referenced asset, bid or token does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the actor lacks authority over the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition is returned when a guard condition fails.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrAssetAlreadyCommitted is returned when another accepted bid is still
	// inside its payment window or has been paid.
	ErrAssetAlreadyCommitted = errors.New("asset already committed to another bid")
	// ErrDeadlineExpired is returned when payment is confirmed after the window closed.
	ErrDeadlineExpired = errors.New("payment deadline expired")
	// ErrAlreadyCompleted is returned when the requested action was already
	// performed. It is a success-like outcome, not a failure.
	ErrAlreadyCompleted = errors.New("already completed")
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrBidImmutable is returned when a buyer edits a bid the seller already
	// accepted or rejected.
	ErrBidImmutable = fmt.Errorf("%w: bid is no longer editable", ErrInvalidTransition)
)

// ValidationError carries per-field messages for ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// translate maps store and model errors onto the service taxonomy.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, models.ErrInvalidAssetTransition), errors.Is(err, models.ErrInvalidBidTransition):
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	case errors.Is(err, store.ErrConcurrentModification):
		// Only possible if a writer bypassed the asset lock.
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	default:
		return err
	}
}
