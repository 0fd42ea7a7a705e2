package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound        = errors.New("resource not found")
	ErrSessionNotFound = fmt.Errorf("%w: session", ErrNotFound)
	ErrColumnNotFound  = fmt.Errorf("%w: column", ErrNotFound)
	ErrNoTable         = fmt.Errorf("%w: uploaded table", ErrNotFound)

	// Input errors
	ErrUnreadableFile   = errors.New("unreadable spreadsheet")
	ErrUnsupportedFile  = errors.New("unsupported file type")
	ErrInvalidSelection = errors.New("invalid column selection")
	ErrEmptyTable       = errors.New("table has no rows")

	// Model fit errors
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrNoEvents         = errors.New("no events observed")
	ErrZeroVariance     = errors.New("predictor has no variance")
	ErrSingularMatrix   = errors.New("singular design matrix")
	ErrNoConvergence    = errors.New("model did not converge")
	ErrInvalidEvent     = errors.New("event column must contain only 0 and 1")
)

// Error constructors with context
func NewColumnNotFoundError(column string) error {
	return fmt.Errorf("%w: %q", ErrColumnNotFound, column)
}

func NewSelectionError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidSelection, reason)
}

func NewZeroVarianceError(predictor string) error {
	return fmt.Errorf("%w: %s", ErrZeroVariance, predictor)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsFitError(err error) bool {
	return errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrNoEvents) ||
		errors.Is(err, ErrZeroVariance) ||
		errors.Is(err, ErrSingularMatrix) ||
		errors.Is(err, ErrNoConvergence) ||
		errors.Is(err, ErrInvalidEvent)
}
