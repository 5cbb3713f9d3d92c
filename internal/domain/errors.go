package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCancelled is reported when an operation stopped at a cancellation boundary.
// Engines return their best-so-far result alongside it, not instead of it.
var ErrCancelled = errors.New("optimization cancelled")

// DataInsufficientError means fewer than the required number of periods were available.
type DataInsufficientError struct {
	Periods       int
	Required      int
	ReferenceDate *time.Time
	// Source names the step that rejected the data, e.g. "backtest_filter" or "problem".
	Source string
}

func (e *DataInsufficientError) Error() string {
	msg := fmt.Sprintf("insufficient data: %d periods available, %d required", e.Periods, e.Required)
	if e.ReferenceDate != nil {
		msg += fmt.Sprintf(" up to %s", e.ReferenceDate.Format("2006-01-02"))
	}
	if e.Source != "" {
		msg += " (" + e.Source + ")"
	}
	return msg
}

// ValidationError reports an invalid input parameter.
type ValidationError struct {
	Field    string
	Reason   string
	AssetIDs []int64
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if len(e.AssetIDs) > 0 {
		ids := make([]string, len(e.AssetIDs))
		for i, id := range e.AssetIDs {
			ids[i] = fmt.Sprint(id)
		}
		msg += " [assets " + strings.Join(ids, ",") + "]"
	}
	return msg
}

// SingularCovarianceError means the covariance matrix was not positive semi-definite
// and regularization could not repair it.
type SingularCovarianceError struct {
	MinEigenvalue float64
	AssetIDs      []int64
}

func (e *SingularCovarianceError) Error() string {
	return fmt.Sprintf("covariance matrix is not positive semi-definite (min eigenvalue %.3g over %d assets)",
		e.MinEigenvalue, len(e.AssetIDs))
}

// IsDataInsufficient reports whether err wraps a DataInsufficientError.
func IsDataInsufficient(err error) bool {
	var target *DataInsufficientError
	return errors.As(err, &target)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
