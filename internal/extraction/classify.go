package extraction

import (
	"errors"

	"github.com/medvextract/medvextract-api/internal/resilience"
)

// Classify is the resilience classifier for extraction calls. Provider
// sentinels decide first; anything else falls back to the default rules.
func Classify(err error) resilience.Class {
	switch {
	case errors.Is(err, ErrTransientFailure):
		return resilience.ClassTransient
	case errors.Is(err, ErrInvalidResponse),
		errors.Is(err, ErrContentBlocked),
		errors.Is(err, ErrRequestRejected),
		errors.Is(err, ErrSchemaMismatch),
		errors.Is(err, ErrInvalidConfig):
		return resilience.ClassPermanent
	default:
		return resilience.DefaultClassifier(err)
	}
}
