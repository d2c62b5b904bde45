package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// MaxTranscriptLength bounds the length of a submitted transcript in characters.
const MaxTranscriptLength = 200_000

// MaxNotesLength bounds the length of the optional free-text notes.
const MaxNotesLength = 50_000

// WorkRequest is one unit of free-text work submitted for extraction: a consult
// transcript with optional clinician notes and contextual metadata
// (patient_id, consult_date, veterinarian_id, clinic_id, template_id, language, ...).
//
// A WorkRequest is immutable once submitted. An empty Notes string and a nil
// Metadata map mean "absent".
type WorkRequest struct {
	Transcript string         `json:"transcript" validate:"required,max=200000"`
	Notes      string         `json:"notes,omitempty" validate:"max=50000"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

var requestValidator = validator.New()

// Validate checks the request before any job exists for it.
// Returns an error wrapping ErrInvalidWorkRequest on failure.
func (r WorkRequest) Validate() error {
	if strings.TrimSpace(r.Transcript) == "" {
		return fmt.Errorf("%w: transcript is required", ErrInvalidWorkRequest)
	}

	if err := requestValidator.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: %s failed %s validation",
				ErrInvalidWorkRequest, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidWorkRequest, err)
	}

	if !utf8.ValidString(r.Transcript) {
		return fmt.Errorf("%w: transcript is not valid UTF-8", ErrInvalidWorkRequest)
	}
	if !utf8.ValidString(r.Notes) {
		return fmt.Errorf("%w: notes are not valid UTF-8", ErrInvalidWorkRequest)
	}

	for key, value := range r.Metadata {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("%w: metadata keys must not be blank", ErrInvalidWorkRequest)
		}
		if !utf8.ValidString(key) || !validUTF8(value) {
			return fmt.Errorf("%w: metadata is not valid UTF-8", ErrInvalidWorkRequest)
		}
	}

	return nil
}

// validUTF8 walks decoded JSON values. Other types are left to the encoder.
func validUTF8(v any) bool {
	switch t := v.(type) {
	case string:
		return utf8.ValidString(t)
	case map[string]any:
		for k, item := range t {
			if !utf8.ValidString(k) || !validUTF8(item) {
				return false
			}
		}
	case []any:
		for _, item := range t {
			if !validUTF8(item) {
				return false
			}
		}
	}
	return true
}

// MetadataString returns the metadata value for key when it is a string.
func (r WorkRequest) MetadataString(key string) string {
	if r.Metadata == nil {
		return ""
	}
	s, _ := r.Metadata[key].(string)
	return s
}
