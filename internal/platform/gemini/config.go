package gemini

import (
	"fmt"

	"github.com/medvextract/medvextract-api/internal/extraction"
)

// DefaultModelName is used when Config.ModelName is empty.
const DefaultModelName = "gemini-2.0-flash"

// Config configures an Extractor.
type Config struct {
	APIKey             string
	ModelName          string
	PromptTemplatePath string
	Temperature        float32
}

func (c Config) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: gemini API key cannot be empty", extraction.ErrInvalidConfig)
	}
	if c.PromptTemplatePath == "" {
		return fmt.Errorf("%w: prompt template path cannot be empty", extraction.ErrInvalidConfig)
	}
	return nil
}
