package extraction

import (
	"context"

	"github.com/medvextract/medvextract-api/internal/domain"
)

// Extractor performs one extraction call.
type Extractor interface {
	// Extract returns the provider's raw structured output for req. The value
	// is passed through the sanitizer before it is stored or returned, so it
	// may be any JSON-like shape. Errors wrap the sentinels in errors.go.
	Extract(ctx context.Context, req domain.WorkRequest) (any, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, req domain.WorkRequest) (any, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, req domain.WorkRequest) (any, error) {
	return f(ctx, req)
}
