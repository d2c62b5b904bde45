package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"text/template"

	"google.golang.org/genai"

	"github.com/medvextract/medvextract-api/internal/domain"
	"github.com/medvextract/medvextract-api/internal/extraction"
)

// contentGenerator is the subset of *genai.Models used by Extractor.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Extractor implements extraction.Extractor using the Gemini API.
type Extractor struct {
	logger    *slog.Logger
	models    contentGenerator
	model     string
	prompt    *template.Template
	genConfig *genai.GenerateContentConfig
}

var _ extraction.Extractor = (*Extractor)(nil)

// NewExtractor creates a Gemini client and loads the prompt template.
func NewExtractor(ctx context.Context, logger *slog.Logger, cfg Config) (*Extractor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	prompt, err := LoadPromptTemplate(cfg.PromptTemplatePath)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", extraction.ErrInvalidConfig, err)
	}

	return newExtractor(logger, client.Models, cfg, prompt), nil
}

func newExtractor(logger *slog.Logger, models contentGenerator, cfg Config, prompt *template.Template) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	model := cfg.ModelName
	if model == "" {
		model = DefaultModelName
	}
	return &Extractor{
		logger: logger.With("component", "gemini_extractor", "model", model),
		models: models,
		model:  model,
		prompt: prompt,
		genConfig: &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr(cfg.Temperature),
		},
	}
}

// Extract renders the prompt for req, calls the model once and returns the
// decoded JSON as json.RawMessage.
func (e *Extractor) Extract(ctx context.Context, req domain.WorkRequest) (any, error) {
	prompt, err := renderPrompt(e.prompt, req)
	if err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "calling Gemini API",
		"prompt_length", len(prompt),
		"transcript_length", len(req.Transcript))

	resp, err := e.models.GenerateContent(ctx, e.model, genai.Text(prompt), e.genConfig)
	if err != nil {
		mapped := mapAPIError(err)
		e.logger.WarnContext(ctx, "Gemini API call failed",
			"transient", errors.Is(mapped, extraction.ErrTransientFailure),
			"error_type", fmt.Sprintf("%T", err))
		return nil, mapped
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: response is not valid JSON", extraction.ErrInvalidResponse)
	}

	e.logger.DebugContext(ctx, "Gemini API call succeeded", "response_length", len(raw))
	return raw, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", extraction.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked (%s)", extraction.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", extraction.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	switch candidate.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist, genai.FinishReasonSPII:
		return "", fmt.Errorf("%w: finish reason %s", extraction.ErrContentBlocked, candidate.FinishReason)
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty content", extraction.ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	text := strings.TrimSpace(stripCodeFence(b.String()))
	if text == "" {
		return "", fmt.Errorf("%w: empty text", extraction.ErrInvalidResponse)
	}
	return text, nil
}

// stripCodeFence removes a markdown ```json fence some models add despite
// the JSON MIME type.
func stripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	t = strings.TrimPrefix(t, "```")
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = t[i+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(t), "```")
}

// mapAPIError wraps err with the extraction sentinel for its class.
func mapAPIError(err error) error {
	if code, ok := apiErrorCode(err); ok {
		if code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500 {
			return fmt.Errorf("%w: Gemini API status %d", extraction.ErrTransientFailure, code)
		}
		return fmt.Errorf("%w: Gemini API status %d", extraction.ErrRequestRejected, code)
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", extraction.ErrTransientFailure, err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.As(err, &netErr):
		return fmt.Errorf("%w: network error", extraction.ErrTransientFailure)
	}
	return fmt.Errorf("%w: %v", extraction.ErrTransientFailure, err)
}

func apiErrorCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}
