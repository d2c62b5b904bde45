package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/medvextract/medvextract-api/internal/domain"
	"github.com/medvextract/medvextract-api/internal/extraction"
)

const testPrompt = `Extract tasks.
Transcript: {{.Transcript}}
{{if .Notes}}Notes: {{.Notes}}
{{end}}{{range .Metadata}}{{.Key}}={{.Value}}
{{end}}`

// fakeModels records the last request and replays a canned response.
type fakeModels struct {
	resp   *genai.GenerateContentResponse
	err    error
	calls  int
	model  string
	prompt string
	config *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(
	_ context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.model = model
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []*genai.Part{{Text: text}}},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func newTestExtractor(t *testing.T, models *fakeModels) *Extractor {
	t.Helper()
	tmpl, err := ParsePromptTemplate(testPrompt)
	require.NoError(t, err)
	return newExtractor(slog.New(slog.NewTextHandler(io.Discard, nil)), models, Config{}, tmpl)
}

func TestExtractSuccess(t *testing.T) {
	t.Parallel()

	models := &fakeModels{resp: textResponse(`{"tasks":[{"description":"Recheck","priority":"high"}]}`)}
	e := newTestExtractor(t, models)

	out, err := e.Extract(context.Background(), domain.WorkRequest{
		Transcript: "Vet: recheck in two weeks.",
		Notes:      "owner prefers mornings",
		Metadata:   map[string]any{"species": "canine", "age": 4},
	})
	require.NoError(t, err)

	raw, ok := out.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"tasks":[{"description":"Recheck","priority":"high"}]}`, string(raw))

	assert.Equal(t, 1, models.calls)
	assert.Equal(t, DefaultModelName, models.model)
	assert.Equal(t, "application/json", models.config.ResponseMIMEType)
	assert.Contains(t, models.prompt, "Transcript: Vet: recheck in two weeks.")
	assert.Contains(t, models.prompt, "Notes: owner prefers mornings")
	assert.Contains(t, models.prompt, "age=4\nspecies=canine\n", "metadata sorted by key")
}

func TestExtractStripsCodeFence(t *testing.T) {
	t.Parallel()

	models := &fakeModels{resp: textResponse("```json\n{\"tasks\":[]}\n```")}
	out, err := newTestExtractor(t, models).Extract(context.Background(), domain.WorkRequest{Transcript: "t"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tasks":[]}`, string(out.(json.RawMessage)))
}

func TestExtractResponseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want error
	}{
		{"nil response", nil, extraction.ErrInvalidResponse},
		{"no candidates", &genai.GenerateContentResponse{}, extraction.ErrInvalidResponse},
		{"nil content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}, extraction.ErrInvalidResponse},
		{"empty text", textResponse("  "), extraction.ErrInvalidResponse},
		{"invalid json", textResponse("Here are your tasks:"), extraction.ErrInvalidResponse},
		{
			"safety",
			&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}},
			extraction.ErrContentBlocked,
		},
		{
			"prompt blocked",
			&genai.GenerateContentResponse{PromptFeedback: &genai.GenerateContentResponsePromptFeedback{
				BlockReason: genai.BlockedReasonSafety,
			}},
			extraction.ErrContentBlocked,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := newTestExtractor(t, &fakeModels{resp: tc.resp}).
				Extract(context.Background(), domain.WorkRequest{Transcript: "t"})
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, "permanent", extraction.Classify(err).String())
		})
	}
}

func TestExtractAPIErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		want      error
		transient bool
	}{
		{"rate limited", genai.APIError{Code: 429, Message: "quota"}, extraction.ErrTransientFailure, true},
		{"server error", genai.APIError{Code: 503}, extraction.ErrTransientFailure, true},
		{"bad request", genai.APIError{Code: 400}, extraction.ErrRequestRejected, false},
		{"forbidden", genai.APIError{Code: 403}, extraction.ErrRequestRejected, false},
		{"deadline", context.DeadlineExceeded, extraction.ErrTransientFailure, true},
		{"unknown", errors.New("stream reset"), extraction.ErrTransientFailure, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := newTestExtractor(t, &fakeModels{err: tc.err}).
				Extract(context.Background(), domain.WorkRequest{Transcript: "t"})
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, tc.transient, extraction.Classify(err).String() == "transient")
		})
	}
}

func TestPromptTemplate(t *testing.T) {
	t.Parallel()

	_, err := ParsePromptTemplate("{{.Transcript")
	assert.ErrorIs(t, err, extraction.ErrInvalidConfig)

	tmpl, err := ParsePromptTemplate("{{.Missing}}")
	require.NoError(t, err)
	_, err = renderPrompt(tmpl, domain.WorkRequest{Transcript: "t"})
	assert.ErrorIs(t, err, extraction.ErrInvalidConfig)

	tmpl, err = ParsePromptTemplate("{{.Transcript}}")
	require.NoError(t, err)
	got, err := renderPrompt(tmpl, domain.WorkRequest{Transcript: `<b>"Bella" & co</b>`})
	require.NoError(t, err)
	assert.Equal(t, `<b>"Bella" & co</b>`, got, "transcript is not HTML-escaped")
}

func TestNewExtractorValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, err := NewExtractor(ctx, nil, Config{PromptTemplatePath: "x"})
	assert.ErrorIs(t, err, extraction.ErrInvalidConfig)

	_, err = NewExtractor(ctx, nil, Config{APIKey: "k"})
	assert.ErrorIs(t, err, extraction.ErrInvalidConfig)

	_, err = NewExtractor(ctx, nil, Config{APIKey: "k", PromptTemplatePath: filepath.Join(t.TempDir(), "nope.tmpl")})
	assert.ErrorIs(t, err, extraction.ErrInvalidConfig)
}

func TestLoadPromptTemplate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "prompt.tmpl")
	require.NoError(t, os.WriteFile(path, []byte(testPrompt), 0o600))

	tmpl, err := LoadPromptTemplate(path)
	require.NoError(t, err)
	got, err := renderPrompt(tmpl, domain.WorkRequest{Transcript: "hello"})
	require.NoError(t, err)
	assert.Contains(t, got, "Transcript: hello")
	assert.NotContains(t, got, "Notes:")
}
