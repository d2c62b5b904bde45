package gemini

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"text/template"

	"github.com/medvextract/medvextract-api/internal/domain"
	"github.com/medvextract/medvextract-api/internal/extraction"
)

// promptData is passed to the prompt template.
type promptData struct {
	Transcript string
	Notes      string
	Metadata   []metadataEntry
}

type metadataEntry struct {
	Key   string
	Value string
}

// LoadPromptTemplate reads and parses a prompt template file.
func LoadPromptTemplate(path string) (*template.Template, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read prompt template from %s: %v",
			extraction.ErrInvalidConfig, path, err)
	}
	return ParsePromptTemplate(string(content))
}

// ParsePromptTemplate parses prompt template text. Missing keys are errors.
func ParsePromptTemplate(text string) (*template.Template, error) {
	tmpl, err := template.New("extraction").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v", extraction.ErrInvalidConfig, err)
	}
	return tmpl, nil
}

// renderPrompt executes tmpl for req. Metadata entries are sorted by key.
func renderPrompt(tmpl *template.Template, req domain.WorkRequest) (string, error) {
	data := promptData{
		Transcript: req.Transcript,
		Notes:      req.Notes,
	}
	for k, v := range req.Metadata {
		data.Metadata = append(data.Metadata, metadataEntry{Key: k, Value: fmt.Sprint(v)})
	}
	sort.Slice(data.Metadata, func(i, j int) bool { return data.Metadata[i].Key < data.Metadata[j].Key })

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: failed to execute prompt template: %v", extraction.ErrInvalidConfig, err)
	}
	return buf.String(), nil
}
