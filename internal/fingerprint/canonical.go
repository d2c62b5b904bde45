package fingerprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/medvextract/medvextract-api/internal/domain"
)

// Canonical returns the canonical serialization of req: a JSON object with the
// keys metadata, notes and transcript, sorted keys at every nesting level and
// no HTML escaping. Strings that are not valid UTF-8 are quoted first (see
// escapeText) so that differing invalid bytes never collapse to U+FFFD.
func Canonical(req domain.WorkRequest) []byte {
	doc := map[string]any{
		"transcript": escapeText(req.Transcript),
		"notes":      escapeText(req.Notes),
		"metadata":   normalize(req.Metadata),
	}

	out, err := encode(doc)
	if err != nil {
		// normalize only yields JSON-safe values
		return []byte(fmt.Sprintf("%v", doc))
	}
	return out
}

// normalize round-trips metadata through encoding/json so structs, typed maps
// and numbers reach a single representation. Values that cannot be encoded
// are replaced by their fmt representation.
func normalize(meta map[string]any) map[string]any {
	if len(meta) == 0 {
		return map[string]any{}
	}

	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[escapeText(k)] = normalizeValue(escapeValue(v))
	}
	return out
}

// escapeText leaves valid UTF-8 untouched. Invalid strings, and strings that
// already start with the replacement rune, become the replacement rune
// followed by their Go-quoted form, which keeps the mapping injective.
func escapeText(s string) string {
	if utf8.ValidString(s) && !strings.HasPrefix(s, string(utf8.RuneError)) {
		return s
	}
	return string(utf8.RuneError) + strconv.Quote(s)
}

func escapeValue(v any) any {
	switch t := v.(type) {
	case string:
		return escapeText(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[escapeText(k)] = escapeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = escapeValue(item)
		}
		return out
	default:
		return v
	}
}

func normalizeValue(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return generic
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
