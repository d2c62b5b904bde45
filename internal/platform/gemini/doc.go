// Package gemini implements extraction.Extractor on Google's Gemini API.
//
// A prompt is rendered from a text/template file with the transcript, notes
// and metadata of the request, sent with a JSON response MIME type, and the
// returned text is decoded as JSON. API and response failures are reported
// with the extraction sentinels:
//
//   - HTTP 429 and 5xx, deadlines and network failures are transient.
//   - Other API errors, safety blocks and empty or malformed JSON are permanent.
//
// Retries are not performed here; callers wrap Extract in a resilience policy.
package gemini
