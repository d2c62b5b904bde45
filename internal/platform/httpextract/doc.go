// Package httpextract implements extraction.Extractor against an HTTP
// extraction service that accepts the work request as JSON and answers with a
// JSON document.
package httpextract
