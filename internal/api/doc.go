// Package api exposes the extraction pipeline over HTTP: submission of work
// requests, job status and listing, and a health probe. Handlers translate
// between JSON payloads and pipeline calls and map pipeline errors to status
// codes and safe messages.
package api
