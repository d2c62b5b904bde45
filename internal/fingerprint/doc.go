// Package fingerprint derives a deterministic digest from a WorkRequest.
//
// Two requests with equal field values (map key order irrelevant) always
// produce the same fingerprint. The digest is computed over a canonical JSON
// serialization in which absent notes and metadata are written as empty
// values and mapping keys are sorted at every nesting level.
package fingerprint
