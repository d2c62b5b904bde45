// Package pipeline sequences fingerprinting, the result cache, the job store
// and the extraction call into the submission workflow, and owns the job
// state machine.
//
// A submission is fingerprinted and looked up in the cache. A hit returns the
// cached result at once and creates no job row. A miss creates a PENDING job
// and enqueues an ExtractionTask; the worker calls the extractor through the
// "extraction" resilience policy, sanitizes the output and moves the job to
// COMPLETED (caching the result) or FAILED (leaving the cache untouched).
package pipeline
