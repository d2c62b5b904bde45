// Package mocks provides shared test doubles for the job store and the
// extractor.
//
// The mocks keep real state so that tests can drive a whole submission
// through the pipeline, and expose Fn hooks for injecting failures:
//
//	jobs := mocks.NewMockJobStore()
//	jobs.CompleteJobFn = func(ctx context.Context, id uuid.UUID, raw, result json.RawMessage) error {
//	    return store.ErrUnavailable
//	}
//
// Hooks replace the default behavior entirely; call the Default* methods
// from a hook to fall through to the in-memory implementation.
package mocks
