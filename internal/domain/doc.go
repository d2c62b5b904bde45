// Package domain contains the core entities of the extraction pipeline: the
// submitted WorkRequest, its Fingerprint, and the persisted Job that records
// the lifecycle of one unit of work. It is independent of any storage,
// transport or extraction provider.
package domain
