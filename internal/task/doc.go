// Package task runs background work on a fixed pool of workers fed by a
// bounded in-memory queue.
//
// The runner does not persist anything. Durable state belongs to the task
// itself (an extraction task records its outcome in the job store), which is
// what lets unfinished work be rebuilt and re-enqueued through the recover
// hook passed to Start.
package task
