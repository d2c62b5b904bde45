// Package extraction defines the boundary between the pipeline and the
// external service that turns a transcript into structured tasks.
//
// Providers live under internal/platform. They report failures with the
// sentinels in this package so the resilience layer can tell transient
// conditions from permanent ones without knowing the provider.
package extraction
