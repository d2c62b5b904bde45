// Package telemetry provides the pipeline's OpenTelemetry metric instruments,
// span helpers and Server-Timing helpers. Instruments are created from the
// global providers unless a provider is supplied, so they are no-ops until
// the host installs an SDK.
package telemetry
