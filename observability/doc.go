// Package observability records lifecycle counters with OpenTelemetry.
// MetricsExtension implements the ext hooks for job reservation, completion,
// failure and removal, and for session creation, rotation and logout.
//
// For per-run tracing and duration metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
