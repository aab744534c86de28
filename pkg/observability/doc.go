/*
Package observability provides Prometheus metrics for the Tendril engine.

Metrics are registered on a caller-provided prometheus.Registerer so tests and
embedders can keep them isolated from the global registry. A nil *Metrics is
valid and records nothing.
*/
package observability
