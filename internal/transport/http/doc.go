// Package http serves the worker's optional local endpoint: /status with
// the run's step states and /metrics for Prometheus scrapes.
package http
