// Package server implements the optional monitoring HTTP endpoints.
// It exposes health, session state, and Prometheus metrics for the running
// capture pipeline.
package server
