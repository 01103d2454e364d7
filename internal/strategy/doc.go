// Package strategy defines the worker selection interface and its round-robin
// implementation: a positional cursor over the pool that advances by one on
// every selection and wraps at the end. Selection carries no memory of
// per-worker load, latency, or health.
package strategy
