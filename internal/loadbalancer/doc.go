// Package loadbalancer binds a selection strategy to the worker pool, which
// is built once at startup and never re-derived per request.
package loadbalancer
