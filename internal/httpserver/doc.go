// Package httpserver wraps net/http's server with address validation,
// explicit binding, and bounded graceful shutdown.
package httpserver
