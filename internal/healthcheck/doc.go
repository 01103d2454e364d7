// Package healthcheck probes a freshly spawned worker until it answers HTTP
// on its port. It runs once per worker at pool startup; workers are not
// checked again afterwards.
package healthcheck
