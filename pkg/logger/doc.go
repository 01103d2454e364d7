// Package logger provides structured logging with configurable log levels.
// It wraps the standard log/slog package; every process of the cluster
// (balancer, workers, single-process server) tags its records with its role
// and pid so interleaved output from parent and children stays readable.
package logger
