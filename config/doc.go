// Package config handles loading and parsing of configuration from YAML files,
// environment variables, and command-line flags. It defines the cluster
// configuration: the public listener, the worker pool, proxy timeouts, the
// admin listener, and logging.
package config
