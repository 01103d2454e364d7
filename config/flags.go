package config

import (
	"github.com/spf13/pflag"
)

// flagKeys maps flag names to the viper keys they override.
var flagKeys = map[string]string{
	"mode":        "mode",
	"port":        "server.port",
	"workers":     "pool.workers",
	"base-port":   "pool.base_port",
	"worker-id":   "worker.id",
	"worker-port": "worker.port",
	"log-level":   "logging.level",
}

// NewFlagSet defines the command-line surface shared by every mode. Flag
// defaults are zero values so that unset flags never shadow the config file
// or the environment.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	fs.String("config", "", "path to a YAML config file")
	fs.String("mode", "", "run mode: cluster, single or worker")
	fs.Int("port", 0, "load balancer listen port")
	fs.Int("workers", 0, "number of worker processes (0 = CPUs minus one)")
	fs.Int("base-port", 0, "port of worker 0; worker N listens on base-port+N")
	fs.Int("worker-id", 0, "worker id (worker mode only)")
	fs.Int("worker-port", 0, "port served in single and worker mode")
	fs.String("log-level", "", "debug, info, warn or error")

	return fs
}
