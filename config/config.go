package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/users-cluster/internal/httpserver"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	ModeCluster = "cluster"
	ModeSingle  = "single"
	ModeWorker  = "worker"
)

const maxPort = 65535

type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	Environment       string        `mapstructure:"environment"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
}

type PoolConfig struct {
	Workers      int           `mapstructure:"workers"`
	BasePort     int           `mapstructure:"base_port"`
	Host         string        `mapstructure:"host"`
	SpawnTimeout time.Duration `mapstructure:"spawn_timeout"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout"`
}

type ProxyConfig struct {
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	// ResponseHeaderTimeout bounds the wait for a worker's response headers.
	// Zero disables it.
	ResponseHeaderTimeout time.Duration `mapstructure:"response_header_timeout"`
}

type WorkerConfig struct {
	ID   int `mapstructure:"id"`
	Port int `mapstructure:"port"`
}

type AdminConfig struct {
	Address string `mapstructure:"address"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Mode    string        `mapstructure:"mode"`
	Server  ServerConfig  `mapstructure:"server"`
	Pool    PoolConfig    `mapstructure:"pool"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Admin   AdminConfig   `mapstructure:"admin"`
	Logging LoggingConfig `mapstructure:"logging"`

	// File is the config file that was read, empty when running on defaults.
	File string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModeCluster)

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("pool.workers", 0)
	v.SetDefault("pool.base_port", 4001)
	v.SetDefault("pool.host", "localhost")
	v.SetDefault("pool.spawn_timeout", 5*time.Second)
	v.SetDefault("pool.stop_timeout", 5*time.Second)

	v.SetDefault("proxy.dial_timeout", 2*time.Second)
	v.SetDefault("proxy.response_header_timeout", 0)

	v.SetDefault("worker.id", 0)
	v.SetDefault("worker.port", 3000)

	v.SetDefault("admin.address", "")

	v.SetDefault("logging.level", LogLevelInfo)
}

// Load reads the configuration from defaults, an optional YAML file, the
// environment and fs, in increasing order of precedence. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// The documented deployment variables take priority over the generated names.
	if err := v.BindEnv("server.port", "LOAD_BALANCER_PORT", "SERVER_PORT"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("worker.port", "PORT", "WORKER_PORT"); err != nil {
		return nil, err
	}

	if fs != nil {
		if path, err := fs.GetString("config"); err == nil && path != "" {
			v.SetConfigFile(path)
		}
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Debug("config file not found, using defaults and environment variables")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}
	return nil
}

// Address is the host:port the load balancer listens on.
func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// WorkerCount resolves the configured pool size. Zero means one worker per
// CPU, keeping one CPU for the balancer, and never less than one worker.
func (c PoolConfig) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	if n := runtime.NumCPU() - 1; n > 1 {
		return n
	}
	return 1
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode,
			validation.Required,
			validation.In(ModeCluster, ModeSingle, ModeWorker),
		),
		validation.Field(&c.Server),
		validation.Field(&c.Pool,
			validation.By(func(value interface{}) error {
				pc, ok := value.(PoolConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a PoolConfig")
				}
				if pc.BasePort+pc.WorkerCount()-1 > maxPort {
					return validation.NewError("validation_port_range", "worker ports exceed 65535")
				}
				if c.Mode == ModeCluster && portInPool(c.Server.Port, pc) {
					return validation.NewError("validation_port_clash", "server port overlaps the worker port range")
				}
				return nil
			}),
		),
		validation.Field(&c.Proxy),
		validation.Field(&c.Worker),
		validation.Field(&c.Admin),
		validation.Field(&c.Logging),
	)
}

func (c ServerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Environment,
			validation.Required,
			validation.In(EnvDev, EnvStaging, EnvProd),
		),
		validation.Field(&c.Host, is.Host),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(maxPort)),
		validation.Field(&c.ReadHeaderTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.IdleTimeout, validation.Min(time.Duration(0))),
	)
}

func (c PoolConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Workers, validation.Min(0)),
		validation.Field(&c.BasePort, validation.Required, validation.Min(1), validation.Max(maxPort)),
		validation.Field(&c.Host, validation.Required, is.Host),
		validation.Field(&c.SpawnTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.StopTimeout, validation.Required, validation.Min(time.Millisecond)),
	)
}

func (c ProxyConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.DialTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.ResponseHeaderTimeout, validation.Min(time.Duration(0))),
	)
}

func (c WorkerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ID, validation.Min(0)),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(maxPort)),
	)
}

func (c AdminConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Address, validation.When(c.Address != "", validation.By(httpserver.ValidateAddress))),
	)
}

func (c LoggingConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level,
			validation.Required,
			validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
		),
	)
}

func portInPool(port int, pc PoolConfig) bool {
	return port >= pc.BasePort && port < pc.BasePort+pc.WorkerCount()
}
