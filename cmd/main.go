package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/users-cluster/config"
	"github.com/angeloszaimis/users-cluster/internal/handler"
	"github.com/angeloszaimis/users-cluster/internal/httpserver"
	"github.com/angeloszaimis/users-cluster/internal/loadbalancer"
	"github.com/angeloszaimis/users-cluster/internal/metrics"
	"github.com/angeloszaimis/users-cluster/internal/pool"
	"github.com/angeloszaimis/users-cluster/internal/proxy"
	"github.com/angeloszaimis/users-cluster/internal/strategy"
	"github.com/angeloszaimis/users-cluster/internal/users"
	"github.com/angeloszaimis/users-cluster/pkg/logger"
)

const metricsBufferSize = 1000

func main() {
	fs := config.NewFlagSet(os.Args[0])
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment, roleFor(cfg.Mode))

	ctx, cancel := notifyContext(cfg.Mode)
	defer cancel()

	switch cfg.Mode {
	case config.ModeWorker:
		err = runWorker(ctx, cfg, log)
	case config.ModeSingle:
		err = runSingle(ctx, cfg, log)
	default:
		err = runCluster(ctx, cfg, log)
	}

	if err != nil {
		log.Error("Exiting", slog.String("mode", cfg.Mode), slog.Any("err", err))
		cancel()
		os.Exit(1)
	}
}

// notifyContext ends on SIGTERM, and on interrupts except in workers: an
// interrupt from the terminal reaches the whole process group, and workers
// must keep serving until the balancer has drained and stops them.
func notifyContext(mode string) (context.Context, context.CancelFunc) {
	if mode == config.ModeWorker {
		signal.Ignore(os.Interrupt)
		return signal.NotifyContext(context.Background(), syscall.SIGTERM)
	}
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func roleFor(mode string) string {
	switch mode {
	case config.ModeWorker:
		return logger.RoleWorker
	case config.ModeSingle:
		return logger.RoleSingle
	default:
		return logger.RoleBalancer
	}
}

func runCluster(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	launcher := pool.NewExecLauncher(exe, workerArgs(cfg))
	launcher.Env = workerEnv(cfg)
	launcher.WaitDelay = cfg.Pool.StopTimeout

	c, err := startCluster(ctx, cfg, log, launcher)
	if err != nil {
		return err
	}
	return c.run(ctx)
}

type cluster struct {
	log       *slog.Logger
	pool      *pool.Pool
	collector *metrics.Collector
	stop      context.CancelFunc
	servers   []*httpserver.Server
}

// startCluster spawns the worker pool and wires the dispatch path in front of
// it. Nothing listens until run.
func startCluster(ctx context.Context, cfg *config.Config, log *slog.Logger, launcher pool.Launcher) (*cluster, error) {
	workers := pool.New(launcher, pool.Options{
		Host:         cfg.Pool.Host,
		BasePort:     cfg.Pool.BasePort,
		SpawnTimeout: cfg.Pool.SpawnTimeout,
		StopTimeout:  cfg.Pool.StopTimeout,
	}, log)

	if err := workers.Initialize(ctx, cfg.Pool.WorkerCount()); err != nil {
		return nil, err
	}

	collectorCtx, stop := context.WithCancel(context.Background())
	collector := metrics.NewCollector(metricsBufferSize, log)
	collector.Start(collectorCtx)

	c := &cluster{log: log, pool: workers, collector: collector, stop: stop}

	lb := loadbalancer.NewLoadBalancer(strategy.NewRoundRobinStrategy(), workers.Workers())
	forwarder := proxy.NewForwarder(log, proxy.Options{
		DialTimeout:           cfg.Proxy.DialTimeout,
		ResponseHeaderTimeout: cfg.Proxy.ResponseHeaderTimeout,
	})
	dispatch := handler.NewLoadBalancerHandler(log, lb, forwarder, collector)

	srv, err := httpserver.New(cfg.Server.Address(), dispatch, httpserver.Options{
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		DisableKeepAlives: true,
		ErrorLog:          log,
	})
	if err != nil {
		c.close()
		return nil, fmt.Errorf("load balancer server: %w", err)
	}
	c.servers = append(c.servers, srv)

	if cfg.Admin.Address != "" {
		admin, err := httpserver.New(cfg.Admin.Address, setupAdminRouter(collector, workers, lb.LoadBalancerStrategy().Name()), httpserver.Options{
			ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
			ErrorLog:          log,
		})
		if err != nil {
			c.close()
			return nil, fmt.Errorf("admin server: %w", err)
		}
		c.servers = append(c.servers, admin)
	}

	return c, nil
}

// run serves until ctx ends, then drains the listeners before stopping the workers.
func (c *cluster) run(ctx context.Context) error {
	defer c.close()
	return serve(ctx, c.log, c.servers...)
}

func (c *cluster) close() {
	if err := c.pool.Shutdown(context.Background()); err != nil {
		c.log.Error("Error stopping workers", slog.Any("err", err))
	}
	c.stop()
	<-c.collector.Done()
}

func workerArgs(cfg *config.Config) func(spec pool.Spec) []string {
	return func(spec pool.Spec) []string {
		args := []string{
			"--mode=" + config.ModeWorker,
			"--worker-id=" + strconv.Itoa(spec.ID),
			"--worker-port=" + strconv.Itoa(spec.Port),
			"--log-level=" + cfg.Logging.Level,
		}
		if cfg.File != "" {
			args = append(args, "--config="+cfg.File)
		}
		return args
	}
}

// workerEnv makes workers listen on the host the balancer dials.
func workerEnv(cfg *config.Config) []string {
	return []string{"POOL_HOST=" + cfg.Pool.Host}
}

func runWorker(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log = log.With(slog.Int("worker_id", cfg.Worker.ID))
	addr := net.JoinHostPort(cfg.Pool.Host, strconv.Itoa(cfg.Worker.Port))

	// The balancer binds the port and hands the socket down; a worker started
	// by hand binds it itself.
	ln, inherited, err := pool.InheritedListener()
	if err != nil {
		return err
	}
	if inherited {
		log.Debug("Serving on inherited listener", slog.String("addr", ln.Addr().String()))
	}
	return serveUsers(ctx, addr, ln, cfg, log)
}

func runSingle(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Worker.Port))
	return serveUsers(ctx, addr, nil, cfg, log)
}

func serveUsers(ctx context.Context, addr string, ln net.Listener, cfg *config.Config, log *slog.Logger) error {
	srv, err := httpserver.New(addr, users.NewRouter(users.NewStore(), log), httpserver.Options{
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ErrorLog:          log,
		Listener:          ln,
	})
	if err != nil {
		return err
	}
	return serve(ctx, log, srv)
}

// serve binds every server, then runs them until ctx ends or one of them
// fails, and shuts all of them down.
func serve(ctx context.Context, log *slog.Logger, servers ...*httpserver.Server) error {
	for i, srv := range servers {
		if err := srv.Listen(); err != nil {
			for _, bound := range servers[:i] {
				_ = bound.Shutdown(context.Background())
			}
			return fmt.Errorf("listen on %s: %w", srv.Addr(), err)
		}
		log.Info("Listening", slog.String("addr", srv.Addr()))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(srv.Start)
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully...")

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(context.Background()); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
