package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/users-cluster/internal/backend"
	"github.com/angeloszaimis/users-cluster/internal/healthcheck"
)

var (
	ErrPoolExhausted      = errors.New("worker pool could not be initialized")
	ErrAlreadyInitialized = errors.New("worker pool already initialized")
)

// Spec describes the worker a Launcher must start.
type Spec struct {
	ID   int
	Port int
	// Listener is already bound to Port. The launcher owns it once Launch
	// is called and hands it to the worker.
	Listener net.Listener
}

type Launcher interface {
	// Launch starts the worker process. The process must stop when ctx
	// is cancelled.
	Launch(ctx context.Context, spec Spec) (backend.Process, error)
}

type Options struct {
	Host          string
	BasePort      int
	SpawnTimeout  time.Duration
	StopTimeout   time.Duration
	ProbeInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Host == "" {
		o.Host = "localhost"
	}
	if o.SpawnTimeout <= 0 {
		o.SpawnTimeout = 5 * time.Second
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 5 * time.Second
	}
	if o.ProbeInterval <= 0 {
		o.ProbeInterval = 50 * time.Millisecond
	}
	return o
}

type Pool struct {
	launcher Launcher
	opts     Options
	logger   *slog.Logger

	// lifetime bounds the worker processes; it ends with Shutdown, not with
	// the context given to Initialize.
	lifetime context.Context
	cancel   context.CancelFunc
	monitors sync.WaitGroup

	mutex       sync.RWMutex
	workers     []*backend.Backend
	initialized bool
	stopped     bool
}

func New(launcher Launcher, opts Options, logger *slog.Logger) *Pool {
	lifetime, cancel := context.WithCancel(context.Background())

	return &Pool{
		launcher: launcher,
		opts:     opts.withDefaults(),
		logger:   logger,
		lifetime: lifetime,
		cancel:   cancel,
	}
}

// Initialize spawns workerCount workers concurrently and returns once all of
// them are ready. ctx bounds startup only.
func (p *Pool) Initialize(ctx context.Context, workerCount int) error {
	if workerCount < 1 {
		return fmt.Errorf("%w: worker count must be at least 1, got %d", ErrPoolExhausted, workerCount)
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.initialized || p.stopped {
		return ErrAlreadyInitialized
	}

	workers := make([]*backend.Backend, workerCount)
	g, gctx := errgroup.WithContext(ctx)
	for id := 0; id < workerCount; id++ {
		g.Go(func() error {
			worker, err := p.spawn(gctx, id)
			if err != nil {
				return err
			}
			workers[id] = worker
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		p.stopAll(workers)
		p.logger.Error("Worker pool failed to start",
			slog.Int("workers", workerCount),
			slog.Any("err", err))
		return fmt.Errorf("%w: %w", ErrPoolExhausted, err)
	}

	p.workers = workers
	p.initialized = true

	for _, worker := range workers {
		p.monitors.Add(1)
		go p.monitor(worker)
	}

	p.logger.Info("Worker pool started",
		slog.Int("workers", workerCount),
		slog.Int("base_port", p.opts.BasePort))

	return nil
}

func (p *Pool) spawn(ctx context.Context, id int) (*backend.Backend, error) {
	port := p.opts.BasePort + id

	// Binding here means readiness can only be answered by the worker that
	// was handed this socket.
	ln, err := net.Listen("tcp", net.JoinHostPort(p.opts.Host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("bind worker-%d: %w", id, err)
	}

	proc, err := p.launcher.Launch(p.lifetime, Spec{ID: id, Port: port, Listener: ln})
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("spawn worker-%d: %w", id, err)
	}

	worker := backend.New(id, p.opts.Host, port, proc)

	readyCtx, cancel := context.WithTimeout(ctx, p.opts.SpawnTimeout)
	defer cancel()

	go func() {
		select {
		case <-proc.Done():
			cancel()
		case <-readyCtx.Done():
		}
	}()

	if err := healthcheck.WaitReady(readyCtx, worker, p.opts.ProbeInterval, p.logger); err != nil {
		p.stop(worker)
		select {
		case <-proc.Done():
			return nil, fmt.Errorf("worker-%d exited during startup: %w", id, err)
		default:
			return nil, err
		}
	}

	p.logger.Info("Worker started",
		slog.String("worker", worker.Name()),
		slog.Int("port", port),
		slog.Int("pid", worker.Pid()))

	return worker, nil
}

// monitor reports a worker that exits while the pool is running.
func (p *Pool) monitor(worker *backend.Backend) {
	defer p.monitors.Done()

	select {
	case <-worker.Process().Done():
		p.logger.Warn("Worker exited; requests routed to it will fail",
			slog.String("worker", worker.Name()),
			slog.Int("pid", worker.Pid()))
	case <-p.lifetime.Done():
	}
}

// Workers returns the pool in spawn order. The view is stable until Shutdown.
func (p *Pool) Workers() []*backend.Backend {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	workers := make([]*backend.Backend, len(p.workers))
	copy(workers, p.workers)
	return workers
}

// Shutdown stops every worker, killing those that outlive StopTimeout or ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mutex.Lock()
	if p.stopped {
		p.mutex.Unlock()
		return nil
	}
	p.stopped = true
	workers := p.workers
	p.mutex.Unlock()

	errs := p.stopAllContext(ctx, workers)
	p.cancel()
	p.monitors.Wait()

	p.logger.Info("Worker pool stopped", slog.Int("workers", len(workers)))
	return errors.Join(errs...)
}

func (p *Pool) stop(worker *backend.Backend) {
	p.stopAllContext(context.Background(), []*backend.Backend{worker})
}

func (p *Pool) stopAll(workers []*backend.Backend) {
	p.stopAllContext(context.Background(), workers)
}

func (p *Pool) stopAllContext(ctx context.Context, workers []*backend.Backend) []error {
	var (
		wg    sync.WaitGroup
		mutex sync.Mutex
		errs  []error
	)

	for _, worker := range workers {
		if worker == nil || worker.Process() == nil {
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			stopCtx, cancel := context.WithTimeout(ctx, p.opts.StopTimeout)
			defer cancel()

			if err := worker.Process().Stop(stopCtx); err != nil {
				p.logger.Warn("Failed to stop worker cleanly",
					slog.String("worker", worker.Name()),
					slog.Any("err", err))
				mutex.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", worker.Name(), err))
				mutex.Unlock()
			}
		}()
	}

	wg.Wait()
	return errs
}
