package backend

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
)

// Process is the handle of the operating-system process behind a worker.
type Process interface {
	Pid() int
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Stop asks the process to exit and waits for it until ctx expires.
	Stop(ctx context.Context) error
}

// Backend is a worker descriptor. Identity fields never change after New.
type Backend struct {
	id      int
	port    int
	url     *url.URL
	process Process

	mutex             sync.Mutex
	activeConnections int
}

// New creates the descriptor of worker id listening on host:port.
// process may be nil for workers not owned by this balancer.
func New(id int, host string, port int, process Process) *Backend {
	return &Backend{
		id:   id,
		port: port,
		url: &url.URL{
			Scheme: "http",
			Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		},
		process: process,
	}
}

func (b *Backend) ID() int {
	return b.id
}

func (b *Backend) Port() int {
	return b.port
}

// URL returns the worker's base URL, e.g. http://localhost:4001.
func (b *Backend) URL() *url.URL {
	return b.url
}

// Name is the label used for the worker in logs and metrics.
func (b *Backend) Name() string {
	return fmt.Sprintf("worker-%d", b.id)
}

func (b *Backend) Process() Process {
	return b.process
}

// Pid returns the worker's process id, or 0 when no process is attached.
func (b *Backend) Pid() int {
	if b.process == nil {
		return 0
	}
	return b.process.Pid()
}

// Alive reports whether the worker process is still running. Workers
// without a process handle are assumed alive.
func (b *Backend) Alive() bool {
	if b.process == nil {
		return true
	}
	select {
	case <-b.process.Done():
		return false
	default:
		return true
	}
}

// IncrementConn increments the active connection count.
func (b *Backend) IncrementConn() {
	b.mutex.Lock()
	b.activeConnections++
	b.mutex.Unlock()
}

// DecrementConn decrements the active connection count.
func (b *Backend) DecrementConn() {
	b.mutex.Lock()
	if b.activeConnections > 0 {
		b.activeConnections--
	}
	b.mutex.Unlock()
}

// ActiveConnections returns the current number of active connections.
func (b *Backend) ActiveConnections() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.activeConnections
}
