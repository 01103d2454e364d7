package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"github.com/angeloszaimis/users-cluster/internal/backend"
)

// ListenerFDEnv names the descriptor of the listening socket a worker
// inherits from the balancer.
const ListenerFDEnv = "WORKER_LISTENER_FD"

// inheritedFD is the descriptor of the first entry of exec.Cmd.ExtraFiles.
const inheritedFD = 3

// ExecLauncher starts each worker as a child process of the current one.
type ExecLauncher struct {
	Path string
	Args func(spec Spec) []string
	// Env is appended to the parent's environment.
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
	// WaitDelay bounds how long a cancelled child may linger before it is killed.
	WaitDelay time.Duration
}

func NewExecLauncher(path string, args func(spec Spec) []string) *ExecLauncher {
	return &ExecLauncher{
		Path:      path,
		Args:      args,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		WaitDelay: 5 * time.Second,
	}
}

// Launch starts the worker. When spec carries a listener the child inherits
// it as descriptor 3 and the parent's copy is closed; where sockets cannot be
// inherited the listener is released and the child binds the port itself.
func (l *ExecLauncher) Launch(ctx context.Context, spec Spec) (backend.Process, error) {
	var args []string
	if l.Args != nil {
		args = l.Args(spec)
	}

	cmd := exec.CommandContext(ctx, l.Path, args...)
	cmd.Env = append(os.Environ(), l.Env...)
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	cmd.SysProcAttr = sysProcAttr()
	cmd.Cancel = func() error {
		return terminate(cmd.Process)
	}
	cmd.WaitDelay = l.WaitDelay

	if spec.Listener != nil {
		defer spec.Listener.Close()

		f, err := listenerFile(spec.Listener)
		if err != nil {
			spec.Listener.Close()
		} else {
			defer f.Close()
			cmd.ExtraFiles = []*os.File{f}
			cmd.Env = append(cmd.Env, ListenerFDEnv+"="+strconv.Itoa(inheritedFD))
		}
	}

	proc := &execProcess{
		cmd:  cmd,
		done: make(chan struct{}),
	}

	started := make(chan error, 1)
	go func() {
		// The parent-death signal is tied to the OS thread that started the
		// child, so that thread stays with this goroutine until the child exits.
		runtime.LockOSThread()
		if err := cmd.Start(); err != nil {
			started <- err
			return
		}
		started <- nil

		_ = cmd.Wait()
		close(proc.done)
	}()

	if err := <-started; err != nil {
		return nil, fmt.Errorf("start %s: %w", l.Path, err)
	}

	return proc, nil
}

func listenerFile(l net.Listener) (*os.File, error) {
	fl, ok := l.(interface{ File() (*os.File, error) })
	if !ok {
		return nil, fmt.Errorf("%T cannot be inherited", l)
	}
	return fl.File()
}

// InheritedListener returns the listening socket handed down by the
// balancer. ok is false when the process was started without one.
func InheritedListener() (l net.Listener, ok bool, err error) {
	raw := os.Getenv(ListenerFDEnv)
	if raw == "" {
		return nil, false, nil
	}

	fd, err := strconv.Atoi(raw)
	if err != nil {
		return nil, false, fmt.Errorf("%s=%q: %w", ListenerFDEnv, raw, err)
	}

	f := os.NewFile(uintptr(fd), "worker-listener")
	if f == nil {
		return nil, false, errors.New("invalid inherited listener descriptor")
	}
	defer f.Close()

	l, err = net.FileListener(f)
	if err != nil {
		return nil, false, fmt.Errorf("inherited listener: %w", err)
	}
	return l, true, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

// Stop asks the process to terminate and kills it if it is still running
// when ctx ends.
func (p *execProcess) Stop(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := terminate(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal pid %d: %w", p.Pid(), err)
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		_ = p.cmd.Process.Kill()
		<-p.done
		return fmt.Errorf("pid %d killed: %w", p.Pid(), ctx.Err())
	}
}
