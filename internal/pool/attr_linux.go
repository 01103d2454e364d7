package pool

import "syscall"

// Children receive SIGTERM if the parent dies without running Shutdown.
// Linux delivers it when the thread that forked the child exits, which is
// why Launch starts and waits for each child on a locked OS thread.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Pdeathsig: syscall.SIGTERM}
}
