//go:build !unix

package pool

import "os"

func terminate(p *os.Process) error {
	return p.Kill()
}
