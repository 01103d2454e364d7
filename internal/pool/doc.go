// Package pool spawns and owns the worker processes behind the load balancer.
//
// Initialize starts a fixed number of workers, worker N on basePort+N, and
// waits until each one answers HTTP. A single failure stops every worker
// already started and fails the whole pool with ErrPoolExhausted; there is
// no partial pool. After startup the pool is immutable until Shutdown.
// Workers that die are logged, never restarted.
//
// Usage:
//
//	launcher := pool.NewExecLauncher(exe, func(s pool.Spec) []string {
//		return []string{"--mode=worker", fmt.Sprintf("--worker-id=%d", s.ID)}
//	})
//	p := pool.New(launcher, pool.Options{Host: "localhost", BasePort: 4001}, logger)
//	if err := p.Initialize(ctx, 3); err != nil {
//		// fatal: the balancer never starts listening
//	}
//	defer p.Shutdown(context.Background())
package pool
