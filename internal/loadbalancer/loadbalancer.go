package loadbalancer

import (
	"errors"

	"github.com/angeloszaimis/users-cluster/internal/backend"
	"github.com/angeloszaimis/users-cluster/internal/strategy"
)

var (
	ErrEmptyPool   = errors.New("worker pool is empty")
	ErrNoSelection = errors.New("strategy returned nil backend")
)

type LoadBalancer struct {
	strategy strategy.Strategy
	workers  []*backend.Backend
}

// NewLoadBalancer copies workers; later changes to the caller's slice do not
// affect selection.
func NewLoadBalancer(strategy strategy.Strategy, workers []*backend.Backend) *LoadBalancer {
	pool := make([]*backend.Backend, len(workers))
	copy(pool, workers)

	return &LoadBalancer{
		strategy: strategy,
		workers:  pool,
	}
}

// GetAndReserveServer selects the next worker and counts the request against
// it. Callers release the reservation with DecrementConn.
func (lb *LoadBalancer) GetAndReserveServer() (*backend.Backend, error) {
	if len(lb.workers) == 0 {
		return nil, ErrEmptyPool
	}

	chosen := lb.strategy.SelectBackend(lb.workers)
	if chosen == nil {
		return nil, ErrNoSelection
	}

	chosen.IncrementConn()
	return chosen, nil
}

func (lb *LoadBalancer) Workers() []*backend.Backend {
	workers := make([]*backend.Backend, len(lb.workers))
	copy(workers, lb.workers)
	return workers
}

func (lb *LoadBalancer) LoadBalancerStrategy() strategy.Strategy {
	return lb.strategy
}
