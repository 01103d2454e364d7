package strategy

import (
	"sync/atomic"

	"github.com/angeloszaimis/users-cluster/internal/backend"
)

const RoundRobin = "round-robin"

// roundRobinStrategy keeps the index of the next worker in [0, len(pool)).
// Read and advance happen in one compare-and-swap, so concurrent callers
// never share a cursor value.
type roundRobinStrategy struct {
	next atomic.Uint64
}

func (rb *roundRobinStrategy) Name() string {
	return RoundRobin
}

func (rb *roundRobinStrategy) SelectBackend(backends []*backend.Backend) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	size := uint64(len(backends))
	for {
		current := rb.next.Load()
		index := current % size
		if rb.next.CompareAndSwap(current, (index+1)%size) {
			return backends[index]
		}
	}
}

func NewRoundRobinStrategy() Strategy {
	return &roundRobinStrategy{}
}
