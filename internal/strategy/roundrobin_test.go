package strategy_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/users-cluster/internal/backend"
	"github.com/angeloszaimis/users-cluster/internal/strategy"
)

func newPool(size int) []*backend.Backend {
	backends := make([]*backend.Backend, size)
	for i := range backends {
		backends[i] = backend.New(i, "localhost", 4001+i, nil)
	}
	return backends
}

var _ = Describe("Roundrobin", func() {
	var (
		strat    strategy.Strategy
		backends []*backend.Backend
	)

	BeforeEach(func() {
		strat = strategy.NewRoundRobinStrategy()
		backends = newPool(3)
	})

	It("should be named round-robin", func() {
		Expect(strat.Name()).To(Equal(strategy.RoundRobin))
	})

	Describe("SelectBackend", func() {
		It("should cycle through backends in order", func() {
			Expect(strat.SelectBackend(backends)).To(BeIdenticalTo(backends[0]))
			Expect(strat.SelectBackend(backends)).To(BeIdenticalTo(backends[1]))
			Expect(strat.SelectBackend(backends)).To(BeIdenticalTo(backends[2]))
			Expect(strat.SelectBackend(backends)).To(BeIdenticalTo(backends[0]))
			Expect(strat.SelectBackend(backends)).To(BeIdenticalTo(backends[1]))
		})

		It("should distribute load evenly", func() {
			counts := make(map[int]int)
			for i := 0; i < 300; i++ {
				counts[strat.SelectBackend(backends).ID()]++
			}
			Expect(counts).To(Equal(map[int]int{0: 100, 1: 100, 2: 100}))
		})

		It("should continue from where the cursor left off", func() {
			strat.SelectBackend(backends)
			strat.SelectBackend(backends)

			var ids []int
			for i := 0; i < 4; i++ {
				ids = append(ids, strat.SelectBackend(backends).ID())
			}
			Expect(ids).To(Equal([]int{2, 0, 1, 2}))
		})

		It("should always return the only worker of a single-worker pool", func() {
			single := newPool(1)
			for i := 0; i < 5; i++ {
				Expect(strat.SelectBackend(single)).To(BeIdenticalTo(single[0]))
			}
		})

		Context("with empty backend list", func() {
			It("should return nil", func() {
				Expect(strat.SelectBackend([]*backend.Backend{})).To(BeNil())
			})
		})

		Context("under concurrent callers", func() {
			It("should never hand out a duplicate or skip a position", func() {
				const perWorker = 200
				backends = newPool(4)
				callers := len(backends) * perWorker

				results := make(chan int, callers)
				start := make(chan struct{})
				var wg sync.WaitGroup
				for i := 0; i < callers; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						<-start
						results <- strat.SelectBackend(backends).ID()
					}()
				}
				close(start)
				wg.Wait()
				close(results)

				counts := make(map[int]int)
				for id := range results {
					counts[id]++
				}
				Expect(counts).To(HaveLen(4))
				for id, count := range counts {
					Expect(count).To(Equal(perWorker), "worker %d", id)
				}

				// The cursor is back at the start after a whole number of rounds.
				Expect(strat.SelectBackend(backends)).To(BeIdenticalTo(backends[0]))
			})
		})
	})
})

var _ = Describe("Round-robin fairness", func() {
	DescribeTable("N selections over a pool of K",
		func(k, n int) {
			strat := strategy.NewRoundRobinStrategy()
			backends := newPool(k)

			counts := make([]int, k)
			for i := 0; i < n; i++ {
				counts[strat.SelectBackend(backends).ID()]++
			}

			for id := 0; id < k; id++ {
				expected := n / k
				if id < n%k {
					expected++
				}
				Expect(counts[id]).To(Equal(expected), "worker %d", id)
			}
		},
		Entry("exact rounds", 3, 9),
		Entry("partial last round", 3, 5),
		Entry("fewer selections than workers", 5, 2),
		Entry("single worker", 1, 7),
		Entry("large pool", 16, 1000),
	)
})
