package loadbalancer_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/users-cluster/internal/backend"
	"github.com/angeloszaimis/users-cluster/internal/loadbalancer"
	"github.com/angeloszaimis/users-cluster/internal/strategy"
)

type nilStrategy struct{}

func (nilStrategy) Name() string { return "nil" }
func (nilStrategy) SelectBackend([]*backend.Backend) *backend.Backend {
	return nil
}

var _ = Describe("LoadBalancer", func() {
	var (
		lb       *loadbalancer.LoadBalancer
		backends []*backend.Backend
	)

	BeforeEach(func() {
		backends = []*backend.Backend{
			backend.New(0, "localhost", 4001, nil),
			backend.New(1, "localhost", 4002, nil),
			backend.New(2, "localhost", 4003, nil),
		}
		lb = loadbalancer.NewLoadBalancer(strategy.NewRoundRobinStrategy(), backends)
	})

	Describe("GetAndReserveServer", func() {
		It("should route five requests to A, B, C, A, B", func() {
			var ids []int
			for i := 0; i < 5; i++ {
				server, err := lb.GetAndReserveServer()
				Expect(err).NotTo(HaveOccurred())
				ids = append(ids, server.ID())
			}
			Expect(ids).To(Equal([]int{0, 1, 2, 0, 1}))
		})

		It("should increment connection count", func() {
			server, err := lb.GetAndReserveServer()
			Expect(err).NotTo(HaveOccurred())
			Expect(server.ActiveConnections()).To(Equal(1))
		})

		Context("with an empty pool", func() {
			It("should return ErrEmptyPool", func() {
				empty := loadbalancer.NewLoadBalancer(strategy.NewRoundRobinStrategy(), nil)
				server, err := empty.GetAndReserveServer()
				Expect(err).To(MatchError(loadbalancer.ErrEmptyPool))
				Expect(server).To(BeNil())
			})
		})

		Context("when the strategy selects nothing", func() {
			It("should return ErrNoSelection", func() {
				lb = loadbalancer.NewLoadBalancer(nilStrategy{}, backends)
				_, err := lb.GetAndReserveServer()
				Expect(err).To(MatchError(loadbalancer.ErrNoSelection))
			})
		})
	})

	Describe("Workers", func() {
		It("should keep the pool independent of the caller's slice", func() {
			backends[0] = backend.New(9, "localhost", 4999, nil)

			workers := lb.Workers()
			Expect(workers).To(HaveLen(3))
			Expect(workers[0].ID()).To(Equal(0))
		})

		It("should return a copy", func() {
			workers := lb.Workers()
			workers[1] = nil
			Expect(lb.Workers()[1]).NotTo(BeNil())
		})
	})

	It("should expose its strategy", func() {
		Expect(lb.LoadBalancerStrategy().Name()).To(Equal(strategy.RoundRobin))
	})
})
