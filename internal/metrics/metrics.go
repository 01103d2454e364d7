package metrics

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// latencyWindow is the number of recent responses kept per worker.
const latencyWindow = 1000

type Metrics struct {
	mutex     sync.RWMutex
	requests  int64
	rejected  int64
	workers   map[string]*workerStats
	startTime time.Time
}

type workerStats struct {
	selections  int64
	completed   int64
	failures    map[string]int64
	statusCodes map[int]int64
	latencies   []time.Duration
	next        int
}

func (s *workerStats) observe(d time.Duration) {
	if len(s.latencies) < latencyWindow {
		s.latencies = append(s.latencies, d)
		return
	}
	s.latencies[s.next] = d
	s.next = (s.next + 1) % latencyWindow
}

type Snapshot struct {
	TotalRequests int64                    `json:"total_requests"`
	Rejected      int64                    `json:"rejected"`
	Uptime        time.Duration            `json:"uptime"`
	Algorithm     string                   `json:"algorithm"`
	Workers       map[string]WorkerMetrics `json:"workers"`
}

type WorkerMetrics struct {
	Selections  int64            `json:"selections"`
	Completed   int64            `json:"completed"`
	Failures    map[string]int64 `json:"failures"`
	StatusCodes map[int]int64    `json:"status_codes"`
	AvgResponse time.Duration    `json:"avg_response"`
	P50Response time.Duration    `json:"p50_response"`
	P95Response time.Duration    `json:"p95_response"`
	P99Response time.Duration    `json:"p99_response"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		workers:   make(map[string]*workerStats),
		startTime: time.Now(),
	}
}

func (m *Metrics) IncrementRequests() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests++
}

func (m *Metrics) IncrementRejected() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rejected++
}

func (m *Metrics) RecordSelection(worker string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.stats(worker).selections++
}

func (m *Metrics) RecordResponse(worker string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	s := m.stats(worker)
	s.completed++
	s.statusCodes[statusCode]++
	s.observe(duration)
}

func (m *Metrics) RecordFailure(worker, kind string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.stats(worker).failures[kind]++
}

// stats must be called with the write lock held.
func (m *Metrics) stats(worker string) *workerStats {
	s, ok := m.workers[worker]
	if !ok {
		s = &workerStats{
			failures:    make(map[string]int64),
			statusCodes: make(map[int]int64),
		}
		m.workers[worker] = s
	}
	return s
}

func (m *Metrics) Snapshot(algorithm string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		TotalRequests: m.requests,
		Rejected:      m.rejected,
		Uptime:        time.Since(m.startTime),
		Algorithm:     algorithm,
		Workers:       make(map[string]WorkerMetrics, len(m.workers)),
	}

	for name, s := range m.workers {
		wm := WorkerMetrics{
			Selections:  s.selections,
			Completed:   s.completed,
			Failures:    maps.Clone(s.failures),
			StatusCodes: maps.Clone(s.statusCodes),
		}

		if len(s.latencies) > 0 {
			sorted := slices.Clone(s.latencies)
			slices.Sort(sorted)

			wm.AvgResponse = average(sorted)
			wm.P50Response = percentile(sorted, 0.50)
			wm.P95Response = percentile(sorted, 0.95)
			wm.P99Response = percentile(sorted, 0.99)
		}

		snap.Workers[name] = wm
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
