// Package metrics aggregates dispatch events from the balancer.
//
// Events travel through a buffered channel to a single collector goroutine,
// so the request path never waits on bookkeeping: Emit drops the event when
// the buffer is full. Per worker the collector keeps selection counts,
// failures by kind, status codes, and latency percentiles over the most
// recent responses.
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventResponseCompleted,
//		Worker:     "worker-0",
//		Duration:   3 * time.Millisecond,
//		StatusCode: 201,
//	})
//
//	snapshot := collector.Snapshot("round-robin")
package metrics
