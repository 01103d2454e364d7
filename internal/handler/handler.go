package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/angeloszaimis/users-cluster/internal/loadbalancer"
	"github.com/angeloszaimis/users-cluster/internal/metrics"
	"github.com/angeloszaimis/users-cluster/internal/proxy"
)

const (
	MessageNoWorkers         = "No worker available"
	MessageWorkerUnavailable = "Worker unavailable"
	MessageBadGateway        = "Bad gateway"
)

const (
	FailureWorkerUnavailable = "worker_unavailable"
	FailureMalformedResponse = "malformed_upstream_response"
	FailureClientDisconnect  = "client_disconnect"
)

type LoadBalancerHandler struct {
	logger           *slog.Logger
	balancer         *loadbalancer.LoadBalancer
	forwarder        *proxy.Forwarder
	metricsCollector *metrics.Collector
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// NewLoadBalancerHandler builds the dispatch handler. collector may be nil.
func NewLoadBalancerHandler(logger *slog.Logger, lb *loadbalancer.LoadBalancer, forwarder *proxy.Forwarder, collector *metrics.Collector) *LoadBalancerHandler {
	return &LoadBalancerHandler{
		logger:           logger,
		balancer:         lb,
		forwarder:        forwarder,
		metricsCollector: collector,
	}
}

func (lb *LoadBalancerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	client := clientAddr(r)
	lb.metricsCollector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})

	worker, err := lb.balancer.GetAndReserveServer()
	if err != nil {
		lb.metricsCollector.Emit(metrics.MetricEvent{Type: metrics.EventRequestRejected})
		lb.logger.Error("No worker to dispatch to",
			slog.String("client", client),
			slog.Any("err", err))
		writeError(w, http.StatusServiceUnavailable, MessageNoWorkers)
		return
	}
	defer worker.DecrementConn()

	lb.metricsCollector.Emit(metrics.MetricEvent{Type: metrics.EventWorkerSelected, Worker: worker.Name()})

	// A relay that breaks after the status line went out aborts the
	// connection; the failure is still counted against the worker.
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if rec == http.ErrAbortHandler {
			kind := FailureWorkerUnavailable
			if r.Context().Err() != nil {
				kind = FailureClientDisconnect
			}
			lb.emitFailure(worker.Name(), kind)
		}
		panic(rec)
	}()

	start := time.Now()
	recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

	err = lb.forwarder.Forward(recorder, r, worker)
	duration := time.Since(start)

	if err == nil {
		lb.metricsCollector.Emit(metrics.MetricEvent{
			Type:       metrics.EventResponseCompleted,
			Worker:     worker.Name(),
			Duration:   duration,
			StatusCode: recorder.statusCode,
		})
		lb.logger.Info("Dispatched request",
			slog.String("client", client),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("worker", worker.ID()),
			slog.Int("status", recorder.statusCode),
			slog.Duration("duration", duration))
		return
	}

	lb.fail(w, r, worker.Name(), client, err)
}

func (lb *LoadBalancerHandler) fail(w http.ResponseWriter, r *http.Request, worker, client string, err error) {
	attrs := []any{
		slog.String("client", client),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("worker", worker),
		slog.Any("err", err),
	}

	switch {
	case errors.Is(err, proxy.ErrClientDisconnect):
		lb.emitFailure(worker, FailureClientDisconnect)
		lb.logger.Debug("Client went away", attrs...)

	case errors.Is(err, proxy.ErrMalformedUpstreamResponse):
		lb.emitFailure(worker, FailureMalformedResponse)
		lb.logger.Error("Worker sent a malformed response", attrs...)
		writeError(w, http.StatusBadGateway, MessageBadGateway)

	default:
		lb.emitFailure(worker, FailureWorkerUnavailable)
		lb.logger.Error("Worker unavailable", attrs...)
		writeError(w, http.StatusBadGateway, MessageWorkerUnavailable)
	}
}

func (lb *LoadBalancerHandler) emitFailure(worker, kind string) {
	lb.metricsCollector.Emit(metrics.MetricEvent{
		Type:    metrics.EventWorkerFailed,
		Worker:  worker,
		Failure: kind,
	})
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
