package proxy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/textproto"
	"strings"
	"time"

	"github.com/angeloszaimis/users-cluster/internal/backend"
)

var (
	ErrWorkerUnavailable         = errors.New("worker unavailable")
	ErrMalformedUpstreamResponse = errors.New("malformed upstream response")
	ErrClientDisconnect          = errors.New("client disconnected")
)

// ReverseProxy strips these from the outbound request; they are put back so
// the worker sees exactly what the client sent.
var forwardedHeaders = []string{
	"Forwarded",
	"X-Forwarded-For",
	"X-Forwarded-Host",
	"X-Forwarded-Proto",
}

type Options struct {
	DialTimeout time.Duration
	// ResponseHeaderTimeout bounds the wait for the worker's response
	// headers once the request is written. Zero waits indefinitely.
	ResponseHeaderTimeout time.Duration
}

type Forwarder struct {
	transport *http.Transport
	logger    *slog.Logger
	errorLog  *log.Logger
}

func NewForwarder(logger *slog.Logger, opts Options) *Forwarder {
	dialer := &net.Dialer{Timeout: opts.DialTimeout}

	return &Forwarder{
		transport: &http.Transport{
			Proxy:                 nil,
			DialContext:           dialer.DialContext,
			DisableKeepAlives:     true,
			DisableCompression:    true,
			ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		},
		logger:   logger,
		errorLog: slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}

// Forward relays r to worker and streams the worker's response into w.
// When it returns an error nothing has been written to w, so the caller owns
// the error response. A connection that breaks after the status line was
// relayed cannot be reported that way; the client connection is aborted
// instead, by re-raising http.ErrAbortHandler.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, worker *backend.Backend) (err error) {
	target := worker.URL()

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.Host = pr.In.Host
			for _, name := range forwardedHeaders {
				if values, ok := pr.In.Header[name]; ok {
					pr.Out.Header[name] = values
				}
			}
		},
		Transport:     f.transport,
		FlushInterval: -1,
		ErrorLog:      f.errorLog,
		ErrorHandler: func(_ http.ResponseWriter, req *http.Request, proxyErr error) {
			err = classify(req.Context(), worker, proxyErr)
		},
	}

	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				f.logger.Warn("Relay aborted mid-response",
					slog.String("worker", worker.Name()),
					slog.Bool("client_gone", r.Context().Err() != nil))
			}
			panic(rec)
		}
	}()

	rp.ServeHTTP(w, r)
	return err
}

func classify(ctx context.Context, worker *backend.Backend, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrClientDisconnect, err)
	}

	if isMalformed(err) {
		return fmt.Errorf("%w from %s: %w", ErrMalformedUpstreamResponse, worker.Name(), err)
	}

	return fmt.Errorf("%w: %s: %w", ErrWorkerUnavailable, worker.Name(), err)
}

func isMalformed(err error) bool {
	var protoErr textproto.ProtocolError
	if errors.As(err, &protoErr) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "malformed HTTP") ||
		strings.Contains(msg, "malformed MIME") ||
		strings.Contains(msg, "bad Content-Length")
}
