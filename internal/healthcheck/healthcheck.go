package healthcheck

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/angeloszaimis/users-cluster/internal/backend"
)

// WaitReady polls worker every interval until it returns any HTTP response,
// which is all a worker owes the balancer. It returns ctx's error, wrapped,
// if ctx ends first.
func WaitReady(
	ctx context.Context,
	worker *backend.Backend,
	interval time.Duration,
	logger *slog.Logger,
) error {
	client := &http.Client{
		Timeout:   max(interval, time.Second),
		Transport: &http.Transport{DisableKeepAlives: true},
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempts := 0
	for {
		attempts++
		if probe(ctx, client, worker) {
			logger.Debug("Worker is ready",
				slog.String("worker", worker.Name()),
				slog.Int("attempts", attempts))
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s not ready after %d attempts: %w", worker.Name(), attempts, ctx.Err())
		case <-ticker.C:
		}
	}
}

func probe(ctx context.Context, client *http.Client, worker *backend.Backend) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, worker.URL().String()+"/", nil)
	if err != nil {
		return false
	}

	res, err := client.Do(req)
	if err != nil {
		return false
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	return true
}
