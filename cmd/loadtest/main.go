// Loadtest drives the load balancer with concurrent requests and reports
// throughput, the status code distribution and latency percentiles.
//
// Usage:
//
//	go run ./cmd/loadtest --url http://localhost:4000/api/users --concurrency 20 --requests 2000
//	go run ./cmd/loadtest --method GET --admin http://localhost:4100 --out summary.json
//
// With --admin the per-worker dispatch counts are read from the balancer's
// admin listener once the run is over.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"

	"github.com/angeloszaimis/users-cluster/internal/metrics"
)

type options struct {
	url         string
	method      string
	body        string
	contentType string
	concurrency int
	requests    int
	timeout     time.Duration
	admin       string
	out         string
	verbose     bool
}

type result struct {
	status   int
	duration time.Duration
	err      error
}

type summary struct {
	Target        string         `json:"target"`
	Method        string         `json:"method"`
	Requests      int            `json:"requests"`
	Concurrency   int            `json:"concurrency"`
	Success       int            `json:"success"`
	Failure       int            `json:"failure"`
	Errors        int            `json:"transport_errors"`
	DurationMs    int64          `json:"duration_ms"`
	ThroughputRPS float64        `json:"throughput_rps"`
	StatusCodes   map[int]int    `json:"status_codes"`
	Latency       latencySummary `json:"latency"`
	// Workers is filled from the admin listener when --admin is set.
	Workers map[string]int64 `json:"workers,omitempty"`
}

type latencySummary struct {
	Min time.Duration `json:"min"`
	Avg time.Duration `json:"avg"`
	Max time.Duration `json:"max"`
	P50 time.Duration `json:"p50"`
	P90 time.Duration `json:"p90"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`
}

func main() {
	opts := parseFlags()

	client := &http.Client{Timeout: opts.timeout}

	start := time.Now()
	results := run(context.Background(), client, opts)
	elapsed := time.Since(start)

	s := summarize(opts, results, elapsed)
	if opts.admin != "" {
		workers, err := fetchWorkerSelections(client, opts.admin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read admin metrics: %v\n", err)
		}
		s.Workers = workers
	}

	printSummary(s)

	if opts.out != "" {
		if err := writeJSON(opts.out, s); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write summary: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nWrote JSON summary to %s\n", opts.out)
	}

	if s.Failure > 0 {
		os.Exit(2)
	}
}

func parseFlags() options {
	var opts options

	pflag.StringVar(&opts.url, "url", "http://localhost:4000/api/users", "target URL")
	pflag.StringVar(&opts.method, "method", http.MethodPost, "HTTP method")
	pflag.StringVar(&opts.body, "body", `{"username":"load","age":30,"hobbies":["testing"]}`, "request body")
	pflag.StringVar(&opts.contentType, "content-type", "application/json", "Content-Type header")
	pflag.IntVar(&opts.concurrency, "concurrency", 10, "number of concurrent clients")
	pflag.IntVar(&opts.requests, "requests", 100, "total number of requests")
	pflag.DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-request timeout")
	pflag.StringVar(&opts.admin, "admin", "", "base URL of the balancer's admin listener")
	pflag.StringVar(&opts.out, "out", "", "write a JSON summary to this file")
	pflag.BoolVarP(&opts.verbose, "verbose", "v", false, "log every request")
	pflag.Parse()

	if opts.concurrency < 1 {
		opts.concurrency = 1
	}
	return opts
}

func run(ctx context.Context, client *http.Client, opts options) []result {
	jobs := make(chan int)
	results := make([]result, opts.requests)

	var wg sync.WaitGroup
	for c := 0; c < opts.concurrency; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = send(ctx, client, opts)
				if opts.verbose {
					r := results[idx]
					fmt.Printf("[%d] idx=%d status=%d dur=%v err=%v\n", c, idx, r.status, r.duration, r.err)
				}
			}
		}()
	}

	for i := 0; i < opts.requests; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func send(ctx context.Context, client *http.Client, opts options) result {
	var body io.Reader
	if opts.body != "" && opts.method != http.MethodGet {
		body = strings.NewReader(opts.body)
	}

	req, err := http.NewRequestWithContext(ctx, opts.method, opts.url, body)
	if err != nil {
		return result{err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", opts.contentType)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return result{duration: time.Since(start), err: err}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return result{status: resp.StatusCode, duration: time.Since(start)}
}

func summarize(opts options, results []result, elapsed time.Duration) summary {
	s := summary{
		Target:      opts.url,
		Method:      opts.method,
		Requests:    opts.requests,
		Concurrency: opts.concurrency,
		DurationMs:  elapsed.Milliseconds(),
		StatusCodes: make(map[int]int),
	}
	if elapsed > 0 {
		s.ThroughputRPS = float64(len(results)) / elapsed.Seconds()
	}

	latencies := make([]time.Duration, 0, len(results))
	for _, r := range results {
		latencies = append(latencies, r.duration)

		switch {
		case r.err != nil:
			s.Errors++
			s.Failure++
		case r.status >= 200 && r.status < 300:
			s.StatusCodes[r.status]++
			s.Success++
		default:
			s.StatusCodes[r.status]++
			s.Failure++
		}
	}

	s.Latency = summarizeLatencies(latencies)
	return s
}

func summarizeLatencies(latencies []time.Duration) latencySummary {
	if len(latencies) == 0 {
		return latencySummary{}
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	pick := func(p float64) time.Duration {
		return sorted[int(float64(len(sorted)-1)*p)]
	}

	return latencySummary{
		Min: sorted[0],
		Avg: sum / time.Duration(len(sorted)),
		Max: sorted[len(sorted)-1],
		P50: pick(0.50),
		P90: pick(0.90),
		P95: pick(0.95),
		P99: pick(0.99),
	}
}

func fetchWorkerSelections(client *http.Client, admin string) (map[string]int64, error) {
	resp, err := client.Get(strings.TrimRight(admin, "/") + "/metrics")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("admin answered %s", resp.Status)
	}

	var snap metrics.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, err
	}

	workers := make(map[string]int64, len(snap.Workers))
	for name, wm := range snap.Workers {
		workers[name] = wm.Selections
	}
	return workers, nil
}

func printSummary(s summary) {
	fmt.Println("--- Load Test Summary ---")
	fmt.Printf("Target: %s %s\n", s.Method, s.Target)
	fmt.Printf("Requests: %d  Concurrency: %d\n", s.Requests, s.Concurrency)
	fmt.Printf("Success: %d  Failure: %d  Transport errors: %d\n", s.Success, s.Failure, s.Errors)
	fmt.Printf("Duration: %dms  Throughput: %.2f req/s\n", s.DurationMs, s.ThroughputRPS)

	fmt.Println("\nStatus codes:")
	codes := make([]int, 0, len(s.StatusCodes))
	for code := range s.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d -> %d\n", code, s.StatusCodes[code])
	}

	l := s.Latency
	fmt.Println("\nLatencies:")
	fmt.Printf("  min=%v avg=%v max=%v p50=%v p90=%v p95=%v p99=%v\n", l.Min, l.Avg, l.Max, l.P50, l.P90, l.P95, l.P99)

	if len(s.Workers) > 0 {
		fmt.Println("\nWorker selections (since balancer start):")
		names := make([]string, 0, len(s.Workers))
		for name := range s.Workers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %s -> %d\n", name, s.Workers[name])
		}
	}
}

func writeJSON(path string, s summary) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
