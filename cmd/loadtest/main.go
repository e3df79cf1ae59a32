// Command loadtest drives GET /query on a gateway with a fixed number of
// workers and prints throughput, latency percentiles, cache hits and the
// share of partial answers.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -concurrency 20 -duration 1m -qps 500
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var defaultQueries = []string{
	"distributed systems",
	"search engine",
	"inverted index",
	"query processing",
	"ranking algorithm",
	"shard routing",
	"federated retrieval",
	"term statistics",
	"document frequency",
	"okapi weighting",
	"link analysis",
	"fox",
}

type options struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	qps         float64
	pageSize    int
	schemes     []string
	queries     []string
}

// queryReply is the part of the gateway response the report needs.
type queryReply struct {
	Rows   []json.RawMessage `json:"rows"`
	Errors []string          `json:"errors"`
	Cached bool              `json:"cached"`
}

type report struct {
	total     atomic.Int64
	ok        atomic.Int64
	failed    atomic.Int64
	partial   atomic.Int64
	cached    atomic.Int64
	emptyRows atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func newReport() *report {
	return &report{
		latencies: make([]time.Duration, 0, 1<<16),
		codes:     make(map[int]int64),
	}
}

func (r *report) record(d time.Duration, code int, reply *queryReply, err error) {
	r.total.Add(1)
	if err != nil {
		r.failed.Add(1)
		return
	}
	if code == http.StatusOK {
		r.ok.Add(1)
	} else {
		r.failed.Add(1)
	}
	if reply != nil {
		if len(reply.Errors) > 0 {
			r.partial.Add(1)
		}
		if reply.Cached {
			r.cached.Add(1)
		}
		if len(reply.Rows) == 0 {
			r.emptyRows.Add(1)
		}
	}
	r.mu.Lock()
	r.latencies = append(r.latencies, d)
	r.codes[code]++
	r.mu.Unlock()
}

func main() {
	var opts options
	var schemes, queriesFile string
	flag.StringVar(&opts.baseURL, "url", "http://localhost:8080", "gateway base URL")
	flag.IntVar(&opts.concurrency, "concurrency", 10, "number of concurrent workers")
	flag.DurationVar(&opts.duration, "duration", 30*time.Second, "test duration")
	flag.Float64Var(&opts.qps, "qps", 0, "overall request rate limit (0 = unlimited)")
	flag.IntVar(&opts.pageSize, "n", 10, "page size sent as n")
	flag.StringVar(&schemes, "schemes", "BM25", "comma separated weighting schemes to rotate through")
	flag.StringVar(&queriesFile, "queries", "", "file with one query per line")
	flag.Parse()

	opts.schemes = strings.Split(schemes, ",")
	opts.queries = defaultQueries
	if queriesFile != "" {
		qs, err := readQueries(queriesFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(1)
		}
		opts.queries = qs
	}

	fmt.Println("=== Federated Search Load Test ===")
	fmt.Printf("Target:      %s\n", opts.baseURL)
	fmt.Printf("Concurrency: %d\n", opts.concurrency)
	fmt.Printf("Duration:    %s\n", opts.duration)
	fmt.Printf("Schemes:     %s\n", strings.Join(opts.schemes, " "))
	fmt.Printf("Queries:     %d unique\n\n", len(opts.queries))

	rep := run(opts)
	if !printReport(rep, opts.duration) {
		os.Exit(1)
	}
}

func readQueries(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for line := range strings.Lines(string(data)) {
		if q := strings.TrimSpace(line); q != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no queries in file")
	}
	return out, nil
}

func run(opts options) *report {
	rep := newReport()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.concurrency * 2,
			MaxIdleConnsPerHost: opts.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	limit := rate.Inf
	if opts.qps > 0 {
		limit = rate.Limit(opts.qps)
	}
	limiter := rate.NewLimiter(limit, max(1, opts.concurrency))

	ctx, cancel := context.WithTimeout(context.Background(), opts.duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := range opts.concurrency {
		g.Go(func() error {
			for i := w; ; i++ {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
				target := queryURL(opts, i)
				start := time.Now()
				code, reply, err := fetch(ctx, client, target)
				if ctx.Err() != nil {
					return nil
				}
				rep.record(time.Since(start), code, reply, err)
			}
		})
	}
	_ = g.Wait()
	return rep
}

func queryURL(opts options, i int) string {
	v := url.Values{}
	v.Set("q", opts.queries[i%len(opts.queries)])
	v.Set("s", opts.schemes[i%len(opts.schemes)])
	v.Set("i", "0")
	v.Set("n", strconv.Itoa(opts.pageSize))
	return opts.baseURL + "/query?" + v.Encode()
}

func fetch(ctx context.Context, client *http.Client, target string) (int, *queryReply, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil, nil
	}
	var reply queryReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, &reply, nil
}

func printReport(rep *report, duration time.Duration) bool {
	total := rep.total.Load()
	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", rep.ok.Load())
	fmt.Printf("Failed:          %d\n", rep.failed.Load())
	if total == 0 {
		fmt.Println("\nWARNING: No requests completed. Is the gateway running?")
		return false
	}
	fmt.Printf("Partial:         %d\n", rep.partial.Load())
	fmt.Printf("Cache Hits:      %d\n", rep.cached.Load())
	fmt.Printf("Empty Pages:     %d\n", rep.emptyRows.Load())
	fmt.Printf("Error Rate:      %.2f%%\n", float64(rep.failed.Load())/float64(total)*100)
	fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())

	rep.mu.Lock()
	defer rep.mu.Unlock()
	if lat := slices.Clone(rep.latencies); len(lat) > 0 {
		slices.Sort(lat)
		var sum time.Duration
		for _, l := range lat {
			sum += l
		}
		fmt.Println("\n=== Latency ===")
		fmt.Printf("Min:    %s\n", lat[0])
		fmt.Printf("Avg:    %s\n", sum/time.Duration(len(lat)))
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Printf("P%-5.0f %s\n", p, percentile(lat, p))
		}
		fmt.Printf("Max:    %s\n", lat[len(lat)-1])
	}

	fmt.Println("\n=== Status Codes ===")
	codes := make([]int, 0, len(rep.codes))
	for code := range rep.codes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, rep.codes[code])
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[min(max(idx, 0), len(sorted)-1)]
}
