package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ambiyansyah-risyal/antrian"
)

var (
	getHigh        bool
	getNow         bool
	getText        bool
	getDurable     bool
	getTags        []string
	getDeps        []string
	getTTL         string
	getRepeat      int
	getTimeout     time.Duration
	getMetricsAddr string
	getHold        bool
)

var getCmd = &cobra.Command{
	Use:   "get URL [URL...]",
	Short: "Fetch URLs through the queue and cache",
	Long: `Fetch one or more URLs concurrently. Every URL is sent through the
orchestrator queue, and through the cache when --tags or --ttl is given.
Use --repeat to see later rounds served from the cache.

Examples:
  antrian get https://jsonplaceholder.typicode.com/todos/1 --tags todos --repeat 3
  antrian get https://a.example/x https://b.example/y --high --text`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGet,
}

func init() {
	getCmd.Flags().BoolVar(&getHigh, "high", false, "schedule with high priority")
	getCmd.Flags().BoolVar(&getNow, "now", false, "bypass the queue")
	getCmd.Flags().BoolVar(&getText, "text", false, "return the body as text instead of JSON")
	getCmd.Flags().BoolVar(&getDurable, "durable", false, "also store results in the durable tier")
	getCmd.Flags().StringSliceVar(&getTags, "tags", nil, "cache tags (enables caching)")
	getCmd.Flags().StringSliceVar(&getDeps, "deps", nil, "tags to invalidate before fetching")
	getCmd.Flags().StringVar(&getTTL, "ttl", "", "cache lifetime, e.g. 1min, 5min, 1hr or 90s (enables caching)")
	getCmd.Flags().IntVar(&getRepeat, "repeat", 1, "number of rounds to fetch every URL")
	getCmd.Flags().DurationVar(&getTimeout, "timeout", 0, "per-call timeout")
	getCmd.Flags().StringVar(&getMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	getCmd.Flags().BoolVar(&getHold, "hold", false, "keep serving metrics after fetching until interrupted")
}

type fetchResult struct {
	round    int
	url      string
	duration time.Duration
	value    any
	err      error
}

func runGet(cmd *cobra.Command, args []string) error {
	cfg, err := antrian.LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	metrics := antrian.NewMetricsCollectorWithRegistry(registry)

	addr := getMetricsAddr
	if addr == "" && cfg.Metrics.Enabled {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		srv := newMetricsServer(addr, registry)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				PrintErr("metrics server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	orc, err := antrian.NewFromConfig(cfg, antrian.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer func() { _ = orc.Close() }()

	policy, err := buildPolicy()
	if err != nil {
		return err
	}

	data := newTableData("Round", "URL", "Duration", "Result")
	for round := 1; round <= getRepeat; round++ {
		results, err := fetchRound(ctx, orc, policy, round, args)
		if err != nil {
			return err
		}
		for _, r := range results {
			data.addRow(fmt.Sprint(r.round), r.url, r.duration.Round(time.Microsecond).String(), summarize(r))
		}
	}
	printTable(cmd.OutOrStdout(), data)

	if addr != "" && getHold {
		fmt.Fprintf(cmd.ErrOrStderr(), "serving metrics on %s, press Ctrl+C to exit\n", addr)
		<-ctx.Done()
	}
	return nil
}

func buildPolicy() (*antrian.CachePolicy, error) {
	if len(getTags) == 0 && len(getDeps) == 0 && getTTL == "" {
		return nil, nil
	}

	policy := &antrian.CachePolicy{Tags: getTags, Deps: getDeps}
	if getTTL != "" {
		ttl, err := antrian.ParseTTL(getTTL)
		if err != nil {
			return nil, err
		}
		policy.TTL = ttl
	}
	return policy, nil
}

// fetchRound fetches every URL concurrently; per-URL failures are reported
// in the result rather than aborting the round.
func fetchRound(ctx context.Context, orc *antrian.Orchestrator, policy *antrian.CachePolicy, round int, urls []string) ([]fetchResult, error) {
	results := make([]fetchResult, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	for i, url := range urls {
		g.Go(func() error {
			req := orc.Request(url)
			switch {
			case getNow:
				req.Now()
			case getHigh:
				req.High()
			}
			if getText {
				req.Text()
			}
			if policy != nil {
				req.Cache(*policy)
				if getDurable {
					req.Storage()
				}
			}

			var opts []antrian.CallOption
			if getTimeout > 0 {
				opts = append(opts, antrian.WithCallTimeout(getTimeout))
			}

			start := time.Now()
			value, err := req.Get(gctx, opts...)
			results[i] = fetchResult{round: round, url: url, duration: time.Since(start), value: value, err: err}
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func summarize(r fetchResult) string {
	if r.err != nil {
		return "error: " + r.err.Error()
	}
	if r.value == nil {
		return "<empty>"
	}

	var s string
	switch v := r.value.(type) {
	case string:
		s = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			s = fmt.Sprint(v)
		} else {
			s = string(b)
		}
	}

	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return s
}

func newMetricsServer(addr string, registry *prometheus.Registry) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}
