package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nomis52/nodegraph/buildinfo"
	"github.com/nomis52/nodegraph/config"
	"github.com/nomis52/nodegraph/demo"
	"github.com/nomis52/nodegraph/engine"
	"github.com/nomis52/nodegraph/logging"
	"github.com/nomis52/nodegraph/metrics"
	"github.com/nomis52/nodegraph/monitor"
)

type runOptions struct {
	graph       string
	orderPath   string
	orderID     string
	items       []string
	express     bool
	silent      bool
	stock       map[string]int
	failCharges int
	latency     time.Duration
	count       int
	showLogs    bool
}

func newRunCmd(load func() (config.Config, error)) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an order graph against simulated collaborators",
		Example: `  nodegraph run --item book:2:1250 --item pen:1:99
  nodegraph run -c nodegraph.yaml --graph orders-ordered --order order.yaml
  nodegraph run --fail-charges 2 --show-logs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runGraph(cmd.Context(), cmd.OutOrStdout(), &cfg, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.graph, "graph", "g", demo.OrdersGraph, "Graph to run")
	f.StringVar(&opts.orderPath, "order", "", "YAML or JSON file holding the order")
	f.StringVar(&opts.orderID, "id", "ord-1", "Order ID")
	f.StringArrayVar(&opts.items, "item", []string{"widget:1:1000"}, "Order line as SKU:QUANTITY[:CENTS]")
	f.BoolVar(&opts.express, "express", false, "Ship express")
	f.BoolVar(&opts.silent, "silent", false, "Do not notify the customer")
	f.StringToIntVar(&opts.stock, "stock", nil, "Stock levels as SKU=N (default: plenty of every ordered SKU)")
	f.IntVar(&opts.failCharges, "fail-charges", 0, "Number of payment attempts that fail before charges succeed")
	f.DurationVar(&opts.latency, "latency", 20*time.Millisecond, "Simulated collaborator latency")
	f.IntVar(&opts.count, "count", 1, "Number of orders to run")
	f.BoolVar(&opts.showLogs, "show-logs", false, "Print the log entries of every node after each run")
	return cmd
}

// runReport is what the run command prints for each run.
type runReport struct {
	Code    string      `json:"code"`
	Message string      `json:"message,omitempty"`
	Order   *demo.Order `json:"order"`
}

func runGraph(ctx context.Context, out io.Writer, cfg *config.Config, opts *runOptions) error {
	if opts.count < 1 {
		return fmt.Errorf("count must be positive")
	}
	base, err := loadOrder(opts)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	props := buildinfo.Get()
	logger.Info("nodegraph started",
		"version", props.Version,
		"git_commit", props.GitCommit,
		"graph", opts.graph,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, shutdown, err := newMetricsRegistry(cfg.Metrics, logger.Logger)
	if err != nil {
		return err
	}
	defer shutdown()

	monOpts := []monitor.Option{
		monitor.WithLogger(logger.Logger),
		monitor.WithBuffer(cfg.Monitor.Buffer),
	}
	engOpts := []engine.Option{
		engine.WithLogger(logger.Logger),
		engine.WithPool(engine.NewPool(cfg.Engine.Workers, cfg.Engine.QueueSize)),
		engine.WithVerbosity(cfg.Verbosity()),
	}
	if reg != nil {
		monOpts = append(monOpts, monitor.WithMetrics(reg))
		engOpts = append(engOpts, engine.WithMetrics(reg))
	}
	mon := monitor.New(monOpts...)
	if err := mon.Start(ctx, cfg.Monitor.SummarySchedule); err != nil {
		return err
	}
	engOpts = append(engOpts, engine.WithRecorder(mon))

	var hook *logging.CapturingLoggerHook
	if opts.showLogs {
		hook = logging.NewCapturingLoggerHook(logging.NewLogCollector())
		engOpts = append(engOpts, engine.WithLoggerHook(hook))
	}
	eng := engine.New(engOpts...)

	stock := opts.stock
	if len(stock) == 0 {
		stock = make(map[string]int)
		for _, it := range base.Items {
			stock[it.SKU] += it.Quantity * opts.count
		}
	}
	_, defs, err := newDefinitions(cfg, logger.Logger, demo.Simulated(stock, opts.failCharges, opts.latency))
	if err != nil {
		return err
	}
	def, err := lookupGraph(defs, opts.graph)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	var failed int
	for i := range opts.count {
		o := *base
		if opts.count > 1 {
			o.ID = fmt.Sprintf("%s-%d", base.ID, i+1)
		}

		result := eng.Run(ctx, def, &o)
		if !result.OK() {
			failed++
		}
		if err := enc.Encode(runReport{Code: result.Code, Message: result.Message, Order: &o}); err != nil {
			return err
		}
		if hook != nil {
			printLogs(out, hook.Collector())
			hook.Collector().Clear()
		}
		if result.Code == engine.CodeCanceled {
			break
		}
	}

	// The final report runs after the caller may have cancelled ctx.
	reportCtx, cancel := context.WithTimeout(context.Background(), cfg.Metrics.PushTimeout)
	defer cancel()
	if err := mon.Report(reportCtx); err != nil {
		logger.Warn("final report failed", "error", err)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, opts.count)
	}
	return nil
}

// newMetricsRegistry builds the registry for the configured mode. The
// returned func stops the /metrics server in scrape mode.
func newMetricsRegistry(cfg config.MetricsConfig, logger *slog.Logger) (metrics.Registry, func(), error) {
	switch cfg.Mode {
	case config.MetricsScrape:
		reg, err := metrics.NewScrapeRegistry(metrics.WithNamespace(cfg.Prefix))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create metrics registry: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", reg.Handler())
		srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("serving metrics", "addr", cfg.ListenAddr)
		return reg, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}, nil

	case config.MetricsPush:
		hostname, err := os.Hostname()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get hostname: %w", err)
		}
		return metrics.NewPushRegistry(metrics.PushConfig{
			URL:      cfg.PushURL,
			Prefix:   cfg.Prefix,
			Job:      cfg.Job,
			Instance: hostname,
			Timeout:  cfg.PushTimeout,
		}), func() {}, nil

	default:
		return nil, func() {}, nil
	}
}

func loadOrder(opts *runOptions) (*demo.Order, error) {
	if opts.orderPath != "" {
		data, err := os.ReadFile(opts.orderPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read order: %w", err)
		}
		var o demo.Order
		if err := yaml.Unmarshal(data, &o); err != nil {
			return nil, fmt.Errorf("failed to parse order %s: %w", opts.orderPath, err)
		}
		return &o, nil
	}

	o := &demo.Order{ID: opts.orderID, Express: opts.express, Silent: opts.silent}
	for _, s := range opts.items {
		it, err := parseItem(s)
		if err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return o, nil
}

// parseItem parses SKU:QUANTITY[:CENTS].
func parseItem(s string) (demo.Item, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
		return demo.Item{}, fmt.Errorf("invalid item %q, expected SKU:QUANTITY[:CENTS]", s)
	}
	qty, err := strconv.Atoi(parts[1])
	if err != nil {
		return demo.Item{}, fmt.Errorf("invalid quantity in item %q: %w", s, err)
	}
	it := demo.Item{SKU: parts[0], Quantity: qty}
	if len(parts) == 3 {
		if it.Cents, err = strconv.ParseInt(parts[2], 10, 64); err != nil {
			return demo.Item{}, fmt.Errorf("invalid cents in item %q: %w", s, err)
		}
	}
	return it, nil
}

func printLogs(out io.Writer, collector *logging.LogCollector) {
	for _, id := range collector.Nodes() {
		fmt.Fprintf(out, "--- %s\n", id.ShortString())
		for _, e := range collector.GetLogs(id) {
			var b strings.Builder
			fmt.Fprintf(&b, "%s %-5s %s", e.Time.Format(time.TimeOnly), e.Level, e.Message)
			for _, k := range slices.Sorted(maps.Keys(e.Attributes)) {
				fmt.Fprintf(&b, " %s=%v", k, e.Attributes[k])
			}
			fmt.Fprintln(out, b.String())
		}
	}
}
