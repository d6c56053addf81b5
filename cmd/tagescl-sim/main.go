// Command tagescl-sim replays a branch trace through the TAGE-SC-L predictor
// behind a cycle-stepped pipeline model and reports prediction accuracy.
//
// Usage:
//
//	tagescl-sim -trace branches.txt -preset 80KB -window 128 -resolve-latency 14
//	tagescl-sim -trace - < branches.txt -metrics-addr :9102 -metrics-linger 30s
//
// Trace lines are "<pc> <target> <cond|uncond|ind|indcond> <0|1>" with hex
// addresses; '#' starts a comment. With -metrics-addr the predictor counters are
// served at /metrics while the simulation runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tagescl/proto/config"
	"tagescl/proto/pipeline"
	"tagescl/proto/tagescl"
	"tagescl/proto/telemetry"
)

type options struct {
	trace          string
	preset         string
	window         int
	fetchWidth     int
	resolveLatency int
	retireLatency  int
	noSC           bool
	noLoop         bool
	metricsAddr    string
	metricsLinger  time.Duration
	progress       uint64
	logLevel       string
	logFormat      string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		slog.Error("tagescl-sim failed", "err", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	def := pipeline.DefaultConfig()
	var o options
	fs := flag.NewFlagSet("tagescl-sim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.trace, "trace", "", "branch trace path (\"-\" for stdin)")
	fs.StringVar(&o.preset, "preset", config.Preset64KB.String(), "storage budget: 64KB or 80KB")
	fs.IntVar(&o.window, "window", def.Window, "maximum in-flight branches")
	fs.IntVar(&o.fetchWidth, "fetch-width", def.FetchWidth, "branches fetched per cycle")
	fs.IntVar(&o.resolveLatency, "resolve-latency", def.ResolveLatency, "cycles from fetch to resolution")
	fs.IntVar(&o.retireLatency, "retire-latency", def.RetireLatency, "cycles from resolution to retirement")
	fs.BoolVar(&o.noSC, "no-sc", false, "disable the statistical corrector")
	fs.BoolVar(&o.noLoop, "no-loop", false, "disable the loop predictor")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9102)")
	fs.DurationVar(&o.metricsLinger, "metrics-linger", 0, "keep serving metrics this long after the trace drains")
	fs.Uint64Var(&o.progress, "progress", 1<<16, "cycles between metric publications")
	fs.StringVar(&o.logLevel, "log-level", "info", "debug, info, warn or error")
	fs.StringVar(&o.logFormat, "log-format", "text", "text or json")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.trace == "" {
		return o, errors.New("-trace is required")
	}
	return o, nil
}

func newLogger(o options, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch o.logFormat {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("log format %q (want text or json)", o.logFormat)
}

func readTrace(path string, stdin io.Reader) ([]pipeline.Branch, error) {
	if path == "-" {
		return pipeline.ReadTrace(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tr, err := pipeline.ReadTrace(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tr, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	logger, err := newLogger(o, stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	preset, err := config.ParsePreset(o.preset)
	if err != nil {
		return err
	}
	cfg, err := config.ForPreset(preset)
	if err != nil {
		return err
	}
	cfg.MaxInFlight = o.window
	cfg.UseSC = !o.noSC
	cfg.UseLoopPredictor = !o.noLoop

	p, err := tagescl.NewWithOptions(cfg, tagescl.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("predictor: %w", err)
	}

	trace, err := readTrace(o.trace, stdin)
	if err != nil {
		return err
	}
	logger.Info("trace loaded", "path", o.trace, "branches", len(trace), "preset", preset)

	var rec *telemetry.Recorder
	if o.metricsAddr != "" {
		rec = telemetry.NewRecorder(prometheus.Labels{"preset": preset.String()})
		srv := startMetricsEndpoint(o.metricsAddr, rec, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	popts := pipeline.Options{Logger: logger, ProgressInterval: o.progress}
	if rec != nil {
		popts.Progress = func(pipeline.Result) { rec.Publish(p.Stats(), p.InFlight()) }
	}
	h, err := pipeline.New(pipeline.Config{
		Window:         o.window,
		FetchWidth:     o.fetchWidth,
		ResolveLatency: o.resolveLatency,
		RetireLatency:  o.retireLatency,
	}, p, trace, popts)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := h.Run(ctx)
	if err != nil {
		return fmt.Errorf("simulation stopped after %d cycles: %w", res.Cycles, err)
	}
	printSummary(stdout, o.trace, preset, res, p.Stats(), p.Fingerprint(), time.Since(start))

	if rec != nil && o.metricsLinger > 0 {
		logger.Info("serving metrics after drain", "addr", o.metricsAddr, "linger", o.metricsLinger)
		select {
		case <-time.After(o.metricsLinger):
		case <-ctx.Done():
		}
	}
	return nil
}

func startMetricsEndpoint(addr string, rec *telemetry.Recorder, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint", "err", err)
		}
	}()
	return srv
}

func printSummary(w io.Writer, trace string, preset config.Preset, res pipeline.Result, st tagescl.Stats, fingerprint uint64, elapsed time.Duration) {
	fmt.Fprintf(w, "trace             %s\n", trace)
	fmt.Fprintf(w, "preset            %s\n", preset)
	fmt.Fprintf(w, "cycles            %d\n", res.Cycles)
	fmt.Fprintf(w, "branches          %d (%d conditional)\n", res.Branches, res.Conditional)
	fmt.Fprintf(w, "mispredictions    %d (%.4f per conditional, %.3f MPKB)\n", res.Mispredictions, res.MispredictRate(), res.MPKB())
	fmt.Fprintf(w, "flushes           %d (%d wrong-path branches)\n", res.Flushes, res.WrongPathFetched)
	fmt.Fprintf(w, "loop overrides    %d\n", st.LoopOverrides)
	fmt.Fprintf(w, "sc overrides      %d\n", st.SCOverrides)
	fmt.Fprintf(w, "tage allocations  %d (%d useful shifts)\n", st.TAGEAllocations, st.UsefulShifts)
	fmt.Fprintf(w, "fingerprint       %016x\n", fingerprint)
	fmt.Fprintf(w, "elapsed           %s\n", elapsed.Round(time.Millisecond))
}
