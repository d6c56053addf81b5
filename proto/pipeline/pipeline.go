// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Trace-Driven Branch Pipeline Harness
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Harness replays a branch trace through a bounded in-flight window and drives a
// direction predictor through its full lifecycle, including wrong-path work.
//
// WINDOW:
// ───────
//   [0] oldest ............................................ [len-1] youngest
//   Fetch appends at the young end, retire pops the old end. Program order equals
//   window order, so "older" is always "lower index".
//
// WRONG PATH:
// ───────────
// A conditional branch whose prediction disagrees with the trace sends fetch down
// the wrong path. The trace does not record what the wrong path executed, so the
// following trace records stand in for it: they are allocated, predicted and
// speculatively updated like any other branch but can never resolve. When the
// mispredicted branch resolves it flushes them and fetch restarts right after it.
//
// CYCLE (stages run oldest-work first, like a back end draining before the front end):
// ──────
//   Stage 1: Resolve   in order, once fetch+ResolveLatency has elapsed
//                      mispredicted → Flush, discard younger slots, redirect fetch
//                      then Commit
//   Stage 2: Retire    in order, once resolve+RetireLatency has elapsed
//   Stage 3: Fetch     up to FetchWidth branches while the window has room
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tagescl/proto/bputil"
)

// Predictor is the lifecycle surface the harness drives.
type Predictor interface {
	Allocate() int64
	Predict(id int64, pc uint64) bool
	UpdateSpeculative(id int64, pc uint64, kind bputil.BranchKind, taken bool, target uint64)
	Commit(id int64, pc uint64, kind bputil.BranchKind, resolved bool)
	Retire(id int64, pc uint64, kind bputil.BranchKind, resolved bool, target uint64)
	Flush(id int64, pc uint64, kind bputil.BranchKind, resolved bool, target uint64)
}

// Config shapes the modelled machine.
type Config struct {
	Window         int // Maximum in-flight branches; must not exceed the predictor's capacity
	FetchWidth     int // Branches fetched per cycle
	ResolveLatency int // Cycles from fetch to resolution
	RetireLatency  int // Cycles from resolution to retirement
}

// DefaultConfig is a modest out-of-order core.
func DefaultConfig() Config {
	return Config{Window: 64, FetchWidth: 2, ResolveLatency: 12, RetireLatency: 2}
}

// ErrInvalidConfig is wrapped by every Config.Validate failure.
var ErrInvalidConfig = errors.New("invalid pipeline config")

func (c Config) Validate() error {
	switch {
	case c.Window < 1:
		return fmt.Errorf("%w: window %d must be ≥ 1", ErrInvalidConfig, c.Window)
	case c.FetchWidth < 1:
		return fmt.Errorf("%w: fetch width %d must be ≥ 1", ErrInvalidConfig, c.FetchWidth)
	case c.ResolveLatency < 0:
		return fmt.Errorf("%w: resolve latency %d must be ≥ 0", ErrInvalidConfig, c.ResolveLatency)
	case c.RetireLatency < 0:
		return fmt.Errorf("%w: retire latency %d must be ≥ 0", ErrInvalidConfig, c.RetireLatency)
	}
	return nil
}

// Result counts what the harness observed. Branches, Conditional and
// Mispredictions cover correct-path work only.
type Result struct {
	Cycles           uint64
	Fetched          uint64 // Every allocation, wrong path included
	WrongPathFetched uint64
	Branches         uint64 // Correct-path branches retired
	Conditional      uint64
	Mispredictions   uint64
	Flushes          uint64
}

// MispredictRate is mispredictions per conditional branch.
func (r Result) MispredictRate() float64 {
	if r.Conditional == 0 {
		return 0
	}
	return float64(r.Mispredictions) / float64(r.Conditional)
}

// MPKB is mispredictions per thousand branches.
func (r Result) MPKB() float64 {
	if r.Branches == 0 {
		return 0
	}
	return 1000 * float64(r.Mispredictions) / float64(r.Branches)
}

// Options carries optional collaborators.
type Options struct {
	Logger *slog.Logger

	// Progress, when set, is called from the simulation goroutine every
	// ProgressInterval cycles and once more when the trace drains.
	Progress         func(Result)
	ProgressInterval uint64
}

// slot is one window entry.
type slot struct {
	id           int64
	index        int // Trace position
	branch       Branch
	pred         bool
	mispredicted bool
	wrongPath    bool
	resolved     bool
	fetchedAt    uint64
	resolvedAt   uint64
}

type Harness struct {
	cfg  Config
	opts Options
	log  *slog.Logger
	p    Predictor

	trace     []Branch
	cursor    int  // Next trace index to fetch
	wrongPath bool // Fetch is past an unresolved misprediction

	window []slot
	cycle  uint64
	res    Result
}

// New validates cfg and binds a predictor to a trace.
func New(cfg Config, p Predictor, trace []Branch, opts Options) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.ProgressInterval == 0 {
		opts.ProgressInterval = 1 << 16
	}
	return &Harness{
		cfg:    cfg,
		opts:   opts,
		log:    logger.With("component", "pipeline"),
		p:      p,
		trace:  trace,
		window: make([]slot, 0, cfg.Window),
	}, nil
}

// Done reports whether every trace record has retired.
func (h *Harness) Done() bool { return h.cursor == len(h.trace) && len(h.window) == 0 }

// Result returns the counters so far.
func (h *Harness) Result() Result {
	r := h.res
	r.Cycles = h.cycle
	return r
}

// InFlight is the current window occupancy.
func (h *Harness) InFlight() int { return len(h.window) }

// Run steps until the trace drains or ctx is cancelled.
func (h *Harness) Run(ctx context.Context) (Result, error) {
	for !h.Done() {
		if h.cycle%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return h.Result(), err
			}
		}
		h.Step()
		if h.opts.Progress != nil && h.cycle%h.opts.ProgressInterval == 0 {
			h.opts.Progress(h.Result())
		}
	}
	res := h.Result()
	if h.opts.Progress != nil {
		h.opts.Progress(res)
	}
	h.log.Info("trace drained",
		"cycles", res.Cycles,
		"branches", res.Branches,
		"mispredictions", res.Mispredictions,
		"flushes", res.Flushes,
		"wrong_path", res.WrongPathFetched)
	return res, nil
}

// Step advances one cycle.
func (h *Harness) Step() {
	h.resolve()
	h.retire()
	h.fetch()
	h.cycle++
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// STAGE 1: RESOLVE
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func (h *Harness) resolve() {
	for i := range h.window {
		s := &h.window[i]
		if s.resolved {
			continue
		}
		if h.cycle < s.fetchedAt+uint64(h.cfg.ResolveLatency) {
			return
		}
		if s.wrongPath {
			bputil.Violation(bputil.ErrInvariant, "pipeline", s.id, "wrong-path branch reached resolution")
		}

		b := s.branch
		s.resolved = true
		s.resolvedAt = h.cycle
		if b.Kind.Conditional {
			h.res.Conditional++
		}
		if !s.mispredicted {
			h.p.Commit(s.id, b.PC, b.Kind, b.Taken)
			continue
		}

		h.res.Mispredictions++
		h.res.Flushes++
		h.p.Flush(s.id, b.PC, b.Kind, b.Taken, b.Target)
		h.p.Commit(s.id, b.PC, b.Kind, b.Taken)

		discarded := len(h.window) - i - 1
		h.window = h.window[:i+1]
		h.cursor = s.index + 1
		h.wrongPath = false
		h.log.Debug("redirect", "cycle", h.cycle, "pc", b.PC, "discarded", discarded)
		return
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// STAGE 2: RETIRE
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func (h *Harness) retire() {
	for len(h.window) > 0 {
		s := &h.window[0]
		if !s.resolved || h.cycle < s.resolvedAt+uint64(h.cfg.RetireLatency) {
			return
		}
		b := s.branch
		h.p.Retire(s.id, b.PC, b.Kind, b.Taken, b.Target)
		h.res.Branches++
		h.window = h.window[1:]
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// STAGE 3: FETCH
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func (h *Harness) fetch() {
	for n := 0; n < h.cfg.FetchWidth; n++ {
		if len(h.window) >= h.cfg.Window || h.cursor >= len(h.trace) {
			return
		}
		index := h.cursor
		b := h.trace[index]
		h.cursor++

		id := h.p.Allocate()
		pred := true
		if b.Kind.Conditional {
			pred = h.p.Predict(id, b.PC)
		}
		h.p.UpdateSpeculative(id, b.PC, b.Kind, pred, b.Target)

		s := slot{
			id:        id,
			index:     index,
			branch:    b,
			pred:      pred,
			wrongPath: h.wrongPath,
			fetchedAt: h.cycle,
		}
		if !s.wrongPath && pred != b.Taken {
			s.mispredicted = true
			h.wrongPath = true
		}
		h.res.Fetched++
		if s.wrongPath {
			h.res.WrongPathFetched++
		}
		h.window = append(h.window, s)
	}
}
