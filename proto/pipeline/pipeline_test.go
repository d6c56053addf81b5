package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"tagescl/proto/bputil"
	"tagescl/proto/config"
	"tagescl/proto/tagescl"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Pipeline Harness - Test Suite
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// TEST ORGANIZATION
// ─────────────────
// 1. CONFIG        validation
// 2. MECHANICS     scripted predictor: window bound, wrong path, flush ordering, timing
// 3. RUN CONTROL   cancellation, progress callbacks
// 4. INTEGRATION   real TAGE-SC-L predictor: harness and predictor counters agree
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// scripted predicts taken unless told otherwise and checks the call protocol.
type scripted struct {
	t        *testing.T
	notTaken map[uint64]bool
	next     int64
	live     []int64
	maxLive  int
	events   []string
}

func newScripted(t *testing.T) *scripted {
	return &scripted{t: t, notTaken: make(map[uint64]bool)}
}

func (s *scripted) Allocate() int64 {
	id := s.next
	s.next++
	s.live = append(s.live, id)
	s.maxLive = max(s.maxLive, len(s.live))
	return id
}

func (s *scripted) Predict(id int64, pc uint64) bool { return !s.notTaken[pc] }

func (s *scripted) UpdateSpeculative(id int64, pc uint64, kind bputil.BranchKind, taken bool, target uint64) {
}

func (s *scripted) Commit(id int64, pc uint64, kind bputil.BranchKind, resolved bool) {
	s.events = append(s.events, fmt.Sprintf("commit %d", id))
}

func (s *scripted) Retire(id int64, pc uint64, kind bputil.BranchKind, resolved bool, target uint64) {
	if len(s.live) == 0 || s.live[0] != id {
		s.t.Errorf("retire %d, oldest live is %v", id, s.live)
		return
	}
	s.live = s.live[1:]
	s.events = append(s.events, fmt.Sprintf("retire %d", id))
}

func (s *scripted) Flush(id int64, pc uint64, kind bputil.BranchKind, resolved bool, target uint64) {
	i := slices.Index(s.live, id)
	if i < 0 {
		s.t.Errorf("flush of unknown id %d", id)
		return
	}
	s.live = s.live[:i+1]
	s.events = append(s.events, fmt.Sprintf("flush %d", id))
}

func taken(pc uint64) Branch {
	return Branch{PC: pc, Target: pc + 0x40, Kind: bputil.KindConditional, Taken: true}
}

func run(t *testing.T, cfg Config, p Predictor, trace []Branch) Result {
	t.Helper()
	h, err := New(cfg, p, trace, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

// ───────────────────────────────────────────────────────────────────────────────────────────────
// 1. CONFIG
// ───────────────────────────────────────────────────────────────────────────────────────────────

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config: %v", err)
	}
	bad := []Config{
		{Window: 0, FetchWidth: 1},
		{Window: 4, FetchWidth: 0},
		{Window: 4, FetchWidth: 1, ResolveLatency: -1},
		{Window: 4, FetchWidth: 1, RetireLatency: -1},
	}
	for _, c := range bad {
		if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%+v: err = %v, want ErrInvalidConfig", c, err)
		}
		if _, err := New(c, newScripted(t), nil, Options{}); err == nil {
			t.Errorf("New accepted %+v", c)
		}
	}
}

// ───────────────────────────────────────────────────────────────────────────────────────────────
// 2. MECHANICS
// ───────────────────────────────────────────────────────────────────────────────────────────────

func TestHarness_CorrectPathOnly(t *testing.T) {
	// WHAT: A perfectly predicted trace never flushes or fetches wrong-path work
	p := newScripted(t)
	trace := make([]Branch, 10)
	for i := range trace {
		trace[i] = taken(0x1000 + uint64(i)*4)
	}
	res := run(t, Config{Window: 4, FetchWidth: 2, ResolveLatency: 3, RetireLatency: 1}, p, trace)

	if res.Branches != 10 || res.Conditional != 10 || res.Fetched != 10 {
		t.Errorf("branches/conditional/fetched = %d/%d/%d, want 10/10/10", res.Branches, res.Conditional, res.Fetched)
	}
	if res.Flushes != 0 || res.Mispredictions != 0 || res.WrongPathFetched != 0 {
		t.Errorf("unexpected flush activity: %+v", res)
	}
	if p.maxLive > 4 {
		t.Errorf("in flight peaked at %d, window is 4", p.maxLive)
	}
	if len(p.live) != 0 {
		t.Errorf("%d ids still live after drain", len(p.live))
	}
}

func TestHarness_WindowBoundsInFlight(t *testing.T) {
	// WHAT: Long resolution latency fills the window but never overfills it
	p := newScripted(t)
	trace := make([]Branch, 20)
	for i := range trace {
		trace[i] = taken(0x2000)
	}
	run(t, Config{Window: 3, FetchWidth: 4, ResolveLatency: 10}, p, trace)
	if p.maxLive != 3 {
		t.Errorf("in flight peaked at %d, want 3", p.maxLive)
	}
}

func TestHarness_WrongPathFlushAndRefetch(t *testing.T) {
	// WHAT: A mispredicted head drags younger records down the wrong path;
	//       resolving it flushes them and refetches from the next record
	// WHY: This is the only way the predictor sees Flush with younger work in flight
	p := newScripted(t)
	trace := []Branch{
		{PC: 0x100, Target: 0x80, Kind: bputil.KindConditional, Taken: false},
		taken(0x200), taken(0x204), taken(0x208),
	}
	res := run(t, Config{Window: 8, FetchWidth: 1, ResolveLatency: 5}, p, trace)

	if res.Flushes != 1 || res.Mispredictions != 1 {
		t.Errorf("flushes/mispredictions = %d/%d, want 1/1", res.Flushes, res.Mispredictions)
	}
	if res.WrongPathFetched != 3 || res.Fetched != 7 {
		t.Errorf("wrong path/fetched = %d/%d, want 3/7", res.WrongPathFetched, res.Fetched)
	}
	if res.Branches != 4 || res.Conditional != 4 {
		t.Errorf("branches/conditional = %d/%d, want 4/4", res.Branches, res.Conditional)
	}
	// Fetch cycles 0..3, resolve at 5, refetch at 5..7, last resolve at 12
	if res.Cycles != 13 {
		t.Errorf("cycles = %d, want 13", res.Cycles)
	}

	want := []string{"flush 0", "commit 0", "retire 0", "commit 4", "retire 4", "commit 5", "retire 5", "commit 6", "retire 6"}
	if !slices.Equal(p.events, want) {
		t.Errorf("events = %v\nwant     %v", p.events, want)
	}
}

func TestHarness_PredictedNotTakenIsCorrect(t *testing.T) {
	// WHAT: Agreement on a not-taken direction is not a misprediction
	p := newScripted(t)
	p.notTaken[0x300] = true
	trace := []Branch{{PC: 0x300, Target: 0x400, Kind: bputil.KindConditional, Taken: false}}
	res := run(t, Config{Window: 2, FetchWidth: 1}, p, trace)
	if res.Mispredictions != 0 || res.Flushes != 0 {
		t.Errorf("mispredictions/flushes = %d/%d, want 0/0", res.Mispredictions, res.Flushes)
	}
}

func TestHarness_RetireWaitsForLatency(t *testing.T) {
	// WHAT: Retirement trails resolution by RetireLatency cycles
	p := newScripted(t)
	h, err := New(Config{Window: 2, FetchWidth: 1, ResolveLatency: 1, RetireLatency: 3}, p, []Branch{taken(0x10)}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.Step() // cycle 0: fetch
	h.Step() // cycle 1: resolve
	for c := 2; c < 4; c++ {
		h.Step()
		if h.InFlight() != 1 {
			t.Fatalf("cycle %d: retired before latency elapsed", c)
		}
	}
	h.Step() // cycle 4: retire
	if !h.Done() {
		t.Errorf("not drained after retire latency")
	}
}

// ───────────────────────────────────────────────────────────────────────────────────────────────
// 3. RUN CONTROL
// ───────────────────────────────────────────────────────────────────────────────────────────────

func TestRun_HonoursCancellation(t *testing.T) {
	h, err := New(DefaultConfig(), newScripted(t), []Branch{taken(0x10)}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run err = %v, want context.Canceled", err)
	}
	if h.Done() {
		t.Errorf("cancelled run should not drain")
	}
}

func TestRun_ReportsProgress(t *testing.T) {
	trace := make([]Branch, 16)
	for i := range trace {
		trace[i] = taken(0x40)
	}
	var seen []Result
	h, err := New(Config{Window: 4, FetchWidth: 1, ResolveLatency: 2}, newScripted(t), trace, Options{
		Progress:         func(r Result) { seen = append(seen, r) },
		ProgressInterval: 4,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	final, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) < 2 {
		t.Fatalf("progress called %d times, want ≥ 2", len(seen))
	}
	if seen[len(seen)-1] != final {
		t.Errorf("last progress %+v, want final %+v", seen[len(seen)-1], final)
	}
}

// ───────────────────────────────────────────────────────────────────────────────────────────────
// 4. INTEGRATION
// ───────────────────────────────────────────────────────────────────────────────────────────────

// loopTrace is a counted loop with a call in the body followed by a branch
// that alternates between trips.
func loopTrace(trips, iterations int) []Branch {
	var tr []Branch
	for trip := range trips {
		for i := range iterations {
			tr = append(tr, Branch{PC: 0x400200, Target: 0x401000, Kind: bputil.KindUnconditional, Taken: true})
			tr = append(tr, Branch{PC: 0x400240, Target: 0x400100, Kind: bputil.KindConditional, Taken: i < iterations-1})
		}
		tr = append(tr, Branch{PC: 0x400300, Target: 0x400500, Kind: bputil.KindConditional, Taken: trip%2 == 0})
	}
	return tr
}

func newTAGESCL(t *testing.T, window int) *tagescl.Predictor {
	t.Helper()
	cfg := config.MustPreset(config.Preset64KB)
	cfg.MaxInFlight = window
	p, err := tagescl.New(cfg)
	if err != nil {
		t.Fatalf("tagescl.New: %v", err)
	}
	return p
}

func TestIntegration_CountersAgree(t *testing.T) {
	// WHAT: The harness and the predictor agree on every shared counter
	// WHY: Disagreement means a flush dropped or duplicated lifecycle calls
	cfg := Config{Window: 32, FetchWidth: 2, ResolveLatency: 6, RetireLatency: 1}
	p := newTAGESCL(t, cfg.Window)
	res := run(t, cfg, p, loopTrace(200, 7))
	st := p.Stats()

	if res.Mispredictions == 0 || res.Flushes == 0 {
		t.Fatalf("trace produced no mispredictions; harness not exercised")
	}
	if res.Mispredictions != st.Mispredictions {
		t.Errorf("mispredictions harness %d, predictor %d", res.Mispredictions, st.Mispredictions)
	}
	if res.Flushes != st.Flushes {
		t.Errorf("flushes harness %d, predictor %d", res.Flushes, st.Flushes)
	}
	if res.Conditional != st.ConditionalCommits {
		t.Errorf("conditional harness %d, predictor %d", res.Conditional, st.ConditionalCommits)
	}
	if res.Branches != st.Retired {
		t.Errorf("branches harness %d, predictor retired %d", res.Branches, st.Retired)
	}
	if res.WrongPathFetched != st.FlushedBranches {
		t.Errorf("wrong path harness %d, predictor flushed %d", res.WrongPathFetched, st.FlushedBranches)
	}
	if p.InFlight() != 0 {
		t.Errorf("predictor still holds %d records", p.InFlight())
	}
}

func TestIntegration_Deterministic(t *testing.T) {
	// WHAT: Replaying a trace through fresh predictors ends in identical state
	cfg := Config{Window: 16, FetchWidth: 1, ResolveLatency: 4, RetireLatency: 2}
	trace := loopTrace(120, 5)

	a, b := newTAGESCL(t, cfg.Window), newTAGESCL(t, cfg.Window)
	ra, rb := run(t, cfg, a, trace), run(t, cfg, b, trace)
	if ra != rb {
		t.Errorf("results differ: %+v vs %+v", ra, rb)
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Errorf("fingerprints differ: %#x vs %#x", a.Fingerprint(), b.Fingerprint())
	}
}

func TestIntegration_LearnsLoop(t *testing.T) {
	// WHAT: Under wrong-path pressure the predictor still learns a fixed-trip loop
	cfg := Config{Window: 24, FetchWidth: 2, ResolveLatency: 8, RetireLatency: 1}
	p := newTAGESCL(t, cfg.Window)
	res := run(t, cfg, p, loopTrace(400, 9))
	if rate := res.MispredictRate(); rate > 0.15 {
		t.Errorf("mispredict rate %.3f, want ≤ 0.15", rate)
	}
}

func BenchmarkHarness(b *testing.B) {
	trace := loopTrace(500, 9)
	cfg := DefaultConfig()
	for b.Loop() {
		pcfg := config.MustPreset(config.Preset64KB)
		pcfg.MaxInFlight = cfg.Window
		p, err := tagescl.New(pcfg)
		if err != nil {
			b.Fatal(err)
		}
		h, err := New(cfg, p, trace, Options{})
		if err != nil {
			b.Fatal(err)
		}
		if _, err := h.Run(context.Background()); err != nil {
			b.Fatal(err)
		}
	}
}
