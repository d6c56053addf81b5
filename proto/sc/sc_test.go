package sc

import (
	"testing"

	"tagescl/proto/bputil"
	"tagescl/proto/config"
	"tagescl/proto/tage"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Statistical Corrector - Test Suite
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// TEST ORGANIZATION
// ─────────────────
// 1. INITIALIZATION   GEHL seed pattern, bias seeds, cold threshold
// 2. PREDICTION       cold agreement, override policy, read-only predict
// 3. COMMIT           training gate, meta counters, threshold movement
// 4. SPECULATION      global/local/IMLI histories, snapshot recovery
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func testConfig() config.Config {
	return config.MustPreset(config.Preset64KB)
}

func newTestPredictor() *Predictor {
	cfg := testConfig()
	return New(cfg.SC, cfg.ConfidenceCounterWidth)
}

func fingerprint(p *Predictor) uint64 {
	h := bputil.NewStateHasher()
	p.HashState(h)
	return h.Sum64()
}

func lowConfidence() *tage.PredictionInfo {
	return &tage.PredictionInfo{LowConfidence: true}
}

// ───────────────────────────────────────────────────────────────────────────────────────────────
// 1. INITIALIZATION
// ───────────────────────────────────────────────────────────────────────────────────────────────

func TestInit_GEHLSeedPattern(t *testing.T) {
	// WHAT: Even entries start at -1, odd at 0, the last entry stays 0
	g := newGEHL(config.GEHL{LogTableSize: 4, Histories: []int{8, 4}}, 6)
	for i, table := range g.tables {
		for j, c := range table {
			want := 0
			if j < len(table)-1 && j%2 == 0 {
				want = -1
			}
			if c.Get() != want {
				t.Errorf("table %d entry %d = %d, want %d", i, j, c.Get(), want)
			}
		}
	}
}

func TestInit_GEHLShortTables(t *testing.T) {
	// WHAT: The last two tables of a component use half the index space
	g := newGEHL(config.GEHL{LogTableSize: 10, Histories: []int{40, 24, 10}}, 6)
	for pc := uint64(0); pc < 1<<16; pc += 0x3B {
		h := int64(pc * 0x9E3779B97F4A7C15)
		if v := g.index(pc, h, 0); v >= 1<<10 {
			t.Fatalf("table 0 index %d ≥ 1024", v)
		}
		for id := 1; id < 3; id++ {
			if v := g.index(pc, h, id); v >= 1<<9 {
				t.Fatalf("table %d index %d ≥ 512", id, v)
			}
		}
	}
}

func TestInit_BiasSeeds(t *testing.T) {
	// WHAT: Bias entries for input=taken start strongly taken and vice versa
	p := newTestPredictor()
	hi := 1<<(p.cfg.Precision-1) - 1
	lo := -(1 << (p.cfg.Precision - 1))
	if p.bias[1].Get() != hi || p.bias[0].Get() != lo {
		t.Errorf("bias[0..1] = %d/%d, want %d/%d", p.bias[0].Get(), p.bias[1].Get(), lo, hi)
	}
	if p.biasSK[0].Get() != lo/4 || p.biasSK[1].Get() != hi/4 {
		t.Errorf("biasSK[0..1] = %d/%d, want %d/%d", p.biasSK[0].Get(), p.biasSK[1].Get(), lo/4, hi/4)
	}
	if p.biasSK[2].Get() != lo || p.biasSK[3].Get() != hi {
		t.Errorf("biasSK[2..3] = %d/%d, want %d/%d", p.biasSK[2].Get(), p.biasSK[3].Get(), lo, hi)
	}
	if p.bias[2].Get() != -1 || p.bias[3].Get() != 0 {
		t.Errorf("bias[2..3] = %d/%d, want -1/0", p.bias[2].Get(), p.bias[3].Get())
	}
}

func TestInit_ColdThreshold(t *testing.T) {
	// WHAT: Cold threshold = 280>>3 + 12 × (bias, global, path, 3 locals, first IMLI)
	p := newTestPredictor()
	var info PredictionInfo
	p.Predict(0x401234, lowConfidence(), true, &info)
	if want := 35 + 12*7; info.Threshold != want {
		t.Errorf("threshold = %d, want %d", info.Threshold, want)
	}
}

// ───────────────────────────────────────────────────────────────────────────────────────────────
// 2. PREDICTION
// ───────────────────────────────────────────────────────────────────────────────────────────────

func TestPredict_ColdAgreesWithInput(t *testing.T) {
	// WHAT: Untrained SC never overrides
	// WHY: Doubled bias seeds (±282) outweigh every cold GEHL vote (≤ 34)
	p := newTestPredictor()
	for pc := uint64(0x400000); pc < 0x400000+512; pc += 4 {
		for _, input := range []bool{false, true} {
			var info PredictionInfo
			p.Predict(pc, lowConfidence(), input, &info)
			if info.Taken != input {
				t.Fatalf("pc %#x input %v: SC overrode to %v (sum %d)", pc, input, info.Taken, info.Sum)
			}
			if (info.Sum >= 0) != input {
				t.Fatalf("pc %#x input %v: sum %d has the wrong sign", pc, input, info.Sum)
			}
		}
	}
}

func TestPredict_OverridePolicy(t *testing.T) {
	// WHAT: The confidence band decides how much disagreement SC needs
	high := &tage.PredictionInfo{HighConfidence: true}
	medium := &tage.PredictionInfo{MediumConfidence: true}
	low := lowConfidence()

	cases := []struct {
		name   string
		t      *tage.PredictionInfo
		sum    int
		first  int
		second int
		want   bool
	}{
		{"agree", low, 50, 0, 0, true},
		{"low confidence any disagreement", low, -1, 0, 0, false},
		{"high below quarter", high, -10, 0, 0, true},
		{"high below half, meta ≥ 0", high, -30, 0, 0, true},
		{"high below half, meta < 0", high, -30, 0, -1, false},
		{"high above half", high, -60, 0, 0, false},
		{"medium below quarter, meta ≥ 0", medium, -10, 0, 0, true},
		{"medium below quarter, meta < 0", medium, -10, -1, 0, false},
		{"medium above quarter", medium, -30, 0, 0, false},
	}
	for _, c := range cases {
		p := newTestPredictor()
		p.firstConfidence.Set(c.first)
		p.secondConfidence.Set(c.second)
		if got := p.override(c.t, true, c.sum, 100); got != c.want {
			t.Errorf("%s: override = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestPredict_NoMutation(t *testing.T) {
	p := newTestPredictor()
	for k := uint64(0); k < 40; k++ {
		var info PredictionInfo
		pc := 0x1000 + k*8
		p.Predict(pc, lowConfidence(), k%3 == 0, &info)
		p.UpdateSpeculative(pc, pc-16, bputil.KindConditional, k%2 == 0, &info)
		p.Commit(pc, k%2 == 0, lowConfidence(), &info, k%3 == 0)
	}
	before := fingerprint(p)
	for k := uint64(0); k < 40; k++ {
		var info PredictionInfo
		p.Predict(0x9000+k*4, lowConfidence(), true, &info)
	}
	if fingerprint(p) != before {
		t.Errorf("Predict changed SC state")
	}
}

// ───────────────────────────────────────────────────────────────────────────────────────────────
// 3. COMMIT
// ───────────────────────────────────────────────────────────────────────────────────────────────

func TestCommit_ConfidentCorrectSkipsTraining(t *testing.T) {
	// WHAT: Correct with |sum| ≥ threshold → no table update
	p := newTestPredictor()
	var info PredictionInfo
	p.Predict(0x5550, lowConfidence(), true, &info)
	before := fingerprint(p)
	p.Commit(0x5550, true, lowConfidence(), &info, true)
	if fingerprint(p) != before || p.Stats().Trainings != 0 {
		t.Errorf("confident correct prediction trained the tables")
	}
}

func TestCommit_WrongRaisesThresholds(t *testing.T) {
	// WHAT: A wrong SC prediction raises the global and per-PC thresholds
	p := newTestPredictor()
	var info PredictionInfo
	p.Predict(0x5550, lowConfidence(), true, &info)
	p.Commit(0x5550, false, lowConfidence(), &info, true)

	if p.Stats().Trainings != 1 {
		t.Fatalf("trainings = %d, want 1", p.Stats().Trainings)
	}
	if got := p.updateThreshold.Get(); got != p.cfg.InitialUpdateThreshold+1 {
		t.Errorf("update threshold = %d, want %d", got, p.cfg.InitialUpdateThreshold+1)
	}
	if got := p.perPCThreshold.entry(0x5550).Get(); got != 1 {
		t.Errorf("per-PC threshold = %d, want 1", got)
	}
}

func TestCommit_HighBandMetaCounter(t *testing.T) {
	// WHAT: In the high band (thr/4 ≤ |sum| < thr/2) the second meta counter learns
	// whether keeping the input was right
	p := newTestPredictor()
	info := PredictionInfo{Sum: -30, Threshold: 100}
	p.Commit(0x40, false, &tage.PredictionInfo{HighConfidence: true}, &info, true)
	if p.secondConfidence.Get() != -1 {
		t.Errorf("second meta counter = %d, want -1", p.secondConfidence.Get())
	}
	if p.firstConfidence.Get() != 0 {
		t.Errorf("first meta counter moved outside its band")
	}
}

func TestCommit_MediumBandMetaCounter(t *testing.T) {
	p := newTestPredictor()
	info := PredictionInfo{Sum: -10, Threshold: 100}
	p.Commit(0x40, true, &tage.PredictionInfo{MediumConfidence: true}, &info, true)
	if p.firstConfidence.Get() != 1 {
		t.Errorf("first meta counter = %d, want 1", p.firstConfidence.Get())
	}
}

func TestCommit_ThresholdCounterfactual(t *testing.T) {
	// WHAT: A voter's threshold counter moves only when doubling flips the sign
	p := newTestPredictor()
	tbl := newThresholdTable(3, 6, 7)

	p.trainThreshold(tbl, 0x10, 100, 10, true) // 90 vs 100: no flip
	if tbl.entry(0x10).Get() != 7 {
		t.Fatalf("counter moved without a flip")
	}
	p.trainThreshold(tbl, 0x10, 5, 10, false) // -5 vs 5: flip, voter wrong
	if tbl.entry(0x10).Get() != 6 {
		t.Errorf("counter = %d, want 6", tbl.entry(0x10).Get())
	}
	p.trainThreshold(tbl, 0x10, 5, 10, true) // flip, voter right
	if tbl.entry(0x10).Get() != 7 {
		t.Errorf("counter = %d, want 7", tbl.entry(0x10).Get())
	}
}

// ───────────────────────────────────────────────────────────────────────────────────────────────
// 4. SPECULATION
// ───────────────────────────────────────────────────────────────────────────────────────────────

func TestSpeculative_GlobalTracksTakenBackward(t *testing.T) {
	// WHAT: Global history shifts in 1 only for taken backward conditionals
	p := newTestPredictor()
	var a, b, c, d PredictionInfo
	p.UpdateSpeculative(0x1000, 0x0F00, bputil.KindConditional, true, &a)   // 1
	p.UpdateSpeculative(0x1000, 0x1100, bputil.KindConditional, true, &b)   // 0
	p.UpdateSpeculative(0x1000, 0x0F00, bputil.KindConditional, false, &c)  // 0
	p.UpdateSpeculative(0x1000, 0x0F00, bputil.KindUnconditional, true, &d) // unchanged
	if p.global != 0b100 {
		t.Errorf("global = %b, want 100", p.global)
	}
	if b.Snapshot.Global != 1 || c.Snapshot.Global != 0b10 {
		t.Errorf("snapshots %b/%b, want 1/10", b.Snapshot.Global, c.Snapshot.Global)
	}
}

func TestSpeculative_IMLICounter(t *testing.T) {
	// WHAT: Backward taken → counter++, backward not-taken → counter = 0
	p := newTestPredictor()
	for i := 0; i < 5; i++ {
		var info PredictionInfo
		p.UpdateSpeculative(0x2000, 0x1F00, bputil.KindConditional, true, &info)
	}
	if p.imliCounter.Get() != 5 {
		t.Fatalf("IMLI counter = %d, want 5", p.imliCounter.Get())
	}
	var fwd PredictionInfo
	p.UpdateSpeculative(0x2000, 0x2100, bputil.KindConditional, false, &fwd)
	if p.imliCounter.Get() != 5 {
		t.Errorf("forward branch changed IMLI counter")
	}
	var exit PredictionInfo
	p.UpdateSpeculative(0x2000, 0x1F00, bputil.KindConditional, false, &exit)
	if p.imliCounter.Get() != 0 {
		t.Errorf("loop exit left IMLI counter at %d", p.imliCounter.Get())
	}
}

func TestSpeculative_PathWidth(t *testing.T) {
	p := newTestPredictor()
	for k := uint64(0); k < 100; k++ {
		var info PredictionInfo
		p.UpdateSpeculative(0xFFFF0000+k*0x1234, 0x10, bputil.KindIndirect, true, &info)
	}
	if p.path >= int64(1)<<p.cfg.PathHistoryWidth || p.path < 0 {
		t.Errorf("path %#x exceeds %d bits", p.path, p.cfg.PathHistoryWidth)
	}
}

func TestSpeculative_RecoverRestoresEverything(t *testing.T) {
	// WHAT: Local recovery youngest → oldest plus global recovery of the oldest
	// restores the exact pre-speculation state
	// WHY: This is the flush sequence the combined predictor runs
	p := newTestPredictor()
	for k := uint64(0); k < 20; k++ {
		var info PredictionInfo
		p.UpdateSpeculative(0x3000+k*4, 0x2000, bputil.KindConditional, k%3 != 0, &info)
	}
	before := fingerprint(p)

	type flight struct {
		pc   uint64
		info PredictionInfo
	}
	var window []flight
	for k := uint64(0); k < 12; k++ {
		f := flight{pc: 0x3000 + (k%5)*4}
		target := f.pc - 0x100
		if k%4 == 0 {
			target = f.pc + 0x100
		}
		p.UpdateSpeculative(f.pc, target, bputil.KindConditional, k%3 != 1, &f.info)
		window = append(window, f)
	}

	for i := len(window) - 1; i >= 0; i-- {
		p.RecoverLocal(window[i].pc, &window[i].info)
	}
	p.RecoverGlobal(&window[0].info)

	if fingerprint(p) != before {
		t.Errorf("state differs after recovery")
	}
}

func TestSpeculative_DisabledHistoriesStayUntouched(t *testing.T) {
	// WHAT: With local history and IMLI switched off, speculation leaves their
	// tables at zero and recovery still restores the exact prior state
	// WHY: Recovery only restores enabled histories, so updates must be gated the same way
	cfg := testConfig()
	cfg.SC.UseLocalHistory = false
	cfg.SC.UseIMLI = false
	p := New(cfg.SC, cfg.ConfidenceCounterWidth)
	before := fingerprint(p)

	type flight struct {
		pc   uint64
		info PredictionInfo
	}
	var window []flight
	for k := uint64(0); k < 16; k++ {
		f := flight{pc: 0x5000 + (k%3)*4}
		p.UpdateSpeculative(f.pc, f.pc-0x80, bputil.KindConditional, k%4 != 3, &f.info)
		window = append(window, f)
	}

	for _, l := range []*localTable{p.firstLocal, p.secondLocal, p.thirdLocal} {
		for i, w := range l.words {
			if w != 0 {
				t.Fatalf("local history word %d = %#x with local history disabled", i, w)
			}
		}
	}
	if p.imliCounter.Get() != 0 {
		t.Errorf("IMLI counter = %d with IMLI disabled", p.imliCounter.Get())
	}
	for i, w := range p.imliTable {
		if w != 0 {
			t.Fatalf("IMLI word %d = %#x with IMLI disabled", i, w)
		}
	}

	for i := len(window) - 1; i >= 0; i-- {
		p.RecoverLocal(window[i].pc, &window[i].info)
	}
	p.RecoverGlobal(&window[0].info)
	if fingerprint(p) != before {
		t.Errorf("state differs after recovery")
	}
}
