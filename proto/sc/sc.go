// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Statistical Corrector
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// OVERVIEW:
// ─────────
// The statistical corrector (SC) is a perceptron-like adder over many small counter
// tables. It sees the TAGE/loop prediction and its confidence, adds the votes of bias
// tables and GEHL components over several histories, and reverts the prediction when
// the sum strongly disagrees.
//
// VOTERS:
//   Bias tables (3):  indexed by PC and the TAGE outcome / confidence
//   Global GEHL:      global taken-backward history, PC extended with the input prediction
//   Path GEHL:        path history
//   Local GEHLs (3):  per-address local histories
//   IMLI GEHLs (2):   inner-most loop iteration counter and its history word
//
// THRESHOLDS:
//   The override threshold is a global adaptive counter (>>3) plus a per-PC term.
//   With variable thresholds each voter also has a per-PC counter: when ≥ 0 the voter
//   counts double and adds 12 to the threshold. Those counters are trained only when
//   doubling would have flipped the outcome.
//
// SPECULATION:
//   Global, path, local and IMLI histories are updated at fetch. The per-branch record
//   snapshots their pre-update values so commit trains with exactly the histories the
//   prediction saw, and flush restores them.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package sc

import (
	"tagescl/proto/bputil"
	"tagescl/proto/config"
	"tagescl/proto/tage"
)

// HistorySnapshot holds the SC histories as they were before a branch's update.
type HistorySnapshot struct {
	Global      int64
	Path        int64
	FirstLocal  int64
	SecondLocal int64
	ThirdLocal  int64
	IMLICounter int64
	IMLILocal   int64
}

// PredictionInfo is the per-branch SC record.
type PredictionInfo struct {
	Sum       int
	Threshold int
	Taken     bool

	Snapshot HistorySnapshot
}

// Stats counts corrector training events.
type Stats struct {
	Trainings uint64 // Commits that updated the tables
}

type Predictor struct {
	cfg config.SC

	// Speculative histories
	global      int64
	path        int64
	firstLocal  *localTable
	secondLocal *localTable
	thirdLocal  *localTable
	imliCounter bputil.SatCounter
	imliTable   []int64

	// Override meta counters
	firstConfidence  bputil.SatCounter // medium-confidence band
	secondConfidence bputil.SatCounter // high-confidence band

	updateThreshold bputil.SatCounter
	perPCThreshold  *thresholdTable

	globalGEHL      *gehl
	pathGEHL        *gehl
	firstLocalGEHL  *gehl
	secondLocalGEHL *gehl
	thirdLocalGEHL  *gehl
	firstIMLIGEHL   *gehl
	secondIMLIGEHL  *gehl

	globalThreshold      *thresholdTable
	pathThreshold        *thresholdTable
	firstLocalThreshold  *thresholdTable
	secondLocalThreshold *thresholdTable
	thirdLocalThreshold  *thresholdTable
	firstIMLIThreshold   *thresholdTable
	secondIMLIThreshold  *thresholdTable
	biasThreshold        *thresholdTable

	bias     []bputil.SatCounter
	biasSK   []bputil.SatCounter
	biasBank []bputil.SatCounter

	stats Stats
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// INITIALIZATION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// New builds a corrector. confidenceWidth sizes the two override meta counters.
func New(cfg config.SC, confidenceWidth int) *Predictor {
	p := &Predictor{
		cfg:         cfg,
		firstLocal:  newLocalTable(cfg.FirstLocal),
		secondLocal: newLocalTable(cfg.SecondLocal),
		thirdLocal:  newLocalTable(cfg.ThirdLocal),
		imliCounter: bputil.NewUnsigned(cfg.IMLICounterWidth),
		imliTable:   make([]int64, cfg.IMLITableSize()),

		firstConfidence:  bputil.NewSigned(confidenceWidth),
		secondConfidence: bputil.NewSigned(confidenceWidth),

		updateThreshold: bputil.NewSigned(cfg.UpdateThresholdWidth),
		perPCThreshold:  newThresholdTable(cfg.LogPerPCThresholdTableSize, cfg.PerPCUpdateThresholdWidth, 0),

		globalGEHL:      newGEHL(cfg.GlobalHistory, cfg.Precision),
		pathGEHL:        newGEHL(cfg.Path, cfg.Precision),
		firstLocalGEHL:  newGEHL(cfg.FirstLocal.GEHL, cfg.Precision),
		secondLocalGEHL: newGEHL(cfg.SecondLocal.GEHL, cfg.Precision),
		thirdLocalGEHL:  newGEHL(cfg.ThirdLocal.GEHL, cfg.Precision),
		firstIMLIGEHL:   newGEHL(cfg.FirstIMLI, cfg.Precision),
		secondIMLIGEHL:  newGEHL(cfg.SecondIMLI, cfg.Precision),
	}
	p.updateThreshold.Set(cfg.InitialUpdateThreshold)

	variable := func(initial int) *thresholdTable {
		return newThresholdTable(cfg.LogVariableThresholdTableSize, cfg.VariableThresholdWidth, initial)
	}
	p.globalThreshold = variable(cfg.InitialVariableThreshold)
	p.pathThreshold = variable(cfg.InitialVariableThreshold)
	p.firstLocalThreshold = variable(cfg.InitialVariableThreshold)
	p.secondLocalThreshold = variable(cfg.InitialVariableThreshold)
	p.thirdLocalThreshold = variable(cfg.InitialVariableThreshold)
	p.firstIMLIThreshold = variable(cfg.InitialVariableThreshold)
	p.secondIMLIThreshold = variable(cfg.InitialVariableThresholdForIMLI2)
	p.biasThreshold = variable(cfg.InitialVariableThresholdForBias)

	p.initBias()
	return p
}

// initBias seeds the bias tables so each (pc, input prediction) pair starts out
// agreeing with the input prediction.
func (p *Predictor) initBias() {
	size := 1 << p.cfg.LogBiasEntries
	lo := -(1 << (p.cfg.Precision - 1))
	hi := 1<<(p.cfg.Precision-1) - 1

	p.bias = make([]bputil.SatCounter, size)
	p.biasSK = make([]bputil.SatCounter, size)
	p.biasBank = make([]bputil.SatCounter, size)
	for i := 0; i < size; i++ {
		p.bias[i] = bputil.NewSigned(p.cfg.Precision)
		p.biasSK[i] = bputil.NewSigned(p.cfg.Precision)
		p.biasBank[i] = bputil.NewSigned(p.cfg.Precision)

		var b, sk int
		switch i & 3 {
		case 0:
			b, sk = lo, lo/4
		case 1:
			b, sk = hi, hi/4
		case 2:
			b, sk = -1, lo
		case 3:
			b, sk = 0, hi
		}
		p.bias[i].Set(b)
		p.biasBank[i].Set(b)
		p.biasSK[i].Set(sk)
	}
}

func (p *Predictor) Stats() Stats { return p.stats }

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// BIAS INDICES
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (p *Predictor) biasMask() uint64 { return uint64(1)<<p.cfg.LogBiasEntries - 1 }

func (p *Predictor) biasIndex(pc uint64, t *tage.PredictionInfo, input bool) int {
	idx := (pc ^ (pc >> 2)) << 1
	idx ^= b2u(t.LowConfidence && t.LongestMatch != t.Alt)
	idx = idx<<1 + b2u(input)
	return int(idx & p.biasMask())
}

func (p *Predictor) biasSKIndex(pc uint64, t *tage.PredictionInfo, input bool) int {
	idx := (pc ^ (pc >> (p.cfg.LogBiasEntries - 2))) << 1
	idx ^= b2u(t.HighConfidence)
	idx = idx<<1 + b2u(input)
	return int(idx & p.biasMask())
}

func (p *Predictor) biasBankIndex(pc uint64, t *tage.PredictionInfo, input bool) int {
	idx := (pc ^ (pc >> 2)) << 7
	idx += uint64((t.HitBank+1)/4) << 4
	idx += b2u(t.AltBank != 0) << 3
	idx += b2u(t.LowConfidence) << 2
	idx += b2u(t.HighConfidence) << 1
	idx += b2u(input)
	return int(idx & p.biasMask())
}

// globalPC extends the PC with the input prediction for the global-history GEHL.
func globalPC(pc uint64, input bool) uint64 { return pc<<1 + b2u(input) }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// PREDICTION
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Predict computes the sum and threshold and decides whether to override input
// (the TAGE-or-loop prediction). Predict does not modify any state.
//
// OVERRIDE POLICY (only when sign(sum) disagrees with input):
//   TAGE high confidence:   |sum| < thr/4 → keep input
//                           |sum| < thr/2 → SC if secondConfidence < 0, else input
//                           otherwise     → SC
//   TAGE medium confidence: |sum| < thr/4 → SC if firstConfidence < 0, else input
//                           otherwise     → SC
//   otherwise:              SC
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func (p *Predictor) Predict(pc uint64, t *tage.PredictionInfo, input bool, info *PredictionInfo) {
	cfg := &p.cfg
	sum := 0
	thr := p.updateThreshold.Get()>>3 + p.perPCThreshold.entry(pc).Get()

	// ─── Bias ───
	sum += p.bias[p.biasIndex(pc, t, input)].Centered()
	sum += p.biasSK[p.biasSKIndex(pc, t, input)].Centered()
	sum += p.biasBank[p.biasBankIndex(pc, t, input)].Centered()
	if cfg.UseVariableThreshold && p.biasThreshold.enabled(pc) {
		sum *= 2
		thr += 12
	}

	// ─── Global and path ───
	sum += p.vote(p.globalGEHL, p.globalThreshold, globalPC(pc, input), p.global)
	sum += p.vote(p.pathGEHL, p.pathThreshold, pc, p.path)
	if cfg.UseVariableThreshold {
		thr += p.thresholdBonus(p.globalThreshold, pc)
		thr += p.thresholdBonus(p.pathThreshold, pc)
	}

	// ─── Local ───
	if cfg.UseLocalHistory {
		sum += p.vote(p.firstLocalGEHL, p.firstLocalThreshold, pc, *p.firstLocal.at(pc))
		if cfg.UseSecondLocalHistory {
			sum += p.vote(p.secondLocalGEHL, p.secondLocalThreshold, pc, *p.secondLocal.at(pc))
		}
		if cfg.UseThirdLocalHistory {
			sum += p.vote(p.thirdLocalGEHL, p.thirdLocalThreshold, pc, *p.thirdLocal.at(pc))
		}
	}
	if cfg.UseVariableThreshold {
		thr += p.thresholdBonus(p.firstLocalThreshold, pc)
		if cfg.UseSecondLocalHistory {
			thr += p.thresholdBonus(p.secondLocalThreshold, pc)
		}
		if cfg.UseThirdLocalHistory {
			thr += p.thresholdBonus(p.thirdLocalThreshold, pc)
		}
	}

	// ─── IMLI ───
	if cfg.UseIMLI {
		counter := p.imliCounter.Get()
		sum += p.vote(p.secondIMLIGEHL, p.secondIMLIThreshold, pc, p.imliTable[counter])
		sum += p.vote(p.firstIMLIGEHL, p.firstIMLIThreshold, pc, int64(counter))
		if cfg.UseVariableThreshold {
			// Only the first IMLI component contributes to the threshold.
			thr += p.thresholdBonus(p.firstIMLIThreshold, pc)
		}
	}

	info.Sum = sum
	info.Threshold = thr
	info.Taken = p.override(t, input, sum, thr)
}

// vote is one GEHL component's contribution, doubled when its threshold counter
// is enabled.
func (p *Predictor) vote(g *gehl, thr *thresholdTable, pc uint64, history int64) int {
	s := g.sum(pc, history)
	if p.cfg.UseVariableThreshold && thr.enabled(pc) {
		s *= 2
	}
	return s
}

func (p *Predictor) thresholdBonus(thr *thresholdTable, pc uint64) int {
	if thr.enabled(pc) {
		return 12
	}
	return 0
}

func (p *Predictor) override(t *tage.PredictionInfo, input bool, sum, thr int) bool {
	sc := sum >= 0
	if sc == input {
		return input
	}
	mag := abs(sum)
	taken := sc
	if t.HighConfidence {
		switch {
		case mag < thr/4:
			taken = input
		case mag < thr/2:
			if p.secondConfidence.Get() >= 0 {
				taken = input
			}
		}
	}
	if t.MediumConfidence {
		if mag < thr/4 && p.firstConfidence.Get() >= 0 {
			taken = input
		} else {
			taken = sc
		}
	}
	return taken
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// COMMIT
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Commit trains with the resolved direction:
//   1. Meta counters learn whether overriding was right in each confidence band
//   2. If SC was wrong or |sum| < thr: adjust the global and per-PC thresholds,
//      the bias tables (and their threshold counter) and every GEHL with the
//      snapshot histories the prediction used
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func (p *Predictor) Commit(pc uint64, taken bool, t *tage.PredictionInfo, info *PredictionInfo, input bool) {
	cfg := &p.cfg
	sc := info.Sum >= 0
	mag := abs(info.Sum)

	if input != sc {
		if mag < info.Threshold && t.HighConfidence && mag < info.Threshold/2 && mag >= info.Threshold/4 {
			p.secondConfidence.Update(input == taken)
		}
		if t.MediumConfidence && mag < info.Threshold/4 {
			p.firstConfidence.Update(input == taken)
		}
	}

	if sc == taken && mag >= info.Threshold {
		return
	}
	p.stats.Trainings++

	// ─── Thresholds ───
	if sc != taken {
		p.updateThreshold.Increment()
		p.perPCThreshold.entry(pc).Increment()
	} else {
		p.updateThreshold.Decrement()
		p.perPCThreshold.entry(pc).Decrement()
	}

	// ─── Bias ───
	bi := p.biasIndex(pc, t, input)
	ski := p.biasSKIndex(pc, t, input)
	bbi := p.biasBankIndex(pc, t, input)
	if cfg.UseVariableThreshold {
		biasSum := p.bias[bi].Centered() + p.biasSK[ski].Centered() + p.biasBank[bbi].Centered()
		p.trainThreshold(p.biasThreshold, pc, info.Sum, biasSum, taken)
	}
	p.bias[bi].Update(taken)
	p.biasSK[ski].Update(taken)
	p.biasBank[bbi].Update(taken)

	// ─── GEHLs ───
	snap := &info.Snapshot
	p.train(p.globalGEHL, p.globalThreshold, globalPC(pc, input), snap.Global, taken, info.Sum)
	p.train(p.pathGEHL, p.pathThreshold, pc, snap.Path, taken, info.Sum)
	if cfg.UseLocalHistory {
		p.train(p.firstLocalGEHL, p.firstLocalThreshold, pc, snap.FirstLocal, taken, info.Sum)
		if cfg.UseSecondLocalHistory {
			p.train(p.secondLocalGEHL, p.secondLocalThreshold, pc, snap.SecondLocal, taken, info.Sum)
		}
		if cfg.UseThirdLocalHistory {
			p.train(p.thirdLocalGEHL, p.thirdLocalThreshold, pc, snap.ThirdLocal, taken, info.Sum)
		}
	}
	if cfg.UseIMLI {
		p.train(p.secondIMLIGEHL, p.secondIMLIThreshold, pc, snap.IMLILocal, taken, info.Sum)
		p.train(p.firstIMLIGEHL, p.firstIMLIThreshold, pc, snap.IMLICounter, taken, info.Sum)
	}
}

// train updates a GEHL and, with variable thresholds, its threshold counter.
func (p *Predictor) train(g *gehl, thr *thresholdTable, pc uint64, history int64, taken bool, total int) {
	s := g.sum(pc, history)
	g.update(pc, history, taken)
	if p.cfg.UseVariableThreshold {
		p.trainThreshold(thr, pc, total, s, taken)
	}
}

// trainThreshold moves a voter's threshold counter only when doubling the voter
// would have flipped the total: toward enabled if the voter was right.
func (p *Predictor) trainThreshold(thr *thresholdTable, pc uint64, total, part int, taken bool) {
	without := total
	if thr.enabled(pc) {
		without -= part
	}
	if (without >= 0) != (without+part >= 0) {
		thr.entry(pc).Update((part >= 0) == taken)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// SPECULATIVE HISTORY
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// UpdateSpeculative snapshots every history into info and then shifts in the
// branch. Only conditional branches touch the global, local and IMLI histories;
// every branch extends the path.
//
// IMLI: a backward conditional branch is treated as a loop back-edge. Taken →
// counter++, not taken (loop exit) → counter = 0.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func (p *Predictor) UpdateSpeculative(pc, target uint64, kind bputil.BranchKind, taken bool, info *PredictionInfo) {
	cfg := &p.cfg
	snap := &info.Snapshot
	snap.Global = p.global
	snap.Path = p.path
	if cfg.UseLocalHistory {
		snap.FirstLocal = *p.firstLocal.at(pc)
		if cfg.UseSecondLocalHistory {
			snap.SecondLocal = *p.secondLocal.at(pc)
		}
		if cfg.UseThirdLocalHistory {
			snap.ThirdLocal = *p.thirdLocal.at(pc)
		}
	}
	if cfg.UseIMLI {
		snap.IMLICounter = int64(p.imliCounter.Get())
		snap.IMLILocal = p.imliTable[p.imliCounter.Get()]
	}

	dir := int64(b2u(taken))
	backward := target < pc

	if kind.Conditional && cfg.UseIMLI {
		word := &p.imliTable[p.imliCounter.Get()]
		*word = *word<<1 + dir
		if backward {
			if taken {
				p.imliCounter.Increment()
			} else {
				p.imliCounter.Set(0)
			}
		}
	}

	if kind.Conditional {
		if taken && backward {
			p.global = p.global<<1 + 1
		} else {
			p.global <<= 1
		}
	}
	if kind.Conditional && cfg.UseLocalHistory {
		l1 := p.firstLocal.at(pc)
		*l1 = *l1<<1 + dir
		if cfg.UseSecondLocalHistory {
			l2 := p.secondLocal.at(pc)
			*l2 = (*l2<<1 + dir) ^ int64(pc&15)
		}
		if cfg.UseThirdLocalHistory {
			l3 := p.thirdLocal.at(pc)
			*l3 = *l3<<1 + dir
		}
	}

	pathBits := int64(pc ^ (pc >> 2) ^ (pc >> 4))
	if kind.Conditional && kind.Indirect && taken {
		pathBits ^= int64((target >> 2) ^ (target >> 4))
	}
	for i := 0; i < kind.PathBits(); i++ {
		p.path = p.path<<1 ^ (pathBits & 127)
		pathBits >>= 1
	}
	p.path &= int64(1)<<cfg.PathHistoryWidth - 1
}

// RecoverLocal restores the per-address and IMLI histories a branch at pc changed.
func (p *Predictor) RecoverLocal(pc uint64, info *PredictionInfo) {
	cfg := &p.cfg
	snap := &info.Snapshot
	if cfg.UseLocalHistory {
		*p.firstLocal.at(pc) = snap.FirstLocal
		if cfg.UseSecondLocalHistory {
			*p.secondLocal.at(pc) = snap.SecondLocal
		}
		if cfg.UseThirdLocalHistory {
			*p.thirdLocal.at(pc) = snap.ThirdLocal
		}
	}
	if cfg.UseIMLI {
		p.imliCounter.Set(int(snap.IMLICounter))
		p.imliTable[p.imliCounter.Get()] = snap.IMLILocal
	}
}

// RecoverGlobal restores the global and path histories.
func (p *Predictor) RecoverGlobal(info *PredictionInfo) {
	p.global = info.Snapshot.Global
	p.path = info.Snapshot.Path
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// STATE FINGERPRINT
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func (p *Predictor) HashState(h *bputil.StateHasher) {
	h.Label("sc.history")
	h.Int(p.global)
	h.Int(p.path)
	for _, l := range []*localTable{p.firstLocal, p.secondLocal, p.thirdLocal} {
		for _, w := range l.words {
			h.Int(w)
		}
	}
	h.Counter(p.imliCounter)
	for _, w := range p.imliTable {
		h.Int(w)
	}

	h.Label("sc.tables")
	h.Counter(p.firstConfidence)
	h.Counter(p.secondConfidence)
	h.Counter(p.updateThreshold)
	h.Counters(p.perPCThreshold.entries)
	for _, g := range []*gehl{p.globalGEHL, p.pathGEHL, p.firstLocalGEHL, p.secondLocalGEHL,
		p.thirdLocalGEHL, p.firstIMLIGEHL, p.secondIMLIGEHL} {
		g.hash(h)
	}
	for _, t := range []*thresholdTable{p.globalThreshold, p.pathThreshold, p.firstLocalThreshold,
		p.secondLocalThreshold, p.thirdLocalThreshold, p.firstIMLIThreshold, p.secondIMLIThreshold,
		p.biasThreshold} {
		h.Counters(t.entries)
	}
	h.Counters(p.bias)
	h.Counters(p.biasSK)
	h.Counters(p.biasBank)
}
