// ═══════════════════════════════════════════════════════════════════════════════════════════════
// TAGE Branch Direction Predictor - Speculative Reference Model
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// OVERVIEW:
// ─────────
// This file implements the TAGE (TAgged GEometric) component of the TAGE-SC-L predictor.
// TAGE provides the primary direction prediction; the statistical corrector and loop
// predictor sit on top of it and only override it when they have evidence TAGE is wrong.
//
// The predictor's job:
//   1. Track global direction history and path history SPECULATIVELY at fetch
//   2. Hash PC + folded history into per-bank indices and partial tags
//   3. Select the two longest matching banks (provider and alternate)
//   4. Learn from the resolved outcome at commit (counters, useful bits, allocation)
//   5. Rewind history exactly when the pipeline flushes
//
// KEY CONCEPTS:
// ─────────────
//
// BANKS AND HISTORY LENGTHS:
//   N history lengths are spaced geometrically between MinHistorySize and
//   MaxHistorySize. Each length feeds two banks (2h+1 and 2h+2), so banks run 1..2N.
//   Even banks are always enabled; odd banks only inside the 2-way range. A few
//   banks are switched off entirely (4, 8, 2N-6, 2N-2).
//
// SHORT AND LONG ARENAS:
//   Banks below FirstLongHistoryTable share one entry arena, the rest share another.
//   Per-branch "bank select" bits rotate which slice of the arena a bank uses, so
//   bank number and arena slice are decoupled.
//
// BIMODAL BASE:
//   One prediction bit per entry, one hysteresis bit per 4 entries. Always provides
//   a prediction when no tagged bank matches.
//
// FOLDED HISTORIES:
//   Each history length keeps three folded views (index width, tag width, tag width-1)
//   so hashing a 3000-bit history costs a few XORs.
//
// SPECULATION:
//   History is pushed at fetch with the PREDICTED direction. The per-branch record
//   checkpoints the register head and path so a flush can reverse-fold back to it.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package tage

import (
	"math"

	"tagescl/proto/bputil"
	"tagescl/proto/config"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// TAGGED ENTRY
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Entry is one tagged prediction entry.
//
// FIELDS:
//   Counter: signed prediction counter (3 bits, taken if ≥ 0)
//   Useful:  unsigned usefulness counter (1 bit), blocks replacement while set
//   Tag:     partial tag (8 bits short banks, 12 bits long banks)
//
// Hardware: SRAM row, 16-20 bits
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

type Entry struct {
	Counter bputil.SatCounter
	Useful  bputil.SatCounter
	Tag     uint32
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// PREDICTION INFO
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// PredictionInfo carries everything Predict computed and everything the speculative
// update checkpointed, so Commit, Retire and Recover never recompute hashes against
// a history that has since moved on.
//
// Hardware: pipeline payload travelling with the branch in the ROB
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

type PredictionInfo struct {
	// Overall output
	Taken            bool
	HighConfidence   bool
	MediumConfidence bool
	LowConfidence    bool

	// Intermediate predictions
	LongestMatch bool
	Alt          bool
	AltConfident bool
	HitBank      int // 0 = no tagged hit
	AltBank      int // 0 = no second hit

	Indices [config.MaxBanks]uint32
	Tags    [config.MaxBanks]uint32

	// Speculative-update checkpoint
	PushedBits     int
	HeadCheckpoint int64
	PathCheckpoint uint64
}

// Stats counts learning events since construction.
type Stats struct {
	Allocations  uint64 // Entries claimed on a misprediction
	Decays       uint64 // Strong non-useful entries weakened instead of replaced
	UsefulShifts uint64 // Global useful-bit halvings
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// TAGE PREDICTOR
// ═══════════════════════════════════════════════════════════════════════════════════════════════

type Predictor struct {
	cfg config.TAGE

	// Derived geometry
	historySizes []int
	tagBits      []int
	enabled      []bool // indexed by bank, 0..2N

	// Persistent tables
	short       []Entry
	long        []Entry
	bimodalPred []uint8
	bimodalHyst []uint8
	altSelector []bputil.SatCounter
	tick        int

	// Speculative history
	history  *bputil.HistoryRegister
	foldIdx  []bputil.FoldedHistory
	foldTag0 []bputil.FoldedHistory
	foldTag1 []bputil.FoldedHistory
	path     uint64

	// Random stream inputs
	pathOld uint64
	headOld int64
	rng     *bputil.Random

	stats Stats
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// INITIALIZATION
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// New builds a predictor for a validated configuration.
//
// INITIAL STATE:
//   - Tagged entries: counter 0, useful 0, tag 0
//   - Bimodal: prediction 0 (not taken), hysteresis 1 (weak)
//   - Alt selector: 0 (prefer the alternate on weak providers)
//   - History register, folded histories, path: all zero
//
// maxInFlight sizes the speculative history reservation: every in-flight branch may
// have pushed up to 3 bits before it retires.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func New(cfg config.TAGE, maxInFlight int) *Predictor {
	n := cfg.NumHistories
	p := &Predictor{
		cfg:          cfg,
		historySizes: HistorySizes(cfg),
		tagBits:      make([]int, n),
		enabled:      EnabledBanks(cfg),
		short:        newEntries(cfg, cfg.ShortHistoryNumBanks<<cfg.LogEntriesPerBank),
		long:         newEntries(cfg, cfg.LongHistoryNumBanks<<cfg.LogEntriesPerBank),
		bimodalPred:  make([]uint8, 1<<cfg.BimodalLogSize),
		bimodalHyst:  make([]uint8, 1<<(cfg.BimodalLogSize-cfg.BimodalHysteresisShift)),
		altSelector:  make([]bputil.SatCounter, 1<<cfg.AltSelectorLogSize),
		history:      bputil.NewHistoryRegister(cfg.MaxHistorySize, 3*maxInFlight),
		foldIdx:      make([]bputil.FoldedHistory, n),
		foldTag0:     make([]bputil.FoldedHistory, n),
		foldTag1:     make([]bputil.FoldedHistory, n),
	}

	for i := range p.bimodalHyst {
		p.bimodalHyst[i] = 1
	}
	for i := range p.altSelector {
		p.altSelector[i] = bputil.NewSigned(cfg.AltSelectorEntryWidth)
	}

	for h := 0; h < n; h++ {
		if 2*h+1 < cfg.FirstLongHistoryTable {
			p.tagBits[h] = cfg.ShortHistoryTagBits
		} else {
			p.tagBits[h] = cfg.LongHistoryTagBits
		}
		p.foldIdx[h] = bputil.NewFoldedHistory(p.historySizes[h], cfg.LogEntriesPerBank)
		p.foldTag0[h] = bputil.NewFoldedHistory(p.historySizes[h], p.tagBits[h])
		p.foldTag1[h] = bputil.NewFoldedHistory(p.historySizes[h], p.tagBits[h]-1)
	}

	p.rng = bputil.NewRandom(p.randomWords)
	return p
}

func newEntries(cfg config.TAGE, size int) []Entry {
	entries := make([]Entry, size)
	for i := range entries {
		entries[i].Counter = bputil.NewSigned(cfg.PredCounterWidth)
		entries[i].Useful = bputil.NewUnsigned(cfg.UsefulBits)
	}
	return entries
}

// HistorySizes returns the geometric series round(min * (max/min)^(i/(N-1))).
func HistorySizes(cfg config.TAGE) []int {
	n := cfg.NumHistories
	sizes := make([]int, n)
	ratio := float64(cfg.MaxHistorySize) / float64(cfg.MinHistorySize)
	for i := 0; i < n; i++ {
		power := float64(i) / float64(n-1)
		sizes[i] = int(float64(cfg.MinHistorySize)*math.Pow(ratio, power) + 0.5)
	}
	return sizes
}

// EnabledBanks returns which banks 1..2N exist. Index 0 is unused.
func EnabledBanks(cfg config.TAGE) []bool {
	twiceN := 2 * cfg.NumHistories
	enabled := make([]bool, twiceN+1)
	for i := 1; i <= twiceN; i++ {
		even := (i-1)&1 == 1
		middle := i >= cfg.First2WayTable && i <= cfg.Last2WayTable
		enabled[i] = even || middle
	}
	enabled[4] = false
	enabled[twiceN-2] = false
	enabled[8] = false
	enabled[twiceN-6] = false
	return enabled
}

// Random exposes the shared pseudo-random stream so sibling components draw from
// the same sequence.
func (p *Predictor) Random() *bputil.Random { return p.rng }

func (p *Predictor) randomWords() (int64, int64) {
	return int64(p.pathOld), p.headOld
}

func (p *Predictor) Stats() Stats { return p.stats }

// entry resolves a bank + arena index to its storage.
func (p *Predictor) entry(bank int, index uint32) *Entry {
	if bank < p.cfg.FirstLongHistoryTable {
		return &p.short[index]
	}
	return &p.long[index]
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// HASH FUNCTIONS
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// pathHash mixes up to PathHistoryWidth bits of path history into an index-sized value.
// The high part is rotated by the bank number before folding so that two banks with
// the same history length see different path contributions.
//
// Hardware: barrel rotators feeding an XOR tree
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func pathHash(path uint64, maxWidth, bank, indexSize int) uint64 {
	mask := uint64(1)<<indexSize - 1
	path &= uint64(1)<<maxWidth - 1
	low := path & mask
	high := path >> indexSize
	if bank < indexSize {
		high = ((high << bank) & mask) + (high >> (indexSize - bank))
	}
	path = low ^ high
	if bank < indexSize {
		path = ((path << bank) & mask) + (path >> (indexSize - bank))
	}
	return path
}

// fillIndicesTags computes the arena index and tag of every enabled bank.
func (p *Predictor) fillIndicesTags(pc uint64, info *PredictionInfo) {
	logEntries := p.cfg.LogEntriesPerBank
	indexMask := uint64(1)<<logEntries - 1
	twiceN := 2 * p.cfg.NumHistories

	// ─── Per-pair index and tag, bank-select bits excluded ───
	for i := 1; i <= twiceN; i += 2 {
		if !p.enabled[i] && !p.enabled[i+1] {
			continue
		}
		h := (i - 1) / 2
		maxPath := min(p.historySizes[h], p.cfg.PathHistoryWidth)
		shift := logEntries - i
		if shift < 0 {
			shift = -shift
		}
		shift++

		index := pc ^ (pc >> shift) ^ uint64(p.foldIdx[h].Value()) ^ pathHash(p.path, maxPath, i, logEntries)
		info.Indices[i] = uint32(index & indexMask)

		tag := pc ^ uint64(p.foldTag0[h].Value()) ^ uint64(p.foldTag1[h].Value())<<1
		info.Tags[i] = uint32(tag & (uint64(1)<<p.tagBits[h] - 1))

		info.Tags[i+1] = info.Tags[i]
		info.Indices[i+1] = info.Indices[i] ^ (info.Tags[i] & uint32(indexMask))
	}

	// ─── Long arena bank-select bits ───
	longBanks := uint64(p.cfg.LongHistoryNumBanks)
	longMask := uint64(1)<<p.historySizes[(p.cfg.FirstLongHistoryTable-1)/2] - 1
	sel := (pc ^ (p.path & longMask)) % longBanks
	for i := p.cfg.FirstLongHistoryTable; i <= twiceN; i++ {
		if p.enabled[i] {
			info.Indices[i] += uint32(sel << logEntries)
			sel = (sel + 1) % longBanks
		}
	}

	// ─── Short arena bank-select bits ───
	shortBanks := uint64(p.cfg.ShortHistoryNumBanks)
	shortMask := uint64(1)<<p.historySizes[0] - 1
	sel = (pc ^ (p.path & shortMask)) % shortBanks
	for i := 1; i < p.cfg.FirstLongHistoryTable; i++ {
		if p.enabled[i] {
			info.Indices[i] += uint32(sel << logEntries)
			sel = (sel + 1) % shortBanks
		}
	}
}

func (p *Predictor) bimodalIndex(pc uint64) int {
	return int((pc ^ (pc >> 2)) & (uint64(1)<<p.cfg.BimodalLogSize - 1))
}

// bimodal returns the base prediction and whether its 2-bit state is saturated.
func (p *Predictor) bimodal(pc uint64) (taken, confident bool) {
	idx := p.bimodalIndex(pc)
	state := p.bimodalPred[idx]<<1 + p.bimodalHyst[idx>>p.cfg.BimodalHysteresisShift]
	return p.bimodalPred[idx] > 0, state == 0 || state == 3
}

func (p *Predictor) updateBimodal(pc uint64, taken bool) {
	idx := p.bimodalIndex(pc)
	hidx := idx >> p.cfg.BimodalHysteresisShift
	state := p.bimodalPred[idx]<<1 + p.bimodalHyst[hidx]
	if taken && state < 3 {
		state++
	} else if !taken && state > 0 {
		state--
	}
	p.bimodalPred[idx] = state >> 1
	p.bimodalHyst[hidx] = state & 1
}

func (p *Predictor) altSelectorIndex(info *PredictionInfo) int {
	idx := ((info.HitBank - 1) / 8) << 1
	if info.AltConfident {
		idx++
	}
	return idx % (1<<p.cfg.AltSelectorLogSize - 1)
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// PREDICTION
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Predict fills info without touching any predictor state.
//
// ALGORITHM:
//   1. Compute indices/tags for every bank
//   2. Start from the bimodal prediction (alt = bimodal)
//   3. Scan banks 2N..1 for the two longest tag matches
//   4. Provider counter decides, unless it is weak and the alt selector prefers alt
//   5. Classify confidence from |2c+1| of the provider
//
// CONFIDENCE:
//   |2c+1| == 7: high     |2c+1| == 5: medium     |2c+1| == 1: low
//   |2c+1| == 3 falls in none of the three classes.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func (p *Predictor) Predict(pc uint64, info *PredictionInfo) {
	p.fillIndicesTags(pc, info)

	taken, confident := p.bimodal(pc)
	info.Alt = taken
	info.AltConfident = confident
	info.HighConfidence = confident
	info.MediumConfidence = false
	info.LowConfidence = !confident
	info.Taken = taken
	info.LongestMatch = taken

	info.HitBank, info.AltBank = p.longestMatches(info)
	if info.HitBank == 0 {
		return
	}

	provider := p.entry(info.HitBank, info.Indices[info.HitBank]).Counter
	info.LongestMatch = provider.Get() >= 0
	if info.AltBank != 0 {
		alt := p.entry(info.AltBank, info.Indices[info.AltBank]).Counter
		info.Alt = alt.Get() >= 0
		info.AltConfident = alt.Strength() > 1
	}

	useAlt := p.altSelector[p.altSelectorIndex(info)].Get() >= 0
	if !useAlt || provider.Strength() > 1 {
		info.Taken = info.LongestMatch
	} else {
		info.Taken = info.Alt
	}

	strength := provider.Strength()
	info.HighConfidence = strength >= (1<<p.cfg.PredCounterWidth)-1
	info.MediumConfidence = strength == 5
	info.LowConfidence = strength == 1
}

// longestMatches returns the two highest enabled banks whose tag matches.
func (p *Predictor) longestMatches(info *PredictionInfo) (hit, alt int) {
	for i := 2 * p.cfg.NumHistories; i > 0; i-- {
		if !p.enabled[i] {
			continue
		}
		if p.entry(i, info.Indices[i]).Tag != info.Tags[i] {
			continue
		}
		if hit == 0 {
			hit = i
		} else {
			return hit, i
		}
	}
	return hit, 0
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// SPECULATIVE HISTORY
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// UpdateSpeculative pushes 2 bits (3 for unconditional indirect branches) of the
// PC/direction hash into global history and the matching path bits into path
// history. The register head and path are checkpointed into info first.
//
// Hardware: shift-in port on the GHR, 54 folded-history XOR updates per bit
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func (p *Predictor) UpdateSpeculative(pc, target uint64, kind bputil.BranchKind, taken bool, info *PredictionInfo) {
	p.headOld = p.history.Head()
	bits := kind.PathBits()

	pcDir := pc ^ (pc >> 2)
	if taken {
		pcDir ^= 1
	}
	pathBits := pc ^ (pc >> 2) ^ (pc >> 4)
	if kind.Conditional && kind.Indirect && taken {
		pcDir ^= target >> 2
		pathBits ^= (target >> 2) ^ (target >> 4)
	}

	info.PushedBits = bits
	info.PathCheckpoint = p.path
	info.HeadCheckpoint = p.history.Head()

	for b := 0; b < bits; b++ {
		p.history.Push(pcDir & 1)
		pcDir >>= 1

		p.path = (p.path << 1) ^ (pathBits & 127)
		pathBits >>= 1

		for h := range p.foldIdx {
			p.foldIdx[h].Update(p.history)
			p.foldTag0[h].Update(p.history)
			p.foldTag1[h].Update(p.history)
		}
	}
	p.path &= uint64(1)<<p.cfg.PathHistoryWidth - 1
}

// Retire commits the bits info pushed and latches the path for the random stream.
func (p *Predictor) Retire(info *PredictionInfo) {
	if info.PushedBits > 0 {
		p.history.Retire(info.PushedBits)
	}
	p.pathOld = p.path
}

// Recover rewinds global history and path to the checkpoint in info.
func (p *Predictor) Recover(info *PredictionInfo) {
	flushed := info.HeadCheckpoint - p.history.Head()
	for b := int64(0); b < flushed; b++ {
		for h := range p.foldIdx {
			p.foldIdx[h].Reverse(p.history)
			p.foldTag0[h].Reverse(p.history)
			p.foldTag1[h].Reverse(p.history)
		}
		p.history.Rewind(1)
	}
	p.path = info.PathCheckpoint
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// COMMIT
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Commit trains the tables with the resolved direction.
//
// ORDER:
//   1. Decide whether to allocate (TAGE wrong, provider not the longest bank)
//   2. Weak provider: skip allocation if it was right, train the alt selector
//   3. Final prediction correct: allocate only 1 time in 32
//   4. Allocate up to 1+ExtraEntriesToAllocate entries in longer banks
//   5. Update provider / alternate / bimodal counters and useful bits
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func (p *Predictor) Commit(pc uint64, taken, final bool, info *PredictionInfo) {
	twiceN := 2 * p.cfg.NumHistories
	allocate := info.Taken != taken && info.HitBank < twiceN

	// ─── Weak provider handling ───
	if info.HitBank > 0 {
		provider := p.entry(info.HitBank, info.Indices[info.HitBank])
		if provider.Counter.Strength() <= 1 {
			if info.LongestMatch == taken {
				allocate = false
			}
			if info.LongestMatch != info.Alt {
				p.altSelector[p.altSelectorIndex(info)].Update(info.Alt == taken)
			}
		}
	}

	if final == taken && p.rng.Next()&31 != 0 {
		allocate = false
	}

	if allocate {
		p.allocate(taken, info)
	}

	// ─── Counter updates ───
	if info.HitBank > 0 {
		provider := p.entry(info.HitBank, info.Indices[info.HitBank])
		if provider.Counter.Strength() == 1 && info.LongestMatch != taken {
			if info.AltBank > 0 {
				p.entry(info.AltBank, info.Indices[info.AltBank]).Counter.Update(taken)
			} else {
				p.updateBimodal(pc, taken)
			}
		}

		provider.Counter.Update(taken)
		// A sign change means the entry cannot have been useful.
		if provider.Counter.Strength() == 1 {
			provider.Useful.Set(0)
		}
		if info.Alt == taken && info.AltBank > 0 {
			alt := p.entry(info.AltBank, info.Indices[info.AltBank])
			if alt.Counter.Strength() == 7 && provider.Useful.Get() == 1 && info.LongestMatch == taken {
				provider.Useful.Set(0)
			}
		}
	} else {
		p.updateBimodal(pc, taken)
	}

	if info.LongestMatch != info.Alt && info.LongestMatch == taken {
		p.entry(info.HitBank, info.Indices[info.HitBank]).Useful.Increment()
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// ALLOCATION
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Allocation walks pairs of banks above the provider, starting one or two history
// lengths up (chosen randomly, biased toward one) with a random choice of which bank
// of the pair is tried first.
//
// For each candidate:
//   useful ≠ 0          → cannot replace, tick penalty++
//   useful == 0, weak   → claim it (tag, counter = taken ? 0 : -1)
//   useful == 0, strong → decay its counter toward 0
//
// After every claim the next history length is skipped. The tick counter balances
// failed claims against successful ones; when it saturates every useful counter in
// both arenas is halved.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func (p *Predictor) allocate(taken bool, info *PredictionInfo) {
	twiceN := 2 * p.cfg.NumHistories
	extra := p.cfg.ExtraEntriesToAllocate
	penalty := 0
	allocated := 0

	step := 1
	if p.rng.Next()&127 < 32 {
		step = 2
	}
	bank := ((info.HitBank - 1 + 2*step) & 0xffe) ^ int(p.rng.Next()&1)

	for ; bank < twiceN; bank += 2 {
		placed := p.attemptAllocation(bank+1, taken, info, &penalty)
		if !placed {
			placed = p.attemptAllocation((bank^1)+1, taken, info, &penalty)
		}
		if !placed {
			continue
		}
		allocated++
		if extra <= 0 {
			break
		}
		bank += 2
		extra--
	}

	p.tick += penalty - 2*allocated
	if p.tick < 0 {
		p.tick = 0
	}
	if p.tick >= p.cfg.TicksUntilUsefulShift {
		shiftUseful(p.short)
		shiftUseful(p.long)
		p.stats.UsefulShifts++
		p.tick = 0
	}
}

// attemptAllocation tries to claim the entry bank selects for this branch.
func (p *Predictor) attemptAllocation(bank int, taken bool, info *PredictionInfo, penalty *int) bool {
	if !p.enabled[bank] {
		return false
	}
	e := p.entry(bank, info.Indices[bank])
	if e.Useful.Get() != 0 {
		*penalty++
		return false
	}
	if e.Counter.Strength() <= 3 {
		e.Tag = info.Tags[bank]
		if taken {
			e.Counter.Set(0)
		} else {
			e.Counter.Set(-1)
		}
		p.stats.Allocations++
		return true
	}
	if e.Counter.Get() > 0 {
		e.Counter.Decrement()
	} else {
		e.Counter.Increment()
	}
	p.stats.Decays++
	return false
}

func shiftUseful(entries []Entry) {
	for i := range entries {
		entries[i].Useful.Set(entries[i].Useful.Get() >> 1)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// STATE FINGERPRINT
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// HashState feeds every persistent table and the live speculative history into h.
func (p *Predictor) HashState(h *bputil.StateHasher) {
	h.Label("tage.tables")
	for _, arena := range [][]Entry{p.short, p.long} {
		for i := range arena {
			h.Counter(arena[i].Counter)
			h.Counter(arena[i].Useful)
			h.Uint(uint64(arena[i].Tag))
		}
	}
	for i := range p.bimodalPred {
		h.Uint(uint64(p.bimodalPred[i]))
	}
	for i := range p.bimodalHyst {
		h.Uint(uint64(p.bimodalHyst[i]))
	}
	h.Counters(p.altSelector)
	h.Int(int64(p.tick))

	h.Label("tage.history")
	h.History(p.history, p.cfg.MaxHistorySize+1)
	for i := range p.foldIdx {
		h.Folded(p.foldIdx[i])
		h.Folded(p.foldTag0[i])
		h.Folded(p.foldTag1[i])
	}
	h.Uint(p.path)
	h.Uint(p.pathOld)
	h.Int(p.headOld)
	h.Int(int64(p.rng.Seed()))
}
