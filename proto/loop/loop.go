// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Loop Predictor
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// OVERVIEW:
// ─────────
// Detects branches that behave like loop back-edges with a constant trip count and
// predicts the exit iteration, which global-history predictors miss once the trip
// count exceeds their history length.
//
// ORGANIZATION:
//   2^LogNumEntries entries in 4-way sets. Way i of a set lives at index base+i, so
//   the four candidate indices differ only in their low 2 bits plus a per-way skew.
//
// ENTRY LIFECYCLE:
//   1. Allocated on a misprediction with no hit, direction = opposite of the outcome
//      (most mispredictions happen on the exit iteration)
//   2. First complete trip records the trip count
//   3. Every identical trip raises confidence; any different trip frees the entry
//   4. Valid once confidence is saturated or confidence × trip count > 128
//
// SPECULATION:
//   Each entry keeps a committed iteration count and a speculative one. The
//   speculative count advances at fetch and is checkpointed per branch.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package loop

import (
	"tagescl/proto/bputil"
	"tagescl/proto/config"
)

const ways = 4

// Entry is one loop-table entry.
type Entry struct {
	TotalIterations int
	Tag             int
	Confidence      int
	Age             int
	Dir             bool // Direction of the non-exit iterations
	SpecIter        bputil.SatCounter
	Iter            bputil.SatCounter
}

// PredictionInfo is the per-branch loop record.
type PredictionInfo struct {
	HitBank int // -1 = no hit
	Valid   bool
	Taken   bool

	Indices        [ways]int
	Tag            int
	IterCheckpoint int
}

// Stats counts entry lifecycle events.
type Stats struct {
	Allocations uint64
	Evictions   uint64 // Valid entries freed after a wrong prediction
}

type Predictor struct {
	cfg   config.Loop
	table []Entry
	rng   *bputil.Random
	stats Stats
}

// New builds an empty loop table. rng is shared with the rest of the predictor.
func New(cfg config.Loop, rng *bputil.Random) *Predictor {
	p := &Predictor{
		cfg:   cfg,
		table: make([]Entry, 1<<cfg.LogNumEntries),
		rng:   rng,
	}
	for i := range p.table {
		p.table[i].SpecIter = bputil.NewUnsigned(cfg.IterationCounterWidth)
		p.table[i].Iter = bputil.NewUnsigned(cfg.IterationCounterWidth)
	}
	return p
}

func (p *Predictor) Stats() Stats { return p.stats }

// Empty marks a record as having no loop hit.
func Empty(info *PredictionInfo) {
	info.HitBank = -1
}

func (p *Predictor) indices(pc uint64) [ways]int {
	setBits := p.cfg.LogNumEntries - 2
	setMask := uint64(1)<<setBits - 1
	base := int((pc^(pc>>2))&setMask) << 2
	skew := int((pc >> setBits) & setMask)

	var idx [ways]int
	for i := 0; i < ways; i++ {
		idx[i] = (base ^ ((skew >> i) << 2)) + i
	}
	return idx
}

func (p *Predictor) tag(pc uint64) int {
	bits := p.cfg.TagBits
	t := int((pc >> (p.cfg.LogNumEntries - 2)) & (uint64(1)<<(2*bits) - 1))
	t ^= t >> bits
	return t & (1<<bits - 1)
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// PREDICTION
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Predict scans the four ways in order; the first tag match is the hit. The hit
// predicts the opposite of Dir when the next speculative iteration is the last one.
// Predict does not modify the table.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func (p *Predictor) Predict(pc uint64, info *PredictionInfo) {
	info.Valid = false
	info.Taken = false
	info.HitBank = -1
	info.Indices = p.indices(pc)
	info.Tag = p.tag(pc)

	for i := 0; i < ways; i++ {
		e := &p.table[info.Indices[i]]
		if e.Tag != info.Tag {
			continue
		}
		info.HitBank = i
		info.Valid = e.Confidence == p.cfg.ConfidenceThreshold || e.Confidence*e.TotalIterations > 128
		info.IterCheckpoint = e.SpecIter.Get()
		if e.SpecIter.Get()+1 == e.TotalIterations {
			info.Taken = !e.Dir
		} else {
			info.Taken = e.Dir
		}
		return
	}
}

// hit returns the entry info hit, or nil if it missed or the entry was replaced since.
func (p *Predictor) hit(info *PredictionInfo) *Entry {
	if info.HitBank < 0 {
		return nil
	}
	e := &p.table[info.Indices[info.HitBank]]
	if e.Tag != info.Tag {
		return nil
	}
	return e
}

// UpdateSpeculative advances the hit entry's speculative iteration, wrapping at
// the trip count.
func (p *Predictor) UpdateSpeculative(info *PredictionInfo) {
	if info.HitBank < 0 {
		return
	}
	e := &p.table[info.Indices[info.HitBank]]
	if e.TotalIterations == 0 {
		return
	}
	e.SpecIter.Increment()
	if e.SpecIter.Get() >= e.TotalIterations {
		e.SpecIter.Set(0)
	}
}

// Recover restores the hit entry's speculative iteration from the checkpoint.
func (p *Predictor) Recover(info *PredictionInfo) {
	if e := p.hit(info); e != nil {
		e.SpecIter.Set(info.IterCheckpoint)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// COMMIT
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Commit trains the table with the resolved direction.
//
//   mispredicted: the combined predictor's final prediction was wrong
//   tageTaken:    TAGE's own prediction (ages entries that disagree with TAGE)
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func (p *Predictor) Commit(pc uint64, taken bool, info *PredictionInfo, mispredicted, tageTaken bool) {
	if info.HitBank < 0 {
		if mispredicted {
			p.tryAllocate(pc, taken, info)
		}
		return
	}

	e := p.hit(info)
	if e == nil {
		return
	}

	if info.Valid {
		if taken != info.Taken {
			p.free(e)
			p.stats.Evictions++
			return
		}
		if info.Taken != tageTaken || p.rng.Next()&7 == 0 {
			if e.Age < p.cfg.ConfidenceThreshold {
				e.Age++
			}
		}
	}

	e.Iter.Increment()
	if e.Iter.Get() > e.TotalIterations {
		// Longer than the recorded trip: start over as a first encounter.
		e.TotalIterations = 0
		e.Confidence = 0
	}

	if taken != e.Dir {
		switch {
		case e.Iter.Get() == e.TotalIterations:
			if e.Confidence < p.cfg.ConfidenceThreshold {
				e.Confidence++
			}
			if e.TotalIterations < 3 {
				// Trip counts of 1 or 2 are not worth predicting.
				e.Dir = taken
				e.TotalIterations = 0
				e.Age = 0
				e.SpecIter.Set(0)
			}
		case e.TotalIterations == 0:
			e.Confidence = 0
			e.TotalIterations = e.Iter.Get()
			e.SpecIter.Set(0)
		default:
			e.TotalIterations = 0
			e.Confidence = 0
		}
		e.Iter.Set(0)
	}

	if mispredicted {
		e.SpecIter.Set(e.Iter.Get())
	}
}

func (p *Predictor) free(e *Entry) {
	e.TotalIterations = 0
	e.Confidence = 0
	e.Age = 0
	e.Iter.Set(0)
	e.SpecIter.Set(0)
}

// tryAllocate claims one random way with probability 1/4. An aged entry is only
// weakened.
func (p *Predictor) tryAllocate(pc uint64, taken bool, info *PredictionInfo) {
	way := int(p.rng.Next() & 3)
	if p.rng.Next()&3 != 0 {
		return
	}
	e := &p.table[info.Indices[way]]
	if e.Age > 0 {
		e.Age--
		return
	}
	p.claim(e, p.tag(pc), !taken)
}

func (p *Predictor) claim(e *Entry, tag int, dir bool) {
	e.Dir = dir
	e.Tag = tag
	e.TotalIterations = 0
	e.Age = 7
	e.Confidence = 0
	e.Iter.Set(0)
	e.SpecIter.Set(0)
	p.stats.Allocations++
}

// HashState feeds the loop table into h.
func (p *Predictor) HashState(h *bputil.StateHasher) {
	h.Label("loop")
	for i := range p.table {
		e := &p.table[i]
		h.Int(int64(e.TotalIterations))
		h.Int(int64(e.Tag))
		h.Int(int64(e.Confidence))
		h.Int(int64(e.Age))
		h.Bool(e.Dir)
		h.Counter(e.SpecIter)
		h.Counter(e.Iter)
	}
}
