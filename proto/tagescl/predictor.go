// ═══════════════════════════════════════════════════════════════════════════════════════════════
// TAGE-SC-L Combined Predictor
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// OVERVIEW:
// ─────────
// Predictor orchestrates TAGE, the loop predictor and the statistical corrector
// across a window of in-flight branches. It is the only type a pipeline model talks to.
//
// BRANCH LIFECYCLE:
//
//   Allocate()            fetch      new id, empty record
//   Predict(id)           fetch      read-only lookup, conditional branches only
//   UpdateSpeculative(id) fetch      push predicted outcome into every history
//   Commit(id)            execute    train persistent tables (conditional only)
//   Retire(id)            retire     free committed history bits and the id
//   Flush(id)             anytime    undo id and everything younger, replay id
//
// PREDICTION CHAIN:
//
//   TAGE ──► tageOrLoop ──► SC ──► final
//             ▲
//   Loop ─────┘  (only when valid and the loop-beneficial counter is ≥ 0)
//
// FLUSH:
//   1. Youngest → id: restore loop iteration and SC local/IMLI histories
//   2. Drop every record younger than id
//   3. Restore global histories (TAGE register + folds + path, SC global + path)
//      to id's checkpoint
//   4. Replay id's speculative update with the resolved outcome
//   id stays in flight and is committed and retired normally afterwards.
//
// The predictor is single-threaded. The caller serialises all calls.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package tagescl

import (
	"log/slog"

	"tagescl/proto/bputil"
	"tagescl/proto/config"
	"tagescl/proto/loop"
	"tagescl/proto/sc"
	"tagescl/proto/tage"
)

// record is everything one in-flight branch carries between calls.
type record struct {
	pc         uint64
	tage       tage.PredictionInfo
	loop       loop.PredictionInfo
	tageOrLoop bool
	sc         sc.PredictionInfo
	final      bool
	updated    bool // UpdateSpeculative (or a flush replay) has run
}

// Stats is a snapshot of lifecycle and learning counters.
type Stats struct {
	Predictions        uint64
	ConditionalCommits uint64
	Mispredictions     uint64 // Final prediction ≠ resolved direction at commit
	LoopOverrides      uint64 // Loop prediction replaced a different TAGE prediction
	SCOverrides        uint64 // SC reverted the TAGE-or-loop prediction
	Flushes            uint64
	FlushedBranches    uint64 // Records discarded younger than a flush point
	Retired            uint64

	TAGEAllocations uint64
	TAGEDecays      uint64
	UsefulShifts    uint64
	LoopAllocations uint64
	LoopEvictions   uint64
	SCTrainings     uint64
}

// Options carries optional collaborators.
type Options struct {
	// Logger receives debug events (flushes, useful-bit halvings). Nil discards.
	Logger *slog.Logger
}

type Predictor struct {
	cfg config.Config
	log *slog.Logger

	tage *tage.Predictor
	loop *loop.Predictor
	sc   *sc.Predictor

	loopBeneficial bputil.SatCounter

	records *bputil.Ring[record]
	stats   Stats
}

// New builds a predictor with default options.
func New(cfg config.Config) (*Predictor, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions validates cfg and builds every component.
func NewWithOptions(cfg config.Config, opts Options) (*Predictor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	records := bputil.NewRing[record](cfg.MaxInFlight)
	t := tage.New(cfg.TAGE, records.Cap())
	p := &Predictor{
		cfg:            cfg,
		log:            logger.With("component", "tagescl", "config", cfg.Name),
		tage:           t,
		loop:           loop.New(cfg.Loop, t.Random()),
		sc:             sc.New(cfg.SC, cfg.ConfidenceCounterWidth),
		loopBeneficial: bputil.NewSigned(cfg.ConfidenceCounterWidth),
		records:        records,
	}
	p.loopBeneficial.Set(-1)
	return p, nil
}

func (p *Predictor) Config() config.Config { return p.cfg }

// InFlight returns the number of allocated, not yet retired branches.
func (p *Predictor) InFlight() int { return p.records.Len() }

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Allocate reserves a record for a newly fetched branch and returns its id.
func (p *Predictor) Allocate() int64 {
	id := p.records.Allocate()
	loop.Empty(&p.records.At(id).loop)
	return id
}

// Predict returns the final direction prediction for a conditional branch.
// No predictor table or history changes.
func (p *Predictor) Predict(id int64, pc uint64) bool {
	rec := p.records.At(id)
	rec.pc = pc
	p.stats.Predictions++

	p.tage.Predict(pc, &rec.tage)
	rec.tageOrLoop = rec.tage.Taken

	if p.cfg.UseLoopPredictor {
		p.loop.Predict(pc, &rec.loop)
		if p.loopBeneficial.Get() >= 0 && rec.loop.Valid {
			if rec.loop.Taken != rec.tageOrLoop {
				p.stats.LoopOverrides++
			}
			rec.tageOrLoop = rec.loop.Taken
		}
	}

	rec.final = rec.tageOrLoop
	if p.cfg.UseSC {
		p.sc.Predict(pc, &rec.tage, rec.tageOrLoop, &rec.sc)
		rec.final = rec.sc.Taken
		if rec.final != rec.tageOrLoop {
			p.stats.SCOverrides++
		}
	}
	return rec.final
}

// UpdateSpeculative pushes the branch into every speculative history. For
// conditional branches taken is the predicted direction.
func (p *Predictor) UpdateSpeculative(id int64, pc uint64, kind bputil.BranchKind, taken bool, target uint64) {
	rec := p.records.At(id)
	rec.pc = pc
	p.speculate(rec, kind, taken, target)
}

func (p *Predictor) speculate(rec *record, kind bputil.BranchKind, taken bool, target uint64) {
	p.tage.UpdateSpeculative(rec.pc, target, kind, taken, &rec.tage)
	if p.cfg.UseLoopPredictor {
		p.loop.UpdateSpeculative(&rec.loop)
	}
	if p.cfg.UseSC {
		p.sc.UpdateSpeculative(rec.pc, target, kind, taken, &rec.sc)
	}
	rec.updated = true
}

// Commit trains the persistent tables with the resolved direction. It does
// nothing for unconditional branches.
func (p *Predictor) Commit(id int64, pc uint64, kind bputil.BranchKind, resolved bool) {
	if !kind.Conditional {
		return
	}
	rec := p.records.At(id)
	p.stats.ConditionalCommits++
	mispredicted := rec.final != resolved
	if mispredicted {
		p.stats.Mispredictions++
	}

	if p.cfg.UseSC {
		p.sc.Commit(pc, resolved, &rec.tage, &rec.sc, rec.tageOrLoop)
	}

	if p.cfg.UseLoopPredictor {
		if rec.loop.Valid && rec.final != rec.loop.Taken {
			p.loopBeneficial.Update(resolved == rec.loop.Taken)
		}
		p.loop.Commit(pc, resolved, &rec.loop, mispredicted, rec.tage.Taken)
	}

	shifts := p.tage.Stats().UsefulShifts
	p.tage.Commit(pc, resolved, rec.final, &rec.tage)
	if p.tage.Stats().UsefulShifts != shifts {
		p.log.Debug("tage useful bits halved", "id", id, "pc", pc, "shifts", shifts+1)
	}
}

// Retire frees the oldest in-flight branch, which must be id. kind, resolved and
// target carry no state at retirement and are accepted so every lifecycle call
// takes the same branch description; pc must match the address id was updated with.
func (p *Predictor) Retire(id int64, pc uint64, kind bputil.BranchKind, resolved bool, target uint64) {
	rec := p.records.At(id)
	if rec.updated && rec.pc != pc {
		bputil.Violation(bputil.ErrInvariant, "tagescl", id, "retire at pc %#x, updated at %#x", pc, rec.pc)
	}
	p.records.PopFront(id)
	p.tage.Retire(&rec.tage)
	p.stats.Retired++
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// FLUSH AND REPAIR
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Flush undoes the speculative contribution of id and every younger branch, then
// replays id with the resolved direction. Records that were allocated but never
// speculatively updated contributed nothing and are skipped during recovery.
//
// Flushing a branch that was itself never speculatively updated has no checkpoint to
// restore and is a contract violation.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func (p *Predictor) Flush(id int64, pc uint64, kind bputil.BranchKind, resolved bool, target uint64) {
	rec := p.records.At(id)
	if !rec.updated {
		bputil.Violation(bputil.ErrInvariant, "tagescl", id, "flush of a branch with no speculative update")
	}

	// ─── Local recovery, youngest first ───
	back := p.records.Back()
	for i := back; i >= id; i-- {
		r := p.records.At(i)
		if !r.updated {
			continue
		}
		if p.cfg.UseLoopPredictor {
			p.loop.Recover(&r.loop)
		}
		if p.cfg.UseSC {
			p.sc.RecoverLocal(r.pc, &r.sc)
		}
	}
	p.records.TruncateAfter(id)

	// ─── Global recovery to id's checkpoint ───
	p.tage.Recover(&rec.tage)
	if p.cfg.UseSC {
		p.sc.RecoverGlobal(&rec.sc)
	}

	// ─── Replay with the resolved outcome ───
	rec.pc = pc
	p.speculate(rec, kind, resolved, target)

	p.stats.Flushes++
	p.stats.FlushedBranches += uint64(back - id)
	p.log.Debug("flush", "id", id, "pc", pc, "resolved", resolved, "discarded", back-id)
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// OBSERVABILITY
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Stats returns a snapshot of every counter, including component learning events.
func (p *Predictor) Stats() Stats {
	s := p.stats
	ts := p.tage.Stats()
	s.TAGEAllocations = ts.Allocations
	s.TAGEDecays = ts.Decays
	s.UsefulShifts = ts.UsefulShifts
	ls := p.loop.Stats()
	s.LoopAllocations = ls.Allocations
	s.LoopEvictions = ls.Evictions
	s.SCTrainings = p.sc.Stats().Trainings
	return s
}

// Fingerprint hashes every persistent table and speculative history. Two predictors
// fed the same call sequence report the same fingerprint.
func (p *Predictor) Fingerprint() uint64 {
	h := bputil.NewStateHasher()
	p.tage.HashState(h)
	if p.cfg.UseLoopPredictor {
		p.loop.HashState(h)
	}
	if p.cfg.UseSC {
		p.sc.HashState(h)
	}
	h.Label("tagescl")
	h.Counter(p.loopBeneficial)
	return h.Sum64()
}
