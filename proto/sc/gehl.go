package sc

import (
	"tagescl/proto/bputil"
	"tagescl/proto/config"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// GEHL COMPONENT
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// A GEHL (GEometric History Length) component owns one counter table per history
// length. Each table is indexed by PC hashed with the history masked to that length;
// the component's vote is the sum of 2c+1 over all tables.
//
// The last two tables use half the entries, which is why the index mask depends on
// the table number.
//
// Hardware: N small SRAMs + adder tree
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

type gehl struct {
	lengths []int
	logSize int
	tables  [][]bputil.SatCounter
}

func newGEHL(cfg config.GEHL, precision int) *gehl {
	g := &gehl{
		lengths: cfg.Histories,
		logSize: cfg.LogTableSize,
		tables:  make([][]bputil.SatCounter, len(cfg.Histories)),
	}
	size := 1 << cfg.LogTableSize
	for i := range g.tables {
		g.tables[i] = make([]bputil.SatCounter, size)
		for j := range g.tables[i] {
			g.tables[i][j] = bputil.NewSigned(precision)
			if j < size-1 && j&1 == 0 {
				g.tables[i][j].Set(-1)
			}
		}
	}
	return g
}

func (g *gehl) index(pc uint64, history int64, id int) int {
	masked := history & (int64(1)<<g.lengths[id] - 1)
	idx := int64(pc) ^ masked
	idx ^= masked >> (8 - id)
	idx ^= masked >> (16 - 2*id)
	idx ^= masked >> (24 - 3*id)
	idx ^= masked >> (32 - 3*id)
	idx ^= masked >> (40 - 4*id)

	log := g.logSize
	if id >= len(g.lengths)-2 {
		log--
	}
	return int(idx & (int64(1)<<log - 1))
}

func (g *gehl) sum(pc uint64, history int64) int {
	s := 0
	for i := range g.tables {
		s += g.tables[i][g.index(pc, history, i)].Centered()
	}
	return s
}

func (g *gehl) update(pc uint64, history int64, taken bool) {
	for i := range g.tables {
		g.tables[i][g.index(pc, history, i)].Update(taken)
	}
}

func (g *gehl) hash(h *bputil.StateHasher) {
	for i := range g.tables {
		h.Counters(g.tables[i])
	}
}

// thresholdTable is a PC-indexed table of signed threshold counters.
type thresholdTable struct {
	entries []bputil.SatCounter
}

func newThresholdTable(logSize, width, initial int) *thresholdTable {
	t := &thresholdTable{entries: make([]bputil.SatCounter, 1<<logSize)}
	for i := range t.entries {
		t.entries[i] = bputil.NewSigned(width)
		t.entries[i].Set(initial)
	}
	return t
}

func (t *thresholdTable) entry(pc uint64) *bputil.SatCounter {
	return &t.entries[(pc^(pc>>2))&uint64(len(t.entries)-1)]
}

// enabled reports whether the component at pc currently counts double.
func (t *thresholdTable) enabled(pc uint64) bool { return t.entry(pc).Get() >= 0 }

// localTable holds per-address local history words.
type localTable struct {
	words []int64
	shift int
}

func newLocalTable(cfg config.LocalHistory) *localTable {
	return &localTable{words: make([]int64, 1<<cfg.LogTableSize), shift: cfg.Shift}
}

func (l *localTable) at(pc uint64) *int64 {
	return &l.words[(pc^(pc>>l.shift))&uint64(len(l.words)-1)]
}
