package bputil

// Random is the predictor's pseudo-random stream. It is not a general PRNG: each value
// mixes an internal seed with two live history words (the retired path history and
// the history-register head before the latest push), so identical call sequences give
// identical streams and nothing outside the predictor influences allocation choices.
type Random struct {
	seed  int32
	words func() (path int64, head int64)
}

// NewRandom binds a stream to the function that reads the two history words.
func NewRandom(words func() (path int64, head int64)) *Random {
	return &Random{words: words}
}

// Next advances the seed and returns it. Callers mask the low bits.
func (r *Random) Next() int32 {
	path, head := r.words()
	r.seed++
	r.seed ^= int32(path)
	r.seed = (r.seed >> 21) + (r.seed << 11)
	r.seed ^= int32(head)
	r.seed = (r.seed >> 10) + (r.seed << 22)
	return r.seed
}

func (r *Random) Seed() int32 { return r.seed }

// BranchKind classifies a control-flow instruction.
type BranchKind struct {
	Conditional bool
	Indirect    bool
}

var (
	KindConditional      = BranchKind{Conditional: true}
	KindUnconditional    = BranchKind{}
	KindIndirect         = BranchKind{Indirect: true}
	KindConditionalIndir = BranchKind{Conditional: true, Indirect: true}
)

// PathBits returns how many history bits a branch of this kind pushes.
func (k BranchKind) PathBits() int {
	if k.Indirect && !k.Conditional {
		return 3
	}
	return 2
}
