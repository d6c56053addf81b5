package bputil

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// LONG HISTORY REGISTER
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// HistoryRegister stores the global direction history as a circular bit array whose
// head moves BACKWARD on every push. Reading index i returns the i-th most recent bit:
//
//   push(b):   head--, bits[head] = b, speculative++
//   rewind(n): head += n              (undo the n newest pushes)
//   retire(n): speculative -= n       (the n oldest speculative bits became architectural)
//
// The array is sized for the longest history any folded view reads plus every bit the
// in-flight window may push before retiring, so a rewind never reads overwritten bits.
//
// Hardware: circular shift-register file with a single write port and
//           one read port per folded-history tap
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

type HistoryRegister struct {
	bits           []uint8
	mask           int64
	head           int64
	speculative    int
	maxSpeculative int
}

// NewHistoryRegister reserves room for maxHistory committed bits plus maxSpeculative
// outstanding speculative bits.
func NewHistoryRegister(maxHistory, maxSpeculative int) *HistoryRegister {
	if maxHistory < 0 || maxSpeculative <= 0 {
		Violation(ErrInvariant, "history", -1, "bad sizing history=%d speculative=%d", maxHistory, maxSpeculative)
	}
	size := NextPow2(maxHistory + maxSpeculative + 1)
	return &HistoryRegister{
		bits:           make([]uint8, size),
		mask:           int64(size - 1),
		maxSpeculative: maxSpeculative,
	}
}

// Push appends the newest bit (only bit 0 of b is kept).
func (h *HistoryRegister) Push(b uint64) {
	if h.speculative >= h.maxSpeculative {
		Violation(ErrCapacityExceeded, "history", -1, "%d speculative bits outstanding", h.speculative)
	}
	h.head--
	h.bits[h.head&h.mask] = uint8(b & 1)
	h.speculative++
}

// Bit returns the i-th most recent bit (i = 0 is the newest).
func (h *HistoryRegister) Bit(i int) uint32 {
	return uint32(h.bits[(h.head+int64(i))&h.mask])
}

// Rewind discards the n newest bits.
func (h *HistoryRegister) Rewind(n int) {
	if n > h.speculative {
		Violation(ErrInvariant, "history", -1, "rewind %d past %d speculative bits", n, h.speculative)
	}
	h.head += int64(n)
	h.speculative -= n
}

// Retire marks the n oldest speculative bits as committed.
func (h *HistoryRegister) Retire(n int) {
	if n > h.speculative {
		Violation(ErrInvariant, "history", -1, "retire %d of %d speculative bits", n, h.speculative)
	}
	h.speculative -= n
}

func (h *HistoryRegister) Head() int64      { return h.head }
func (h *HistoryRegister) Speculative() int { return h.speculative }

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// FOLDED HISTORY
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// FoldedHistory compresses the newest Length bits of a HistoryRegister into Width bits
// by XOR-folding, and keeps that value current in O(1) per pushed bit:
//
//   Update  (after a push):   v = (v<<1) ^ r[0]
//                             v ^= r[L] << (L % W)     bit leaving the window
//                             v ^= v >> W              wrap the carry-out
//
//   Reverse (before rewind):  v ^= r[0]
//                             v ^= r[L] << (L % W)
//                             v = rotate right by 1
//
// Reverse is the exact inverse of Update, so a flush can walk the folds back one bit
// at a time instead of recomputing them from the full history.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

type FoldedHistory struct {
	value    uint32
	length   int
	width    int
	outpoint int
	mask     uint32
}

func NewFoldedHistory(length, width int) FoldedHistory {
	if width < 1 || width > 31 || length < 0 {
		Violation(ErrInvariant, "folded-history", -1, "bad geometry length=%d width=%d", length, width)
	}
	return FoldedHistory{
		length:   length,
		width:    width,
		outpoint: length % width,
		mask:     (1 << width) - 1,
	}
}

func (f *FoldedHistory) Value() uint32 { return f.value }
func (f *FoldedHistory) Width() int    { return f.width }
func (f *FoldedHistory) Length() int   { return f.length }

// Update folds in the bit just pushed onto r.
func (f *FoldedHistory) Update(r *HistoryRegister) {
	v := (f.value << 1) ^ r.Bit(0)
	v ^= r.Bit(f.length) << f.outpoint
	v ^= v >> f.width
	f.value = v & f.mask
}

// Reverse undoes the Update for the newest bit of r. Call before r.Rewind(1).
func (f *FoldedHistory) Reverse(r *HistoryRegister) {
	v := f.value ^ r.Bit(0)
	v ^= r.Bit(f.length) << f.outpoint
	v = ((v & 1) << (f.width - 1)) | (v >> 1)
	f.value = v & f.mask
}
