package bputil

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// StateHasher accumulates predictor state into a 64-bit xxhash fingerprint.
// Two predictors with equal fingerprints hold (with overwhelming probability)
// identical tables and histories.
type StateHasher struct {
	d   *xxhash.Digest
	buf []byte
}

func NewStateHasher() *StateHasher {
	return &StateHasher{d: xxhash.New(), buf: make([]byte, 0, 4096)}
}

func (h *StateHasher) flush() {
	_, _ = h.d.Write(h.buf)
	h.buf = h.buf[:0]
}

func (h *StateHasher) Int(v int64) {
	if len(h.buf)+8 > cap(h.buf) {
		h.flush()
	}
	h.buf = binary.LittleEndian.AppendUint64(h.buf, uint64(v))
}

func (h *StateHasher) Uint(v uint64) { h.Int(int64(v)) }

func (h *StateHasher) Bool(b bool) {
	if b {
		h.Int(1)
	} else {
		h.Int(0)
	}
}

func (h *StateHasher) Counter(c SatCounter) { h.Int(int64(c.value)) }

func (h *StateHasher) Counters(cs []SatCounter) {
	for _, c := range cs {
		h.Int(int64(c.value))
	}
}

// Label separates sections so differently-shaped states cannot collide by concatenation.
func (h *StateHasher) Label(s string) {
	h.flush()
	_, _ = h.d.WriteString(s)
}

// History hashes the live window of the register: head, speculative count and the
// newest n bits.
func (h *StateHasher) History(r *HistoryRegister, n int) {
	h.Int(r.head)
	h.Int(int64(r.speculative))
	for i := 0; i < n; i++ {
		h.Int(int64(r.Bit(i)))
	}
}

func (h *StateHasher) Folded(f FoldedHistory) { h.Int(int64(f.value)) }

func (h *StateHasher) Sum64() uint64 {
	h.flush()
	return h.d.Sum64()
}
