package bputil

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// SATURATING COUNTER
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// SatCounter is a fixed-width counter that clamps instead of wrapping.
//
// RANGES:
//   Signed,   width w: [-2^(w-1), 2^(w-1)-1]   (3-bit: -4..3)
//   Unsigned, width w: [0, 2^w-1]              (1-bit: 0..1)
//
// Signed prediction counters are read as "taken if value ≥ 0". Their strength is
// |2v+1|, which is symmetric around the taken/not-taken boundary:
//
//   value:   -4 -3 -2 -1  0  1  2  3
//   |2v+1|:   7  5  3  1  1  3  5  7
//
// Hardware: w flip-flops + incrementer + saturation comparators
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

type SatCounter struct {
	value int32
	min   int32
	max   int32
}

// NewSigned returns a signed counter of the given width initialised to 0.
func NewSigned(width int) SatCounter {
	if width < 1 || width > 30 {
		Violation(ErrInvariant, "counter", -1, "signed width %d out of range", width)
	}
	return SatCounter{min: -(1 << (width - 1)), max: (1 << (width - 1)) - 1}
}

// NewUnsigned returns an unsigned counter of the given width initialised to 0.
func NewUnsigned(width int) SatCounter {
	if width < 1 || width > 30 {
		Violation(ErrInvariant, "counter", -1, "unsigned width %d out of range", width)
	}
	return SatCounter{min: 0, max: (1 << width) - 1}
}

func (c SatCounter) Get() int { return int(c.value) }
func (c SatCounter) Min() int { return int(c.min) }
func (c SatCounter) Max() int { return int(c.max) }

// Set stores v. A value outside [Min, Max] is a contract violation.
func (c *SatCounter) Set(v int) {
	if v < int(c.min) || v > int(c.max) {
		Violation(ErrInvariant, "counter", -1, "set %d outside [%d, %d]", v, c.min, c.max)
	}
	c.value = int32(v)
}

func (c *SatCounter) Increment() {
	if c.value < c.max {
		c.value++
	}
}

func (c *SatCounter) Decrement() {
	if c.value > c.min {
		c.value--
	}
}

// Update increments when up is true, decrements otherwise.
func (c *SatCounter) Update(up bool) {
	if up {
		c.Increment()
	} else {
		c.Decrement()
	}
}

// Strength returns |2v+1|.
func (c SatCounter) Strength() int {
	s := 2*int(c.value) + 1
	if s < 0 {
		return -s
	}
	return s
}

// Centered returns 2v+1, the signed contribution used by adder trees.
func (c SatCounter) Centered() int { return 2*int(c.value) + 1 }
