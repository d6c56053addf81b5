package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"tagescl/proto/bputil"
)

// Branch is one dynamic control-flow instruction of a trace.
type Branch struct {
	PC     uint64
	Target uint64
	Kind   bputil.BranchKind
	Taken  bool
}

// ErrMalformed is wrapped by every trace parse failure.
var ErrMalformed = errors.New("malformed trace line")

var kindNames = map[string]bputil.BranchKind{
	"cond":    bputil.KindConditional,
	"uncond":  bputil.KindUnconditional,
	"ind":     bputil.KindIndirect,
	"indcond": bputil.KindConditionalIndir,
}

// KindName is the trace spelling of k.
func KindName(k bputil.BranchKind) string {
	switch {
	case k.Conditional && k.Indirect:
		return "indcond"
	case k.Conditional:
		return "cond"
	case k.Indirect:
		return "ind"
	default:
		return "uncond"
	}
}

// ReadTrace parses one branch per line:
//
//	<pc> <target> <cond|uncond|ind|indcond> <0|1>
//
// Addresses are hex with an optional 0x prefix. Blank lines and text after '#'
// are ignored. Errors carry the 1-based line number.
func ReadTrace(r io.Reader) ([]Branch, error) {
	var out []Branch
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		b, err := parseBranch(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, b)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return out, nil
}

func parseBranch(fields []string) (Branch, error) {
	if len(fields) != 4 {
		return Branch{}, fmt.Errorf("%w: %d fields, want 4", ErrMalformed, len(fields))
	}
	pc, err := parseAddr(fields[0])
	if err != nil {
		return Branch{}, fmt.Errorf("%w: pc %q", ErrMalformed, fields[0])
	}
	target, err := parseAddr(fields[1])
	if err != nil {
		return Branch{}, fmt.Errorf("%w: target %q", ErrMalformed, fields[1])
	}
	kind, ok := kindNames[strings.ToLower(fields[2])]
	if !ok {
		return Branch{}, fmt.Errorf("%w: kind %q", ErrMalformed, fields[2])
	}
	var taken bool
	switch fields[3] {
	case "1":
		taken = true
	case "0":
	default:
		return Branch{}, fmt.Errorf("%w: taken %q", ErrMalformed, fields[3])
	}
	if !kind.Conditional && !taken {
		return Branch{}, fmt.Errorf("%w: unconditional branch marked not taken", ErrMalformed)
	}
	return Branch{PC: pc, Target: target, Kind: kind, Taken: taken}, nil
}

func parseAddr(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}

// WriteTrace writes branches in the format ReadTrace accepts.
func WriteTrace(w io.Writer, branches []Branch) error {
	bw := bufio.NewWriter(w)
	for _, b := range branches {
		taken := 0
		if b.Taken {
			taken = 1
		}
		if _, err := fmt.Fprintf(bw, "%#x %#x %s %d\n", b.PC, b.Target, KindName(b.Kind), taken); err != nil {
			return err
		}
	}
	return bw.Flush()
}
