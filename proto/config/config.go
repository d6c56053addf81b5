// ═══════════════════════════════════════════════════════════════════════════════════════════════
// TAGE-SC-L Configuration
// ═══════════════════════════════════════════════════════════════════════════════════════════════
//
// Config is a plain value describing every sizing knob of the combined predictor.
// Both storage budgets run through the same implementation; only the numbers differ:
//
//   Preset64KB: 10 short-history banks, 20 long-history banks, 6-bit SC counters
//   Preset80KB: 18 short-history banks, 21 long-history banks, 8-bit SC counters
//
// A Config is checked once by Validate before any table is built. Everything
// downstream assumes a validated value and never re-checks ranges.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════

package config

import (
	"errors"
	"fmt"
	"strings"
)

// MaxHistories bounds NumHistories so per-branch records can use fixed arrays.
const MaxHistories = 24

// MaxBanks is the largest bank number (2*MaxHistories) plus the unused bank 0.
const MaxBanks = 2*MaxHistories + 1

// Config is the complete predictor configuration.
type Config struct {
	Name string

	UseLoopPredictor bool
	UseSC            bool

	// Width of the loop-beneficial and SC high-confidence meta counters.
	ConfidenceCounterWidth int

	// Maximum number of branches in flight between Allocate and Retire.
	MaxInFlight int

	TAGE TAGE
	Loop Loop
	SC   SC
}

// TAGE sizes the tagged geometric-history predictor.
type TAGE struct {
	MinHistorySize         int
	MaxHistorySize         int
	NumHistories           int
	PathHistoryWidth       int
	FirstLongHistoryTable  int
	First2WayTable         int
	Last2WayTable          int
	ShortHistoryTagBits    int
	LongHistoryTagBits     int
	PredCounterWidth       int
	UsefulBits             int
	LogEntriesPerBank      int
	ShortHistoryNumBanks   int
	LongHistoryNumBanks    int
	ExtraEntriesToAllocate int
	TicksUntilUsefulShift  int
	AltSelectorLogSize     int
	AltSelectorEntryWidth  int
	BimodalHysteresisShift int
	BimodalLogSize         int
}

// Loop sizes the loop predictor.
type Loop struct {
	LogNumEntries         int
	IterationCounterWidth int
	TagBits               int
	ConfidenceThreshold   int
}

// GEHL describes one geometric-history-length component of the corrector.
type GEHL struct {
	LogTableSize int
	Histories    []int
}

// LocalHistory describes one per-address local history table and its GEHL.
type LocalHistory struct {
	LogTableSize int
	Shift        int
	GEHL         GEHL
}

// SC sizes the statistical corrector.
type SC struct {
	Precision int

	UpdateThresholdWidth      int
	PerPCUpdateThresholdWidth int
	InitialUpdateThreshold    int

	UseVariableThreshold             bool
	LogPerPCThresholdTableSize       int
	LogVariableThresholdTableSize    int
	VariableThresholdWidth           int
	InitialVariableThreshold         int
	InitialVariableThresholdForBias  int
	InitialVariableThresholdForIMLI2 int

	LogBiasEntries int

	GlobalHistory GEHL
	Path          GEHL

	UseLocalHistory       bool
	UseSecondLocalHistory bool
	UseThirdLocalHistory  bool
	FirstLocal            LocalHistory
	SecondLocal           LocalHistory
	ThirdLocal            LocalHistory

	UseIMLI          bool
	IMLICounterWidth int
	FirstIMLI        GEHL
	SecondIMLI       GEHL

	PathHistoryWidth int
}

// IMLITableSize is the number of IMLI history words (one per counter value).
func (s SC) IMLITableSize() int { return 1 << s.IMLICounterWidth }

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// PRESETS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Preset names one of the two supported storage budgets.
type Preset int

const (
	Preset64KB Preset = iota
	Preset80KB
)

func (p Preset) String() string {
	switch p {
	case Preset64KB:
		return "64KB"
	case Preset80KB:
		return "80KB"
	default:
		return fmt.Sprintf("Preset(%d)", int(p))
	}
}

// ParsePreset accepts "64KB"/"64kb"/"64" and "80KB"/"80kb"/"80".
func ParsePreset(s string) (Preset, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "64KB", "64":
		return Preset64KB, nil
	case "80KB", "80":
		return Preset80KB, nil
	}
	return 0, fmt.Errorf("unknown preset %q (want 64KB or 80KB)", s)
}

// DefaultMaxInFlight is the in-flight window used by the presets.
const DefaultMaxInFlight = 512

// ForPreset returns the configuration for a storage budget.
func ForPreset(p Preset) (Config, error) {
	cfg := base()
	switch p {
	case Preset64KB:
		cfg.Name = "tage-sc-l-64KB"
		cfg.TAGE.ShortHistoryNumBanks = 10
		cfg.TAGE.LongHistoryNumBanks = 20
		cfg.SC.Precision = 6
	case Preset80KB:
		cfg.Name = "tage-sc-l-80KB"
		cfg.TAGE.ShortHistoryNumBanks = 18
		cfg.TAGE.LongHistoryNumBanks = 21
		cfg.SC.Precision = 8
	default:
		return Config{}, fmt.Errorf("config: %v", p)
	}
	return cfg, nil
}

// MustPreset is ForPreset for callers that pass a constant.
func MustPreset(p Preset) Config {
	cfg, err := ForPreset(p)
	if err != nil {
		panic(err)
	}
	return cfg
}

func base() Config {
	return Config{
		UseLoopPredictor:       true,
		UseSC:                  true,
		ConfidenceCounterWidth: 7,
		MaxInFlight:            DefaultMaxInFlight,
		TAGE: TAGE{
			MinHistorySize:         6,
			MaxHistorySize:         3000,
			NumHistories:           18,
			PathHistoryWidth:       27,
			FirstLongHistoryTable:  13,
			First2WayTable:         9,
			Last2WayTable:          22,
			ShortHistoryTagBits:    8,
			LongHistoryTagBits:     12,
			PredCounterWidth:       3,
			UsefulBits:             1,
			LogEntriesPerBank:      10,
			ExtraEntriesToAllocate: 1,
			TicksUntilUsefulShift:  1024,
			AltSelectorLogSize:     4,
			AltSelectorEntryWidth:  5,
			BimodalHysteresisShift: 2,
			BimodalLogSize:         13,
		},
		Loop: Loop{
			LogNumEntries:         5,
			IterationCounterWidth: 10,
			TagBits:               10,
			ConfidenceThreshold:   15,
		},
		SC: SC{
			UpdateThresholdWidth:             12,
			PerPCUpdateThresholdWidth:        8,
			InitialUpdateThreshold:           35 << 3,
			UseVariableThreshold:             true,
			LogPerPCThresholdTableSize:       6,
			LogVariableThresholdTableSize:    3,
			VariableThresholdWidth:           6,
			InitialVariableThreshold:         7,
			InitialVariableThresholdForBias:  4,
			InitialVariableThresholdForIMLI2: 0,
			LogBiasEntries:                   8,
			GlobalHistory:                    GEHL{LogTableSize: 10, Histories: []int{40, 24, 10}},
			Path:                             GEHL{LogTableSize: 9, Histories: []int{25, 16, 9}},
			UseLocalHistory:                  true,
			UseSecondLocalHistory:            true,
			UseThirdLocalHistory:             true,
			FirstLocal:                       LocalHistory{LogTableSize: 8, Shift: 2, GEHL: GEHL{LogTableSize: 10, Histories: []int{11, 6, 3}}},
			SecondLocal:                      LocalHistory{LogTableSize: 4, Shift: 5, GEHL: GEHL{LogTableSize: 9, Histories: []int{16, 11, 6}}},
			ThirdLocal:                       LocalHistory{LogTableSize: 4, Shift: 10, GEHL: GEHL{LogTableSize: 10, Histories: []int{9, 4}}},
			UseIMLI:                          true,
			IMLICounterWidth:                 8,
			FirstIMLI:                        GEHL{LogTableSize: 8, Histories: []int{8}},
			SecondIMLI:                       GEHL{LogTableSize: 9, Histories: []int{10, 4}},
			PathHistoryWidth:                 27,
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate reports the first inconsistent field, or nil.
func (c Config) Validate() error {
	if c.MaxInFlight < 1 {
		return invalid("MaxInFlight %d must be ≥ 1", c.MaxInFlight)
	}
	if c.ConfidenceCounterWidth < 2 || c.ConfidenceCounterWidth > 16 {
		return invalid("ConfidenceCounterWidth %d out of [2, 16]", c.ConfidenceCounterWidth)
	}
	if err := c.TAGE.validate(); err != nil {
		return fmt.Errorf("tage: %w", err)
	}
	if err := c.Loop.validate(); err != nil {
		return fmt.Errorf("loop: %w", err)
	}
	if err := c.SC.validate(); err != nil {
		return fmt.Errorf("sc: %w", err)
	}
	return nil
}

func (t TAGE) validate() error {
	switch {
	case t.NumHistories < 4 || t.NumHistories > MaxHistories:
		return invalid("NumHistories %d out of [4, %d]", t.NumHistories, MaxHistories)
	case t.MinHistorySize < 1 || t.MaxHistorySize <= t.MinHistorySize:
		return invalid("history sizes [%d, %d] not increasing", t.MinHistorySize, t.MaxHistorySize)
	case t.PathHistoryWidth < 1 || t.PathHistoryWidth > 62:
		return invalid("PathHistoryWidth %d out of [1, 62]", t.PathHistoryWidth)
	case t.FirstLongHistoryTable < 2 || t.FirstLongHistoryTable > 2*t.NumHistories:
		return invalid("FirstLongHistoryTable %d out of [2, %d]", t.FirstLongHistoryTable, 2*t.NumHistories)
	case t.First2WayTable > t.Last2WayTable:
		return invalid("2-way range [%d, %d] empty", t.First2WayTable, t.Last2WayTable)
	case t.ShortHistoryTagBits < 2 || t.LongHistoryTagBits < 2 || t.LongHistoryTagBits > 16:
		return invalid("tag bits %d/%d out of range", t.ShortHistoryTagBits, t.LongHistoryTagBits)
	case t.PredCounterWidth < 2 || t.PredCounterWidth > 8:
		return invalid("PredCounterWidth %d out of [2, 8]", t.PredCounterWidth)
	case t.UsefulBits < 1 || t.UsefulBits > 4:
		return invalid("UsefulBits %d out of [1, 4]", t.UsefulBits)
	case t.LogEntriesPerBank < 4 || t.LogEntriesPerBank > 16:
		return invalid("LogEntriesPerBank %d out of [4, 16]", t.LogEntriesPerBank)
	case t.ShortHistoryNumBanks < 1 || t.LongHistoryNumBanks < 1:
		return invalid("bank counts %d/%d must be positive", t.ShortHistoryNumBanks, t.LongHistoryNumBanks)
	case t.ExtraEntriesToAllocate < 0:
		return invalid("ExtraEntriesToAllocate %d negative", t.ExtraEntriesToAllocate)
	case t.TicksUntilUsefulShift < 1:
		return invalid("TicksUntilUsefulShift %d must be positive", t.TicksUntilUsefulShift)
	case t.AltSelectorLogSize < 1 || t.AltSelectorEntryWidth < 2:
		return invalid("alt selector %d/%d too small", t.AltSelectorLogSize, t.AltSelectorEntryWidth)
	case t.BimodalLogSize < 2 || t.BimodalHysteresisShift < 0 || t.BimodalHysteresisShift >= t.BimodalLogSize:
		return invalid("bimodal %d/%d inconsistent", t.BimodalLogSize, t.BimodalHysteresisShift)
	}
	return nil
}

func (l Loop) validate() error {
	switch {
	case l.LogNumEntries < 3 || l.LogNumEntries > 16:
		return invalid("LogNumEntries %d out of [3, 16]", l.LogNumEntries)
	case l.IterationCounterWidth < 2 || l.IterationCounterWidth > 16:
		return invalid("IterationCounterWidth %d out of [2, 16]", l.IterationCounterWidth)
	case l.TagBits < 1 || l.TagBits > 15:
		return invalid("TagBits %d out of [1, 15]", l.TagBits)
	case l.ConfidenceThreshold < 1:
		return invalid("ConfidenceThreshold %d must be positive", l.ConfidenceThreshold)
	}
	return nil
}

func (g GEHL) validate(name string) error {
	if g.LogTableSize < 2 || g.LogTableSize > 20 {
		return invalid("%s LogTableSize %d out of [2, 20]", name, g.LogTableSize)
	}
	if len(g.Histories) == 0 || len(g.Histories) > 8 {
		return invalid("%s has %d histories, want 1 to 8", name, len(g.Histories))
	}
	for _, h := range g.Histories {
		if h < 1 || h > 62 {
			return invalid("%s history length %d out of [1, 62]", name, h)
		}
	}
	return nil
}

func (s SC) validate() error {
	switch {
	case s.Precision < 2 || s.Precision > 16:
		return invalid("Precision %d out of [2, 16]", s.Precision)
	case s.UpdateThresholdWidth < 2 || s.PerPCUpdateThresholdWidth < 2 || s.VariableThresholdWidth < 2:
		return invalid("threshold widths must be ≥ 2")
	case s.InitialUpdateThreshold >= 1<<(s.UpdateThresholdWidth-1):
		return invalid("InitialUpdateThreshold %d does not fit %d bits", s.InitialUpdateThreshold, s.UpdateThresholdWidth)
	case s.LogPerPCThresholdTableSize < 0 || s.LogVariableThresholdTableSize < 0:
		return invalid("threshold table sizes negative")
	case s.LogBiasEntries < 3 || s.LogBiasEntries > 16:
		return invalid("LogBiasEntries %d out of [3, 16]", s.LogBiasEntries)
	case s.IMLICounterWidth < 1 || s.IMLICounterWidth > 16:
		return invalid("IMLICounterWidth %d out of [1, 16]", s.IMLICounterWidth)
	case s.PathHistoryWidth < 1 || s.PathHistoryWidth > 62:
		return invalid("PathHistoryWidth %d out of [1, 62]", s.PathHistoryWidth)
	}
	limit := 1 << (s.VariableThresholdWidth - 1)
	for _, v := range []int{s.InitialVariableThreshold, s.InitialVariableThresholdForBias, s.InitialVariableThresholdForIMLI2} {
		if v < -limit || v >= limit {
			return invalid("initial variable threshold %d does not fit %d bits", v, s.VariableThresholdWidth)
		}
	}
	gehls := []struct {
		name string
		g    GEHL
	}{
		{"global", s.GlobalHistory},
		{"path", s.Path},
		{"first-local", s.FirstLocal.GEHL},
		{"second-local", s.SecondLocal.GEHL},
		{"third-local", s.ThirdLocal.GEHL},
		{"first-imli", s.FirstIMLI},
		{"second-imli", s.SecondIMLI},
	}
	for _, e := range gehls {
		if err := e.g.validate(e.name); err != nil {
			return err
		}
	}
	for _, l := range []LocalHistory{s.FirstLocal, s.SecondLocal, s.ThirdLocal} {
		if l.LogTableSize < 0 || l.LogTableSize > 16 || l.Shift < 0 || l.Shift > 62 {
			return invalid("local history table %d/%d out of range", l.LogTableSize, l.Shift)
		}
	}
	return nil
}
