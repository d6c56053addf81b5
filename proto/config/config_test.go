package config

import (
	"errors"
	"testing"
)

func TestPreset_BothValidate(t *testing.T) {
	// WHAT: Both storage budgets produce valid configurations
	for _, p := range []Preset{Preset64KB, Preset80KB} {
		cfg, err := ForPreset(p)
		if err != nil {
			t.Fatalf("ForPreset(%v): %v", p, err)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("%v does not validate: %v", p, err)
		}
	}
}

func TestPreset_Differences(t *testing.T) {
	// WHAT: The presets differ only in bank counts and SC precision
	small := MustPreset(Preset64KB)
	large := MustPreset(Preset80KB)

	if small.TAGE.ShortHistoryNumBanks != 10 || small.TAGE.LongHistoryNumBanks != 20 || small.SC.Precision != 6 {
		t.Errorf("64KB preset = %d/%d/%d, want 10/20/6",
			small.TAGE.ShortHistoryNumBanks, small.TAGE.LongHistoryNumBanks, small.SC.Precision)
	}
	if large.TAGE.ShortHistoryNumBanks != 18 || large.TAGE.LongHistoryNumBanks != 21 || large.SC.Precision != 8 {
		t.Errorf("80KB preset = %d/%d/%d, want 18/21/8",
			large.TAGE.ShortHistoryNumBanks, large.TAGE.LongHistoryNumBanks, large.SC.Precision)
	}

	large.Name = small.Name
	large.TAGE.ShortHistoryNumBanks = small.TAGE.ShortHistoryNumBanks
	large.TAGE.LongHistoryNumBanks = small.TAGE.LongHistoryNumBanks
	large.SC.Precision = small.SC.Precision
	if large.TAGE != small.TAGE || large.Loop != small.Loop {
		t.Errorf("presets differ outside the budget knobs")
	}
}

func TestPreset_UnknownRejected(t *testing.T) {
	if _, err := ForPreset(Preset(7)); err == nil {
		t.Errorf("ForPreset(7) should fail")
	}
}

func TestParsePreset(t *testing.T) {
	cases := map[string]Preset{"64KB": Preset64KB, "64kb": Preset64KB, "80": Preset80KB, " 80KB ": Preset80KB}
	for in, want := range cases {
		got, err := ParsePreset(in)
		if err != nil || got != want {
			t.Errorf("ParsePreset(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParsePreset("128KB"); err == nil {
		t.Errorf("ParsePreset(128KB) should fail")
	}
}

func TestValidate_RejectsBadFields(t *testing.T) {
	// WHAT: Each broken knob is reported as ErrInvalid
	mutations := map[string]func(*Config){
		"in-flight":       func(c *Config) { c.MaxInFlight = 0 },
		"histories":       func(c *Config) { c.TAGE.NumHistories = MaxHistories + 1 },
		"history range":   func(c *Config) { c.TAGE.MaxHistorySize = c.TAGE.MinHistorySize },
		"counter width":   func(c *Config) { c.TAGE.PredCounterWidth = 1 },
		"loop entries":    func(c *Config) { c.Loop.LogNumEntries = 2 },
		"sc precision":    func(c *Config) { c.SC.Precision = 1 },
		"update thr":      func(c *Config) { c.SC.InitialUpdateThreshold = 1 << 11 },
		"gehl empty":      func(c *Config) { c.SC.Path.Histories = nil },
		"gehl too long":   func(c *Config) { c.SC.GlobalHistory.Histories = []int{80} },
		"variable thr":    func(c *Config) { c.SC.InitialVariableThreshold = 40 },
		"bimodal shift":   func(c *Config) { c.TAGE.BimodalHysteresisShift = c.TAGE.BimodalLogSize },
		"long tag bits":   func(c *Config) { c.TAGE.LongHistoryTagBits = 20 },
		"first long bank": func(c *Config) { c.TAGE.FirstLongHistoryTable = 2*c.TAGE.NumHistories + 1 },
	}
	for name, mutate := range mutations {
		cfg := MustPreset(Preset64KB)
		mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: Validate accepted a broken config", name)
			continue
		}
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: error %v does not wrap ErrInvalid", name, err)
		}
	}
}

func TestConfig_IMLITableSize(t *testing.T) {
	cfg := MustPreset(Preset64KB)
	if cfg.SC.IMLITableSize() != 256 {
		t.Errorf("IMLITableSize = %d, want 256", cfg.SC.IMLITableSize())
	}
}
