package profiles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quantlabs/signalgate/internal/domain"
)

func TestLoadStoreMissingFile(t *testing.T) {
	store, err := LoadStore(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing profiles file must be a cold start, got error: %v", err)
	}
	if len(store.Symbols()) != 0 {
		t.Errorf("expected empty store, got symbols %v", store.Symbols())
	}
}

func TestLoadStoreParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	content := `
symbols:
  btcusdt:
    volume_ratio: 0.8
    quality_score: 0.75
  ETHUSDT:
    rsi_oversold: 25
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := LoadStore(path)
	if err != nil {
		t.Fatalf("LoadStore failed: %v", err)
	}

	o, ok := store.Lookup("BTCUSDT")
	if !ok {
		t.Fatal("expected override for BTCUSDT (symbols are case-insensitive)")
	}
	if o.VolumeRatio == nil || *o.VolumeRatio != 0.8 {
		t.Errorf("VolumeRatio override = %v, want 0.8", o.VolumeRatio)
	}
	if o.RSIOversold != nil {
		t.Error("absent keys must stay nil")
	}

	if _, ok := store.Lookup("ethusdt"); !ok {
		t.Error("lookup must be case-insensitive")
	}
	if _, ok := store.Lookup("SOLUSDT"); ok {
		t.Error("unknown symbol must have no override")
	}
}

func TestLoadStoreRejectsOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	content := `
symbols:
  BTCUSDT:
    volume_ratio: 9.0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadStore(path); err == nil {
		t.Fatal("out-of-range override must fail at load time")
	}
}

func TestOverrideApply(t *testing.T) {
	base := domain.ThresholdSet{
		VolumeRatio:   0.5,
		RSIOversold:   30.0,
		RSIOverbought: 70.0,
		TrendStrength: 0.6,
		QualityScore:  0.7,
	}
	vol := 0.9
	o := Override{VolumeRatio: &vol}

	merged := o.Apply(base)
	if merged.VolumeRatio != 0.9 {
		t.Errorf("override key not applied: %v", merged.VolumeRatio)
	}
	if merged.RSIOversold != base.RSIOversold || merged.QualityScore != base.QualityScore {
		t.Error("non-overridden keys must keep base values")
	}
}
