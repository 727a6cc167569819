package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	body := []byte("price_wei: 42\nmin_purchases: 3\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PriceWei != 42 || cfg.MinPurchases != 3 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.JackpotsPerLevel != Defaults().JackpotsPerLevel {
		t.Fatalf("unrelated default lost")
	}
}

func TestLoadRejectsBadWeights(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	body := []byte("symbol_weights: [10, 5, 20, 30, 40, 50, 60, 100]\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("non-monotonic weights accepted")
	}
}

func TestPriceForLevelCompounds(t *testing.T) {
	cfg := Defaults()
	base := cfg.PriceWei
	if got := cfg.PriceForLevel(1); got != base {
		t.Fatalf("level 1 price = %d, want %d", got, base)
	}
	if got := cfg.PriceForLevel(10); got != base*10500/10000 {
		t.Fatalf("level 10 price = %d", got)
	}
	// Level 20 hits both the mod-10 and mod-20 steps.
	want := base * 10500 / 10000 * 11000 / 10000
	if got := cfg.PriceForLevel(20); got != want {
		t.Fatalf("level 20 price = %d, want %d", got, want)
	}
}

func TestExterminatorShareBoundaries(t *testing.T) {
	cfg := Defaults()
	cases := []struct {
		level uint32
		want  uint32
	}{
		{1, 2000},
		{4, 2000}, // explicitly skipped big level
		{14, 4000},
		{24, 4000},
		{15, 2000},
	}
	for _, c := range cases {
		if got := cfg.ExterminatorShareBps(c.level); got != c.want {
			t.Errorf("level %d: share = %d, want %d", c.level, got, c.want)
		}
	}
}

func TestTraitFloorAlternates(t *testing.T) {
	cfg := Defaults()
	if cfg.TraitFloor(16) != 1 {
		t.Fatalf("level 16 should keep one remaining")
	}
	if cfg.TraitFloor(17) != 0 || cfg.TraitFloor(20) != 0 {
		t.Fatalf("ordinary levels should drain to zero")
	}
	if cfg.TraitFloor(36) != 1 {
		t.Fatalf("alternate floor should recur every 20 levels")
	}
}

func TestRepeatCarryLevels(t *testing.T) {
	cfg := Defaults()
	if !cfg.IsRepeatCarryLevel(100) || !cfg.IsRepeatCarryLevel(200) {
		t.Fatalf("century levels should defer the carry share")
	}
	if cfg.IsRepeatCarryLevel(99) || cfg.IsRepeatCarryLevel(101) {
		t.Fatalf("off-boundary level defers")
	}
	cfg.RepeatLevelMod = 0
	if cfg.IsRepeatCarryLevel(100) {
		t.Fatalf("disabled rule still fires")
	}
}

func TestMapBpsBoost(t *testing.T) {
	cfg := Defaults()
	if cfg.MapBpsForLevel(16) != cfg.MapBoostBps {
		t.Fatalf("boost level not boosted")
	}
	if cfg.MapBpsForLevel(17) != cfg.MapBps {
		t.Fatalf("plain level boosted")
	}
}

func TestMilestoneSchedule(t *testing.T) {
	cfg := Defaults()
	var baf, dec Milestone
	for _, m := range cfg.Milestones {
		switch m.Name {
		case "baf":
			baf = m
		case "decimator":
			dec = m
		}
	}
	if baf.MilestoneBps(10) != 1000 {
		t.Fatalf("baf should fire at 10")
	}
	if baf.MilestoneBps(50) != 2500 {
		t.Fatalf("baf level-50 override missing")
	}
	if baf.MilestoneBps(5) != 0 {
		t.Fatalf("baf below min level fired")
	}
	if dec.MilestoneBps(15) != 1500 {
		t.Fatalf("decimator should fire at 15")
	}
	if dec.MilestoneBps(95) != 0 {
		t.Fatalf("decimator skip level fired")
	}
	if dec.MilestoneBps(10) != 0 {
		t.Fatalf("decimator fired off schedule")
	}
}

func TestTierWeightBands(t *testing.T) {
	cfg := Defaults()
	cases := []struct {
		level uint32
		want  uint32
	}{
		{1, 4},
		{19, 4},
		{20, 6},
		{45, 8},
		{99, 12},
		{101, 4}, // bands restart each hundred
	}
	for _, c := range cases {
		if got := cfg.TierWeight(c.level); got != c.want {
			t.Errorf("level %d: weight = %d, want %d", c.level, got, c.want)
		}
	}
}
