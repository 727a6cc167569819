package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning carries every numeric policy knob of the settlement core. The
// recurrence exceptions (40% exterminator levels, boosted map levels, the
// alternate trait floor) are data here, never branches in the engine.
type Tuning struct {
	// Purchase pricing. PriceWei is the live unit price; the schedule applies
	// a bps step whenever the new level index hits the given modulus.
	PriceWei      uint64      `yaml:"price_wei"`
	PriceSchedule []PriceStep `yaml:"price_schedule"`

	// Phase gates.
	MinPurchases     uint64   `yaml:"min_purchases"`
	EarlyGateBps     []uint32 `yaml:"early_gate_bps"` // pool-growth fractions that pay early jackpots
	AdvanceBonusWei  uint64   `yaml:"advance_bonus_wei"`
	DefaultWorkUnits uint32   `yaml:"default_work_units"`
	MaxWorkUnits     uint32   `yaml:"max_work_units"`

	// Periodic jackpots.
	JackpotsPerLevel uint8    `yaml:"jackpots_per_level"` // counter cap; reaching it times the level out
	DailyBps         []uint32 `yaml:"daily_bps"`          // slice of the live pool per counter index
	EarlyJackpotBps  uint32   `yaml:"early_jackpot_bps"`  // slice of the coin pool per early milestone
	BurstLevelMod    uint32   `yaml:"burst_level_mod"`    // levels where purge calls pay a burst
	BurstCount       uint8    `yaml:"burst_count"`

	// Jackpot share tables, one band of four quadrant shares (bps of the round pool).
	DailyShareBps [4]uint32 `yaml:"daily_share_bps"`
	MapShareBps   [4]uint32 `yaml:"map_share_bps"`

	// Ticket-equivalent weights per tier band. Band = (level%100)/20 + 1.
	TierTicketWeights []uint32 `yaml:"tier_ticket_weights"`

	// Map jackpot sizing.
	MapBps        uint32   `yaml:"map_bps"`
	MapBoostBps   uint32   `yaml:"map_boost_bps"`
	MapBoostMod   uint32   `yaml:"map_boost_mod"`   // level % mod == rem gets the boost
	MapBoostRem   uint32   `yaml:"map_boost_rem"`
	MapQueueLimit int      `yaml:"map_queue_limit"`

	// End-of-level settlement.
	ParticipantBps     uint32   `yaml:"participant_bps"`      // participant-facing share of the live pool
	ExterminatorBps    uint32   `yaml:"exterminator_bps"`     // of the participant share
	ExterminatorBigBps uint32   `yaml:"exterminator_big_bps"` // on big-recurrence levels
	BigLevelMod        uint32   `yaml:"big_level_mod"`        // level % mod == rem is a big level
	BigLevelRem        uint32   `yaml:"big_level_rem"`
	BigLevelSkip       []uint32 `yaml:"big_level_skip"` // explicit exceptions, e.g. level 4
	RepeatCarryBps     uint32   `yaml:"repeat_carry_bps"`  // deferred when the ending trait repeats
	RepeatLevelMod     uint32   `yaml:"repeat_level_mod"`  // levels deferring regardless of the trait
	RepeatLevelRem     uint32   `yaml:"repeat_level_rem"`
	PayoutBatch        int      `yaml:"payout_batch"`    // FIFO ticket payouts per idle slice
	RecalibrateMod     uint32   `yaml:"recalibrate_mod"` // timeout-path price/size recalibration

	// Milestone jackpots funded from the coin pool (leaderboard splits).
	Milestones []Milestone `yaml:"milestones"`

	// Trait space policy.
	AltFloorLevelMod uint32   `yaml:"alt_floor_level_mod"` // levels keeping 1 remaining instead of 0
	AltFloorLevelRem uint32   `yaml:"alt_floor_level_rem"`
	SoftQuadrants    []uint8  `yaml:"soft_quadrants"` // quadrants that never exterminate
	SymbolWeights    []uint32 `yaml:"symbol_weights"` // cumulative thresholds over 8 sub-categories
	ColorWeights     []uint32 `yaml:"color_weights"`

	// Airdrop write-cost model.
	AirdropAccountCost uint32 `yaml:"airdrop_account_cost"` // bookkeeping units per account visited
	AirdropUnitCost    uint32 `yaml:"airdrop_unit_cost"`    // units per owed draw
	RebuildSlice       uint32 `yaml:"rebuild_slice"`        // tokens per rarity-rebuild step

	// Consumption fee and bonus.
	PurgeCoinFee   uint64 `yaml:"purge_coin_fee"` // coin burned per consumed token
	MaxPurgeBatch  int    `yaml:"max_purge_batch"`
	PurgeBonusWei  uint64 `yaml:"purge_bonus_wei"`
	StreakBonusWei uint64 `yaml:"streak_bonus_wei"`
	StreakCap      uint32 `yaml:"streak_cap"`
}

type PriceStep struct {
	Mod uint32 `yaml:"mod"`
	Bps uint32 `yaml:"bps"` // applied to the price when level%mod == 0
}

// Milestone describes a recurring coin-pool jackpot split over a leaderboard.
type Milestone struct {
	Name      string              `yaml:"name"`
	Mod       uint32              `yaml:"mod"`
	Rem       uint32              `yaml:"rem"`
	MinLevel  uint32              `yaml:"min_level"`
	SkipMod   uint32              `yaml:"skip_mod"` // level%skip_mod == skip_rem is excluded (0 disables)
	SkipRem   uint32              `yaml:"skip_rem"`
	PoolBps   uint32              `yaml:"pool_bps"`
	Board     string              `yaml:"board"` // leaderboard key passed to the coin collaborator
	Overrides []MilestoneOverride `yaml:"overrides"`
}

type MilestoneOverride struct {
	Level   uint32 `yaml:"level"`
	PoolBps uint32 `yaml:"pool_bps"`
}

// Defaults mirrors the shipped game economy.
func Defaults() Tuning {
	return Tuning{
		PriceWei: 10_000_000,
		PriceSchedule: []PriceStep{
			{Mod: 10, Bps: 10500},
			{Mod: 20, Bps: 11000},
			{Mod: 100, Bps: 12500},
		},
		MinPurchases:     16,
		EarlyGateBps:     []uint32{2500, 5000, 7500},
		AdvanceBonusWei:  50_000,
		DefaultWorkUnits: 64,
		MaxWorkUnits:     1024,

		JackpotsPerLevel: 10,
		DailyBps:         []uint32{610, 677, 746, 813, 881, 949, 1017, 1085, 1153, 1225},
		EarlyJackpotBps:  200,
		BurstLevelMod:    10,
		BurstCount:       2,

		DailyShareBps: [4]uint32{2000, 2000, 2000, 2000},
		MapShareBps:   [4]uint32{2500, 2500, 2500, 2500},

		TierTicketWeights: []uint32{0, 4, 6, 8, 10, 12},

		MapBps:        3000,
		MapBoostBps:   4000,
		MapBoostMod:   20,
		MapBoostRem:   16,
		MapQueueLimit: 64,

		ParticipantBps:     9000,
		ExterminatorBps:    2000,
		ExterminatorBigBps: 4000,
		BigLevelMod:        10,
		BigLevelRem:        4,
		BigLevelSkip:       []uint32{4},
		RepeatCarryBps:     5000,
		RepeatLevelMod:     100,
		RepeatLevelRem:     0,
		PayoutBatch:        32,
		RecalibrateMod:     100,

		Milestones: []Milestone{
			{Name: "baf", Mod: 10, Rem: 0, MinLevel: 10, PoolBps: 1000, Board: "flips",
				Overrides: []MilestoneOverride{{Level: 50, PoolBps: 2500}}},
			{Name: "decimator", Mod: 10, Rem: 5, MinLevel: 15, SkipMod: 100, SkipRem: 95,
				PoolBps: 1500, Board: "burns"},
		},

		AltFloorLevelMod: 20,
		AltFloorLevelRem: 16,
		SoftQuadrants:    []uint8{3},
		SymbolWeights:    []uint32{20, 38, 54, 68, 80, 90, 97, 100},
		ColorWeights:     []uint32{24, 44, 60, 74, 85, 93, 98, 100},

		AirdropAccountCost: 3,
		AirdropUnitCost:    1,
		RebuildSlice:       64,

		PurgeCoinFee:   100,
		MaxPurgeBatch:  32,
		PurgeBonusWei:  1_000,
		StreakBonusWei: 250,
		StreakCap:      8,
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.PriceWei == 0 {
		return fmt.Errorf("price_wei must be positive")
	}
	if t.JackpotsPerLevel == 0 {
		return fmt.Errorf("jackpots_per_level must be positive")
	}
	if len(t.DailyBps) < int(t.JackpotsPerLevel) {
		return fmt.Errorf("daily_bps needs %d entries, got %d", t.JackpotsPerLevel, len(t.DailyBps))
	}
	for _, b := range t.DailyBps {
		if b == 0 || b > 10000 {
			return fmt.Errorf("daily_bps entries must be in 1..10000")
		}
	}
	if t.ParticipantBps > 10000 || t.ExterminatorBps > 10000 || t.ExterminatorBigBps > 10000 {
		return fmt.Errorf("settlement bps out of range")
	}
	if t.RepeatCarryBps > 10000 {
		return fmt.Errorf("repeat_carry_bps out of range")
	}
	if err := validateCumulative("symbol_weights", t.SymbolWeights); err != nil {
		return err
	}
	if err := validateCumulative("color_weights", t.ColorWeights); err != nil {
		return err
	}
	if len(t.TierTicketWeights) == 0 {
		return fmt.Errorf("tier_ticket_weights must not be empty")
	}
	if t.PayoutBatch <= 0 {
		return fmt.Errorf("payout_batch must be positive")
	}
	if t.MaxPurgeBatch <= 0 {
		return fmt.Errorf("max_purge_batch must be positive")
	}
	if t.AirdropUnitCost == 0 {
		return fmt.Errorf("airdrop_unit_cost must be positive")
	}
	if t.RebuildSlice == 0 {
		return fmt.Errorf("rebuild_slice must be positive")
	}
	for _, q := range t.SoftQuadrants {
		if q > 3 {
			return fmt.Errorf("soft_quadrants entries must be 0..3")
		}
	}
	return nil
}

func validateCumulative(name string, w []uint32) error {
	if len(w) != 8 {
		return fmt.Errorf("%s needs 8 cumulative entries, got %d", name, len(w))
	}
	prev := uint32(0)
	for _, v := range w {
		if v <= prev {
			return fmt.Errorf("%s must be strictly increasing", name)
		}
		prev = v
	}
	if w[7] != 100 {
		return fmt.Errorf("%s must end at 100", name)
	}
	return nil
}

// PriceForLevel applies every matching schedule step to the base price.
// Steps compound; the largest modulus wins ties by applying last.
func (t Tuning) PriceForLevel(level uint32) uint64 {
	price := t.PriceWei
	for _, s := range t.PriceSchedule {
		if s.Mod != 0 && level%s.Mod == 0 {
			price = price * uint64(s.Bps) / 10000
		}
	}
	return price
}

// ExterminatorShareBps picks the big-recurrence share when the previous level
// sits on the configured boundary and is not explicitly skipped.
func (t Tuning) ExterminatorShareBps(prevLevel uint32) uint32 {
	if t.BigLevelMod != 0 && prevLevel%t.BigLevelMod == t.BigLevelRem {
		for _, skip := range t.BigLevelSkip {
			if prevLevel == skip {
				return t.ExterminatorBps
			}
		}
		return t.ExterminatorBigBps
	}
	return t.ExterminatorBps
}

// IsRepeatCarryLevel reports whether a level defers the carryover share at
// settlement regardless of which trait ended it.
func (t Tuning) IsRepeatCarryLevel(level uint32) bool {
	return t.RepeatLevelMod != 0 && level%t.RepeatLevelMod == t.RepeatLevelRem
}

// MapBpsForLevel returns the boosted map slice on boost levels.
func (t Tuning) MapBpsForLevel(level uint32) uint32 {
	if t.MapBoostMod != 0 && level%t.MapBoostMod == t.MapBoostRem {
		return t.MapBoostBps
	}
	return t.MapBps
}

// TraitFloor is 1 on alternate-floor levels, 0 otherwise.
func (t Tuning) TraitFloor(level uint32) uint32 {
	if t.AltFloorLevelMod != 0 && level%t.AltFloorLevelMod == t.AltFloorLevelRem {
		return 1
	}
	return 0
}

// TierWeight maps a level to its ticket-equivalent weight band.
func (t Tuning) TierWeight(level uint32) uint32 {
	band := int(level%100)/20 + 1
	if band >= len(t.TierTicketWeights) {
		band = len(t.TierTicketWeights) - 1
	}
	w := t.TierTicketWeights[band]
	if w == 0 {
		w = 1
	}
	return w
}

// MilestoneBps returns the pool share for a milestone at the given level,
// honoring per-level overrides, or 0 when the milestone does not fire.
func (m Milestone) MilestoneBps(level uint32) uint32 {
	if m.Mod == 0 || level%m.Mod != m.Rem || level < m.MinLevel {
		return 0
	}
	if m.SkipMod != 0 && level%m.SkipMod == m.SkipRem {
		return 0
	}
	for _, o := range m.Overrides {
		if o.Level == level {
			return o.PoolBps
		}
	}
	return m.PoolBps
}

// IsSoftQuadrant reports whether a quadrant is exempt from extermination.
func (t Tuning) IsSoftQuadrant(q uint8) bool {
	for _, s := range t.SoftQuadrants {
		if s == q {
			return true
		}
	}
	return false
}
