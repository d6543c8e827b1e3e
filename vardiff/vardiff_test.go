package vardiff

import (
	"testing"
	"time"

	"github.com/kaspa-pool/stratum-core/workerstats"
)

func TestAsicTierDiff(t *testing.T) {
	cases := map[float64]float64{
		50:    64,
		100:   64,
		150:   128,
		25000: 32768, // above the table's domain falls back to the top tier
	}
	for hashrate, want := range cases {
		if got := asicTierDiff(hashrate); got != want {
			t.Errorf("asicTierDiff(%v) = %v, want %v", hashrate, got, want)
		}
	}
}

func TestRunCycleSkipsInactiveAndUnarmedWorkers(t *testing.T) {
	c := &Controller{MinDiff: 1, MaxDiff: 1 << 20, TargetSharesPerMinute: 20}

	disabled := workerstats.New("addr", "w1", 64, false)
	c.RunCycle(time.Now(), []*workerstats.Stats{disabled})
	if got, _ := disabled.ConsumeDiffChange(); got != 64 {
		t.Fatal("a vardiff-disabled worker must never be retargeted")
	}

	unarmed := workerstats.New("addr", "w2", 64, true)
	c.RunCycle(time.Now(), []*workerstats.Stats{unarmed})
	if _, changed := unarmed.ConsumeDiffChange(); changed {
		t.Fatal("a worker with no armed vardiff window must not be retargeted")
	}
}

func TestRunCycleRegressesOnLowFinalStageRate(t *testing.T) {
	c := &Controller{MinDiff: 1, MaxDiff: 1 << 20, TargetSharesPerMinute: 20}

	stats := workerstats.New("addr", "w1", 1024, true)
	stats.CreditShare(1024, "n1")
	stats.ArmVarDiff()
	for i := 0; i < 6; i++ {
		stats.AdvanceVarDiffWindow() // window index 6 -> final stage (win == 0)
	}

	now := time.Now().Add(2 * time.Minute)
	c.RunCycle(now, []*workerstats.Stats{stats})

	newDiff, changed := stats.ConsumeDiffChange()
	if !changed {
		t.Fatal("expected the final stage to regress difficulty when the share rate is far below target")
	}
	if newDiff >= 1024 {
		t.Fatalf("expected difficulty to drop, got %v", newDiff)
	}
}

func TestApplyClampsToMinMax(t *testing.T) {
	c := &Controller{MinDiff: 64, MaxDiff: 256}
	stats := workerstats.New("addr", "w1", 64, true)

	c.apply(stats, 4)
	if got, _ := stats.ConsumeDiffChange(); got != 64 {
		t.Fatalf("apply(4) below MinDiff should clamp to 64, got %v", got)
	}

	c.apply(stats, 9999)
	if got, _ := stats.ConsumeDiffChange(); got != 256 {
		t.Fatalf("apply(9999) above MaxDiff should clamp to 256, got %v", got)
	}
}

func TestApplyClampPow2(t *testing.T) {
	c := &Controller{MinDiff: 1, MaxDiff: 1 << 20, ClampPow2: true}
	stats := workerstats.New("addr", "w1", 1, true)

	c.apply(stats, 100)
	got, _ := stats.ConsumeDiffChange()
	if got != 64 {
		t.Fatalf("apply(100) with ClampPow2 should snap down to 64, got %v", got)
	}
}

func TestApplyOverridesOnHighRejectionRate(t *testing.T) {
	c := &Controller{MinDiff: 1, MaxDiff: 1 << 20}
	stats := workerstats.New("addr", "w1", 1024, true)
	stats.SharesFound.Store(10)
	stats.InvalidShares.Store(3) // 30% rejection rate, over the 20% gate

	c.apply(stats, 9999)
	got, changed := stats.ConsumeDiffChange()
	if !changed {
		t.Fatal("expected the high-rejection override to move difficulty")
	}
	if got != 64 {
		t.Fatalf("expected the override to fall back to the lowest ASIC tier for a near-zero hashrate, got %v", got)
	}
}
