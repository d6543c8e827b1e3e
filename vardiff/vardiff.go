// Package vardiff implements the Vardiff Controller (spec §4.E): a
// periodic per-worker difficulty adjustment loop, grounded on the
// windows/tolerances state machine the htn-stratum-bridge share handler
// runs (startVardiffThread/updateVarDiff), generalized to this spec's
// exact parameters and its ASIC-tier rejection-rate override.
package vardiff

import (
	"math"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/kaspa-pool/stratum-core/workerstats"
)

var log = logging.Logger("vardiff")

// windows and tolerances are the static parameters named in §4.E. Cadence
// between controller cycles is 10 seconds, driven by the caller
// (runVardiffLoop in main.go), not by this package.
var (
	windows    = [7]float64{1, 3, 10, 30, 60, 240, 0}
	tolerances = [7]float64{1.0, 0.5, 0.25, 0.15, 0.1, 0.1, 0.1}
)

// asicTier is one row of the rejection-rate override table keyed on
// hashrate (GH/s). Thresholds are checked in ascending order and the
// first match wins, resolving the 200/400 GH/s boundary overlap named in
// spec §9 to the lower tier.
type asicTier struct {
	maxGHs float64
	diff   float64
}

var asicTiers = []asicTier{
	{100, 64},
	{200, 128},
	{400, 256},
	{1000, 512},
	{2000, 1024},
	{5000, 2048},
	{8000, 4096},
	{12000, 8192},
	{15000, 16384},
	{21000, 32768},
}

// asicTierDiff returns the override difficulty for a given hashrate.
// Hashrates above the table's domain fall back to its top tier.
func asicTierDiff(hashrateGHs float64) float64 {
	for _, t := range asicTiers {
		if hashrateGHs <= t.maxGHs {
			return t.diff
		}
	}
	return asicTiers[len(asicTiers)-1].diff
}

// Controller runs the periodic retarget cycle. It holds no per-worker
// state itself — all of it lives in the workerstats.Stats records the
// caller passes in, per spec §5's "owned by the coordinator" policy.
type Controller struct {
	MinDiff               float64
	MaxDiff               float64
	ClampPow2             bool
	TargetSharesPerMinute float64

	// OnDifficultyChange, when set, is invoked whenever a worker's minDiff
	// actually changes. The Coordinator does not set it: set_difficulty
	// reaches the wire from its job fan-out via ConsumeDiffChange, ahead of
	// the next mining.notify.
	OnDifficultyChange func(stats *workerstats.Stats, newDiff float64)
}

// RunCycle evaluates every worker with varDiffEnabled and an active
// recent share, applying §4.E's 4-step state machine.
func (c *Controller) RunCycle(now time.Time, workers []*workerstats.Stats) {
	for _, stats := range workers {
		_, window, startTime, enabled := stats.SnapshotVarDiff()
		if !enabled || stats.CheckActive(now) == 0 {
			continue
		}

		if startTime.IsZero() {
			log.Debug(stats.Name, ": no diff sent, skipping cycle")
			continue
		}

		elapsed := now.Sub(startTime).Minutes()
		if elapsed <= 0 {
			continue
		}

		shares := stats.VarDiffSharesFound.Load()
		rate := float64(shares) / elapsed
		ratio := rate / c.TargetSharesPerMinute

		i := window % 7
		win := windows[i]
		tol := tolerances[i]

		// Final stage: majority of cycles land here once a worker has
		// settled, so it is checked first.
		if win == 0 {
			if math.Abs(1-ratio) >= tol {
				c.apply(stats, stats.MinDiff*ratio)
			}
			continue
		}

		// Cleared windows: regress if any earlier stage's tolerance is
		// now breached.
		regressed := false
		for k := 1; k < i; k++ {
			if math.Abs(1-ratio) >= tolerances[k] {
				c.apply(stats, stats.MinDiff*ratio)
				regressed = true
				break
			}
		}
		if regressed {
			continue
		}

		// Upper bound within the current window.
		if float64(shares) >= win*c.TargetSharesPerMinute*(1+tol) {
			c.apply(stats, stats.MinDiff*ratio)
			continue
		}

		// Window completion: promote or correct downward.
		if elapsed >= win {
			if float64(shares) <= win*c.TargetSharesPerMinute*(1-tol) {
				c.apply(stats, stats.MinDiff*math.Max(ratio, 0.1))
				continue
			}
			stats.AdvanceVarDiffWindow()
		}
	}
}

// apply implements updateVarDiff: clamp, optionally snap to a power of
// two, override on a high rejection rate via the ASIC tier table, and
// commit the change if it actually moved.
func (c *Controller) apply(stats *workerstats.Stats, newDiff float64) {
	if c.ClampPow2 && newDiff > 0 {
		newDiff = math.Pow(2, math.Floor(math.Log2(newDiff)))
	}

	if newDiff < c.MinDiff {
		newDiff = c.MinDiff
	}
	if newDiff > c.MaxDiff {
		newDiff = c.MaxDiff
	}

	if stats.RejectionRate() >= 0.20 {
		hashrate := stats.HashrateGHs(time.Now(), 10*time.Minute)
		newDiff = asicTierDiff(hashrate)
		if c.ClampPow2 {
			newDiff = math.Pow(2, math.Floor(math.Log2(newDiff)))
		}
	}

	previous, changed := stats.SetMinDiff(newDiff)
	if !changed {
		return
	}

	log.Info(stats.Name, ": vardiff ", previous, " -> ", newDiff)
	if c.OnDifficultyChange != nil {
		c.OnDifficultyChange(stats, newDiff)
	}
}
