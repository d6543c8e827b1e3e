// Package sharesmanager implements the Shares Manager (spec §4.D): share
// validation against the Template Registry and per-worker difficulty, and
// the periodic stats reporter. Resolving (address, minerId) to a
// *workerstats.Stats record is the Coordinator's job (it owns MinerData per
// §5's shared-resource policy) — this package only validates and credits
// the record it is handed.
package sharesmanager

import (
	"strconv"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/kaspa-pool/stratum-core/pow"
	"github.com/kaspa-pool/stratum-core/sharewindow"
	"github.com/kaspa-pool/stratum-core/templatepool"
	"github.com/kaspa-pool/stratum-core/types"
	"github.com/kaspa-pool/stratum-core/workerstats"
)

var log = logging.Logger("sharesmanager")

// Manager validates submitted shares and runs the stats reporter.
type Manager struct {
	Registry *templatepool.Registry
	Window   *sharewindow.Window
}

func New(registry *templatepool.Registry, window *sharewindow.Window) *Manager {
	return &Manager{Registry: registry, Window: window}
}

// AddShare implements §4.D's addShare operation. stats is nil for a share
// from an unregistered (address, minerId) pair — rejected as unauthorized
// without mutating any counter, since there is none to mutate.
func (m *Manager) AddShare(stats *workerstats.Stats, address, minerID, headerHash string, baseDifficulty float64, nonce uint64, jobID string) (accepted bool, rejectErr types.ShareError) {
	if stats == nil {
		return false, types.ErrUnauthorizedWorker
	}

	nonceHex := strconv.FormatUint(nonce, 16)

	// Duplicate check.
	if stats.HasNonce(nonceHex) {
		stats.DuplicateShares.Inc()
		return false, types.ErrDuplicateShare
	}

	// Resolve template state; absent means stale.
	powHandle, ok := m.Registry.PowOf(headerHash)
	if !ok {
		stats.StaleShares.Inc()
		return false, types.ErrJobNotFound
	}

	minDiff, _, _, _ := stats.SnapshotVarDiff()
	if minDiff == 0 {
		minDiff = baseDifficulty
	}

	isBlock, hash := powHandle.CheckWork(nonce)
	workerTarget := pow.CalculateTarget(minDiff)
	if hash.Cmp(workerTarget) > 0 {
		stats.InvalidShares.Inc()
		return false, types.ErrLowDifficultyShare
	}

	// Credit.
	stats.CreditShare(minDiff, nonceHex)
	stats.ArmVarDiff()
	daaScore := m.Registry.DAAScoreOfJob(jobID)
	m.Window.Push(types.Contribution{
		Address:    address,
		MinerID:    minerID,
		Difficulty: minDiff,
		Timestamp:  time.Now().Unix(),
		JobID:      jobID,
		DAAScore:   daaScore,
	})

	if isBlock {
		result := m.Registry.Submit(headerHash, nonce)
		if result.Success {
			stats.BlocksFound.Inc()
			log.Info("block found by ", address, ".", minerID)
		} else {
			log.Warn("block submit rejected for ", address, ".", minerID, ": ", result.Reason)
		}
	}

	return true, 0
}

// WorkerEntry pairs a Stats record with the means to close its idle
// sockets, handed in by the Coordinator for each reporter cycle.
type WorkerEntry struct {
	Stats *workerstats.Stats
	Close func(reason string)
}

// RunStatsReport implements §4.D's stats reporter: emits a tabular summary
// and instructs the caller to close any worker's sockets once it has gone
// idle. Never mutates worker accounting.
func (m *Manager) RunStatsReport(now time.Time, workers []WorkerEntry) {
	log.Info("--- worker stats report ---")
	for _, e := range workers {
		stats := e.Stats
		hashrate := stats.HashrateGHs(now, 10*time.Minute)
		active := stats.CheckActive(now)

		log.Infof("%s.%s  diff=%.0f  hashrate=%.2fGH/s  shares=%d  stale=%d  invalid=%d  dup=%d  blocks=%d  active=%v",
			stats.Address, stats.Name, stats.MinDiff, hashrate,
			stats.SharesFound.Load(), stats.StaleShares.Load(), stats.InvalidShares.Load(),
			stats.DuplicateShares.Load(), stats.BlocksFound.Load(), active != 0)

		if active == 0 && e.Close != nil {
			log.Info(stats.Address, ".", stats.Name, ": idle, closing sockets")
			e.Close("idle timeout")
		}
	}
}

// Start runs RunStatsReport on the given cadence until stop is closed.
func (m *Manager) Start(interval time.Duration, workers func() []WorkerEntry, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			m.RunStatsReport(now, workers())
		}
	}
}
