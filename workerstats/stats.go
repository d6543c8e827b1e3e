// Package workerstats holds per-worker accounting: share counters, the
// recent-share ring used for hashrate estimation and duplicate-nonce
// detection, and the vardiff tracking fields the vardiff controller reads
// and mutates.
package workerstats

import (
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/atomic"
)

var log = logging.Logger("workerstats")

// recentShareWindow is how long a submitted nonce stays in RecentShares,
// both for hashrate estimation and duplicate-nonce detection.
const recentShareWindow = 10 * time.Minute

// activeWindow is the lookback checkActive uses to decide whether a
// worker is still submitting.
const activeWindow = 10 * time.Minute

// RecentShare is one entry in a worker's recent-share ring.
type RecentShare struct {
	Timestamp  time.Time
	Difficulty float64
	Nonce      string
}

// Stats is the per-(address,name) accounting record. Counters are atomic so
// the vardiff controller and stats reporter can read them without taking
// the mutex; mu guards the fields the share-crediting path and the vardiff
// controller both mutate (the source's coarse global mutex may be sharded
// down to one lock per worker with the same observable contract).
type Stats struct {
	mu sync.Mutex

	Address string
	Name    string
	ASICType string

	BlocksFound        atomic.Int64
	SharesFound        atomic.Int64
	StaleShares        atomic.Int64
	InvalidShares      atomic.Int64
	DuplicateShares    atomic.Int64
	VarDiffSharesFound atomic.Int64

	StartTime time.Time
	LastShare time.Time

	VarDiffStartTime time.Time
	VarDiffWindow    int
	VarDiffEnabled   bool

	MinDiff float64
	sentDiff float64

	RecentShares []RecentShare
}

// New creates a Stats record for a newly authorized worker, seeded with
// the negotiated initial difficulty. sentDiff starts equal to MinDiff
// since the authorize handler emits the initial set_difficulty itself.
func New(address, name string, initialDiff float64, varDiffEnabled bool) *Stats {
	return &Stats{
		Address:        address,
		Name:           name,
		StartTime:      time.Now(),
		MinDiff:        initialDiff,
		sentDiff:       initialDiff,
		VarDiffEnabled: varDiffEnabled,
	}
}

// HasNonce reports whether nonce already appears in the recent-share ring,
// used by the Shares Manager's duplicate check.
func (s *Stats) HasNonce(nonce string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.RecentShares {
		if r.Nonce == nonce {
			return true
		}
	}
	return false
}

// CreditShare appends an accepted share to the recent-share ring, prunes
// entries older than recentShareWindow, and advances the share counters.
// Must be called from inside the caller's per-worker critical section.
func (s *Stats) CreditShare(difficulty float64, nonce string) {
	now := time.Now()

	s.mu.Lock()
	s.RecentShares = append(s.RecentShares, RecentShare{Timestamp: now, Difficulty: difficulty, Nonce: nonce})
	s.pruneLocked(now)
	s.LastShare = now
	s.mu.Unlock()

	s.SharesFound.Inc()
	s.VarDiffSharesFound.Inc()
}

func (s *Stats) pruneLocked(now time.Time) {
	cutoff := now.Add(-recentShareWindow)
	i := 0
	for i < len(s.RecentShares) && s.RecentShares[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.RecentShares = s.RecentShares[i:]
	}
}

// HashrateGHs implements §4.C's estimator: over shares with now-ts <=
// window, avgDifficulty * count / (now - oldestTs), converted to hashes
// via hash(d) = d * (2^256/2^224) / 1e9. Returns 0 with no relevant shares.
func (s *Stats) HashrateGHs(now time.Time, window time.Duration) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)
	var sumDiff float64
	var count int
	var oldest time.Time

	for _, r := range s.RecentShares {
		if r.Timestamp.Before(cutoff) {
			continue
		}
		sumDiff += r.Difficulty
		count++
		if oldest.IsZero() || r.Timestamp.Before(oldest) {
			oldest = r.Timestamp
		}
	}

	if count == 0 {
		return 0
	}

	elapsed := now.Sub(oldest).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}

	avgDiff := sumDiff / float64(count)
	return DifficultyToHashes(avgDiff) * float64(count) / elapsed
}

// DifficultyToHashes converts a share difficulty into an expected hash
// count using the Kaspa target-space ratio 2^256/2^224, scaled to GH.
func DifficultyToHashes(difficulty float64) float64 {
	const targetSpaceRatio = 4294967296.0 // 2^256 / 2^224 == 2^32
	return difficulty * targetSpaceRatio / 1e9
}

// CheckActive returns floor(lastShare-unix-ms/1000) when the worker
// produced a share within activeWindow, else 0 — used both as a boolean
// gate and as a reported metric value per §4.C.
func (s *Stats) CheckActive(now time.Time) int64 {
	s.mu.Lock()
	last := s.LastShare
	s.mu.Unlock()

	if last.IsZero() || now.Sub(last) > activeWindow {
		return 0
	}
	return last.UnixMilli() / 1000
}

// ElapsedSinceLastShare returns the duration since the last accepted
// share, used by the Share Window's synthetic-snapshot fallback.
func (s *Stats) ElapsedSinceLastShare(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.LastShare.IsZero() {
		return now.Sub(s.StartTime)
	}
	return now.Sub(s.LastShare)
}

// SnapshotVarDiff returns the fields the vardiff controller reads each
// cycle, taken under the worker's lock.
func (s *Stats) SnapshotVarDiff() (minDiff float64, window int, startTime time.Time, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.MinDiff, s.VarDiffWindow, s.VarDiffStartTime, s.VarDiffEnabled
}

// ArmVarDiff (re)starts the vardiff tracker for this worker if it isn't
// already armed — the sentinel zero time means "no diff sent".
func (s *Stats) ArmVarDiff() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.VarDiffStartTime.IsZero() {
		s.VarDiffSharesFound.Store(0)
		s.VarDiffStartTime = time.Now()
	}
}

// ResetVarDiffWindow restarts vardiff tracking on next share, used by the
// Coordinator when it sends this worker a changed difficulty ahead of a
// new job (§4.H).
func (s *Stats) ResetVarDiffWindow() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.VarDiffStartTime = time.Time{}
	s.VarDiffWindow = 0
}

// SetMinDiff applies a new negotiated difficulty and resets vardiff
// tracking to the unarmed zero-time sentinel and window 0, mirroring
// updateVarDiff's epoch-zero reset; the next credited share re-arms it.
func (s *Stats) SetMinDiff(newDiff float64) (previous float64, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous = s.MinDiff
	if newDiff == previous {
		return previous, false
	}

	s.MinDiff = newDiff
	s.VarDiffStartTime = time.Time{}
	s.VarDiffWindow = 0
	return previous, true
}

// AdvanceVarDiffWindow promotes the worker to the next vardiff stage.
func (s *Stats) AdvanceVarDiffWindow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.VarDiffWindow++
}

// ConsumeDiffChange reports whether MinDiff has moved since the last value
// the coordinator wrote to the wire, and if so marks it consumed. Used by
// the template fan-out to decide whether a set_difficulty must precede the
// next mining.notify (§4.H step 2, §5's ordering guarantee).
func (s *Stats) ConsumeDiffChange() (newDiff float64, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.MinDiff == s.sentDiff {
		return s.MinDiff, false
	}
	s.sentDiff = s.MinDiff
	return s.MinDiff, true
}

// RejectionRate returns invalidShares/sharesFound, used by updateVarDiff's
// ASIC-tier override gate. Returns 0 when no shares have been credited.
func (s *Stats) RejectionRate() float64 {
	found := s.SharesFound.Load()
	if found == 0 {
		return 0
	}
	return float64(s.InvalidShares.Load()) / float64(found)
}
