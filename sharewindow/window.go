// Package sharewindow implements the Share Window (spec §4.B): a FIFO of
// accepted contributions drained by an external reward allocator, cut off
// by DAA score.
package sharewindow

import (
	"context"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/kaspa-pool/stratum-core/types"
)

var log = logging.Logger("sharewindow")

// Window is a FIFO of Contributions. The Shares Manager pushes each one
// right after crediting the share; the append takes only the window's own
// mutex, not the lock that guarded the credit. backlog is
// an optional durability layer (see persistence.go); a nil backlog keeps
// the window purely in-memory.
type Window struct {
	mu      sync.Mutex
	items   []types.Contribution
	backlog *RedisBacklog
}

func New() *Window {
	return &Window{}
}

// SetBacklog attaches a redis-backed durability layer. Must be called
// before the window sees any traffic.
func (w *Window) SetBacklog(b *RedisBacklog) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.backlog = b
}

// Push appends a Contribution to the tail of the window, and best-effort
// mirrors it to the backlog if one is attached. A backlog write failure is
// logged and never blocks share crediting.
func (w *Window) Push(c types.Contribution) {
	w.mu.Lock()
	w.items = append(w.items, c)
	backlog := w.backlog
	w.mu.Unlock()

	if backlog != nil {
		go func() {
			if err := backlog.Append(context.Background(), c); err != nil {
				log.Error("backlog append failed: ", err)
			}
		}()
	}
}

// DrainUpTo implements §4.B's drainUpTo(daaScore): repeatedly removes the
// head while its job's DAA score is <= cutoff, returning removed items in
// order and leaving only elements whose daaScore > cutoff.
func (w *Window) DrainUpTo(cutoff uint64) []types.Contribution {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := 0
	for i < len(w.items) && w.items[i].DAAScore <= cutoff {
		i++
	}

	drained := make([]types.Contribution, i)
	copy(drained, w.items[:i])
	w.items = w.items[i:]
	backlog := w.backlog

	if backlog != nil && i > 0 {
		go func(n int) {
			if err := backlog.TrimDrained(context.Background(), int64(n)); err != nil {
				log.Error("backlog trim failed: ", err)
			}
		}(i)
	}

	return drained
}

// Len reports the number of contributions currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

// WorkerSnapshot is the minimal per-worker state the fallback snapshot
// needs: its identity, its current minDiff, and how long it has been
// since its last accepted share.
type WorkerSnapshot struct {
	Address            string
	MinerID            string
	MinDiff            float64
	ElapsedSinceLast   time.Duration
}

// SnapshotByScaledDifficulty implements §4.B's fallback used when no
// DAA-anchored shares exist: for each live worker, one synthetic
// Contribution weighted by min(elapsed, 5min)/5min * minDiff, floored at
// max(1, minDiff/10) per §9's open-question resolution (a ramp-up weight
// that rounds to zero must not zero out the contribution entirely).
func SnapshotByScaledDifficulty(workers []WorkerSnapshot, now int64) []types.Contribution {
	const rampWindow = 5 * time.Minute

	out := make([]types.Contribution, 0, len(workers))
	for _, w := range workers {
		elapsed := w.ElapsedSinceLast
		if elapsed > rampWindow {
			elapsed = rampWindow
		}

		weight := elapsed.Seconds() / rampWindow.Seconds()
		diff := weight * w.MinDiff

		floor := w.MinDiff / 10
		if floor < 1 {
			floor = 1
		}
		if diff < floor {
			diff = floor
		}

		out = append(out, types.Contribution{
			Address:    w.Address,
			MinerID:    w.MinerID,
			Difficulty: diff,
			Timestamp:  now,
		})
	}

	log.Info("fallback snapshot produced ", len(out), " synthetic contributions")
	return out
}
