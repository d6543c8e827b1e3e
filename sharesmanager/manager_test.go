package sharesmanager

import (
	"context"
	"math/big"
	"testing"

	"github.com/kaspa-pool/stratum-core/pow"
	"github.com/kaspa-pool/stratum-core/sharewindow"
	"github.com/kaspa-pool/stratum-core/templatepool"
	"github.com/kaspa-pool/stratum-core/types"
	"github.com/kaspa-pool/stratum-core/workerstats"
)

type fakeSubmitter struct {
	accepted bool
	calls    int
}

func (f *fakeSubmitter) Submit(ctx context.Context, headerHash []byte, rawHeader *pow.RawHeader, nonce uint64) (bool, string, error) {
	f.calls++
	return f.accepted, "", nil
}

func newTestManager(t *testing.T, submitter *fakeSubmitter, networkTarget *big.Int) (*Manager, string, string) {
	t.Helper()
	registry := templatepool.NewRegistry(8, submitter)
	window := sharewindow.New()
	m := New(registry, window)

	var headerHash, jobID string
	registry.Register(func(id string, prePoWHash []byte, ts int64, rawHeader *pow.RawHeader) {
		jobID = id
	})
	registry.OnTemplate(&pow.RawHeader{HashMerkleRoot: "aa", DAAScore: 7}, networkTarget)

	headerHash, _ = registry.HashOfJob(jobID)
	return m, headerHash, jobID
}

func TestAddShareUnauthorized(t *testing.T) {
	m, headerHash, jobID := newTestManager(t, &fakeSubmitter{}, nil)
	accepted, errCode := m.AddShare(nil, "addr", "w1", headerHash, 1, 42, jobID)
	if accepted || errCode != types.ErrUnauthorizedWorker {
		t.Fatalf("got (%v, %v), want (false, ErrUnauthorizedWorker)", accepted, errCode)
	}
}

func TestAddShareStaleJob(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeSubmitter{}, nil)
	stats := workerstats.New("addr", "w1", 1, false)

	accepted, errCode := m.AddShare(stats, "addr", "w1", "unknown-hash", 1, 42, "ffff")
	if accepted || errCode != types.ErrJobNotFound {
		t.Fatalf("got (%v, %v), want (false, ErrJobNotFound)", accepted, errCode)
	}
	if stats.StaleShares.Load() != 1 {
		t.Fatal("expected StaleShares to be incremented")
	}
}

func TestAddShareDuplicateNonce(t *testing.T) {
	m, headerHash, jobID := newTestManager(t, &fakeSubmitter{}, nil)
	stats := workerstats.New("addr", "w1", 1, false)

	accepted, errCode := m.AddShare(stats, "addr", "w1", headerHash, 1, 7, jobID)
	if !accepted || errCode != 0 {
		t.Fatalf("first submit should be accepted, got (%v, %v)", accepted, errCode)
	}

	accepted, errCode = m.AddShare(stats, "addr", "w1", headerHash, 1, 7, jobID)
	if accepted || errCode != types.ErrDuplicateShare {
		t.Fatalf("resubmitting the same nonce should be rejected as duplicate, got (%v, %v)", accepted, errCode)
	}
}

func TestAddShareLowDifficulty(t *testing.T) {
	m, headerHash, jobID := newTestManager(t, &fakeSubmitter{}, nil)
	stats := workerstats.New("addr", "w1", 1e30, false)

	accepted, errCode := m.AddShare(stats, "addr", "w1", headerHash, 1e30, 1, jobID)
	if accepted || errCode != types.ErrLowDifficultyShare {
		t.Fatalf("an absurdly high minDiff should reject nearly every hash, got (%v, %v)", accepted, errCode)
	}
	if stats.InvalidShares.Load() != 1 {
		t.Fatal("expected InvalidShares to be incremented")
	}
}

func TestAddShareAcceptedAndCredited(t *testing.T) {
	m, headerHash, jobID := newTestManager(t, &fakeSubmitter{}, nil)
	stats := workerstats.New("addr", "w1", 1, false)

	accepted, errCode := m.AddShare(stats, "addr", "w1", headerHash, 1, 99, jobID)
	if !accepted || errCode != 0 {
		t.Fatalf("got (%v, %v), want (true, 0)", accepted, errCode)
	}
	if stats.SharesFound.Load() != 1 {
		t.Fatal("expected SharesFound to be incremented")
	}
	if m.Window.Len() != 1 {
		t.Fatalf("expected one contribution pushed to the share window, got %d", m.Window.Len())
	}
}

func TestAddShareBlockFound(t *testing.T) {
	submitter := &fakeSubmitter{accepted: true}
	m, headerHash, jobID := newTestManager(t, submitter, pow.MaxTarget)
	stats := workerstats.New("addr", "w1", 1, false)

	accepted, errCode := m.AddShare(stats, "addr", "w1", headerHash, 1, 1, jobID)
	if !accepted || errCode != 0 {
		t.Fatalf("got (%v, %v), want (true, 0)", accepted, errCode)
	}
	if submitter.calls != 1 {
		t.Fatal("expected a block submission to be attempted")
	}
	if stats.BlocksFound.Load() != 1 {
		t.Fatal("expected BlocksFound to be incremented")
	}
}
