package templatepool

import (
	"context"
	"testing"

	"github.com/kaspa-pool/stratum-core/pow"
)

type fakeSubmitter struct {
	accepted bool
	reason   string
	err      error
	calls    int
}

func (f *fakeSubmitter) Submit(ctx context.Context, headerHash []byte, rawHeader *pow.RawHeader, nonce uint64) (bool, string, error) {
	f.calls++
	return f.accepted, f.reason, f.err
}

func header(daaScore uint64, merkle string) *pow.RawHeader {
	return &pow.RawHeader{
		HashMerkleRoot: merkle,
		DAAScore:       daaScore,
	}
}

func TestOnTemplateNotifiesListenersAndDedupes(t *testing.T) {
	r := NewRegistry(8, &fakeSubmitter{})

	var received int
	var lastJobID string
	r.Register(func(jobID string, prePoWHash []byte, timestamp int64, rawHeader *pow.RawHeader) {
		received++
		lastJobID = jobID
	})

	h := header(10, "aa")
	r.OnTemplate(h, nil)
	if received != 1 {
		t.Fatalf("expected one notification, got %d", received)
	}

	r.OnTemplate(h, nil) // same header -> identical prePoWHash -> no-op
	if received != 1 {
		t.Fatalf("expected duplicate template to be ignored, got %d notifications", received)
	}

	if _, ok := r.HashOfJob(lastJobID); !ok {
		t.Fatal("expected jobId to resolve to a cached headerHash")
	}
}

func TestEvictionIsFIFO(t *testing.T) {
	r := NewRegistry(2, &fakeSubmitter{})

	var jobIDs []string
	r.Register(func(jobID string, prePoWHash []byte, timestamp int64, rawHeader *pow.RawHeader) {
		jobIDs = append(jobIDs, jobID)
	})

	r.OnTemplate(header(1, "aa"), nil)
	r.OnTemplate(header(2, "bb"), nil)
	r.OnTemplate(header(3, "cc"), nil)

	if len(jobIDs) != 3 {
		t.Fatalf("expected 3 templates accepted, got %d", len(jobIDs))
	}

	if _, ok := r.HashOfJob(jobIDs[0]); ok {
		t.Fatal("expected the oldest job to be evicted once the cache exceeds capacity")
	}
	if _, ok := r.HashOfJob(jobIDs[2]); !ok {
		t.Fatal("expected the newest job to still be cached")
	}
}

func TestSubmitRejectedTemplateMissing(t *testing.T) {
	r := NewRegistry(4, &fakeSubmitter{})
	result := r.Submit("does-not-exist", 1)
	if result.Success {
		t.Fatal("expected submit against an uncached header to fail")
	}
}

func TestSubmitSuccess(t *testing.T) {
	sub := &fakeSubmitter{accepted: true}
	r := NewRegistry(4, sub)

	var hashOfTemplate string
	r.Register(func(jobID string, prePoWHash []byte, timestamp int64, rawHeader *pow.RawHeader) {
		hashOfTemplate = jobID
	})
	r.OnTemplate(header(1, "aa"), nil)

	headerHash, ok := r.HashOfJob(hashOfTemplate)
	if !ok {
		t.Fatal("expected cached headerHash for the accepted template")
	}

	result := r.Submit(headerHash, 42)
	if !result.Success {
		t.Fatalf("expected submit to succeed, got reason %q", result.Reason)
	}
	if sub.calls != 1 {
		t.Fatalf("expected submitter to be invoked once, got %d", sub.calls)
	}
}

func TestDAAScoreOfJobUnknown(t *testing.T) {
	r := NewRegistry(4, &fakeSubmitter{})
	if got := r.DAAScoreOfJob("ffff"); got != 0 {
		t.Fatalf("DAAScoreOfJob(unknown) = %d, want 0", got)
	}
}
