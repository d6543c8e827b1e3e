package stratum

import "testing"

func TestNewExtraNonceGeneratorClampsSize(t *testing.T) {
	g := NewExtraNonceGenerator(-1)
	if g.Size != 0 {
		t.Fatalf("negative size should clamp to 0, got %d", g.Size)
	}

	g = NewExtraNonceGenerator(10)
	if g.Size != 3 {
		t.Fatalf("oversized request should clamp to 3, got %d", g.Size)
	}
}

func TestNextDisabledReturnsNil(t *testing.T) {
	g := NewExtraNonceGenerator(0)
	if g.Next() != nil {
		t.Fatal("a generator with size 0 should never assign an extranonce")
	}
}

func TestNextProducesDistinctValuesOfCorrectLength(t *testing.T) {
	g := NewExtraNonceGenerator(2)

	a := g.Next()
	b := g.Next()
	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("expected 2-byte extranonces, got %d and %d bytes", len(a), len(b))
	}
	if string(a) == string(b) {
		t.Fatal("consecutive extranonces should differ")
	}
}
