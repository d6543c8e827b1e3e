package pow

import (
	"math/big"
	"testing"
)

func sampleHeader() *RawHeader {
	return &RawHeader{
		Version:              1,
		HashMerkleRoot:       "aa",
		AcceptedIDMerkleRoot: "bb",
		UTXOCommitment:       "cc",
		Timestamp:            1000,
		Bits:                 486604799,
		DAAScore:             42,
	}
}

func TestCalculateTarget(t *testing.T) {
	if got := CalculateTarget(0); got.Cmp(MaxTarget) != 0 {
		t.Fatalf("CalculateTarget(0) = %v, want MaxTarget", got)
	}

	target := CalculateTarget(2)
	half := new(big.Int).Div(MaxTarget, big.NewInt(2))
	if target.Cmp(half) != 0 {
		t.Fatalf("CalculateTarget(2) = %v, want %v", target, half)
	}
}

func TestPrePoWHashDeterministicAndNonceIndependent(t *testing.T) {
	h := sampleHeader()
	h.Nonce = 777

	first := PrePoWHash(h)
	second := PrePoWHash(h)
	if string(first) != string(second) {
		t.Fatal("PrePoWHash should be deterministic for the same header")
	}
	if h.Nonce != 777 {
		t.Fatal("PrePoWHash must not mutate the caller's header")
	}
}

func TestFinalizeVariesWithNonce(t *testing.T) {
	handle := NewPoW(sampleHeader(), nil)

	a := handle.Finalize(1)
	b := handle.Finalize(2)
	if string(a) == string(b) {
		t.Fatal("expected different nonces to finalize to different hashes")
	}
}

func TestCheckWorkWithoutNetworkTarget(t *testing.T) {
	handle := NewPoW(sampleHeader(), nil)

	isBlock, hash := handle.CheckWork(1)
	if isBlock {
		t.Fatal("a zero network target must never report a block candidate")
	}
	if hash == nil {
		t.Fatal("expected a non-nil hash integer")
	}
}

func TestCheckWorkWithPermissiveNetworkTarget(t *testing.T) {
	// 2^256 exceeds every 256-bit hash, so any nonce qualifies.
	handle := NewPoW(sampleHeader(), new(big.Int).Lsh(big.NewInt(1), 256))

	isBlock, _ := handle.CheckWork(1)
	if !isBlock {
		t.Fatal("expected a hash under a 2^256 network target to qualify as a block candidate")
	}
}
