package coordinator

import (
	"testing"

	"github.com/kaspa-pool/stratum-core/stratum"
)

func TestParseClientDifficulty(t *testing.T) {
	cases := map[string]struct {
		want float64
		ok   bool
	}{
		"d=512":    {512, true},
		"diff=256": {256, true},
		"x=foo":    {0, false},
		"":         {0, false},
		"d=notanumber": {0, false},
	}
	for password, want := range cases {
		got, ok := parseClientDifficulty(password)
		if ok != want.ok || (ok && got != want.want) {
			t.Errorf("parseClientDifficulty(%q) = (%v, %v), want (%v, %v)", password, got, ok, want.want, want.ok)
		}
	}
}

func TestNearestPowerOfTwo(t *testing.T) {
	cases := map[float64]float64{
		0:    0,
		1:    1,
		5:    4,
		6:    8,
		100:  128,
		1025: 1024,
	}
	for in, want := range cases {
		if got := nearestPowerOfTwo(in); got != want {
			t.Errorf("nearestPowerOfTwo(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestDecodeSubmittedNonceBitmain(t *testing.T) {
	conn := &stratum.Connection{Encoding: stratum.Bitmain}
	nonce, err := decodeSubmittedNonce(conn, "1234")
	if err != nil || nonce != 1234 {
		t.Fatalf("got (%v, %v), want (1234, nil)", nonce, err)
	}
}

func TestDecodeSubmittedNonceBigHeader(t *testing.T) {
	conn := &stratum.Connection{Encoding: stratum.BigHeader, ExtraNonce: []byte{0xAB}}
	nonce, err := decodeSubmittedNonce(conn, "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if nonce == 0 {
		t.Fatal("expected a non-zero decoded nonce")
	}
}

func TestHexString(t *testing.T) {
	if got := hexString([]byte{0xAB, 0xCD}); got != "abcd" {
		t.Fatalf("hexString() = %q, want %q", got, "abcd")
	}
}
