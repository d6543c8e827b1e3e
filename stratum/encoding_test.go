package stratum

import "testing"

func TestDetectEncoding(t *testing.T) {
	cases := map[string]Encoding{
		"cgminer/bitmain-antminer-s19":    Bitmain,
		"BITMAIN.S19":                     Bitmain,
		"lolMiner/1.68":                   BigHeader,
		"":                                BigHeader,
	}
	for agent, want := range cases {
		if got := DetectEncoding(agent); got != want {
			t.Errorf("DetectEncoding(%q) = %v, want %v", agent, got, want)
		}
	}
}

func TestSubscribeResultShapes(t *testing.T) {
	bigHeader := SubscribeResult(BigHeader, nil)
	if len(bigHeader) != 2 {
		t.Fatalf("BigHeader subscribe result should have 2 elements, got %d", len(bigHeader))
	}

	bitmain := SubscribeResult(Bitmain, []byte{0xAB})
	if len(bitmain) != 3 {
		t.Fatalf("Bitmain subscribe result should have 3 elements, got %d", len(bitmain))
	}
	if bitmain[1] != "ab" {
		t.Fatalf("expected hex-encoded extranonce, got %v", bitmain[1])
	}
}

func TestParseNonce(t *testing.T) {
	n, err := ParseNonce(Bitmain, "1234")
	if err != nil || n != 1234 {
		t.Fatalf("ParseNonce(Bitmain, 1234) = (%v, %v)", n, err)
	}

	n, err = ParseNonce(BigHeader, "1234")
	if err != nil || n != 0x1234 {
		t.Fatalf("ParseNonce(BigHeader, 1234) = (%v, %v)", n, err)
	}
}

func TestComposeNonceHex(t *testing.T) {
	extraNonce := []byte{0xAB}
	got := ComposeNonceHex(extraNonce, "1")
	want := "ab" + "00000000000001" // 14 zero-padded chars after the 2-char extranonce
	if got != want {
		t.Fatalf("ComposeNonceHex() = %q, want %q", got, want)
	}

	if got := ComposeNonceHex(nil, "abcd"); got != "abcd" {
		t.Fatalf("ComposeNonceHex with no extranonce should pass through unchanged, got %q", got)
	}
}
