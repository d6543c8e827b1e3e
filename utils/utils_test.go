package utils

import (
	"encoding/hex"
	"encoding/json"
	"testing"
)

func TestReverseBytes(t *testing.T) {
	in := []byte{0x01, 0x02, 0x03, 0x04}
	out := ReverseBytes(in)
	if hex.EncodeToString(out) != "04030201" {
		t.Fatalf("got %x", out)
	}
	if hex.EncodeToString(in) != "01020304" {
		t.Fatalf("ReverseBytes mutated its input: %x", in)
	}
}

func TestPackUint16BE(t *testing.T) {
	if hex.EncodeToString(PackUint16BE(0x1234)) != "1234" {
		t.Fail()
	}
}

func TestRandHexBytesLength(t *testing.T) {
	s := RandHexBytes(2)
	if len(s) != 4 {
		t.Fatalf("expected 4 hex chars for 2 bytes, got %q", s)
	}
}

func TestRawJsonToString(t *testing.T) {
	raw, _ := json.Marshal("hello")
	if got := RawJsonToString(raw); got != "hello" {
		t.Fatalf("RawJsonToString() = %q, want %q", got, "hello")
	}
}

func TestGetReadableHashRateString(t *testing.T) {
	cases := map[float64]string{
		0:       "0.00 H",
		500:     "500.00 H",
		1500:    "1.50 KH",
		1500000: "1.50 MH",
	}
	for hr, want := range cases {
		if got := GetReadableHashRateString(hr); got != want {
			t.Errorf("GetReadableHashRateString(%v) = %q, want %q", hr, got, want)
		}
	}
}
