package stratum

import (
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"

	"golang.org/x/crypto/blake2b"
)

// ExtraNonceGenerator assigns each subscribing connection a private nonce
// sub-space, adapted from the teacher's jobs.ExtraNonce1Generator but sized
// from config (0..3 bytes per spec §6) instead of a fixed 4. Values are
// derived from a per-process random key expanded with a monotonic counter
// via blake2b, rather than drawing straight from crypto/rand per
// connection — the extranonce space is only 1-3 bytes wide, so a busy pool
// handing out thousands of connections benefits from a keyed-expansion
// scheme over raw random draws.
type ExtraNonceGenerator struct {
	Size    int
	key     [32]byte
	counter uint64
}

func NewExtraNonceGenerator(size int) *ExtraNonceGenerator {
	if size < 0 {
		size = 0
	}
	if size > 3 {
		size = 3
	}

	g := &ExtraNonceGenerator{Size: size}
	_, _ = rand.Read(g.key[:])
	return g
}

// Next returns a fresh extranonce, or nil when extranonce assignment is
// disabled (size 0).
func (g *ExtraNonceGenerator) Next() []byte {
	if g.Size == 0 {
		return nil
	}

	n := atomic.AddUint64(&g.counter, 1)
	var counterBytes [8]byte
	binary.BigEndian.PutUint64(counterBytes[:], n)

	h, _ := blake2b.New256(g.key[:])
	h.Write(counterBytes[:])
	digest := h.Sum(nil)

	b := make([]byte, g.Size)
	copy(b, digest)
	return b
}
