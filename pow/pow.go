// Package pow provides the PoW capability named in spec §6 as an opaque,
// out-of-scope collaborator: calculateTarget, newPoW, checkWork and header
// finalization. Kaspa's real proof-of-work primitive is explicitly out of
// scope (spec §1); this package supplies a reference/test double built the
// way the teacher built its scrypt/x11 algorithm package, so the Shares
// Manager and Template Registry can be exercised by unit tests without a
// live node.
package pow

import (
	"encoding/hex"
	"math/big"

	x11 "github.com/samli88/go-x11-hash"
)

// RawHeader is the header shape the template source delivers (§6): the
// fields needed to finalize a hash and check work, independent of any
// particular wire encoding.
type RawHeader struct {
	Version               uint16
	ParentsByLevel         [][]string
	HashMerkleRoot         string
	AcceptedIDMerkleRoot   string
	UTXOCommitment         string
	Timestamp              int64
	Bits                   uint32
	Nonce                  uint64
	DAAScore               uint64
	BlueWork               string
	BlueScore              uint64
	PruningPoint           string
}

// MaxTarget mirrors the teacher's algorithm.MaxTarget: the difficulty-1
// target used to derive a per-difficulty target via calculateTarget.
var MaxTarget, _ = new(big.Int).SetString("00000000FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF", 16)

// CalculateTarget converts a share difficulty into the target a header
// hash must fall under: target = MaxTarget / difficulty.
func CalculateTarget(difficulty float64) *big.Int {
	if difficulty <= 0 {
		return new(big.Int).Set(MaxTarget)
	}
	bigDiff := new(big.Float).SetFloat64(difficulty)
	quotient := new(big.Float).Quo(new(big.Float).SetInt(MaxTarget), bigDiff)
	target, _ := quotient.Int(nil)
	return target
}

// Handle is the per-template PoW capability: checking a submitted nonce
// against a target, and finalizing a header (with nonce stamped in) to
// recover the block hash the network would see.
type Handle interface {
	CheckWork(nonce uint64) (isBlock bool, target *big.Int)
	Finalize(nonce uint64) (headerHash []byte)
	NetworkTarget() *big.Int
}

// handle is the x11-hash-backed reference implementation. It stands in for
// Kaspa's real PoW primitive (blake3-based heavy hashing over the header)
// the way the teacher's algorithm package stands in for litecoin's scrypt:
// cheap to compute, deterministic, good enough to drive the accept/reject
// branches the Shares Manager exercises.
type handle struct {
	header        *RawHeader
	networkTarget *big.Int
}

// NewPoW builds a PoW handle bound to one template's header. networkTarget
// is the block-acceptance target (MaxTarget scaled by network difficulty);
// a zero value disables block-candidate detection, treating every share as
// a share-only submission.
func NewPoW(header *RawHeader, networkTarget *big.Int) Handle {
	if networkTarget == nil {
		networkTarget = new(big.Int)
	}
	return &handle{header: header, networkTarget: networkTarget}
}

// CheckWork finalizes the header with nonce stamped in and compares the
// resulting hash, read as a big-endian integer, against the network
// target. The caller compares the same hash against a per-worker target
// separately (calculateTarget(workerStats.minDiff)) per §4.D step 4.
func (h *handle) CheckWork(nonce uint64) (bool, *big.Int) {
	hash := h.Finalize(nonce)
	hashInt := new(big.Int).SetBytes(hash)
	if h.networkTarget.Sign() == 0 {
		return false, hashInt
	}
	return hashInt.Cmp(h.networkTarget) <= 0, hashInt
}

// Finalize stamps nonce into the header and returns its hash. Kaspa
// headers hash big-endian for PoW comparison purposes; the test double
// keeps that convention so CheckWork's target comparison matches what a
// real finalize/checkWork pair would produce.
func (h *handle) Finalize(nonce uint64) []byte {
	h.header.Nonce = nonce
	return x11Hash(serializeHeader(h.header))
}

func (h *handle) NetworkTarget() *big.Int {
	return h.networkTarget
}

// PrePoWHash hashes the header before a nonce is stamped in, the value
// handed to listeners when a new template arrives (§4.A, §9's typed
// subscription note). It never mutates the caller's header.
func PrePoWHash(header *RawHeader) []byte {
	clone := *header
	clone.Nonce = 0
	return x11Hash(serializeHeader(&clone))
}

func x11Hash(data []byte) []byte {
	dst := make([]byte, 32)
	x11.New().Hash(data, dst)
	return dst
}

// serializeHeader flattens the fields that matter for hashing. The real
// wire layout is the opaque "job encoding" capability named in spec §6;
// this is only what the test double needs to produce a stable, nonce-
// sensitive hash.
func serializeHeader(h *RawHeader) []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, byte(h.Version), byte(h.Version>>8))
	buf = appendHex(buf, h.HashMerkleRoot)
	buf = appendHex(buf, h.AcceptedIDMerkleRoot)
	buf = appendHex(buf, h.UTXOCommitment)
	buf = appendUint64(buf, uint64(h.Timestamp))
	buf = appendUint64(buf, uint64(h.Bits))
	buf = appendUint64(buf, h.Nonce)
	buf = appendUint64(buf, h.DAAScore)
	return buf
}

func appendHex(buf []byte, s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		return buf
	}
	return append(buf, b...)
}

func appendUint64(buf []byte, v uint64) []byte {
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(v>>(8*i)))
	}
	return buf
}
