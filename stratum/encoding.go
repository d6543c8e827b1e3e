package stratum

import (
	"encoding/hex"
	"regexp"
	"strconv"
)

// Encoding selects the mining.notify param shape a connection expects.
type Encoding int

const (
	BigHeader Encoding = iota
	Bitmain
)

// bitmainAgentPattern matches the miner-agent strings Bitmain firmware
// reports on subscribe, flipping the connection's job encoding.
var bitmainAgentPattern = regexp.MustCompile(`(?i)bitmain|antminer`)

// DetectEncoding implements §4.F subscribe's encoding-flip rule.
func DetectEncoding(agent string) Encoding {
	if bitmainAgentPattern.MatchString(agent) {
		return Bitmain
	}
	return BigHeader
}

// SubscribeResult builds the tuple the client expects back from
// mining.subscribe, per the response shapes named in §4.F.
func SubscribeResult(encoding Encoding, extraNonce []byte) []interface{} {
	if encoding == Bitmain {
		remaining := 8 - len(extraNonce)/2
		return []interface{}{nil, hex.EncodeToString(extraNonce), remaining}
	}
	return []interface{}{true, "EthereumStratum/1.0.0"}
}

// EncodeJobParams stands in for the opaque Job encoding capability named
// in §6. The encoded param is the hex of prePoWHash; Bitmain encoding adds
// timestamp as a third param. It does not reproduce a real wire byte
// layout and takes no rawHeader; it is a stable, encoding-aware
// placeholder that an implementation backed by the real layout would
// replace without touching any caller.
func EncodeJobParams(jobID string, prePoWHash []byte, timestamp int64, encoding Encoding) []interface{} {
	encodedParams := hex.EncodeToString(prePoWHash)

	if encoding == Bitmain {
		return []interface{}{jobID, encodedParams, timestamp}
	}
	return []interface{}{jobID, encodedParams}
}

// ParseNonce parses a submitted nonce per §4.F: Bitmain encoding treats
// the value as decimal, otherwise as hex.
func ParseNonce(encoding Encoding, raw string) (uint64, error) {
	if encoding == Bitmain {
		return strconv.ParseUint(raw, 10, 64)
	}
	return strconv.ParseUint(raw, 16, 64)
}

// ParseExtranonce2Decimal parses the decimal extranonce2 a Bitmain client
// sends. ComposeNonceHex below does not call it.
func ParseExtranonce2Decimal(raw string) (uint64, error) {
	return strconv.ParseUint(raw, 10, 64)
}

// ComposeNonceHex left-pads extranonce2 to 16-<extranonce length> hex
// chars and prepends the connection's extranonce, per §4.F submit.
func ComposeNonceHex(extraNonce []byte, extranonce2Hex string) string {
	if len(extraNonce) == 0 {
		return extranonce2Hex
	}

	width := 16 - len(hex.EncodeToString(extraNonce))
	for len(extranonce2Hex) < width {
		extranonce2Hex = "0" + extranonce2Hex
	}
	return hex.EncodeToString(extraNonce) + extranonce2Hex
}
