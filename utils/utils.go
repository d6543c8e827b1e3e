package utils

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"os"
	"strconv"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("utils")

// RandHexBytes returns n cryptographically random bytes hex-encoded.
func RandHexBytes(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		log.Error(err)
	}
	return hex.EncodeToString(b)
}

// RandPositiveInt64 returns a random positive int64, used as a JSON-RPC
// request id when talking to an upstream daemon.
func RandPositiveInt64() int64 {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		log.Error(err)
	}
	i := int64(binary.LittleEndian.Uint64(b))
	if i < 0 {
		i = -i
	}
	return i
}

func PackUint16BE(n uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, n)
	return b
}

func PackUint32BE(n uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return b
}

func ReverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func Jsonify(i interface{}) []byte {
	r, err := json.Marshal(i)
	if err != nil {
		log.Error("Jsonify: ", err)
		return nil
	}
	return r
}

func JsonifyIndentString(i interface{}) string {
	r, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		log.Error("JsonifyIndentString: ", err)
		return ""
	}
	return string(r)
}

// RawJsonToString unwraps a JSON-encoded string param from a stratum
// request, as found in message.Params entries.
func RawJsonToString(raw json.RawMessage) string {
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		log.Error(err)
	}
	return str
}

// GetReadableHashRateString renders a hashes-per-second value with the
// appropriate SI prefix (H, KH, MH, ...) for log and stats output.
func GetReadableHashRateString(hashrate float64) string {
	i := 0
	units := []string{" H", " KH", " MH", " GH", " TH", " PH", " EH", " ZH", " YH"}
	for hashrate > 1000 && i+1 < len(units) {
		i++
		hashrate = hashrate / 1000
	}
	return strconv.FormatFloat(hashrate, 'f', 2, 64) + units[i]
}

func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}
