// Package upstream implements the external collaborators spec §6 treats
// as out of scope: the template source pub/sub feed and the block-submit
// capability. Both are interfaces so the Template Registry and Shares
// Manager can be exercised against a fake in tests; the concrete types
// here are the production wiring, grounded on the teacher's
// daemonManager (HTTP JSON-RPC submit) and storage/redis.go (redis
// client construction).
package upstream

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/go-redis/redis/v8"
	logging "github.com/ipfs/go-log/v2"

	"github.com/kaspa-pool/stratum-core/config"
	"github.com/kaspa-pool/stratum-core/pow"
)

var log = logging.Logger("upstream")

// TemplateSource is the pub/sub feed of new block templates named in
// spec §6. Listen blocks until ctx is cancelled; each received template
// invokes onTemplate with the decoded header and the network-acceptance
// target computed from the payload's bits field.
type TemplateSource interface {
	Listen(ctx context.Context, onTemplate func(header *pow.RawHeader, networkTarget *big.Int)) error
	Close() error
}

// BlockSubmitter is the block-submit capability named in spec §6:
// submit(blockWithNonce) -> success|rejected(reason).
type BlockSubmitter interface {
	Submit(ctx context.Context, headerHash []byte, rawHeader *pow.RawHeader, nonce uint64) (accepted bool, reason string, err error)
}

// templateMessage is the wire payload one pub/sub message carries: the
// raw header fields listed in §6, plus the bits needed to derive the
// network-acceptance target.
type templateMessage struct {
	Version              uint16     `json:"version"`
	ParentsByLevel        [][]string `json:"parentsByLevel"`
	HashMerkleRoot        string     `json:"hashMerkleRoot"`
	AcceptedIDMerkleRoot  string     `json:"acceptedIdMerkleRoot"`
	UTXOCommitment        string     `json:"utxoCommitment"`
	Timestamp             int64      `json:"timestamp"`
	Bits                  uint32     `json:"bits"`
	DAAScore              uint64     `json:"daaScore"`
	BlueWork              string     `json:"blueWork"`
	BlueScore             uint64     `json:"blueScore"`
	PruningPoint          string     `json:"pruningPoint"`
}

// RedisTemplateSource subscribes to a single redis pub/sub channel
// carrying JSON-encoded templateMessage payloads, the way the teacher's
// storage package already depends on go-redis/v8 for its client.
type RedisTemplateSource struct {
	client  *redis.Client
	channel string
}

func NewRedisTemplateSource(opts *config.RedisOptions, channel string) *RedisTemplateSource {
	return &RedisTemplateSource{
		client:  redis.NewClient(opts.ToRedisOptions()),
		channel: channel,
	}
}

func (r *RedisTemplateSource) Listen(ctx context.Context, onTemplate func(header *pow.RawHeader, networkTarget *big.Int)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return sub.Close()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var tm templateMessage
			if err := json.Unmarshal([]byte(msg.Payload), &tm); err != nil {
				log.Warn("malformed template payload, skipping: ", err)
				continue
			}

			header := &pow.RawHeader{
				Version:              tm.Version,
				ParentsByLevel:        tm.ParentsByLevel,
				HashMerkleRoot:       tm.HashMerkleRoot,
				AcceptedIDMerkleRoot: tm.AcceptedIDMerkleRoot,
				UTXOCommitment:       tm.UTXOCommitment,
				Timestamp:            tm.Timestamp,
				Bits:                 tm.Bits,
				DAAScore:             tm.DAAScore,
				BlueWork:             tm.BlueWork,
				BlueScore:            tm.BlueScore,
				PruningPoint:         tm.PruningPoint,
			}

			onTemplate(header, bitsToTarget(tm.Bits))
		}
	}
}

func (r *RedisTemplateSource) Close() error {
	return r.client.Close()
}

// bitsToTarget expands a compact "bits" difficulty encoding into a full
// target, the same compact-bits convention the teacher's algorithm/
// daemonManager packages inherit from Bitcoin-family headers.
func bitsToTarget(bits uint32) *big.Int {
	if bits == 0 {
		return new(big.Int)
	}
	exponent := bits >> 24
	mantissa := bits & 0x00ffffff

	target := new(big.Int).SetUint64(uint64(mantissa))
	shift := int(exponent) - 3
	if shift > 0 {
		target.Lsh(target, uint(shift*8))
	} else if shift < 0 {
		target.Rsh(target, uint(-shift*8))
	}
	return target
}
