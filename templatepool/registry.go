// Package templatepool implements the Template Registry (spec §4.A): it
// holds current and recent block templates, derives short job IDs, maps
// job -> DAA score, caps its cache, and fans new templates out to
// registered listeners (the Stratum Coordinator).
package templatepool

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"math/big"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/kaspa-pool/stratum-core/pow"
	"github.com/kaspa-pool/stratum-core/upstream"
)

var log = logging.Logger("templatepool")

// Listener receives every accepted template, mirroring the teacher's
// event-emitter style (subscribe/notify) generalized to a typed callback
// per spec §9's "typed subscriptions" design note.
type Listener func(jobID string, prePoWHash []byte, timestamp int64, rawHeader *pow.RawHeader)

// Template is one cached block template (spec §3).
type Template struct {
	HeaderHash string
	RawHeader  *pow.RawHeader
	Pow        pow.Handle
	DAAScore   uint64
	JobID      string
}

// Registry is the Template Registry. All state is owned exclusively by
// this type and mutated only under mu, per spec §5's shared-resource
// policy.
type Registry struct {
	mu sync.Mutex

	cacheSize int
	templates map[string]*Template // headerHash -> template
	hashOrder []string              // FIFO of headerHash, oldest first

	jobToHash   map[string]string // jobId -> headerHash
	jobDAAScore map[string]uint64 // jobId -> daaScore
	jobOrder    []string           // FIFO of jobId, oldest first

	listeners  []Listener
	submitter  upstream.BlockSubmitter
}

func NewRegistry(cacheSize int, submitter upstream.BlockSubmitter) *Registry {
	if cacheSize <= 0 {
		cacheSize = 8
	}
	return &Registry{
		cacheSize:   cacheSize,
		templates:   make(map[string]*Template),
		jobToHash:   make(map[string]string),
		jobDAAScore: make(map[string]uint64),
		submitter:   submitter,
	}
}

// Register adds a listener notified of every future accepted template.
func (r *Registry) Register(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// OnTemplate implements §4.A's onTemplate operation: finalize header to a
// prePoWHash identity, no-op if already cached, else build a PoW handle,
// derive a fresh jobId, evict on overflow, and notify listeners.
func (r *Registry) OnTemplate(header *pow.RawHeader, networkTarget *big.Int) {
	prePoWHash := pow.PrePoWHash(header)
	headerHash := hex.EncodeToString(prePoWHash)

	r.mu.Lock()
	if _, exists := r.templates[headerHash]; exists {
		r.mu.Unlock()
		return
	}

	jobID, err := r.freshJobIDLocked()
	if err != nil {
		r.mu.Unlock()
		log.Error("failed deriving a fresh jobId, skipping template: ", err)
		return
	}

	tmpl := &Template{
		HeaderHash: headerHash,
		RawHeader:  header,
		Pow:        pow.NewPoW(header, networkTarget),
		DAAScore:   header.DAAScore,
		JobID:      jobID,
	}

	r.templates[headerHash] = tmpl
	r.hashOrder = append(r.hashOrder, headerHash)
	r.jobToHash[jobID] = headerHash
	r.jobDAAScore[jobID] = header.DAAScore
	r.jobOrder = append(r.jobOrder, jobID)

	r.evictLocked()

	listeners := make([]Listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	log.Info("new template jobId=", jobID, " daaScore=", header.DAAScore)
	for _, l := range listeners {
		l(jobID, prePoWHash, header.Timestamp, header)
	}
}

// evictLocked drops the oldest template and its oldest job entry once the
// cache exceeds cacheSize, FIFO on insertion order. Must hold mu.
func (r *Registry) evictLocked() {
	for len(r.hashOrder) > r.cacheSize {
		oldestHash := r.hashOrder[0]
		r.hashOrder = r.hashOrder[1:]
		delete(r.templates, oldestHash)
	}
	for len(r.jobOrder) > r.cacheSize {
		oldestJob := r.jobOrder[0]
		r.jobOrder = r.jobOrder[1:]
		delete(r.jobToHash, oldestJob)
		delete(r.jobDAAScore, oldestJob)
	}
}

// freshJobIDLocked derives a random 2-byte hex jobId not already in use,
// retrying on collision per §4.A's failure policy. Must hold mu.
func (r *Registry) freshJobIDLocked() (string, error) {
	for attempt := 0; attempt < 16; attempt++ {
		b := make([]byte, 2)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}
		id := hex.EncodeToString(b)
		if _, taken := r.jobToHash[id]; !taken {
			return id, nil
		}
	}
	return "", errJobIDExhausted
}

// HashOfJob implements §4.A's hashOfJob(jobId) -> headerHash?.
func (r *Registry) HashOfJob(jobID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hash, ok := r.jobToHash[jobID]
	return hash, ok
}

// PowOf implements §4.A's powOf(headerHash) -> pow-handle?.
func (r *Registry) PowOf(headerHash string) (pow.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tmpl, ok := r.templates[headerHash]
	if !ok {
		return nil, false
	}
	return tmpl.Pow, true
}

// DAAScoreOfJob implements §4.A's daaScoreOfJob(jobId) -> daaScore,
// returning 0 for an unknown job.
func (r *Registry) DAAScoreOfJob(jobID string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobDAAScore[jobID]
}

// TemplateByJob resolves the full cached Template for a jobId, for
// header-field access beyond the hash/pow split. The Shares Manager does
// not call it; it uses HashOfJob and PowOf.
func (r *Registry) TemplateByJob(jobID string) (*Template, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hash, ok := r.jobToHash[jobID]
	if !ok {
		return nil, false
	}
	tmpl, ok := r.templates[hash]
	return tmpl, ok
}

// SubmitResult is the outcome of §4.A's submit(...) operation.
type SubmitResult struct {
	Success bool
	Reason  string
}

// Submit stamps nonce into the cached template's header, finalizes it to
// recover the submitted block hash, and hands it to the upstream submit
// capability.
func (r *Registry) Submit(headerHash string, nonce uint64) SubmitResult {
	r.mu.Lock()
	tmpl, ok := r.templates[headerHash]
	r.mu.Unlock()
	if !ok {
		return SubmitResult{Success: false, Reason: "template no longer cached"}
	}

	finalHash := tmpl.Pow.Finalize(nonce)

	accepted, reason, err := r.submitter.Submit(context.Background(), finalHash, tmpl.RawHeader, nonce)
	if err != nil {
		log.Error("block submit upstream fault: ", err)
		return SubmitResult{Success: false, Reason: "upstream fault"}
	}
	if !accepted {
		return SubmitResult{Success: false, Reason: reason}
	}

	return SubmitResult{Success: true}
}

var errJobIDExhausted = errors.New("exhausted jobId retries")
