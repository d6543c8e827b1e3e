// Package coordinator merges the Stratum Protocol Handler (spec §4.F) and
// the Stratum Coordinator (§4.H) into one package. Both need the same
// shared mutex-protected state — the miners map and the subscriber set,
// per §5's "global message critical section" — so splitting them across
// packages would only move that state behind an exported, still-coupled
// surface. The teacher's poolManager wires its whole system the same way:
// one place owns the state every handler touches.
package coordinator

import (
	"encoding/hex"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/kaspa-pool/stratum-core/banning"
	"github.com/kaspa-pool/stratum-core/config"
	"github.com/kaspa-pool/stratum-core/pow"
	"github.com/kaspa-pool/stratum-core/sharesmanager"
	"github.com/kaspa-pool/stratum-core/sharewindow"
	"github.com/kaspa-pool/stratum-core/stratum"
	"github.com/kaspa-pool/stratum-core/templatepool"
	"github.com/kaspa-pool/stratum-core/types"
	"github.com/kaspa-pool/stratum-core/utils"
	"github.com/kaspa-pool/stratum-core/vardiff"
	"github.com/kaspa-pool/stratum-core/workerstats"
)

var log = logging.Logger("coordinator")

// Coordinator owns miners and subscribers under one mutex (§5), dispatches
// stratum requests (§4.F), and fans new templates out to subscribers
// (§4.H). The Server (Component G) reaches it only through the
// stratum.MessageHandler interface.
type Coordinator struct {
	rootOpts    *config.Options
	stratumOpts *config.StratumOptions

	registry *templatepool.Registry
	shares   *sharesmanager.Manager
	vardiff  *vardiff.Controller
	banner   *banning.Manager
	server   *stratum.Server

	extraNonceGen *stratum.ExtraNonceGenerator

	mu          sync.Mutex
	miners      map[string]*MinerData
	subscribers map[*stratum.Connection]struct{}

	latestJobID        string
	latestPrePoWHash   []byte
	latestTimestamp    int64
	haveLatestTemplate bool
}

func New(rootOpts *config.Options, registry *templatepool.Registry, shares *sharesmanager.Manager, vc *vardiff.Controller, banner *banning.Manager) *Coordinator {
	c := &Coordinator{
		rootOpts:      rootOpts,
		stratumOpts:   rootOpts.Stratum,
		registry:      registry,
		shares:        shares,
		vardiff:       vc,
		banner:        banner,
		extraNonceGen: stratum.NewExtraNonceGenerator(rootOpts.Stratum.ExtranonceSize),
		miners:        make(map[string]*MinerData),
		subscribers:   make(map[*stratum.Connection]struct{}),
	}
	registry.Register(c.onNewTemplate)
	return c
}

// AttachServer wires the Server back in after construction — the Server
// needs a MessageHandler at NewServer time, so the Coordinator's reference
// to it is set post-hoc. No Coordinator method reads that reference.
func (c *Coordinator) AttachServer(s *stratum.Server) {
	c.server = s
}

// WorkerEntries snapshots every live worker for the vardiff controller and
// the stats reporter, taken under the global mutex per §5.
func (c *Coordinator) WorkerEntries() []*workerstats.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*workerstats.Stats
	for _, miner := range c.miners {
		for _, stats := range miner.WorkerStats {
			out = append(out, stats)
		}
	}
	return out
}

// StatsReportEntries snapshots workers together with a close callback for
// their sockets, used by the Shares Manager's stats reporter.
func (c *Coordinator) StatsReportEntries() []sharesmanager.WorkerEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []sharesmanager.WorkerEntry
	for _, miner := range c.miners {
		for name, stats := range miner.WorkerStats {
			socket := miner.WorkerSocket[name]
			out = append(out, sharesmanager.WorkerEntry{
				Stats: stats,
				Close: func(reason string) {
					if socket != nil {
						socket.Close(reason)
					}
				},
			})
		}
	}
	return out
}

// FallbackSnapshotInputs snapshots every live worker's identity, minDiff,
// and time-since-last-share, the inputs the Share Window's fallback
// snapshot needs, taken under the global mutex per §5.
func (c *Coordinator) FallbackSnapshotInputs(now time.Time) []sharewindow.WorkerSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []sharewindow.WorkerSnapshot
	for _, miner := range c.miners {
		for name, stats := range miner.WorkerStats {
			out = append(out, sharewindow.WorkerSnapshot{
				Address:          stats.Address,
				MinerID:          name,
				MinDiff:          stats.MinDiff,
				ElapsedSinceLast: stats.ElapsedSinceLastShare(now),
			})
		}
	}
	return out
}

// WorkerSummary is the read-only view the Allocator API's /miner/{address}
// endpoint exposes for one worker.
type WorkerSummary struct {
	Name            string  `json:"name"`
	Difficulty      float64 `json:"difficulty"`
	HashrateGHs     float64 `json:"hashrateGHs"`
	SharesFound     int64   `json:"sharesFound"`
	StaleShares     int64   `json:"staleShares"`
	InvalidShares   int64   `json:"invalidShares"`
	DuplicateShares int64   `json:"duplicateShares"`
	BlocksFound     int64   `json:"blocksFound"`
	Active          bool    `json:"active"`
}

// MinerSummary returns one WorkerSummary per worker currently registered
// under address, or nil if the address has no live MinerData.
func (c *Coordinator) MinerSummary(address string, now time.Time) []WorkerSummary {
	c.mu.Lock()
	miner, ok := c.miners[address]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	stats := make([]*workerstats.Stats, 0, len(miner.WorkerStats))
	for _, s := range miner.WorkerStats {
		stats = append(stats, s)
	}
	c.mu.Unlock()

	out := make([]WorkerSummary, 0, len(stats))
	for _, s := range stats {
		out = append(out, WorkerSummary{
			Name:            s.Name,
			Difficulty:      s.MinDiff,
			HashrateGHs:     s.HashrateGHs(now, 10*time.Minute),
			SharesFound:     s.SharesFound.Load(),
			StaleShares:     s.StaleShares.Load(),
			InvalidShares:   s.InvalidShares.Load(),
			DuplicateShares: s.DuplicateShares.Load(),
			BlocksFound:     s.BlocksFound.Load(),
			Active:          s.CheckActive(now) != 0,
		})
	}
	return out
}

// HandleMessage implements stratum.MessageHandler.
func (c *Coordinator) HandleMessage(conn *stratum.Connection, req *stratum.Request) {
	switch req.Method {
	case "mining.subscribe":
		c.handleSubscribe(conn, req)
	case "mining.authorize":
		c.handleAuthorize(conn, req)
	case "mining.submit":
		c.handleSubmit(conn, req)
	default:
		log.Warn("unknown method from ", conn.RemoteAddr, ": ", req.Method)
		c.writeError(conn, req.ID, int(types.ErrUnknown), types.ErrUnknown.String())
		conn.Close("unknown method")
	}
}

// OnDisconnect implements stratum.MessageHandler: cleans the connection out
// of every MinerData it participated in, per §4.G's close contract.
func (c *Coordinator) OnDisconnect(conn *stratum.Connection) {
	c.mu.Lock()
	delete(c.subscribers, conn)

	for name, w := range conn.Workers {
		miner, ok := c.miners[w.Address]
		if !ok {
			continue
		}
		delete(miner.Sockets, conn)
		if owner, ok2 := miner.WorkerSocket[name]; ok2 && owner == conn {
			delete(miner.WorkerSocket, name)
			delete(miner.WorkerStats, name)
		}
		if miner.empty() {
			delete(c.miners, w.Address)
		}
	}
	c.mu.Unlock()

	log.Info("connection closed: ", conn.RemoteAddr, " reason=", conn.CloseReason)
}

func (c *Coordinator) handleSubscribe(conn *stratum.Connection, req *stratum.Request) {
	c.mu.Lock()
	if conn.Subscribed {
		c.mu.Unlock()
		c.writeError(conn, req.ID, int(types.ErrUnknown), "already subscribed")
		conn.Close("re-subscribe")
		return
	}

	agent := paramString(req, 0)
	encoding := stratum.DetectEncoding(agent)
	conn.Encoding = encoding
	conn.ASICType = agent
	if c.stratumOpts.ExtranonceSize > 0 {
		conn.ExtraNonce = c.extraNonceGen.Next()
	}
	conn.Subscribed = true
	c.subscribers[conn] = struct{}{}

	result := stratum.SubscribeResult(encoding, conn.ExtraNonce)
	c.mu.Unlock()

	_ = conn.WriteLine(&stratum.Response{ID: req.ID, Result: result}, utils.Jsonify)
}

func (c *Coordinator) handleAuthorize(conn *stratum.Connection, req *stratum.Request) {
	login := paramString(req, 0)
	password := paramString(req, 1)

	parsed, err := config.ParseLogin(login)
	if err != nil {
		c.writeError(conn, req.ID, int(types.ErrUnauthorizedWorker), err.Error())
		return
	}
	address, worker := parsed.Address, parsed.Worker

	c.mu.Lock()
	if _, exists := conn.Workers[worker]; exists {
		c.mu.Unlock()
		c.writeError(conn, req.ID, int(types.ErrUnauthorizedWorker), "duplicate worker on socket")
		return
	}

	miner, ok := c.miners[address]
	if !ok {
		miner = newMinerData()
		c.miners[address] = miner
	}

	if owner, exists := miner.WorkerSocket[worker]; exists && owner != conn && !owner.Closed() {
		c.mu.Unlock()
		c.writeError(conn, req.ID, int(types.ErrUnauthorizedWorker), "worker already live on another socket")
		return
	}

	diff, varDiffEnabled := c.negotiateDifficulty(conn, password)

	stats := workerstats.New(address, worker, diff, varDiffEnabled)
	miner.WorkerStats[worker] = stats
	miner.WorkerSocket[worker] = conn
	miner.Sockets[conn] = struct{}{}
	conn.Workers[worker] = &stratum.Worker{Address: address, Name: worker}
	conn.Difficulty = diff

	var latestJobID string
	var latestPrePoWHash []byte
	var latestTimestamp int64
	haveTemplate := c.haveLatestTemplate
	if haveTemplate {
		latestJobID, latestPrePoWHash, latestTimestamp = c.latestJobID, c.latestPrePoWHash, c.latestTimestamp
	}
	c.mu.Unlock()

	_ = conn.WriteLine(&stratum.Response{ID: req.ID, Result: true}, utils.Jsonify)

	if conn.ExtraNonce != nil {
		c.writeNotification(conn, "mining.set_extranonce", []interface{}{hexString(conn.ExtraNonce)})
	}
	c.writeNotification(conn, "mining.set_difficulty", []interface{}{diff})

	if haveTemplate {
		params := stratum.EncodeJobParams(latestJobID, latestPrePoWHash, latestTimestamp, conn.Encoding)
		c.writeNotification(conn, "mining.notify", params)
	}
}

// negotiateDifficulty implements §4.F authorize's port-8888 client-supplied
// difficulty rule: parse d=/diff= from the password, clamp into range,
// snap to the nearest power of two, and fall back to the configured
// default (with vardiff forced on) when the result lands out of range.
func (c *Coordinator) negotiateDifficulty(conn *stratum.Connection, password string) (diff float64, varDiffEnabled bool) {
	defaultDiff := c.stratumOpts.ClampedDefaultDiff()
	varDiffEnabled = c.stratumOpts.VarDiffEnabled

	if conn.Port != config.ClientDifficultyPort {
		return defaultDiff, varDiffEnabled
	}

	requested, ok := parseClientDifficulty(password)
	if !ok {
		return defaultDiff, varDiffEnabled
	}

	clamped := requested
	if clamped < c.stratumOpts.MinDiff {
		clamped = c.stratumOpts.MinDiff
	}
	if clamped > c.stratumOpts.MaxDiff {
		clamped = c.stratumOpts.MaxDiff
	}

	snapped := nearestPowerOfTwo(clamped)
	if snapped < c.stratumOpts.MinDiff || snapped > c.stratumOpts.MaxDiff {
		return defaultDiff, true
	}

	return snapped, varDiffEnabled
}

func (c *Coordinator) handleSubmit(conn *stratum.Connection, req *stratum.Request) {
	login := paramString(req, 0)
	jobID := paramString(req, 1)
	extranonce2 := paramString(req, 2)

	parsed, err := config.ParseLogin(login)
	if err != nil {
		c.writeError(conn, req.ID, int(types.ErrUnauthorizedWorker), err.Error())
		return
	}

	c.mu.Lock()
	w, ok := conn.Workers[parsed.Worker]
	if !ok || w.Address != parsed.Address {
		c.mu.Unlock()
		c.writeError(conn, req.ID, int(types.ErrUnauthorizedWorker), types.ErrUnauthorizedWorker.String())
		return
	}
	if !conn.Subscribed {
		c.mu.Unlock()
		c.writeError(conn, req.ID, int(types.ErrNotSubscribed), types.ErrNotSubscribed.String())
		return
	}
	miner := c.miners[parsed.Address]
	var stats *workerstats.Stats
	if miner != nil {
		stats = miner.WorkerStats[parsed.Worker]
	}
	c.mu.Unlock()

	headerHash, ok := c.registry.HashOfJob(jobID)
	if !ok {
		if stats != nil {
			stats.StaleShares.Inc()
		}
		c.writeError(conn, req.ID, int(types.ErrJobNotFound), types.ErrJobNotFound.String())
		return
	}

	nonce, err := decodeSubmittedNonce(conn, extranonce2)
	if err != nil {
		c.writeError(conn, req.ID, int(types.ErrLowDifficultyShare), types.ErrLowDifficultyShare.String())
		return
	}

	baseDiff := conn.Difficulty
	if baseDiff == 0 {
		baseDiff = c.stratumOpts.ClampedDefaultDiff()
	}

	accepted, rejectErr := c.shares.AddShare(stats, parsed.Address, parsed.Worker, headerHash, baseDiff, nonce, jobID)

	banned := false
	if c.banner != nil {
		banned = c.banner.RecordShare(conn.RemoteAddr, accepted)
	}

	if accepted {
		_ = conn.WriteLine(&stratum.Response{ID: req.ID, Result: true}, utils.Jsonify)
	} else {
		_ = conn.WriteLine(&stratum.Response{
			ID:    req.ID,
			Error: &stratum.StratumError{Code: int(rejectErr), Message: rejectErr.String()},
		}, utils.Jsonify)
	}

	if banned {
		conn.Close("banned")
	}
}

// decodeSubmittedNonce implements §4.F submit's nonce parsing: Bitmain
// clients send the nonce as a bare decimal integer; others send
// extranonce2 to be left-padded and prefixed with the connection's
// extranonce, then read as hex.
func decodeSubmittedNonce(conn *stratum.Connection, extranonce2 string) (uint64, error) {
	if conn.Encoding == stratum.Bitmain {
		return stratum.ParseNonce(stratum.Bitmain, extranonce2)
	}
	nonceHex := stratum.ComposeNonceHex(conn.ExtraNonce, extranonce2)
	return stratum.ParseNonce(stratum.BigHeader, nonceHex)
}

// onNewTemplate implements §4.A's notification contract and drives §4.H's
// fan-out: cache the template identity, then push it to every live
// subscriber.
func (c *Coordinator) onNewTemplate(jobID string, prePoWHash []byte, timestamp int64, header *pow.RawHeader) {
	c.mu.Lock()
	c.latestJobID = jobID
	c.latestPrePoWHash = prePoWHash
	c.latestTimestamp = timestamp
	c.haveLatestTemplate = true

	subs := make([]*stratum.Connection, 0, len(c.subscribers))
	for conn := range c.subscribers {
		subs = append(subs, conn)
	}
	c.mu.Unlock()

	for _, conn := range subs {
		if conn.Closed() {
			c.mu.Lock()
			delete(c.subscribers, conn)
			c.mu.Unlock()
			continue
		}
		c.pushJobToConnection(conn, jobID, prePoWHash, timestamp)
	}
}

// RebroadcastLatest resends the most recently cached template to every
// subscriber, keeping ASICs that missed a notify (or whose firmware times
// out without traffic) in sync. Supplements §4.H; driven by
// jobRebroadcastTimeout.
func (c *Coordinator) RebroadcastLatest() {
	c.mu.Lock()
	if !c.haveLatestTemplate {
		c.mu.Unlock()
		return
	}
	jobID, prePoWHash, timestamp := c.latestJobID, c.latestPrePoWHash, c.latestTimestamp
	subs := make([]*stratum.Connection, 0, len(c.subscribers))
	for conn := range c.subscribers {
		subs = append(subs, conn)
	}
	c.mu.Unlock()

	for _, conn := range subs {
		if conn.Closed() {
			continue
		}
		c.pushJobToConnection(conn, jobID, prePoWHash, timestamp)
	}
}

// StartRebroadcastTicker runs RebroadcastLatest on the configured cadence
// until stop is closed. A non-positive timeout disables the ticker.
func (c *Coordinator) StartRebroadcastTicker(stop <-chan struct{}) {
	if c.rootOpts.JobRebroadcastTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(c.rootOpts.JobRebroadcastTimeout) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.RebroadcastLatest()
		}
	}
}

// pushJobToConnection implements §4.H steps 2-3: resolve every worker bound
// to conn, push set_difficulty ahead of the job for any whose minDiff
// changed since it was last sent, then write the encoded job.
func (c *Coordinator) pushJobToConnection(conn *stratum.Connection, jobID string, prePoWHash []byte, timestamp int64) {
	c.mu.Lock()
	var workers []*workerstats.Stats
	for _, w := range conn.Workers {
		if miner, ok := c.miners[w.Address]; ok {
			if stats, ok := miner.WorkerStats[w.Name]; ok {
				workers = append(workers, stats)
			}
		}
	}
	c.mu.Unlock()

	for _, stats := range workers {
		if newDiff, changed := stats.ConsumeDiffChange(); changed {
			conn.Difficulty = newDiff
			c.writeNotification(conn, "mining.set_difficulty", []interface{}{newDiff})
			stats.ResetVarDiffWindow()
		}
	}

	params := stratum.EncodeJobParams(jobID, prePoWHash, timestamp, conn.Encoding)
	c.writeNotification(conn, "mining.notify", params)
}

func (c *Coordinator) writeNotification(conn *stratum.Connection, method string, params []interface{}) {
	_ = conn.WriteLine(&stratum.Notification{Method: method, Params: params}, utils.Jsonify)
}

func (c *Coordinator) writeError(conn *stratum.Connection, id json.RawMessage, code int, message string) {
	_ = conn.WriteLine(&stratum.Response{
		ID:    id,
		Error: &stratum.StratumError{Code: code, Message: message},
	}, utils.Jsonify)
}

// paramString unwraps the i-th JSON-encoded string param of req, returning
// "" on a type mismatch or out-of-range index.
func paramString(req *stratum.Request, i int) string {
	if i >= len(req.Params) {
		return ""
	}
	return utils.RawJsonToString(req.Params[i])
}

func hexString(b []byte) string {
	return hex.EncodeToString(b)
}

func parseClientDifficulty(password string) (float64, bool) {
	for _, prefix := range []string{"d=", "diff="} {
		if len(password) > len(prefix) && password[:len(prefix)] == prefix {
			v, err := strconv.ParseFloat(password[len(prefix):], 64)
			if err != nil {
				return 0, false
			}
			return v, true
		}
	}
	return 0, false
}

func nearestPowerOfTwo(v float64) float64 {
	if v <= 0 {
		return 0
	}
	lower := 1.0
	for lower*2 <= v {
		lower *= 2
	}
	upper := lower * 2
	if v-lower < upper-v {
		return lower
	}
	return upper
}
