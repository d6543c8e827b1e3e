// Package banning adapts the teacher's banningManager into a connection-
// hygiene supplement (SPEC_FULL.md's SUPPLEMENTED FEATURES): it tracks a
// bad-share ratio per remote IP and temporarily refuses new connections
// from an IP that crosses the configured threshold. This is independent
// of §4.D's reward accounting — a banned IP's prior shares are unaffected.
package banning

import (
	"sync"
	"sync/atomic"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/kaspa-pool/stratum-core/config"
)

var log = logging.Logger("banning")

// ipShares tracks the rolling valid/invalid counts the ban decision is
// based on, mirroring the teacher's stratum.Shares type.
type ipShares struct {
	valid   uint64
	invalid uint64
}

func (s *ipShares) total() uint64 {
	return atomic.LoadUint64(&s.valid) + atomic.LoadUint64(&s.invalid)
}

func (s *ipShares) badPercent() float64 {
	total := s.total()
	if total == 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&s.invalid)*100) / float64(total)
}

func (s *ipShares) reset() {
	atomic.StoreUint64(&s.valid, 0)
	atomic.StoreUint64(&s.invalid, 0)
}

// Manager is the banning component. A zero-value *Manager (nil) is a
// valid, always-permissive collaborator — callers nil-check before use.
type Manager struct {
	opts *config.BanningOptions

	mu        sync.Mutex
	banned    map[string]time.Time
	ipTallies map[string]*ipShares
}

func NewManager(opts *config.BanningOptions) *Manager {
	return &Manager{
		opts:      opts,
		banned:    make(map[string]time.Time),
		ipTallies: make(map[string]*ipShares),
	}
}

// Start runs the periodic purge of expired bans.
func (m *Manager) Start() {
	if m.opts == nil || m.opts.PurgeInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(time.Duration(m.opts.PurgeInterval) * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			m.purgeExpired()
		}
	}()
}

func (m *Manager) purgeExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ip, bannedAt := range m.banned {
		if time.Since(bannedAt) > time.Duration(m.opts.Time)*time.Second {
			delete(m.banned, ip)
		}
	}
}

// CheckBan reports whether ip is currently banned, forgiving (and
// removing) an expired ban as a side effect.
func (m *Manager) CheckBan(ip string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	bannedAt, ok := m.banned[ip]
	if !ok {
		return false
	}

	if time.Since(bannedAt) > time.Duration(m.opts.Time)*time.Second {
		delete(m.banned, ip)
		return false
	}
	return true
}

// RecordShare folds one accepted/rejected share into ip's rolling tally
// and bans the IP once its bad-share ratio crosses the threshold over at
// least CheckThreshold shares, resetting the tally otherwise. Returns
// true the moment a ban is applied.
func (m *Manager) RecordShare(ip string, valid bool) (banned bool) {
	if m.opts == nil {
		return false
	}

	m.mu.Lock()
	tally, ok := m.ipTallies[ip]
	if !ok {
		tally = &ipShares{}
		m.ipTallies[ip] = tally
	}
	m.mu.Unlock()

	if valid {
		atomic.AddUint64(&tally.valid, 1)
		return false
	}

	atomic.AddUint64(&tally.invalid, 1)
	if tally.total() < m.opts.CheckThreshold {
		return false
	}

	if tally.badPercent() < m.opts.InvalidPercent {
		tally.reset()
		return false
	}

	log.Warn("banning ", ip, ": bad-share ratio crossed threshold")
	m.mu.Lock()
	m.banned[ip] = time.Now()
	m.mu.Unlock()
	return true
}
