package coordinator

import (
	"github.com/kaspa-pool/stratum-core/stratum"
	"github.com/kaspa-pool/stratum-core/workerstats"
)

// MinerData is keyed by payout address (spec §3): the set of live sockets
// authorized under that address, and per-worker-name stats. WorkerSocket
// tracks which single socket currently owns a worker name, enforcing the
// "at most one live socket at a time" invariant.
type MinerData struct {
	Sockets      map[*stratum.Connection]struct{}
	WorkerStats  map[string]*workerstats.Stats
	WorkerSocket map[string]*stratum.Connection
}

func newMinerData() *MinerData {
	return &MinerData{
		Sockets:      make(map[*stratum.Connection]struct{}),
		WorkerStats:  make(map[string]*workerstats.Stats),
		WorkerSocket: make(map[string]*stratum.Connection),
	}
}

func (m *MinerData) empty() bool {
	return len(m.Sockets) == 0 && len(m.WorkerStats) == 0
}
