package stratum

// Worker is a payout address bound to a login name, per spec §3. Multiple
// workers may share one socket; the same (address, name) may be
// authorized on at most one live socket at a time.
type Worker struct {
	Address string
	Name    string
}
