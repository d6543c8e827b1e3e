package types

// Contribution is one accepted share, the unit the Share Window and the
// external reward allocator exchange.
type Contribution struct {
	Address    string  `json:"address"`
	MinerID    string  `json:"minerId"`
	Difficulty float64 `json:"difficulty"`
	Timestamp  int64   `json:"timestamp"`
	JobID      string  `json:"jobId"`
	DAAScore   uint64  `json:"daaScore"`
}
