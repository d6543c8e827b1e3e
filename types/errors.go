package types

// ShareError is a wire error code sent back to a miner in a stratum
// response's error array.
type ShareError int

const (
	ErrUnknown            ShareError = 20
	ErrJobNotFound        ShareError = 21
	ErrDuplicateShare     ShareError = 22
	ErrLowDifficultyShare ShareError = 23
	ErrUnauthorizedWorker ShareError = 24
	ErrNotSubscribed      ShareError = 25
)

var shareErrorMessages = map[ShareError]string{
	ErrUnknown:            "unknown",
	ErrJobNotFound:        "job not found",
	ErrDuplicateShare:     "duplicate share",
	ErrLowDifficultyShare: "low difficulty share",
	ErrUnauthorizedWorker: "unauthorized worker",
	ErrNotSubscribed:      "not subscribed",
}

func (e ShareError) String() string {
	if msg, ok := shareErrorMessages[e]; ok {
		return msg
	}
	return "unknown"
}

// Error satisfies the error interface so a ShareError can be returned
// directly from the submit-handling path and translated into a wire
// response by the caller.
func (e ShareError) Error() string {
	return e.String()
}

// AsStratumError renders the [code, message, nil] triple stratum clients
// expect in a mining.submit error response.
func (e ShareError) AsStratumError() []interface{} {
	return []interface{}{int(e), e.String(), nil}
}
