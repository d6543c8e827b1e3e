package stratum

import "encoding/json"

// Request is a client -> server stratum message: {"id":N,"method":M,"params":[...]}.
// Id and Method are required for a line to be considered well-formed
// per §4.G's framing rule.
type Request struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// Valid reports whether the decoded request matches the wire contract:
// numeric id, non-empty method, params present as an array (possibly
// empty).
func (r *Request) Valid() bool {
	if r.Method == "" || r.Params == nil {
		return false
	}
	var asNumber json.Number
	return json.Unmarshal(r.ID, &asNumber) == nil
}

// paramString unwraps a JSON-encoded string parameter, returning "" on a
// type mismatch or out-of-range index.
func paramString(params []json.RawMessage, i int) string {
	if i >= len(params) {
		return ""
	}
	var s string
	if err := json.Unmarshal(params[i], &s); err != nil {
		return ""
	}
	return s
}

// StratumError is the [code, message, traceback] triple the wire protocol
// carries in a response's error field.
type StratumError struct {
	Code    int
	Message string
}

func (e *StratumError) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.Code, e.Message, nil})
}

// Response is a server -> client reply to one request.
type Response struct {
	ID     json.RawMessage `json:"id"`
	Result interface{}     `json:"result"`
	Error  *StratumError   `json:"error"`
}

// Notification is a server -> client event with no id, carrying one of
// mining.notify, mining.set_difficulty, mining.set_extranonce.
type Notification struct {
	ID     interface{}   `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}
