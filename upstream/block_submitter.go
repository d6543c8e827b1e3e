package upstream

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"

	logging "github.com/ipfs/go-log/v2"

	"github.com/kaspa-pool/stratum-core/config"
	"github.com/kaspa-pool/stratum-core/pow"
	"github.com/kaspa-pool/stratum-core/utils"
)

var submitLog = logging.Logger("upstream.submit")

// jsonRPCRequest/jsonRPCResponse mirror daemonManager's request/response
// shape for a single JSON-RPC call over HTTP.
type jsonRPCRequest struct {
	ID     int64         `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *jsonRPCError   `json:"error"`
}

// HTTPBlockSubmitter submits a completed block to the node over HTTP
// JSON-RPC, the way the teacher's daemonManager.Cmd does for submitblock.
// It carries no template-fetch surface: this spec's templates arrive over
// the TemplateSource pub/sub feed, not RPC polling.
type HTTPBlockSubmitter struct {
	node   *config.DaemonOptions
	client *http.Client
}

func NewHTTPBlockSubmitter(node *config.DaemonOptions) *HTTPBlockSubmitter {
	return &HTTPBlockSubmitter{
		node:   node,
		client: &http.Client{},
	}
}

// Submit hands the already-finalized headerHash (hex) and nonce to the
// node's submitblock RPC; rawHeader is not serialized into the request
// and the hash is not recomputed here. A non-2xx
// HTTP status or a JSON-RPC error is reported as a rejection rather than
// a Go error, matching §4.A's submit(...) -> {success|rejected(reason)}
// contract; only transport failures surface as err.
func (s *HTTPBlockSubmitter) Submit(ctx context.Context, headerHash []byte, rawHeader *pow.RawHeader, nonce uint64) (bool, string, error) {
	reqBody, err := json.Marshal(jsonRPCRequest{
		ID:     utils.RandPositiveInt64(),
		Method: "submitblock",
		Params: []interface{}{hex.EncodeToString(headerHash), nonce},
	})
	if err != nil {
		return false, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.node.URL(), bytes.NewReader(reqBody))
	if err != nil {
		return false, "", err
	}
	if s.node.User != "" {
		req.SetBasicAuth(s.node.User, s.node.Password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		submitLog.Error("block submit transport failure: ", err)
		return false, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		submitLog.Warn("block submit rejected: HTTP ", resp.Status)
		return false, resp.Status, nil
	}

	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		submitLog.Error("block submit: malformed response: ", err)
		return false, "malformed node response", nil
	}

	if rpcResp.Error != nil {
		submitLog.Warn("block submit rejected: ", rpcResp.Error.Message)
		return false, rpcResp.Error.Message, nil
	}

	return true, "", nil
}
