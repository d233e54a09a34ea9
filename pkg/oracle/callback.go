package oracle

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/jdziat/agent-escrow/pkg/security"
)

// CallbackPayload is the body of a signed oracle callback.
type CallbackPayload struct {
	RequestHandle string        `json:"request_handle"`
	Response      hexutil.Bytes `json:"response,omitempty"`
	Error         hexutil.Bytes `json:"error,omitempty"`
}

// HTTPCallback returns a CallbackFunc that POSTs results to an escrow
// callback endpoint, signing each request with key.
func HTTPCallback(url string, key *ecdsa.PrivateKey, client *http.Client) CallbackFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, _ common.Address, handle string, response, errBytes []byte) error {
		body, err := json.Marshal(CallbackPayload{
			RequestHandle: handle,
			Response:      response,
			Error:         errBytes,
		})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if err := security.SignHTTPRequest(req, key, body, time.Now()); err != nil {
			return err
		}

		res, err := client.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.StatusCode/100 != 2 {
			reply, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
			return fmt.Errorf("callback returned %d: %s", res.StatusCode, strings.TrimSpace(string(reply)))
		}
		return nil
	}
}
