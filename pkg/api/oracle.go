package api

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jdziat/agent-escrow/pkg/core"
	"github.com/jdziat/agent-escrow/pkg/oracle"
)

// CallbackResult is the body returned for an accepted oracle callback.
type CallbackResult struct {
	Job      *core.Job      `json:"job"`
	Transfer *core.Transfer `json:"transfer"`
}

func (s *server) handleCallback(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte) {
	var payload oracle.CallbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid callback: "+err.Error())
		return
	}

	out, err := s.resolver.Resolve(r.Context(), caller, payload.RequestHandle, payload.Response, payload.Error)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CallbackResult{Job: out.Job, Transfer: out.Transfer})
}
