package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/jdziat/agent-escrow/pkg/core"
	"github.com/jdziat/agent-escrow/pkg/ledger"
)

// CreateJobRequest is the body of POST /v1/jobs. The signer is the payer.
type CreateJobRequest struct {
	ProviderID uint64      `json:"provider_id"`
	Input      []byte      `json:"input"`
	Source     string      `json:"source"`
	Secrets    []byte      `json:"secrets,omitempty"`
	Args       []string    `json:"args,omitempty"`
	Funds      core.Amount `json:"funds"`
}

// JobList is the body returned by GET /v1/jobs.
type JobList struct {
	Jobs  []*core.Job `json:"jobs"`
	Total int64       `json:"total"`
}

func (s *server) handleCreateJob(w http.ResponseWriter, r *http.Request, caller common.Address, body []byte) {
	var req CreateJobRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid job request: "+err.Error())
		return
	}

	job, err := s.ledger.CreateJob(r.Context(), ledger.CreateJobRequest{
		ProviderID: req.ProviderID,
		Payer:      caller.Hex(),
		Input:      req.Input,
		Source:     req.Source,
		Secrets:    req.Secrets,
		ExtraArgs:  req.Args,
		Funds:      req.Funds,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := s.ledger.LookupJobByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	job, err := s.ledger.LookupJob(r.Context(), mux.Vars(r)["handle"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.JobFilter{
		Status: core.JobStatus(q.Get("status")),
		Payer:  q.Get("payer"),
	}
	if v := q.Get("provider"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeErrorStatus(w, http.StatusBadRequest, "invalid provider")
			return
		}
		filter.ProviderID = &id
	}
	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
		return
	}

	jobs, total, err := s.ledger.ListJobs(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*core.Job{}
	}
	writeJSON(w, http.StatusOK, JobList{Jobs: jobs, Total: total})
}

func (s *server) handleEscrow(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ledger.Storage().EscrowSummary(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// intParam parses an optional non-negative query parameter.
func intParam(w http.ResponseWriter, v, name string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeErrorStatus(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}
