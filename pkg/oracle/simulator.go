package oracle

import (
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/jdziat/agent-escrow/pkg/core"
	"github.com/jdziat/agent-escrow/pkg/security"
)

// CallbackFunc delivers a result for handle on behalf of caller.
// Resolver.Resolve satisfies it directly.
type CallbackFunc func(ctx context.Context, caller common.Address, handle string, response, errBytes []byte) error

// ErrUnknownHandle is returned for handles the simulator never issued or
// already answered.
var ErrUnknownHandle = errors.New("oracle: unknown request handle")

// Request is a submission recorded by the simulator.
type Request struct {
	Handle      string
	Seq         uint64
	Request     core.OracleRequest
	SubmittedAt time.Time
}

// Simulator is an in-process oracle network. Results are delivered only when
// Fulfill, Reject or Deliver is called.
type Simulator struct {
	key      *ecdsa.PrivateKey
	requests cmap.ConcurrentMap[string, Request]
	nonce    atomic.Uint64

	mu        sync.RWMutex
	callback  CallbackFunc
	submitErr error
}

// NewSimulator creates a simulator that answers as the router controlled by key.
func NewSimulator(key *ecdsa.PrivateKey) *Simulator {
	return &Simulator{
		key:      key,
		requests: cmap.New[Request](),
	}
}

// Router returns the address callbacks are delivered from.
func (s *Simulator) Router() common.Address {
	return security.Address(s.key)
}

// SetCallback sets where results are delivered.
func (s *Simulator) SetCallback(fn CallbackFunc) {
	s.mu.Lock()
	s.callback = fn
	s.mu.Unlock()
}

// FailSubmissions makes every Submit return err until called with nil.
func (s *Simulator) FailSubmissions(err error) {
	s.mu.Lock()
	s.submitErr = err
	s.mu.Unlock()
}

// Submit implements core.Oracle.
func (s *Simulator) Submit(ctx context.Context, req core.OracleRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	err := s.submitErr
	s.mu.RUnlock()
	if err != nil {
		return "", err
	}

	seq := s.nonce.Add(1)
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], seq)
	handle := NewHandle(s.Router().Bytes(), n[:], body)

	s.requests.Set(handle, Request{
		Handle:      handle,
		Seq:         seq,
		Request:     req,
		SubmittedAt: time.Now(),
	})
	return handle, nil
}

// Request returns an outstanding request.
func (s *Simulator) Request(handle string) (Request, bool) {
	return s.requests.Get(handle)
}

// Outstanding returns unanswered requests in submission order.
func (s *Simulator) Outstanding() []Request {
	list := make([]Request, 0, s.requests.Count())
	for item := range s.requests.IterBuffered() {
		list = append(list, item.Val)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Seq < list[j].Seq })
	return list
}

// Fulfill delivers output as a successful result.
func (s *Simulator) Fulfill(ctx context.Context, handle, output string) error {
	encoded, err := EncodeOutput(output)
	if err != nil {
		return err
	}
	return s.Deliver(ctx, handle, encoded, nil)
}

// Reject delivers reason as an execution error.
func (s *Simulator) Reject(ctx context.Context, handle, reason string) error {
	return s.Deliver(ctx, handle, nil, []byte(reason))
}

// Deliver sends raw result bytes for handle. The request stays outstanding
// when the callback fails, so delivery can be retried.
func (s *Simulator) Deliver(ctx context.Context, handle string, response, errBytes []byte) error {
	if !s.requests.Has(handle) {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	s.mu.RLock()
	cb := s.callback
	s.mu.RUnlock()
	if cb == nil {
		return errors.New("oracle: no callback configured")
	}

	if err := cb(ctx, s.Router(), handle, response, errBytes); err != nil {
		return err
	}
	s.requests.Remove(handle)
	return nil
}
