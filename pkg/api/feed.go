package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jdziat/agent-escrow/pkg/core"
)

const (
	defaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
)

// Notification is the wire form of an outbox row or live event.
type Notification struct {
	Seq           uint64          `json:"seq,omitempty"`
	Kind          string          `json:"kind"`
	JobID         *uint64         `json:"job_id,omitempty"`
	RequestHandle string          `json:"request_handle,omitempty"`
	Data          json.RawMessage `json:"data"`
	CreatedAt     *time.Time      `json:"created_at,omitempty"`
}

func fromOutbox(n *core.Notification) Notification {
	created := n.CreatedAt
	return Notification{
		Seq:           n.Seq,
		Kind:          n.Kind,
		JobID:         n.JobID,
		RequestHandle: n.RequestHandle,
		Data:          n.Payload(),
		CreatedAt:     &created,
	}
}

func (s *server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after uint64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeErrorStatus(w, http.StatusBadRequest, "invalid after")
			return
		}
		after = n
	}
	limit, ok := intParam(w, q.Get("limit"), "limit")
	if !ok {
		return
	}

	rows, err := s.ledger.Storage().ListNotifications(r.Context(), after, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]Notification, 0, len(rows))
	for _, n := range rows {
		out = append(out, fromOutbox(n))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleEvents streams live events over a websocket. Events are best
// effort; clients that need every transition page /v1/notifications.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.config.originAllowed(origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events := s.ledger.Events()
	defer s.ledger.Unsubscribe(events)

	// Drain client frames so close and pong control messages are processed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(s.config.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			n, err := core.NewNotification(ev)
			if err != nil {
				s.logger.Warn("failed to encode event", "kind", ev.Kind(), "error", err)
				continue
			}
			msg := fromOutbox(n)
			msg.CreatedAt = nil
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("event feed write failed", "error", err)
				return
			}
		}
	}
}
