package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/space-status/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12
	sendBuffer = 8
)

type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type subscriber struct {
	send chan wsEnvelope
}

// Hub fans status changes out to every connected stream client.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Announce queues the messages for every client. A client whose buffer is
// full misses the update rather than blocking the poll loop.
func (h *Hub) Announce(ctx context.Context, msgs *model.Messages) error {
	if msgs == nil {
		return nil
	}
	env := wsEnvelope{Type: "status", Data: *msgs}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.send <- env:
		default:
			log.Warn().Msg("Stream client is not keeping up, dropping status update")
		}
	}
	return nil
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.send)
		delete(h.subs, sub)
	}
}

func (h *Hub) subscribe() (*subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	sub := &subscriber{send: make(chan wsEnvelope, sendBuffer)}
	h.subs[sub] = struct{}{}
	return sub, true
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.send)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub, ok := s.hub.subscribe()
	if !ok {
		return
	}
	defer s.hub.unsubscribe(sub)

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go readUntilClosed(conn, done)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := s.sendCurrent(r.Context(), conn); err != nil {
		log.Info().Err(err).Msg("Initial stream write failed")
		return
	}
	log.Debug().Int("clients", s.hub.Clients()).Msg("Stream client connected")

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case env, ok := <-sub.send:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				log.Info().Err(err).Msg("Stream write failed")
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Info().Err(err).Msg("Stream ping failed")
				return
			}
		}
	}
}

// sendCurrent writes the cached status so a new client does not wait for the
// next change.
func (s *Server) sendCurrent(ctx context.Context, conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))

	entry, err := s.status.Entry(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read cached status for stream")
		return conn.WriteJSON(wsEnvelope{Type: "error", Error: err.Error()})
	}
	return conn.WriteJSON(wsEnvelope{Type: "status", Data: model.Messages{
		Default:     entry.Default,
		Human:       entry.Human,
		Raw:         entry.Raw,
		TimeFetched: entry.TimeFetched,
	}})
}

func readUntilClosed(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
