package http

import (
	"context"
	"net/http"
	"sync"

	"quizbee/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Source serves the catch-up snapshot pushed to every freshly connected
// client. Either the game service or the redis snapshot cache satisfies it.
type Source interface {
	State(ctx context.Context) (domain.StatePayload, error)
	Rankings(ctx context.Context) ([]domain.RankingEntry, error)
}

// wsEvent is the frame format shared by all broadcast event types.
type wsEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type wsClient struct {
	id   string
	send chan wsEvent
	done chan struct{}
}

// Hub tracks connected websocket clients and fans events out to all of them.
// It keeps no per-client state beyond membership; admin and participant
// clients receive the same frames and derive their own view.
type Hub struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader
	source   Source

	mu      sync.RWMutex
	clients map[string]*wsClient
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*wsClient),
	}
}

// SetSource wires the catch-up source. Set once during startup, before the
// server accepts connections.
func (h *Hub) SetSource(src Source) {
	h.source = src
}

// ServeWS upgrades the request and serves the connection until the client
// goes away. The client immediately receives the current state and rankings;
// inbound frames are read only to detect disconnect.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	client := &wsClient{
		id:   uuid.NewString(),
		send: make(chan wsEvent, 16),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()
	h.log.Debug().Str("client", client.id).Msg("ws client connected")

	go func() {
		for {
			select {
			case event := <-client.send:
				if err := conn.WriteJSON(event); err != nil {
					h.log.Debug().Str("client", client.id).Err(err).Msg("ws write failed")
					return
				}
			case <-client.done:
				return
			}
		}
	}()

	h.sendCatchUp(r.Context(), client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, client.id)
	h.mu.Unlock()
	close(client.done)
	h.log.Debug().Str("client", client.id).Msg("ws client disconnected")
}

// sendCatchUp pushes the current state and rankings so a late joiner does not
// wait for the next mutation. No event replay; just the latest snapshot.
func (h *Hub) sendCatchUp(ctx context.Context, client *wsClient) {
	if h.source == nil {
		return
	}
	if state, err := h.source.State(ctx); err == nil {
		client.deliver(wsEvent{Type: "state_update", Payload: state})
	} else {
		h.log.Warn().Err(err).Msg("catch-up state failed")
	}
	if rankings, err := h.source.Rankings(ctx); err == nil {
		client.deliver(wsEvent{Type: "rankings_update", Payload: rankings})
	} else {
		h.log.Warn().Err(err).Msg("catch-up rankings failed")
	}
}

// deliver is fire-and-forget: a slow client loses its oldest buffered frame
// rather than blocking the broadcast.
func (c *wsClient) deliver(event wsEvent) {
	select {
	case c.send <- event:
	default:
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- event:
		default:
		}
	}
}

func (h *Hub) broadcast(event wsEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		client.deliver(event)
	}
}

// Hub implements app.Broadcaster.

func (h *Hub) BroadcastState(state domain.StatePayload) {
	h.broadcast(wsEvent{Type: "state_update", Payload: state})
}

func (h *Hub) BroadcastRankings(rankings []domain.RankingEntry) {
	h.broadcast(wsEvent{Type: "rankings_update", Payload: rankings})
}

func (h *Hub) BroadcastSubmission(sub domain.Submission) {
	h.broadcast(wsEvent{Type: "submission_received", Payload: sub})
}

func (h *Hub) BroadcastQuestionReset(questionID int64) {
	h.broadcast(wsEvent{Type: "question_reset", Payload: map[string]int64{"question_id": questionID}})
}
