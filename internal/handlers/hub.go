package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/ohhell/internal/game"
	"github.com/sirupsen/logrus"
)

// watcher is one WebSocket connection following a game.
type watcher struct {
	send chan []byte
	done chan struct{} // closed when the game is deleted
}

// Hub fans game events out to the watchers of each game.
type Hub struct {
	mu       sync.Mutex
	watchers map[string]map[*watcher]struct{}
	log      *logrus.Entry
}

// NewHub creates an empty hub.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		watchers: make(map[string]map[*watcher]struct{}),
		log:      log.WithField("component", "hub"),
	}
}

func (h *Hub) add(gameID string) *watcher {
	w := &watcher{send: make(chan []byte, 32), done: make(chan struct{})}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.watchers[gameID] == nil {
		h.watchers[gameID] = make(map[*watcher]struct{})
	}
	h.watchers[gameID][w] = struct{}{}
	return w
}

func (h *Hub) remove(gameID string, w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.watchers[gameID], w)
	if len(h.watchers[gameID]) == 0 {
		delete(h.watchers, gameID)
	}
}

// Watchers returns how many connections follow gameID.
func (h *Hub) Watchers(gameID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers[gameID])
}

// Broadcast sends ev to every watcher of its game. A watcher whose buffer is
// full misses the event; the next one carries the full state again.
func (h *Hub) Broadcast(ev game.GameEvent) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.WithError(err).WithField("game", ev.GameID).Error("Failed encoding event.")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers[ev.GameID] {
		select {
		case w.send <- msg:
		default:
			h.log.WithField("game", ev.GameID).Debug("Watcher is behind; event dropped.")
		}
		if ev.Type == game.EventGameDeleted {
			close(w.done)
		}
	}
	if ev.Type == game.EventGameDeleted {
		delete(h.watchers, ev.GameID)
	}
}

// serve pumps events to conn until the client leaves, the game is deleted or ctx ends.
func (h *Hub) serve(ctx context.Context, conn *websocket.Conn, gameID string, w *watcher) {
	defer h.remove(gameID, w)
	ctx = conn.CloseRead(ctx)
	for {
		select {
		case msg := <-w.send:
			if err := writeTimeout(ctx, conn, msg); err != nil {
				return
			}
		case <-w.done:
			for {
				select {
				case msg := <-w.send:
					if err := writeTimeout(ctx, conn, msg); err != nil {
						return
					}
				default:
					conn.Close(websocket.StatusNormalClosure, "game deleted")
					return
				}
			}
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "")
			return
		}
	}
}

func writeTimeout(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, msg)
}
