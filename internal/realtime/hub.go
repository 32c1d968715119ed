// Package realtime pushes Action Hub changes to connected browsers over
// websockets. The service publishes after commit and does not know who, if
// anyone, is listening.
package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type EventType string

const (
	EventItemCreated EventType = "action_item.created"
	EventItemUpdated EventType = "action_item.updated"
	EventItemDeleted EventType = "action_item.deleted"
	EventEngagement  EventType = "alert.engagement"
)

type Event struct {
	Type         EventType `json:"type"`
	UserID       uuid.UUID `json:"user_id"`
	ActionItemID uuid.UUID `json:"action_item_id,omitempty"`
	AlertID      uuid.UUID `json:"alert_id"`
	At           time.Time `json:"at"`
}

// Publisher is what the Action Hub depends on.
type Publisher interface {
	Publish(evt Event)
}

const (
	subscriberBuffer = 16
	writeWait        = 10 * time.Second
	pingPeriod       = 30 * time.Second
)

// Hub fans events out to the owning user's subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[int]chan Event
	next   int
	logger *zap.Logger

	upgrader websocket.Upgrader
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[uuid.UUID]map[int]chan Event),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Subscribe registers a listener for userID. The returned cancel func must
// be called to release it; it closes the channel.
func (h *Hub) Subscribe(userID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	id := h.next
	h.next++
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[int]chan Event)
	}
	h.subs[userID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], id)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish never blocks: a subscriber whose buffer is full misses the event.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[evt.UserID] {
		select {
		case ch <- evt:
		default:
			h.logger.Debug("dropping realtime event for slow subscriber",
				zap.String("type", string(evt.Type)),
				zap.Stringer("user_id", evt.UserID),
			)
		}
	}
}

// Subscribers reports how many listeners userID has.
func (h *Hub) Subscribers(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Serve upgrades the request and streams userID's events until the client
// goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	events, cancel := h.Subscribe(userID)
	defer cancel()

	// Reader goroutine: we ignore client messages but need to notice closes.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(evt); err != nil {
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}
