package syncro

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"einvoice-analytics/internal/events"
	"einvoice-analytics/internal/logging"
	"einvoice-analytics/pkg/types"
)

const (
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
	pingPeriod       = 30 * time.Second
)

// wsClient is one connected dashboard
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan types.SyncEvent

	mu     sync.Mutex
	closed bool
}

func (c *wsClient) safeClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.send)
		c.closed = true
	}
}

// StateSynchronizer broadcasts sync events to connected dashboards over
// websockets and mirrors them onto the in-process event bus
type StateSynchronizer struct {
	bus      *events.Bus
	logger   logging.Logger
	upgrader websocket.Upgrader

	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan types.SyncEvent
	done       chan struct{}
	stopOnce   sync.Once

	mu      sync.RWMutex
	clients map[*wsClient]bool
}

// NewStateSynchronizer creates a synchronizer. Pass a nil bus to skip the
// in-process mirror.
func NewStateSynchronizer(bus *events.Bus, logger logging.Logger) *StateSynchronizer {
	if logger == nil {
		logger = logging.NewNoOp()
	}
	return &StateSynchronizer{
		bus:    bus,
		logger: logger.WithComponent("state_synchronizer"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan types.SyncEvent, 256),
		done:       make(chan struct{}),
		clients:    make(map[*wsClient]bool),
	}
}

// Run pumps the hub until the context is cancelled
func (s *StateSynchronizer) Run(ctx context.Context) {
	defer func() {
		s.stopOnce.Do(func() { close(s.done) })
		s.mu.Lock()
		for client := range s.clients {
			client.safeClose()
			_ = client.conn.Close()
		}
		s.clients = make(map[*wsClient]bool)
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			total := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("dashboard client connected", "client_id", client.id, "total", total)
		case client := <-s.unregister:
			s.mu.Lock()
			if s.clients[client] {
				delete(s.clients, client)
				client.safeClose()
			}
			s.mu.Unlock()
		case event := <-s.broadcast:
			s.mu.RLock()
			for client := range s.clients {
				select {
				case client.send <- event:
				default:
					// Slow consumer; drop it rather than blocking the hub.
					go s.drop(client)
				}
			}
			s.mu.RUnlock()
		}
	}
}

// Broadcast queues a sync event for every connected client and mirrors it on
// the event bus. Non-blocking; events are dropped when the hub is saturated.
func (s *StateSynchronizer) Broadcast(event types.SyncEvent) {
	if event.EventID == "" {
		event.EventID = "evt_" + uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case s.broadcast <- event:
	default:
		s.logger.Warn("sync broadcast dropped", "kind", string(event.Kind))
	}
	if s.bus != nil {
		s.bus.Publish(events.TopicSyncInvalidate, map[string]any{
			"event_id":    event.EventID,
			"kind":        string(event.Kind),
			"entity_kind": event.EntityKind,
			"entity_id":   event.EntityID,
		})
	}
}

// EntityUpdated broadcasts an entity change from one role
func (s *StateSynchronizer) EntityUpdated(role types.Role, entityKind, entityID string) {
	s.Broadcast(types.SyncEvent{
		Kind:       types.SyncEventEntityUpdated,
		EntityKind: entityKind,
		EntityID:   entityID,
		Role:       role,
	})
}

// drop hands a client back to the hub for removal. Once Run has exited the
// hub no longer drains unregister, so the send races against done to keep
// late disconnects from stranding their pump goroutines.
func (s *StateSynchronizer) drop(client *wsClient) {
	select {
	case s.unregister <- client:
	case <-s.done:
	}
}

// ClientCount reports connected dashboards
func (s *StateSynchronizer) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ServeWS upgrades an HTTP request and attaches the client to the hub
func (s *StateSynchronizer) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err.Error())
		return
	}
	client := &wsClient{
		id:   "ws_" + uuid.NewString(),
		conn: conn,
		send: make(chan types.SyncEvent, clientSendBuffer),
	}
	select {
	case s.register <- client:
	case <-s.done:
		_ = conn.Close()
		return
	}
	go s.writePump(client)
	go s.readPump(client)
}

// writePump serializes queued events to the socket and keeps it alive with
// pings
func (s *StateSynchronizer) writePump(client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(event); err != nil {
				s.drop(client)
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.drop(client)
				return
			}
		}
	}
}

// readPump drains inbound frames so pongs and close frames are processed
func (s *StateSynchronizer) readPump(client *wsClient) {
	defer func() {
		s.drop(client)
		_ = client.conn.Close()
	}()
	client.conn.SetReadLimit(4096)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
