// Package board pushes re-projection triggers to connected Kanban clients.
// The engine stays request/response; clients that receive a board event
// simply re-fetch the projection.
package board

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pinn-product-builder/erp-retifica-formiguense-sub002/internal/workflow"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Event is what clients receive when the board changes.
type Event struct {
	Type    string           `json:"type"`
	Outcome workflow.Outcome `json:"outcome"`
	At      time.Time        `json:"at"`
}

// Stream fans board events out to the websocket connections of each
// organization. It implements workflow.Notifier.
type Stream struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu    sync.RWMutex
	conns map[uuid.UUID]map[*connection]bool
}

type connection struct {
	ws   *websocket.Conn
	send chan Event
}

// NewStream creates the board event stream.
func NewStream(logger *zap.Logger) *Stream {
	return &Stream{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin checking is the reverse proxy's job in this deployment.
				return true
			},
		},
		logger: logger,
		conns:  make(map[uuid.UUID]map[*connection]bool),
	}
}

// Notify implements workflow.Notifier: every outcome becomes a board event
// for the organization's connected clients.
func (s *Stream) Notify(orgID uuid.UUID, outcome workflow.Outcome) {
	event := Event{Type: "board_changed", Outcome: outcome, At: time.Now()}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.conns[orgID] {
		select {
		case conn.send <- event:
		default:
			// Slow consumer; it will re-fetch on reconnect.
		}
	}
}

// HandleConnection upgrades the request and registers the client under its
// organization.
func (s *Stream) HandleConnection(w http.ResponseWriter, r *http.Request, orgID uuid.UUID) error {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	conn := &connection{ws: ws, send: make(chan Event, 64)}
	s.mu.Lock()
	if s.conns[orgID] == nil {
		s.conns[orgID] = make(map[*connection]bool)
	}
	s.conns[orgID][conn] = true
	s.mu.Unlock()

	go s.writePump(conn)
	go s.readPump(conn, orgID)
	return nil
}

func (s *Stream) unregister(orgID uuid.UUID, conn *connection) {
	s.mu.Lock()
	if set, ok := s.conns[orgID]; ok {
		if set[conn] {
			delete(set, conn)
			close(conn.send)
		}
		if len(set) == 0 {
			delete(s.conns, orgID)
		}
	}
	s.mu.Unlock()
	conn.ws.Close()
}

// readPump drains client messages (only pongs matter) and detects closure.
func (s *Stream) readPump(conn *connection, orgID uuid.UUID) {
	defer s.unregister(orgID, conn)

	conn.ws.SetReadLimit(512)
	conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
	}
}

// writePump pushes events and keepalive pings to the client.
func (s *Stream) writePump(conn *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
	}()

	for {
		select {
		case event, ok := <-conn.send:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.ws.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
