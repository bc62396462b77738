package server

import (
	"net/http"
	"sync"

	xerrors "xpertly/internal/errors"
	"xpertly/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const sessionSendBuffer = 64

// wsSession bridges one websocket connection to the hub. Deliver enqueues
// into a buffered channel so a slow reader never stalls the hub goroutine.
type wsSession struct {
	conn   *websocket.Conn
	send   chan []byte
	logger logging.Logger

	mu     sync.Mutex
	closed bool
}

// Deliver may race with shutdown: Unsubscribe is processed asynchronously by
// the hub, so events can still arrive after the read loop exits.
func (s *wsSession) Deliver(event []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return xerrors.NewHubError("session closed, event dropped")
	}
	select {
	case s.send <- event:
		return nil
	default:
		return xerrors.NewHubError("session send queue full, event dropped")
	}
}

func (s *wsSession) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

func (s *wsSession) writePump() {
	defer s.conn.Close()
	for event := range s.send {
		if err := s.conn.WriteMessage(websocket.TextMessage, event); err != nil {
			s.logger.Debug("websocket write failed: %v", err)
			return
		}
	}
}

func (s *Server) handleWebsocket(c *gin.Context) {
	executionID, err := uuid.Parse(c.Param("executionId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid execution id"})
		return
	}
	if s.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live updates are disabled"})
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade for execution %s failed: %v", executionID, err)
		return
	}

	session := &wsSession{
		conn:   conn,
		send:   make(chan []byte, sessionSendBuffer),
		logger: s.logger,
	}
	sessionID, err := s.hub.Subscribe(c.Request.Context(), executionID, session)
	if err != nil {
		conn.Close()
		return
	}
	go session.writePump()

	// inbound frames are discarded; the read loop only notices disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.hub.Unsubscribe(sessionID)
	session.shutdown()
}
