// Package websocket exposes the streaming chat endpoint over a
// websocket, carrying the same chunk frames as the SSE endpoint.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aria-ai/aria/internal/infrastructure/llm"
	"github.com/aria-ai/aria/pkg/safego"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 512 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // single-user runtime, no origin policy
	},
}

// inbound is one client frame. type=chat runs a turn; type=ping asks
// for a pong.
type inbound struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
}

// MessageProcessor runs one user turn and streams the reply.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, conversationID, userText string) <-chan llm.Chunk
}

// Handler upgrades connections and relays chat turns.
type Handler struct {
	processor MessageProcessor
	logger    *zap.Logger
}

// NewHandler creates the websocket handler.
func NewHandler(processor MessageProcessor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{processor: processor, logger: logger}
}

// GinHandler adapts ServeWS to a gin route.
func (h *Handler) GinHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.ServeWS(c.Writer, c.Request)
	}
}

// ServeWS upgrades the connection and runs the session until the client
// goes away. Turns are serialized per connection: a chat frame received
// while a turn is streaming is answered with an error frame.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	s := &session{
		conn:      conn,
		processor: h.processor,
		send:      make(chan []byte, 256),
		logger:    h.logger,
	}

	ctx, cancel := context.WithCancel(r.Context())
	safego.Go(h.logger, "ws-write-pump", func() { s.writePump(ctx) })
	s.readPump(ctx)
	cancel()
}

// session is one websocket connection.
type session struct {
	conn      *websocket.Conn
	processor MessageProcessor
	send      chan []byte
	busy      atomic.Bool
	logger    *zap.Logger
}

func (s *session) readPump(ctx context.Context) {
	defer s.conn.Close()

	s.conn.SetReadLimit(readLimit)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("Websocket read error", zap.Error(err))
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendChunk(llm.ErrorChunk("Malformed frame: " + err.Error()))
			continue
		}

		switch msg.Type {
		case "ping":
			s.sendRaw([]byte(`{"type":"pong"}`))
		case "chat":
			s.startTurn(ctx, msg)
		default:
			s.sendChunk(llm.ErrorChunk("Unknown frame type: " + msg.Type))
		}
	}
}

// startTurn relays one streamed turn into the send channel.
func (s *session) startTurn(ctx context.Context, msg inbound) {
	if msg.ConversationID == "" || msg.Content == "" {
		s.sendChunk(llm.ErrorChunk("conversation_id and content are required"))
		return
	}
	if !s.busy.CompareAndSwap(false, true) {
		s.sendChunk(llm.ErrorChunk("A turn is already in progress"))
		return
	}

	chunks := s.processor.ProcessMessage(ctx, msg.ConversationID, msg.Content)
	safego.Go(s.logger, "ws-turn-relay", func() {
		for chunk := range chunks {
			s.sendChunk(chunk)
		}
		s.busy.Store(false)
	})
}

func (s *session) sendChunk(chunk llm.Chunk) {
	data, err := json.Marshal(chunk)
	if err != nil {
		s.logger.Error("Failed to encode chunk", zap.Error(err))
		return
	}
	s.sendRaw(data)
}

func (s *session) sendRaw(data []byte) {
	select {
	case s.send <- data:
	default:
		s.logger.Warn("Websocket send buffer full, dropping frame")
	}
}

func (s *session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			s.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
			return
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
