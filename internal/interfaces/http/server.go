// Package http exposes the engine over HTTP for the serve subcommand:
// commands post in, the conversation reads out, and a websocket
// streams events. The server is a thin embedder; all semantics live in
// the engine.
package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/steerdev/steer/internal/application"
	"github.com/steerdev/steer/internal/domain/entity"
	"github.com/steerdev/steer/pkg/safego"
)

// Server bridges HTTP clients to one engine instance.
type Server struct {
	engine   *application.Engine
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu          sync.Mutex
	subscribers map[chan []byte]bool
}

// NewServer creates the HTTP embedder around a running engine.
func NewServer(engine *application.Engine, logger *zap.Logger) *Server {
	return &Server{
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:      logger,
		subscribers: make(map[chan []byte]bool),
	}
}

// commandRequest is the POST /v1/commands payload.
type commandRequest struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Command  string `json:"command,omitempty"`
	ID       string `json:"id,omitempty"`
	Approved bool   `json:"approved,omitempty"`
	Always   bool   `json:"always,omitempty"`
}

// Router builds the gin handler.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/v1/commands", s.handleCommand)
	router.GET("/v1/conversation", s.handleConversation)
	router.GET("/ws", s.handleWebsocket)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "session": s.engine.SessionID()})
	})

	return router
}

// Start runs the engine and the event fan-out, then serves until the
// listener fails.
func (s *Server) Start(bind string, port int) error {
	go s.engine.Run()
	safego.Go(s.logger, "event-fanout", s.fanOutEvents)

	addr := fmt.Sprintf("%s:%d", bind, port)
	s.logger.Info("HTTP server listening", zap.String("addr", addr))
	return s.Router().Run(addr)
}

func (s *Server) handleCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var cmd application.Command
	switch req.Type {
	case "process_user_input":
		cmd = application.ProcessUserInput{Text: req.Text}
	case "handle_tool_response":
		cmd = application.HandleToolResponse{ID: req.ID, Approved: req.Approved, Always: req.Always}
	case "execute_bash_command":
		cmd = application.ExecuteBashCommand{Command: req.Command}
	case "cancel_processing":
		cmd = application.CancelProcessing{}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown command type %q", req.Type)})
		return
	}

	s.engine.Commands() <- cmd
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) handleConversation(c *gin.Context) {
	// Snapshot arrives through the event stream; collect it here by
	// issuing the command and waiting for the fan-out copy.
	replyCh := make(chan []byte, application.ChannelCapacity)
	s.mu.Lock()
	s.subscribers[replyCh] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subscribers, replyCh)
		s.mu.Unlock()
	}()

	s.engine.Commands() <- application.GetCurrentConversation{}

	for raw := range replyCh {
		var probe struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(raw, &probe) == nil && probe.Type == "conversation_snapshot" {
			c.Data(http.StatusOK, "application/json", raw)
			return
		}
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine stopped"})
}

func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	ch := make(chan []byte, application.ChannelCapacity)
	s.mu.Lock()
	s.subscribers[ch] = true
	s.mu.Unlock()

	safego.Go(s.logger, "ws-writer", func() {
		defer conn.Close()
		for raw := range ch {
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				s.mu.Lock()
				delete(s.subscribers, ch)
				s.mu.Unlock()
				return
			}
		}
	})
}

// fanOutEvents serializes engine events and copies them to every
// subscriber. A slow subscriber drops its own copies; the engine-side
// channel is never blocked by one client.
func (s *Server) fanOutEvents() {
	for ev := range s.engine.Events() {
		raw, err := encodeEvent(ev)
		if err != nil {
			s.logger.Warn("Failed to encode event", zap.Error(err))
			continue
		}

		s.mu.Lock()
		for ch := range s.subscribers {
			select {
			case ch <- raw:
			default:
				s.logger.Debug("Subscriber lagging, dropping event copy")
			}
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	for ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, ch)
	}
	s.mu.Unlock()
}

// encodeEvent maps an engine event to its JSON wire form.
func encodeEvent(ev application.Event) ([]byte, error) {
	switch e := ev.(type) {
	case application.MessageAppended:
		raw, err := entity.MarshalMessage(e.Message)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"type": "message_appended", "message": json.RawMessage(raw)})
	case application.ToolExecuting:
		return json.Marshal(map[string]any{
			"type": "tool_executing", "tool_call_id": e.ToolCallID,
			"name": e.Name, "parameters": e.Parameters,
		})
	case application.ApprovalRequested:
		return json.Marshal(map[string]any{
			"type": "approval_requested", "tool_call_id": e.ToolCallID,
			"name": e.Name, "parameters": e.Parameters,
		})
	case application.ProcessingStarted:
		return json.Marshal(map[string]any{"type": "processing_started"})
	case application.ProcessingDone:
		return json.Marshal(map[string]any{"type": "processing_done", "error": e.Err})
	case application.ConversationSnapshot:
		raw, err := entity.MarshalMessages(e.Messages)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{
			"type": "conversation_snapshot", "thread_id": e.ThreadID,
			"messages": json.RawMessage(raw),
		})
	case application.ConfigUpdated:
		return json.Marshal(map[string]any{"type": "config_updated", "model": e.Model})
	case application.CommandFailed:
		return json.Marshal(map[string]any{"type": "command_failed", "reason": e.Reason})
	default:
		return json.Marshal(map[string]any{"type": "unknown"})
	}
}
