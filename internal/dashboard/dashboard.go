// Package dashboard provides a real-time WebSocket feed over the sync
// subsystem: connected clients receive the live product list, reconcile run
// results, and store statistics as they change. It exists for local
// monitoring while the sync daemon runs.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/remarket/remarket/internal/model"
	"github.com/remarket/remarket/internal/syncer"
)

// MessageType defines the type of a dashboard message.
type MessageType string

const (
	// MessageTypeProducts carries the full current product list.
	MessageTypeProducts MessageType = "products"

	// MessageTypeSyncResult carries the outcome of a reconcile run.
	MessageTypeSyncResult MessageType = "sync_result"

	// MessageTypeStats carries store counters.
	MessageTypeStats MessageType = "stats"
)

// Message is a dashboard broadcast envelope.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SyncResultData describes one completed reconcile run.
type SyncResultData struct {
	Pushed   int    `json:"pushed"`
	Failed   int    `json:"failed"`
	Purged   int    `json:"purged"`
	Pulled   int    `json:"pulled"`
	Skipped  int    `json:"skipped"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

// StatsData carries record store counters.
type StatsData struct {
	Total      int `json:"total"`
	Unsynced   int `json:"unsynced"`
	Tombstoned int `json:"tombstoned"`
}

// Server manages WebSocket connections and broadcasts dashboard messages.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	log      *zap.Logger

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a dashboard server listening on addr (host:port).
func NewServer(addr string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		log:       log,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins serving. Non-blocking; use Stop to shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("dashboard listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.broadcastLoop()
	go func() {
		defer s.wg.Done()
		s.log.Info("dashboard listening", zap.String("addr", ln.Addr().String()))
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("dashboard server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("dashboard shutdown: %w", err)
	}

	s.wg.Wait()
	return nil
}

// Addr returns the bound listen address, useful when addr was ":0".
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// PublishProducts broadcasts the current product list.
func (s *Server) PublishProducts(products []model.Product) {
	s.publish(MessageTypeProducts, products)
}

// PublishSyncResult broadcasts a completed reconcile run.
func (s *Server) PublishSyncResult(result syncer.Result, runErr error) {
	data := SyncResultData{
		Pushed:   result.Pushed,
		Failed:   result.Failed,
		Purged:   result.Purged,
		Pulled:   result.Pulled,
		Skipped:  result.Skipped,
		Duration: result.Duration.Round(time.Millisecond).String(),
	}
	if runErr != nil {
		data.Error = runErr.Error()
	}
	s.publish(MessageTypeSyncResult, data)
}

// PublishStats broadcasts store counters.
func (s *Server) PublishStats(stats StatsData) {
	s.publish(MessageTypeStats, stats)
}

func (s *Server) publish(typ MessageType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("marshal dashboard payload failed", zap.Error(err))
		return
	}
	msg := Message{Type: typ, Timestamp: time.Now(), Data: data}
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.log.Warn("dashboard broadcast channel full, dropping message",
			zap.String("type", string(typ)))
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				s.log.Warn("marshal dashboard message failed", zap.Error(err))
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	count := len(s.clients)
	s.clientsMu.Unlock()

	s.log.Info("dashboard client connected", zap.Int("total", count))

	go s.readLoop(conn)
}

// readLoop keeps the connection alive; client messages are not processed.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if _, ok := s.clients[conn]; ok {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		delete(s.clients, conn)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.clientsMu.RLock()
	count := len(s.clients)
	s.clientsMu.RUnlock()
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": count,
	})
}
