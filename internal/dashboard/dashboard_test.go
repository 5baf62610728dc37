package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/remarket/remarket/internal/model"
	"github.com/remarket/remarket/internal/syncer"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", nil)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server
}

func dialWS(t *testing.T, server *Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to parse message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if server.Addr() == "" {
		t.Fatal("Server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := startTestServer(t)

	resp, err := http.Get("http://" + server.Addr() + "/health")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Health status = %d, want 200", resp.StatusCode)
	}
}

func TestPublishProducts(t *testing.T) {
	server := startTestServer(t)
	conn := dialWS(t, server)

	// Give the accept handler time to register the client.
	time.Sleep(100 * time.Millisecond)

	server.PublishProducts([]model.Product{
		{ID: "srv-1", Brand: "Apple", Status: "approved", Active: true},
	})

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeProducts {
		t.Fatalf("Message type = %q, want %q", msg.Type, MessageTypeProducts)
	}
	var products []model.Product
	if err := json.Unmarshal(msg.Data, &products); err != nil {
		t.Fatalf("Failed to parse payload: %v", err)
	}
	if len(products) != 1 || products[0].ID != "srv-1" {
		t.Errorf("Payload = %+v", products)
	}
}

func TestPublishSyncResult(t *testing.T) {
	server := startTestServer(t)
	conn := dialWS(t, server)
	time.Sleep(100 * time.Millisecond)

	server.PublishSyncResult(syncer.Result{
		Pushed:   2,
		Pulled:   5,
		Skipped:  1,
		Duration: 250 * time.Millisecond,
	}, nil)

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeSyncResult {
		t.Fatalf("Message type = %q, want %q", msg.Type, MessageTypeSyncResult)
	}
	var data SyncResultData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to parse payload: %v", err)
	}
	if data.Pushed != 2 || data.Pulled != 5 || data.Skipped != 1 {
		t.Errorf("Payload = %+v", data)
	}
	if data.Error != "" {
		t.Errorf("Unexpected error field: %q", data.Error)
	}
}

func TestPublishStats(t *testing.T) {
	server := startTestServer(t)
	conn := dialWS(t, server)
	time.Sleep(100 * time.Millisecond)

	server.PublishStats(StatsData{Total: 10, Unsynced: 3, Tombstoned: 1})

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeStats {
		t.Fatalf("Message type = %q, want %q", msg.Type, MessageTypeStats)
	}
	var data StatsData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to parse payload: %v", err)
	}
	if data.Total != 10 || data.Unsynced != 3 || data.Tombstoned != 1 {
		t.Errorf("Payload = %+v", data)
	}
}
