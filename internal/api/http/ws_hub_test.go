package apihttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"moviestream/internal/domain"
)

// startTestHub runs a hub in the background. Tests that register fake
// (nil-conn) clients must unregister them instead of closing the hub, since
// Close writes a close frame to each client's conn.
func startTestHub(t *testing.T) *wsHub {
	t.Helper()
	hub := newWSHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.run()
	return hub
}

func unregisterAll(hub *wsHub, clients ...*wsClient) {
	for _, c := range clients {
		hub.unregister <- c
	}
	time.Sleep(20 * time.Millisecond)
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	resp.Body.Close()
	return conn
}

func readWSMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) wsMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ws message: %v", err)
	}
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal ws message: %v (raw: %s)", err, data)
	}
	return msg
}

type staticAssetRepo struct {
	assets []domain.MovieAsset
}

func (r *staticAssetRepo) Create(ctx context.Context, a domain.MovieAsset) error { return nil }
func (r *staticAssetRepo) Update(ctx context.Context, a domain.MovieAsset) error { return nil }
func (r *staticAssetRepo) UpdateProgress(ctx context.Context, id domain.MovieID, progress float64) error {
	return nil
}
func (r *staticAssetRepo) TouchLastWatched(ctx context.Context, id domain.MovieID, at time.Time) error {
	return nil
}
func (r *staticAssetRepo) Get(ctx context.Context, id domain.MovieID) (domain.MovieAsset, error) {
	return domain.MovieAsset{}, domain.ErrNotFound
}
func (r *staticAssetRepo) List(ctx context.Context, filter domain.AssetFilter) ([]domain.MovieAsset, error) {
	return r.assets, nil
}

func TestWSHubRegisterAndUnregister(t *testing.T) {
	hub := startTestHub(t)

	client := &wsClient{hub: hub, send: make(chan []byte, 256)}
	hub.register <- client
	time.Sleep(20 * time.Millisecond)
	if hub.clientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.clientCount())
	}

	hub.unregister <- client
	time.Sleep(20 * time.Millisecond)
	if hub.clientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.clientCount())
	}

	// Unregistering a client the hub never saw must not panic.
	hub.unregister <- &wsClient{hub: hub, send: make(chan []byte, 1)}
	time.Sleep(20 * time.Millisecond)
}

func TestWSHubBroadcastToClients(t *testing.T) {
	hub := startTestHub(t)

	c1 := &wsClient{hub: hub, send: make(chan []byte, 256)}
	c2 := &wsClient{hub: hub, send: make(chan []byte, 256)}
	hub.register <- c1
	hub.register <- c2
	time.Sleep(20 * time.Millisecond)

	hub.Broadcast("assets", []assetSummary{{MovieID: "42", Status: domain.StatusReady, Ready: true}})
	time.Sleep(20 * time.Millisecond)

	for i, c := range []*wsClient{c1, c2} {
		select {
		case data := <-c.send:
			var msg wsMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("client %d: unmarshal: %v", i, err)
			}
			if msg.Type != "assets" {
				t.Fatalf("client %d: type = %q, want assets", i, msg.Type)
			}
		default:
			t.Fatalf("client %d: no message received", i)
		}
	}
	unregisterAll(hub, c1, c2)
}

func TestWSHubBroadcastDropsSlowClient(t *testing.T) {
	hub := startTestHub(t)

	slow := &wsClient{hub: hub, send: make(chan []byte, 1)}
	hub.register <- slow
	time.Sleep(20 * time.Millisecond)

	slow.send <- []byte("fill")

	hub.Broadcast("assets", []assetSummary{})
	time.Sleep(20 * time.Millisecond)

	if hub.clientCount() != 0 {
		t.Fatalf("expected slow client to be dropped, got %d clients", hub.clientCount())
	}
}

func TestWSHubBroadcastNoClients(t *testing.T) {
	hub := startTestHub(t)

	// Must not panic or block.
	hub.Broadcast("assets", []assetSummary{{MovieID: "42"}})
}

func TestWSHubBroadcastMarshalFailure(t *testing.T) {
	hub := startTestHub(t)

	client := &wsClient{hub: hub, send: make(chan []byte, 256)}
	hub.register <- client
	time.Sleep(20 * time.Millisecond)

	// channels cannot be marshaled to JSON
	hub.Broadcast("bad", make(chan int))
	time.Sleep(20 * time.Millisecond)

	select {
	case <-client.send:
		t.Fatal("should not receive message when marshal fails")
	default:
	}
	unregisterAll(hub, client)
}

func TestServerBroadcastsAssetSummaries(t *testing.T) {
	repo := &staticAssetRepo{assets: []domain.MovieAsset{
		{ID: "42", Status: domain.StatusReady, Progress: 100},
		{ID: "43", Status: domain.StatusDownloading, Progress: 12.5},
	}}
	s := NewServer(nil,
		WithRepository(repo),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	srv := httptest.NewServer(s)
	defer srv.Close()
	defer s.Close()

	conn := dialWS(t, srv)
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	s.BroadcastAssets()

	msg := readWSMessage(t, conn, 2*time.Second)
	if msg.Type != "assets" {
		t.Fatalf("type = %q, want assets", msg.Type)
	}
	arr, ok := msg.Data.([]interface{})
	if !ok || len(arr) != 2 {
		t.Fatalf("data = %v, want 2 summaries", msg.Data)
	}
	first := arr[0].(map[string]interface{})
	if first["movie_id"] != "42" || first["status"] != "READY" || first["ready"] != true {
		t.Fatalf("first summary = %v", first)
	}
}

func TestWSCloseDisconnectsClients(t *testing.T) {
	s := NewServer(nil, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	srv := httptest.NewServer(s)
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	s.Close()
	time.Sleep(100 * time.Millisecond)

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected error after hub close")
	}
}
