package live

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"harborgrid-cloud/internal/auth"
)

func TestClient_ReceivesFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"reading"}`))
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	frames := make(chan []byte, 8)
	client, err := NewClient(ClientConfig{
		URL:     wsURL(t, server.URL),
		Handler: func(frame []byte) { frames <- frame },
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	select {
	case frame := <-frames:
		if !strings.Contains(string(frame), "reading") {
			t.Fatalf("unexpected frame: %s", frame)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no frame delivered")
	}

	client.Close()
	select {
	case err := <-done:
		if !errors.Is(err, ErrClientClosed) {
			t.Fatalf("expected ErrClientClosed, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestClient_FallsBackToPollingThenRecovers(t *testing.T) {
	var dials atomic.Int32
	var polls atomic.Int32
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		if dials.Add(1) <= 4 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ws-recovered"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/snapshot", func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"type":"snapshot"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sawSnapshot := make(chan struct{}, 1)
	sawRecovered := make(chan struct{}, 1)
	client, err := NewClient(ClientConfig{
		URL:            wsURL(t, server.URL) + "/live",
		SnapshotURL:    server.URL + "/snapshot",
		FallbackAfter:  2,
		PollInterval:   15 * time.Millisecond,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     25 * time.Millisecond,
		Handler: func(frame []byte) {
			body := string(frame)
			if strings.Contains(body, "snapshot") {
				select {
				case sawSnapshot <- struct{}{}:
				default:
				}
			}
			if strings.Contains(body, "ws-recovered") {
				select {
				case sawRecovered <- struct{}{}:
				default:
				}
			}
		},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.Run(ctx) }()
	defer client.Close()

	select {
	case <-sawSnapshot:
	case <-time.After(5 * time.Second):
		t.Fatal("polling fallback never delivered a snapshot")
	}

	select {
	case <-sawRecovered:
	case <-time.After(5 * time.Second):
		t.Fatal("client never recovered to the socket")
	}

	if polls.Load() == 0 {
		t.Fatal("expected at least one snapshot poll")
	}
}

func TestClient_AuthenticatesThroughMiddleware(t *testing.T) {
	secret := []byte("live-test-secret")
	token, err := auth.SignJWT(secret, "tenant-a", auth.RoleViewer, "relay-1", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	var dials atomic.Int32
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/live", func(w http.ResponseWriter, r *http.Request) {
		if dials.Add(1) <= 4 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ws-recovered"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/api/v1/readings/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"type":"snapshot"}`))
	})

	// The snapshot route only accepts bearer headers; the query token is
	// honored for the socket path alone.
	middleware := auth.NewMiddleware(secret, auth.NewDefaultPolicy(nil, nil))
	server := httptest.NewServer(middleware.Wrap(mux))
	defer server.Close()

	sawSnapshot := make(chan struct{}, 1)
	sawRecovered := make(chan struct{}, 1)
	client, err := NewClient(ClientConfig{
		URL:            wsURL(t, server.URL) + "/api/v1/live",
		SnapshotURL:    server.URL + "/api/v1/readings/latest",
		Token:          token,
		FallbackAfter:  2,
		PollInterval:   15 * time.Millisecond,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     25 * time.Millisecond,
		Handler: func(frame []byte) {
			body := string(frame)
			if strings.Contains(body, "snapshot") {
				select {
				case sawSnapshot <- struct{}{}:
				default:
				}
			}
			if strings.Contains(body, "ws-recovered") {
				select {
				case sawRecovered <- struct{}{}:
				default:
				}
			}
		},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = client.Run(ctx) }()
	defer client.Close()

	select {
	case <-sawSnapshot:
	case <-time.After(5 * time.Second):
		t.Fatal("degraded mode never delivered an authorized snapshot")
	}

	select {
	case <-sawRecovered:
	case <-time.After(5 * time.Second):
		t.Fatal("client never recovered to the socket")
	}
}

func TestClient_CloseBeforeRun(t *testing.T) {
	client, err := NewClient(ClientConfig{URL: "ws://127.0.0.1:1/live", Handler: func([]byte) {}})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.Close()
	if err := client.Run(context.Background()); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
}

func TestClient_ConfigValidation(t *testing.T) {
	if _, err := NewClient(ClientConfig{Handler: func([]byte) {}}); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewClient(ClientConfig{URL: "ws://example/live"}); err == nil {
		t.Fatal("expected error for nil handler")
	}
}
