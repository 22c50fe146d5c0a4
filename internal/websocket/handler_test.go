package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devastator99/socratic-gateway/internal/config"
	"github.com/devastator99/socratic-gateway/pkg/interfaces"
	"github.com/devastator99/socratic-gateway/pkg/types"
)

const testWallet = "walletA1234567890123456789"

type fakeVerifier struct{}

func (fakeVerifier) Verify(token string) (types.Actor, error) {
	if token == "good-token" {
		return types.Actor{Wallet: testWallet, Holdings: []string{"x"}}, nil
	}
	return types.Actor{}, interfaces.ErrInvalidToken
}

// recordingRouter tracks lifecycle calls and inbound frames.
type recordingRouter struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	frames      [][]byte
}

func (r *recordingRouter) Connect(conn interfaces.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects++
	return nil
}

func (r *recordingRouter) HandleData(ctx context.Context, conn interfaces.Connection, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, data)
}

func (r *recordingRouter) Disconnect(conn interfaces.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects++
}

func (r *recordingRouter) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects, r.disconnects, len(r.frames)
}

func newTestHandler(t *testing.T) (*recordingRouter, string) {
	t.Helper()

	router := &recordingRouter{}
	cfg := config.WebSocketConfig{
		PingInterval: time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: time.Second,
		AuthTimeout:  2 * time.Second,
		WriteBuffer:  10,
	}
	h := NewHandler(router, fakeVerifier{}, cfg, nil)

	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(server.Close)

	return router, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func readFrame(t *testing.T, client *websocket.Conn) map[string]any {
	t.Helper()
	_ = client.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return frame
}

func TestHandshake_QueryTokenAuth(t *testing.T) {
	router, url := newTestHandler(t)
	client := dial(t, url+"?token=good-token")

	welcome := readFrame(t, client)
	if welcome["type"] != types.FrameWelcome {
		t.Fatalf("expected welcome, got %v", welcome)
	}
	if welcome["wallet_address"] != testWallet {
		t.Errorf("welcome wallet: %v", welcome["wallet_address"])
	}

	connects, _, _ := router.counts()
	if connects != 1 {
		t.Errorf("router.Connect calls: %d", connects)
	}
}

func TestHandshake_FirstFrameAuth(t *testing.T) {
	_, url := newTestHandler(t)
	client := dial(t, url)

	err := client.WriteJSON(types.Frame{Type: types.FrameAuth, Token: "good-token"})
	if err != nil {
		t.Fatalf("write auth: %v", err)
	}

	welcome := readFrame(t, client)
	if welcome["type"] != types.FrameWelcome {
		t.Fatalf("expected welcome, got %v", welcome)
	}
}

func TestHandshake_NonAuthFrameKeepsConnecting(t *testing.T) {
	_, url := newTestHandler(t)
	client := dial(t, url)

	// A data frame before authentication is answered with an error, not a
	// close; the handshake can still succeed afterwards.
	if err := client.WriteJSON(types.Frame{Type: types.FrameHeartbeat}); err != nil {
		t.Fatalf("write heartbeat: %v", err)
	}
	errFrame := readFrame(t, client)
	if errFrame["type"] != types.FrameError {
		t.Fatalf("expected error frame, got %v", errFrame)
	}

	if err := client.WriteJSON(types.Frame{Type: types.FrameAuth, Token: "good-token"}); err != nil {
		t.Fatalf("write auth: %v", err)
	}
	welcome := readFrame(t, client)
	if welcome["type"] != types.FrameWelcome {
		t.Fatalf("expected welcome after late auth, got %v", welcome)
	}
}

func TestHandshake_InvalidTokenCloses(t *testing.T) {
	router, url := newTestHandler(t)
	client := dial(t, url+"?token=bad-token")

	errFrame := readFrame(t, client)
	if errFrame["type"] != types.FrameError {
		t.Fatalf("expected error frame, got %v", errFrame)
	}

	_ = client.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := client.ReadMessage(); err == nil {
		t.Error("expected the server to close the connection")
	}

	connects, _, _ := router.counts()
	if connects != 0 {
		t.Error("failed auth must not reach the router")
	}
}

func TestReadPump_FeedsRouterAndCleansUp(t *testing.T) {
	router, url := newTestHandler(t)
	client := dial(t, url+"?token=good-token")
	readFrame(t, client) // welcome

	if err := client.WriteJSON(types.Frame{Type: types.FrameHeartbeat}); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, _, frames := router.counts(); frames == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("frame never reached the router")
		}
		time.Sleep(10 * time.Millisecond)
	}

	_ = client.Close()
	deadline = time.Now().Add(2 * time.Second)
	for {
		if _, disconnects, _ := router.counts(); disconnects == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("disconnect cleanup never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
