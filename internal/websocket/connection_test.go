package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devastator99/socratic-gateway/pkg/types"
)

// wsPair upgrades one server-side connection and dials it from a client.
func wsPair(t *testing.T) (*Connection, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *Connection, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- NewConnection(ws, 10, time.Second)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case conn := <-connCh:
		t.Cleanup(func() { _ = conn.Close() })
		return conn, client
	case <-time.After(2 * time.Second):
		t.Fatal("server connection never arrived")
		return nil, nil
	}
}

func TestConnection_WriteFrameReachesClient(t *testing.T) {
	conn, client := wsPair(t)

	frame := types.ErrorFrame{Type: types.FrameError, Message: "test"}
	if err := conn.WriteFrame(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("client read: %v", err)
	}

	var got types.ErrorFrame
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Message != "test" || got.Type != types.FrameError {
		t.Errorf("unexpected frame: %+v", got)
	}
}

func TestConnection_WriteOrderPreserved(t *testing.T) {
	conn, client := wsPair(t)

	for i := 0; i < 5; i++ {
		err := conn.WriteFrame(types.HeartbeatAckFrame{
			Type:   types.FrameHeartbeatAck,
			Wallet: strings.Repeat("a", 19) + string(rune('0'+i)),
		})
		if err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	for i := 0; i < 5; i++ {
		_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := client.ReadMessage()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		var got types.HeartbeatAckFrame
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %d: %v", i, err)
		}
		want := string(rune('0' + i))
		if !strings.HasSuffix(got.Wallet, want) {
			t.Errorf("frame %d out of order: %s", i, got.Wallet)
		}
	}
}

func TestConnection_CloseIsIdempotent(t *testing.T) {
	conn, _ := wsPair(t)

	if err := conn.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	_ = conn.Close() // must not panic or double-close

	if err := conn.WriteFrame(types.ErrorFrame{Type: types.FrameError}); err != ErrConnectionClosed {
		t.Errorf("write after close: got %v, want ErrConnectionClosed", err)
	}

	select {
	case <-conn.Done():
	default:
		t.Error("Done must be closed after Close")
	}
}

func TestConnection_ActorRoundTrip(t *testing.T) {
	conn, _ := wsPair(t)

	if got := conn.Actor(); got.Wallet != "" {
		t.Errorf("expected zero actor before auth, got %+v", got)
	}

	actor := types.Actor{Wallet: "walletA1234567890123456789", Holdings: []string{"x"}}
	conn.SetActor(actor)

	got := conn.Actor()
	if got.Wallet != actor.Wallet || len(got.Holdings) != 1 {
		t.Errorf("actor round trip failed: %+v", got)
	}
}

func TestConnection_UniqueIDs(t *testing.T) {
	a, _ := wsPair(t)
	b, _ := wsPair(t)

	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("connection IDs must be unique and non-empty: %q vs %q", a.ID(), b.ID())
	}
	if a.CreatedAt().IsZero() {
		t.Error("CreatedAt must be set at accept")
	}
}

func TestConnection_WriteFrameRejectsUnmarshalable(t *testing.T) {
	conn, _ := wsPair(t)

	if err := conn.WriteFrame(make(chan int)); err != ErrInvalidJSON {
		t.Errorf("expected ErrInvalidJSON, got %v", err)
	}
}
