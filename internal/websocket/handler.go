package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devastator99/socratic-gateway/internal/config"
	"github.com/devastator99/socratic-gateway/pkg/interfaces"
	"github.com/devastator99/socratic-gateway/pkg/types"
)

// Close codes for failed authentication handshakes.
const (
	closeAuthRequired = 4001
	closeAuthFailed   = 4003
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the fronting proxy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// FrameRouter is the per-connection frame dispatcher the handler feeds.
type FrameRouter interface {
	Connect(conn interfaces.Connection) error
	HandleData(ctx context.Context, conn interfaces.Connection, data []byte)
	Disconnect(conn interfaces.Connection)
}

// Handler upgrades HTTP requests, runs the authentication handshake, and
// pumps inbound frames into the router.
type Handler struct {
	router   FrameRouter
	verifier interfaces.Verifier
	cfg      config.WebSocketConfig
	logger   *slog.Logger
}

// NewHandler creates a websocket handler.
func NewHandler(router FrameRouter, verifier interfaces.Verifier, cfg config.WebSocketConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		router:   router,
		verifier: verifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// HandleWebSocket is the /ws endpoint. The connection starts in the
// connecting state: only an auth credential (query token or auth frame)
// moves it forward, and everything else is answered with an auth-required
// error. After authentication the connection is admitted and its frames
// flow through the router until the transport closes.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := NewConnection(ws, h.cfg.WriteBuffer, h.cfg.WriteTimeout)

	actor, err := h.authenticate(conn, r)
	if err != nil {
		h.logger.Info("websocket authentication failed",
			"connection", conn.ID(), "error", err)
		_ = conn.WriteFrame(types.ErrorFrame{
			Type:    types.FrameError,
			Message: "invalid or expired token",
		})
		h.closeWith(ws, closeAuthFailed)
		_ = conn.Close()
		return
	}
	conn.SetActor(actor)

	if err := h.router.Connect(conn); err != nil {
		h.logger.Error("connection admission failed",
			"connection", conn.ID(), "wallet", actor.Wallet, "error", err)
		_ = conn.Close()
		return
	}

	_ = conn.WriteFrame(types.WelcomeFrame{
		Type:    types.FrameWelcome,
		Wallet:  actor.Wallet,
		NFTs:    actor.Holdings,
		Message: "Connected to authenticated chat",
	})

	h.logger.Info("connection established",
		"connection", conn.ID(), "wallet", actor.Wallet)

	h.readPump(conn)
}

// authenticate resolves the actor from a ?token= query parameter or, if
// absent, from the first auth frame. Non-auth frames before authentication
// are rejected without closing, leaving the state machine in connecting.
func (h *Handler) authenticate(conn *Connection, r *http.Request) (types.Actor, error) {
	if token := r.URL.Query().Get("token"); token != "" {
		return h.verifier.Verify(token)
	}

	deadline := time.Now().Add(h.cfg.AuthTimeout)
	if err := conn.conn.SetReadDeadline(deadline); err != nil {
		return types.Actor{}, err
	}

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			return types.Actor{}, ErrAuthTimeout
		}

		var frame types.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			_ = conn.WriteFrame(types.ErrorFrame{
				Type:    types.FrameError,
				Message: "invalid JSON in auth message",
			})
			continue
		}
		if frame.Type != types.FrameAuth || frame.Token == "" {
			_ = conn.WriteFrame(types.ErrorFrame{
				Type:    types.FrameError,
				Message: "authentication required: send {type: 'auth', token: '...'}",
			})
			continue
		}

		return h.verifier.Verify(frame.Token)
	}
}

// readPump is the per-connection frame loop. Cleanup is deferred so the
// router unsubscribes and the registry entry is removed even when the
// loop exits through a read error mid-frame.
func (h *Handler) readPump(conn *Connection) {
	defer func() {
		h.router.Disconnect(conn)
		_ = conn.Close()
		h.logger.Info("connection closed",
			"connection", conn.ID(), "wallet", conn.Actor().Wallet)
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	// Protocol-level pings in addition to application heartbeat frames.
	go h.pingLoop(conn)

	ctx := context.Background()
	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error",
					"connection", conn.ID(), "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		// Inbound frames refresh the read deadline like pongs do.
		_ = conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))

		h.router.HandleData(ctx, conn, data)
	}
}

func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}

func (h *Handler) closeWith(ws *websocket.Conn, code int) {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(code, "")
	_ = ws.WriteControl(websocket.CloseMessage, msg, deadline)
}
