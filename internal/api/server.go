// Package api exposes the gateway's HTTP surface: room administration,
// operational stats, and a health probe. No business logic lives here,
// only HTTP handling and JSON serialization.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/devastator99/socratic-gateway/internal/presence"
	"github.com/devastator99/socratic-gateway/internal/registry"
	"github.com/devastator99/socratic-gateway/internal/rooms"
	"github.com/devastator99/socratic-gateway/pkg/interfaces"
	"github.com/devastator99/socratic-gateway/pkg/types"
)

// WebSocketHandler is the entry point for /ws upgrades.
type WebSocketHandler interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
}

// Server routes HTTP requests to the gateway's components.
type Server struct {
	store    interfaces.MessageStore
	rooms    *rooms.Manager
	registry *registry.Registry
	presence *presence.Monitor
	ws       WebSocketHandler
	logger   *slog.Logger
	router   *http.ServeMux
}

// NewServer wires the HTTP routes.
func NewServer(
	store interfaces.MessageStore,
	roomMgr *rooms.Manager,
	reg *registry.Registry,
	pres *presence.Monitor,
	ws WebSocketHandler,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:    store,
		rooms:    roomMgr,
		registry: reg,
		presence: pres,
		ws:       ws,
		logger:   logger,
		router:   http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/ws", s.ws.HandleWebSocket)
	s.router.Handle("/api/rooms", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleRooms))))
	s.router.Handle("/api/rooms/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleRoomByID))))
	s.router.Handle("/api/stats", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleStats))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type createRoomRequest struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	RoomType     string   `json:"room_type"`
	RequiredNFTs []string `json:"required_nfts"`
}

type roomResponse struct {
	Room *types.Room `json:"room"`
}

type statsResponse struct {
	TotalConnections int      `json:"total_connections"`
	UniqueWallets    int      `json:"unique_wallets"`
	OnlineUsers      []string `json:"online_users"`
	OnlineCount      int      `json:"online_users_count"`
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createRoom(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRoomByID(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	if roomID == "" || strings.Contains(roomID, "/") {
		s.sendError(w, "Invalid room ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getRoom(w, r, roomID)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// createRoom registers a room ahead of time, which is how gated rooms come
// to exist: joins only auto-create open rooms.
func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	if !types.IsValidRoomID(req.ID) {
		s.sendError(w, "Invalid room ID", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		req.Name = req.ID
	}
	roomType := req.RoomType
	if roomType == "" {
		roomType = types.RoomTypeOpen
	}
	if roomType != types.RoomTypeOpen && roomType != types.RoomTypeNFTGated {
		s.sendError(w, "Unknown room type", http.StatusBadRequest)
		return
	}
	if roomType == types.RoomTypeNFTGated && len(req.RequiredNFTs) == 0 {
		s.sendError(w, "Gated rooms require at least one NFT", http.StatusBadRequest)
		return
	}

	room := &types.Room{
		ID:           req.ID,
		Name:         req.Name,
		RoomType:     roomType,
		RequiredNFTs: req.RequiredNFTs,
	}
	if err := s.rooms.Create(r.Context(), room); err != nil {
		if errors.Is(err, interfaces.ErrRoomExists) {
			s.sendError(w, "Room already exists", http.StatusConflict)
			return
		}
		s.logger.Error("room creation failed", "room", req.ID, "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, roomResponse{Room: room}, http.StatusCreated)
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	room, err := s.rooms.Get(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, interfaces.ErrRoomNotFound) {
			s.sendError(w, "Room not found", http.StatusNotFound)
			return
		}
		s.logger.Error("room lookup failed", "room", roomID, "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, roomResponse{Room: room}, http.StatusOK)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := s.registry.Stats()
	online := s.presence.Online()
	s.sendJSON(w, statsResponse{
		TotalConnections: stats["total_connections"],
		UniqueWallets:    stats["unique_wallets"],
		OnlineUsers:      online,
		OnlineCount:      len(online),
	}, http.StatusOK)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.HealthCheck(r.Context()); err != nil {
		s.sendJSON(w, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		}, http.StatusServiceUnavailable)
		return
	}

	s.sendJSON(w, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}, http.StatusOK)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, status int) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encoding failed", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, status int) {
	s.sendJSON(w, map[string]string{"error": message}, status)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
