// Package interfaces holds the narrow contracts between the gateway core
// and its collaborators, so components depend on behavior rather than on
// each other's concrete types.
package interfaces

import (
	"context"
	"time"

	"github.com/devastator99/socratic-gateway/pkg/types"
)

// Connection is the write side of one client transport. The core never
// reads from it directly; the websocket handler owns the read loop.
type Connection interface {
	ID() string
	Actor() types.Actor
	CreatedAt() time.Time
	WriteFrame(v any) error
	Close() error
}

// MessageStore is the durable persistence collaborator. Persist assigns
// the canonical identifier and timestamp before broker fan-out.
type MessageStore interface {
	Persist(ctx context.Context, env types.Envelope) (types.Envelope, error)
	RecentHistory(ctx context.Context, channel string, limit int) ([]types.Envelope, error)
	GetRoom(ctx context.Context, roomID string) (*types.Room, error)
	CreateRoom(ctx context.Context, room *types.Room) error
	HealthCheck(ctx context.Context) error
}

// Verifier is the external identity/authorization collaborator. It turns
// raw credentials into a verified actor; the core performs no
// cryptographic checks itself.
type Verifier interface {
	Verify(token string) (types.Actor, error)
}
