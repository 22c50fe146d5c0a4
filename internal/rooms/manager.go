// Package rooms caches room records in front of the durable store and
// answers gating questions for the router.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/devastator99/socratic-gateway/pkg/interfaces"
	"github.com/devastator99/socratic-gateway/pkg/types"
)

// Manager resolves rooms cache-first. Room records are immutable after
// creation, so a cached copy never goes stale.
type Manager struct {
	store interfaces.MessageStore
	mu    sync.RWMutex
	cache map[string]*types.Room
}

// NewManager creates a room manager backed by the given store.
func NewManager(store interfaces.MessageStore) *Manager {
	return &Manager{
		store: store,
		cache: make(map[string]*types.Room),
	}
}

// Get returns the room record, consulting the cache before the store.
func (m *Manager) Get(ctx context.Context, roomID string) (*types.Room, error) {
	m.mu.RLock()
	room, ok := m.cache[roomID]
	m.mu.RUnlock()
	if ok {
		return room, nil
	}

	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cache[roomID] = room
	m.mu.Unlock()
	return room, nil
}

// Ensure returns the room, creating it as an open room on first join if
// no record exists yet.
func (m *Manager) Ensure(ctx context.Context, roomID string) (*types.Room, error) {
	room, err := m.Get(ctx, roomID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, interfaces.ErrRoomNotFound) {
		return nil, err
	}

	room = &types.Room{
		ID:       roomID,
		Name:     roomID,
		RoomType: types.RoomTypeOpen,
	}
	if err := m.store.CreateRoom(ctx, room); err != nil {
		// Lost a creation race; the winner's record is authoritative.
		if errors.Is(err, interfaces.ErrRoomExists) {
			return m.Get(ctx, roomID)
		}
		return nil, fmt.Errorf("create room %s: %w", roomID, err)
	}

	m.mu.Lock()
	m.cache[roomID] = room
	m.mu.Unlock()
	return room, nil
}

// Create registers a room explicitly, e.g. a gated room set up ahead of
// time, and primes the cache.
func (m *Manager) Create(ctx context.Context, room *types.Room) error {
	if err := m.store.CreateRoom(ctx, room); err != nil {
		return err
	}

	m.mu.Lock()
	m.cache[room.ID] = room
	m.mu.Unlock()
	return nil
}

// CheckAccess reports whether the actor's attribute snapshot satisfies
// the room's gating requirement.
func (m *Manager) CheckAccess(room *types.Room, actor types.Actor) bool {
	if !room.Gated() {
		return true
	}
	return actor.HasAny(room.RequiredNFTs)
}
