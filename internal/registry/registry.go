// Package registry tracks live connections and their owning actors.
// Pure in-process state; no business logic.
package registry

import (
	"sync"

	"github.com/devastator99/socratic-gateway/pkg/interfaces"
)

// Registry maps connection IDs to transport handles, with a secondary
// index by wallet for targeted delivery. One actor may own any number of
// concurrent connections (multi-device).
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]interfaces.Connection            // connID -> connection
	byWallet map[string]map[string]interfaces.Connection // wallet -> connID -> connection
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		conns:    make(map[string]interfaces.Connection),
		byWallet: make(map[string]map[string]interfaces.Connection),
	}
}

// Add registers an authenticated connection under its ID and wallet.
func (r *Registry) Add(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	wallet := conn.Actor().Wallet
	if wallet == "" {
		return ErrNotAuthenticated
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[conn.ID()] = conn
	if r.byWallet[wallet] == nil {
		r.byWallet[wallet] = make(map[string]interfaces.Connection)
	}
	r.byWallet[wallet][conn.ID()] = conn
	return nil
}

// Remove drops the connection with the given ID. Idempotent, and only the
// currently registered instance is removed, so a close racing an explicit
// logout cannot evict a replacement connection reusing the same ID.
func (r *Registry) Remove(conn interfaces.Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	registered, ok := r.conns[conn.ID()]
	if !ok || registered != conn {
		return
	}

	delete(r.conns, conn.ID())

	wallet := conn.Actor().Wallet
	if set, ok := r.byWallet[wallet]; ok {
		delete(set, conn.ID())
		if len(set) == 0 {
			delete(r.byWallet, wallet)
		}
	}
}

// Get returns the connection for an ID, if registered.
func (r *Registry) Get(connID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connID]
	return conn, ok
}

// ByWallet returns every live connection owned by a wallet.
func (r *Registry) ByWallet(wallet string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.byWallet[wallet]
	if !ok {
		return nil
	}
	conns := make([]interfaces.Connection, 0, len(set))
	for _, conn := range set {
		conns = append(conns, conn)
	}
	return conns
}

// All returns a snapshot of every registered connection.
func (r *Registry) All() []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]interfaces.Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Stats reports connection counts for monitoring.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.conns),
		"unique_wallets":    len(r.byWallet),
	}
}
