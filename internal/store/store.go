// Package store persists messages and room records in SQLite. It is the
// durable-store collaborator behind the router's persist-then-publish
// path: Persist assigns the canonical envelope ID and timestamp.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/devastator99/socratic-gateway/pkg/interfaces"
	"github.com/devastator99/socratic-gateway/pkg/types"
)

// Config holds SQLite connection settings.
type Config struct {
	Path            string
	MaxConnections  int
	ConnMaxLifetime time.Duration
	WriteTimeout    time.Duration
}

// Store implements interfaces.MessageStore on SQLite. Writes funnel
// through a single goroutine; reads run concurrently on the pool.
type Store struct {
	db       *sql.DB
	writeCh  chan writeOp
	shutdown chan struct{}
	wg       sync.WaitGroup
	closed   bool
	mu       sync.RWMutex
	timeout  time.Duration
	logger   *slog.Logger
}

type writeOp struct {
	fn     func(*sql.DB) error
	result chan error
}

// Open connects to the database, applies pragmas and the schema, and
// starts the write loop.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	s := &Store{
		db:       db,
		writeCh:  make(chan writeOp, 100),
		shutdown: make(chan struct{}),
		timeout:  timeout,
		logger:   logger,
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// writeLoop serializes all writes. A failed write is retried once before
// the error is reported back to the caller.
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeCh:
			err := op.fn(s.db)
			if err != nil {
				s.logger.Warn("database write failed, retrying", "error", err)
				err = op.fn(s.db)
			}
			op.result <- err

		case <-s.shutdown:
			return
		}
	}
}

func (s *Store) executeWrite(fn func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case s.writeCh <- writeOp{fn: fn, result: result}:
		return <-result
	case <-time.After(s.timeout):
		return ErrWriteTimeout
	case <-s.shutdown:
		return ErrStoreClosed
	}
}

// Persist stores the envelope and returns the canonical copy with the
// store-assigned identifier and timestamp.
func (s *Store) Persist(ctx context.Context, env types.Envelope) (types.Envelope, error) {
	env.ID = uuid.New().String()
	env.Timestamp = time.Now().UTC()

	err := s.executeWrite(func(db *sql.DB) error {
		var requiredJSON any
		if len(env.RequiredNFTs) > 0 {
			data, err := json.Marshal(env.RequiredNFTs)
			if err != nil {
				return fmt.Errorf("marshal required NFTs: %w", err)
			}
			requiredJSON = string(data)
		}

		var target any
		if env.To != "" {
			target = env.To
		}

		query := `
			INSERT INTO messages (id, channel, msg_type, sender_wallet, target_wallet, content, required_nfts, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			env.ID, env.Channel, env.Kind, env.From, target,
			env.Content, requiredJSON, env.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.Envelope{}, err
	}
	return env, nil
}

// RecentHistory returns the latest messages on a channel in chronological
// order, at most limit of them.
func (s *Store) RecentHistory(ctx context.Context, channel string, limit int) ([]types.Envelope, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, channel, msg_type, sender_wallet, target_wallet, content, required_nfts, created_at
		FROM messages
		WHERE channel = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var envs []types.Envelope
	for rows.Next() {
		var env types.Envelope
		var target sql.NullString
		var requiredJSON sql.NullString

		err := rows.Scan(&env.ID, &env.Channel, &env.Kind, &env.From,
			&target, &env.Content, &requiredJSON, &env.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		if target.Valid {
			env.To = target.String
		}
		if requiredJSON.Valid {
			if err := json.Unmarshal([]byte(requiredJSON.String), &env.RequiredNFTs); err != nil {
				return nil, fmt.Errorf("unmarshal required NFTs: %w", err)
			}
		}
		envs = append(envs, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}

	// Newest-first from the query; flip to publish order.
	for i, j := 0, len(envs)-1; i < j; i, j = i+1, j-1 {
		envs[i], envs[j] = envs[j], envs[i]
	}
	return envs, nil
}

// GetRoom fetches a room record by ID.
func (s *Store) GetRoom(ctx context.Context, roomID string) (*types.Room, error) {
	query := `
		SELECT id, name, room_type, required_nfts, created_at
		FROM rooms
		WHERE id = ?
	`
	row := s.db.QueryRowContext(ctx, query, roomID)

	var room types.Room
	var requiredJSON sql.NullString
	err := row.Scan(&room.ID, &room.Name, &room.RoomType, &requiredJSON, &room.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrRoomNotFound
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	if requiredJSON.Valid {
		if err := json.Unmarshal([]byte(requiredJSON.String), &room.RequiredNFTs); err != nil {
			return nil, fmt.Errorf("unmarshal room NFTs: %w", err)
		}
	}
	return &room, nil
}

// CreateRoom inserts a room record. Duplicate IDs yield ErrRoomExists.
func (s *Store) CreateRoom(ctx context.Context, room *types.Room) error {
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	if room.RoomType == "" {
		room.RoomType = types.RoomTypeOpen
	}

	return s.executeWrite(func(db *sql.DB) error {
		var requiredJSON any
		if len(room.RequiredNFTs) > 0 {
			data, err := json.Marshal(room.RequiredNFTs)
			if err != nil {
				return fmt.Errorf("marshal room NFTs: %w", err)
			}
			requiredJSON = string(data)
		}

		query := `
			INSERT INTO rooms (id, name, room_type, required_nfts, created_at)
			VALUES (?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			room.ID, room.Name, room.RoomType, requiredJSON, room.CreatedAt)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return interfaces.ErrRoomExists
			}
			return fmt.Errorf("insert room: %w", err)
		}
		return nil
	})
}

// HealthCheck validates connectivity and basic read access.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "SELECT COUNT(*) FROM messages LIMIT 1"); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close drains the write loop and closes the connection pool.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}
