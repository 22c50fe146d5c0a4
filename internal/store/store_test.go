package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/devastator99/socratic-gateway/pkg/interfaces"
	"github.com/devastator99/socratic-gateway/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		WriteTimeout: 5 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPersist_AssignsIDAndTimestamp(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	env := types.Envelope{
		Channel: types.RoomChannel("general"),
		Kind:    types.EnvelopeRoomMessage,
		From:    "walletA1234567890123456789",
		Content: "hello",
	}

	canonical, err := s.Persist(ctx, env)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if canonical.ID == "" {
		t.Error("expected store-assigned ID")
	}
	if canonical.Timestamp.IsZero() {
		t.Error("expected store-assigned timestamp")
	}
	if canonical.Content != "hello" || canonical.From != env.From {
		t.Errorf("payload fields changed: %+v", canonical)
	}
}

func TestRecentHistory_ChronologicalOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	channel := types.RoomChannel("general")

	var ids []string
	for i := 0; i < 5; i++ {
		env, err := s.Persist(ctx, types.Envelope{
			Channel: channel,
			Kind:    types.EnvelopeRoomMessage,
			From:    "walletA1234567890123456789",
			Content: fmt.Sprintf("message %d", i),
		})
		if err != nil {
			t.Fatalf("persist %d: %v", i, err)
		}
		ids = append(ids, env.ID)
		time.Sleep(2 * time.Millisecond) // distinct created_at ordering
	}

	history, err := s.RecentHistory(ctx, channel, 3)
	if err != nil {
		t.Fatalf("recent history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(history))
	}
	// Latest three, oldest first.
	for i, want := range ids[2:] {
		if history[i].ID != want {
			t.Errorf("position %d: got %s, want %s", i, history[i].ID, want)
		}
	}
}

func TestRecentHistory_ChannelIsolation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Persist(ctx, types.Envelope{
		Channel: types.RoomChannel("a"),
		Kind:    types.EnvelopeRoomMessage,
		From:    "walletA1234567890123456789",
		Content: "room a",
	})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}

	history, err := s.RecentHistory(ctx, types.RoomChannel("b"), 10)
	if err != nil {
		t.Fatalf("recent history: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("expected empty history for other channel, got %d", len(history))
	}
}

func TestPersist_RoundTripsPrivateFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	channel := types.WalletChannel("walletB1234567890123456789")

	_, err := s.Persist(ctx, types.Envelope{
		Channel:      channel,
		Kind:         types.EnvelopeNFTMessage,
		From:         "walletA1234567890123456789",
		To:           "walletB1234567890123456789",
		Content:      "secret",
		RequiredNFTs: []string{"collection-x", "collection-y"},
	})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}

	history, err := s.RecentHistory(ctx, channel, 1)
	if err != nil {
		t.Fatalf("recent history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 message, got %d", len(history))
	}
	got := history[0]
	if got.To != "walletB1234567890123456789" {
		t.Errorf("target wallet lost: %q", got.To)
	}
	if len(got.RequiredNFTs) != 2 || got.RequiredNFTs[0] != "collection-x" {
		t.Errorf("required NFTs lost: %v", got.RequiredNFTs)
	}
}

func TestCreateRoom_And_GetRoom(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	room := &types.Room{
		ID:           "vip-lounge",
		Name:         "VIP Lounge",
		RoomType:     types.RoomTypeNFTGated,
		RequiredNFTs: []string{"vip-pass"},
	}
	if err := s.CreateRoom(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if room.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	got, err := s.GetRoom(ctx, "vip-lounge")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if got.Name != "VIP Lounge" || got.RoomType != types.RoomTypeNFTGated {
		t.Errorf("room fields lost: %+v", got)
	}
	if len(got.RequiredNFTs) != 1 || got.RequiredNFTs[0] != "vip-pass" {
		t.Errorf("required NFTs lost: %v", got.RequiredNFTs)
	}
}

func TestCreateRoom_DuplicateID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	room := &types.Room{ID: "general", Name: "General"}
	if err := s.CreateRoom(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}

	err := s.CreateRoom(ctx, &types.Room{ID: "general", Name: "Other"})
	if err != interfaces.ErrRoomExists {
		t.Errorf("expected ErrRoomExists, got %v", err)
	}
}

func TestGetRoom_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetRoom(context.Background(), "missing")
	if err != interfaces.ErrRoomNotFound {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	s := openTestStore(t)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("health check: %v", err)
	}
}

func TestClose_RejectsSubsequentWrites(t *testing.T) {
	s := openTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}

	_, err := s.Persist(context.Background(), types.Envelope{
		Channel: types.RoomChannel("general"),
		Kind:    types.EnvelopeRoomMessage,
		Content: "late",
	})
	if err != ErrStoreClosed {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
}
