// Package router dispatches authenticated client frames: it validates and
// rate-limits each action, drives room state, and feeds the broker and
// registry. Persistence happens before fan-out so subscribers always see
// store-assigned identifiers.
package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/devastator99/socratic-gateway/internal/broker"
	"github.com/devastator99/socratic-gateway/internal/config"
	"github.com/devastator99/socratic-gateway/internal/presence"
	"github.com/devastator99/socratic-gateway/internal/ratelimit"
	"github.com/devastator99/socratic-gateway/internal/registry"
	"github.com/devastator99/socratic-gateway/internal/rooms"
	"github.com/devastator99/socratic-gateway/pkg/interfaces"
	"github.com/devastator99/socratic-gateway/pkg/types"
)

// Rate-limit action classes.
const (
	actionChat    = "chat_message"
	actionPrivate = "private_message"
	actionJoin    = "join_room"
	actionQuery   = "query"
	actionGeneric = "generic"
)

const backfillLimit = 50

// session holds the per-connection routing state: every broker
// subscription the connection owns, keyed by channel.
type session struct {
	subs map[string]*broker.Subscription
}

// Router is the frame dispatcher shared by all connection tasks.
type Router struct {
	registry *registry.Registry
	broker   *broker.Broker
	store    interfaces.MessageStore
	rooms    *rooms.Manager
	limiter  *ratelimit.Limiter
	presence *presence.Monitor
	logger   *slog.Logger

	rules map[string][]ratelimit.Rule

	mu       sync.Mutex
	sessions map[string]*session // connID -> session
}

// New creates a router. Rate-limit rules are derived from the limits
// configuration once at construction.
func New(
	reg *registry.Registry,
	b *broker.Broker,
	store interfaces.MessageStore,
	roomMgr *rooms.Manager,
	limiter *ratelimit.Limiter,
	pres *presence.Monitor,
	limits config.LimitsConfig,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: reg,
		broker:   b,
		store:    store,
		rooms:    roomMgr,
		limiter:  limiter,
		presence: pres,
		logger:   logger,
		rules:    buildRules(limits),
		sessions: make(map[string]*session),
	}
}

// buildRules maps each action class to its rules. Chat carries both a
// sliding window and a token bucket so short bursts are shaped separately
// from the per-minute budget; the tightest rule wins at check time.
func buildRules(limits config.LimitsConfig) map[string][]ratelimit.Rule {
	chatBurst := limits.ChatBurst
	if chatBurst <= 0 {
		chatBurst = limits.ChatPerMinute
	}
	return map[string][]ratelimit.Rule{
		actionChat: {
			{Algorithm: ratelimit.SlidingWindow, Limit: limits.ChatPerMinute, Window: time.Minute},
			{Algorithm: ratelimit.TokenBucket, Limit: limits.ChatPerMinute, Window: time.Minute, Burst: chatBurst},
		},
		actionPrivate: {
			{Algorithm: ratelimit.SlidingWindow, Limit: limits.PrivatePerMinute, Window: time.Minute},
		},
		actionJoin: {
			{Algorithm: ratelimit.SlidingWindow, Limit: limits.JoinPerMinute, Window: time.Minute},
		},
		actionQuery: {
			{Algorithm: ratelimit.FixedWindow, Limit: limits.QueryPerMinute, Window: time.Minute},
		},
		actionGeneric: {
			{Algorithm: ratelimit.SlidingWindow, Limit: limits.GenericPerMinute, Window: time.Minute},
		},
	}
}

// Connect admits an authenticated connection: it joins the registry,
// counts as a heartbeat, and subscribes to its own direct channel and the
// status channel so private messages and presence transitions reach it.
func (r *Router) Connect(conn interfaces.Connection) error {
	if err := r.registry.Add(conn); err != nil {
		return err
	}

	wallet := conn.Actor().Wallet
	r.presence.Heartbeat(wallet)

	sess := &session{subs: make(map[string]*broker.Subscription)}
	direct := types.WalletChannel(wallet)
	sess.subs[direct] = r.broker.Subscribe(direct, r.forward(conn))
	sess.subs[types.StatusChannel] = r.broker.Subscribe(types.StatusChannel, r.forward(conn))

	r.mu.Lock()
	r.sessions[conn.ID()] = sess
	r.mu.Unlock()
	return nil
}

// Disconnect runs on entry to the closed state: it unsubscribes the
// connection from every channel it joined and removes it from the
// registry, synchronously, before the connection task exits.
func (r *Router) Disconnect(conn interfaces.Connection) {
	r.mu.Lock()
	sess, ok := r.sessions[conn.ID()]
	delete(r.sessions, conn.ID())
	r.mu.Unlock()

	if ok {
		for _, sub := range sess.subs {
			r.broker.Unsubscribe(sub)
		}
	}
	r.registry.Remove(conn)
}

// HandleData parses and dispatches one inbound frame. Malformed or
// unknown frames are throttled under the generic key so a flood of
// garbage is still rate-limited.
func (r *Router) HandleData(ctx context.Context, conn interfaces.Connection, data []byte) {
	wallet := conn.Actor().Wallet
	r.presence.Heartbeat(wallet)

	var frame types.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		if r.allow(conn, actionGeneric) {
			r.writeError(conn, "invalid JSON format", 0)
		}
		return
	}

	switch frame.Type {
	case types.FrameHeartbeat:
		r.handleHeartbeat(conn)
	case types.FrameJoinRoom:
		r.handleJoinRoom(ctx, conn, frame)
	case types.FrameRoomMessage:
		r.handleRoomMessage(ctx, conn, frame)
	case types.FramePrivateMessage:
		r.handlePrivateMessage(ctx, conn, frame)
	case types.FrameNFTMessage:
		r.handleNFTMessage(ctx, conn, frame)
	case types.FrameOnlineUsers:
		r.handleOnlineUsers(conn)
	case types.FrameStats:
		r.handleStats(conn)
	case types.FrameLogout:
		r.handleLogout(conn)
	default:
		if r.allow(conn, actionGeneric) {
			r.writeError(conn, "unknown message type: "+frame.Type, 0)
		}
	}
}

func (r *Router) handleHeartbeat(conn interfaces.Connection) {
	if !r.allow(conn, actionGeneric) {
		return
	}
	// Presence was already refreshed in HandleData; just acknowledge.
	r.reply(conn, types.HeartbeatAckFrame{
		Type:      types.FrameHeartbeatAck,
		Wallet:    conn.Actor().Wallet,
		Timestamp: time.Now().UTC(),
	})
}

// handleJoinRoom gates entry on the actor's attribute snapshot, then
// subscribes the connection and backfills recent room traffic.
func (r *Router) handleJoinRoom(ctx context.Context, conn interfaces.Connection, frame types.Frame) {
	if !types.IsValidRoomID(frame.RoomID) {
		r.writeError(conn, types.ErrInvalidRoomID.Error(), 0)
		return
	}
	if !r.allow(conn, actionJoin) {
		return
	}

	room, err := r.rooms.Ensure(ctx, frame.RoomID)
	if err != nil {
		r.dependencyError(conn, "join_room", err)
		return
	}

	actor := conn.Actor()
	if !r.rooms.CheckAccess(room, actor) {
		r.writeError(conn, "access denied: required NFTs not held", 0)
		return
	}

	channel := types.RoomChannel(room.ID)
	recent := r.backfill(ctx, channel)

	r.mu.Lock()
	sess, ok := r.sessions[conn.ID()]
	if ok {
		if _, joined := sess.subs[channel]; !joined {
			sess.subs[channel] = r.broker.Subscribe(channel, r.forward(conn))
		}
	}
	r.mu.Unlock()
	if !ok {
		return // connection already closed
	}

	r.reply(conn, types.RoomJoinedFrame{
		Type:     types.FrameRoomJoined,
		RoomID:   room.ID,
		RoomName: room.Name,
		Channel:  channel,
		Recent:   recent,
	})
}

// backfill reads the channel's retained buffer, warming it from the
// durable store the first time a channel is seen after a cold start.
func (r *Router) backfill(ctx context.Context, channel string) []types.Envelope {
	recent := r.broker.Recent(channel, backfillLimit)
	if len(recent) > 0 {
		return recent
	}

	history, err := r.store.RecentHistory(ctx, channel, backfillLimit)
	if err != nil {
		r.logger.Warn("history backfill failed", "channel", channel, "error", err)
		return nil
	}
	if len(history) == 0 {
		return nil
	}
	r.broker.Seed(channel, history)
	return history
}

// handleRoomMessage requires active membership, persists, then publishes
// the canonical envelope so subscribers see the store-assigned ID.
func (r *Router) handleRoomMessage(ctx context.Context, conn interfaces.Connection, frame types.Frame) {
	if !types.IsValidRoomID(frame.RoomID) {
		r.writeError(conn, types.ErrInvalidRoomID.Error(), 0)
		return
	}
	if err := types.ValidateContent(frame.Message); err != nil {
		r.writeError(conn, err.Error(), 0)
		return
	}
	if !r.allow(conn, actionChat) {
		return
	}

	channel := types.RoomChannel(frame.RoomID)
	if !r.isMember(conn, channel) {
		r.writeError(conn, "not a member of this room: join it first", 0)
		return
	}

	env := types.Envelope{
		Channel: channel,
		Kind:    types.EnvelopeRoomMessage,
		From:    conn.Actor().Wallet,
		Content: frame.Message,
	}
	canonical, err := r.store.Persist(ctx, env)
	if err != nil {
		r.dependencyError(conn, "room_message", err)
		return
	}

	r.broker.Publish(channel, canonical)
}

// handlePrivateMessage persists and delivers to the target's direct
// channel; every live connection of the target wallet receives it.
func (r *Router) handlePrivateMessage(ctx context.Context, conn interfaces.Connection, frame types.Frame) {
	if !types.IsValidWallet(frame.TargetWallet) {
		r.writeError(conn, types.ErrInvalidWallet.Error(), 0)
		return
	}
	if err := types.ValidateContent(frame.Message); err != nil {
		r.writeError(conn, err.Error(), 0)
		return
	}
	if !r.allow(conn, actionPrivate) {
		return
	}

	channel := types.WalletChannel(frame.TargetWallet)
	env := types.Envelope{
		Channel: channel,
		Kind:    types.EnvelopePrivateMessage,
		From:    conn.Actor().Wallet,
		To:      frame.TargetWallet,
		Content: frame.Message,
	}
	canonical, err := r.store.Persist(ctx, env)
	if err != nil {
		r.dependencyError(conn, "private_message", err)
		return
	}

	r.broker.Publish(channel, canonical)

	r.reply(conn, types.MessageSentFrame{
		Type:         types.FrameMessageSent,
		MessageID:    canonical.ID,
		TargetWallet: frame.TargetWallet,
	})
}

// handleNFTMessage broadcasts to every connected actor whose holdings
// intersect the requirement. The gated channel retains the envelope for
// late subscribers of that exact requirement set.
func (r *Router) handleNFTMessage(ctx context.Context, conn interfaces.Connection, frame types.Frame) {
	if len(frame.RequiredNFTs) == 0 {
		r.writeError(conn, "required_nfts cannot be empty", 0)
		return
	}
	if err := types.ValidateContent(frame.Message); err != nil {
		r.writeError(conn, err.Error(), 0)
		return
	}
	if !r.allow(conn, actionChat) {
		return
	}

	sender := conn.Actor()
	if !sender.HasAny(frame.RequiredNFTs) {
		r.writeError(conn, "access denied: required NFTs not held", 0)
		return
	}

	channel := types.NFTChannel(frame.RequiredNFTs)
	env := types.Envelope{
		Channel:      channel,
		Kind:         types.EnvelopeNFTMessage,
		From:         sender.Wallet,
		Content:      frame.Message,
		RequiredNFTs: frame.RequiredNFTs,
	}
	canonical, err := r.store.Persist(ctx, env)
	if err != nil {
		r.dependencyError(conn, "nft_message", err)
		return
	}

	r.broker.Publish(channel, canonical)

	// Holders are not subscribed to the gated channel; deliver directly.
	for _, target := range r.registry.All() {
		if !target.Actor().HasAny(frame.RequiredNFTs) {
			continue
		}
		if err := target.WriteFrame(canonical); err != nil {
			r.logger.Warn("gated delivery failed",
				"connection", target.ID(), "error", err)
		}
	}
}

func (r *Router) handleOnlineUsers(conn interfaces.Connection) {
	if !r.allow(conn, actionQuery) {
		return
	}
	users := r.presence.Online()
	r.reply(conn, types.OnlineUsersFrame{
		Type:  types.FrameOnlineList,
		Users: users,
		Count: len(users),
	})
}

func (r *Router) handleStats(conn interfaces.Connection) {
	if !r.allow(conn, actionQuery) {
		return
	}
	stats := r.registry.Stats()
	r.reply(conn, types.StatsFrame{
		Type:        types.FrameStats,
		Connections: stats["total_connections"],
		Wallets:     stats["unique_wallets"],
		OnlineUsers: len(r.presence.Online()),
	})
}

// handleLogout announces the transition immediately instead of waiting
// for the sweep, then closes the transport; the read loop's deferred
// cleanup does the rest.
func (r *Router) handleLogout(conn interfaces.Connection) {
	wallet := conn.Actor().Wallet
	if last, ok := r.presence.LastSeen(wallet); ok && len(r.registry.ByWallet(wallet)) <= 1 {
		r.presence.Forget(wallet)
		r.broker.Publish(types.StatusChannel, types.Envelope{
			Channel:   types.StatusChannel,
			Kind:      types.EnvelopeStatus,
			From:      wallet,
			Content:   "offline",
			Timestamp: last,
		})
	}
	_ = conn.Close()
}

// isMember reports whether the connection currently holds a subscription
// to the channel (membership is established by a successful join).
func (r *Router) isMember(conn interfaces.Connection, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[conn.ID()]
	if !ok {
		return false
	}
	_, joined := sess.subs[channel]
	return joined
}

// allow checks the action's rules and, on denial, replies with a
// structured error carrying the retry hint. No side effect of the action
// is performed after a denial.
func (r *Router) allow(conn interfaces.Connection, action string) bool {
	rules := r.rules[action]
	decision := r.limiter.Check(ratelimit.Key(conn.Actor().Wallet, action), rules...)
	if decision.Allowed {
		return true
	}
	r.writeError(conn, "rate limit exceeded for "+action, decision.RetryAfter)
	return false
}

// forward adapts one connection into a broker subscriber. Status
// envelopes are rendered as status frames; everything else is delivered
// as-is. Write failures are logged and isolated to this subscriber.
func (r *Router) forward(conn interfaces.Connection) broker.SubscriberFunc {
	return func(env types.Envelope) {
		var payload any = env
		if env.Kind == types.EnvelopeStatus {
			payload = types.StatusFrame{
				Type:     types.FrameStatus,
				Wallet:   env.From,
				Online:   env.Content == "online",
				LastSeen: env.Timestamp,
			}
		}
		if err := conn.WriteFrame(payload); err != nil {
			r.logger.Warn("envelope delivery failed",
				"connection", conn.ID(), "channel", env.Channel, "error", err)
		}
	}
}

func (r *Router) dependencyError(conn interfaces.Connection, action string, err error) {
	r.logger.Error("store dependency failed", "action", action, "error", err)
	r.writeError(conn, "internal server error", 0)
}

func (r *Router) writeError(conn interfaces.Connection, message string, retryAfter time.Duration) {
	frame := types.ErrorFrame{Type: types.FrameError, Message: message}
	if retryAfter > 0 {
		frame.RetryAfter = retryAfter.Seconds()
	}
	r.reply(conn, frame)
}

func (r *Router) reply(conn interfaces.Connection, v any) {
	if err := conn.WriteFrame(v); err != nil {
		r.logger.Debug("reply dropped", "connection", conn.ID(), "error", err)
	}
}
