package types

import "time"

// Inbound frame types accepted from clients.
const (
	FrameAuth           = "auth"
	FrameHeartbeat      = "heartbeat"
	FrameJoinRoom       = "join_room"
	FrameRoomMessage    = "room_message"
	FramePrivateMessage = "private_message"
	FrameNFTMessage     = "nft_message"
	FrameOnlineUsers    = "get_online_users"
	FrameStats          = "stats"
	FrameLogout         = "logout"
)

// Outbound frame types sent to clients.
const (
	FrameWelcome      = "welcome"
	FrameError        = "error"
	FrameHeartbeatAck = "heartbeat_ack"
	FrameRoomJoined   = "room_joined"
	FrameMessageSent  = "message_sent"
	FrameOnlineList   = "online_users"
	FrameStatus       = "status"
)

// Frame is the single inbound client frame schema. Fields beyond Type are
// type-specific; unused ones are left empty.
type Frame struct {
	Type         string   `json:"type"`
	Token        string   `json:"token,omitempty"`
	RoomID       string   `json:"room_id,omitempty"`
	TargetWallet string   `json:"target_wallet,omitempty"`
	RequiredNFTs []string `json:"required_nfts,omitempty"`
	Message      string   `json:"message,omitempty"`
}

// WelcomeFrame confirms a successful authentication handshake.
type WelcomeFrame struct {
	Type    string   `json:"type"`
	Wallet  string   `json:"wallet_address"`
	NFTs    []string `json:"nft_holdings"`
	Message string   `json:"message"`
}

// ErrorFrame reports a recoverable failure to the client. RetryAfter is
// set only for rate-limit denials.
type ErrorFrame struct {
	Type       string  `json:"type"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after,omitempty"` // seconds
}

// HeartbeatAckFrame acknowledges a liveness ping.
type HeartbeatAckFrame struct {
	Type      string    `json:"type"`
	Wallet    string    `json:"wallet_address"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomJoinedFrame confirms a join and backfills recent room traffic.
type RoomJoinedFrame struct {
	Type     string     `json:"type"`
	RoomID   string     `json:"room_id"`
	RoomName string     `json:"room_name"`
	Channel  string     `json:"channel"`
	Recent   []Envelope `json:"recent_messages"`
}

// MessageSentFrame confirms persistence of a private message to its sender.
type MessageSentFrame struct {
	Type         string `json:"type"`
	MessageID    string `json:"message_id"`
	TargetWallet string `json:"target_wallet"`
}

// OnlineUsersFrame lists currently live wallets.
type OnlineUsersFrame struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// StatsFrame reports gateway-level connection statistics.
type StatsFrame struct {
	Type        string `json:"type"`
	Connections int    `json:"total_connections"`
	Wallets     int    `json:"unique_wallets"`
	OnlineUsers int    `json:"online_users_count"`
}

// StatusFrame announces an actor presence transition.
type StatusFrame struct {
	Type     string    `json:"type"`
	Wallet   string    `json:"wallet_address"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}
