package types

import (
	"sort"
	"strings"
	"time"
)

// Actor is a verified external identity: a wallet address plus the
// authorization attributes (NFT holdings) captured at authentication time.
// The holdings are a snapshot; they are not refreshed mid-connection.
type Actor struct {
	Wallet   string   `json:"wallet_address"`
	Holdings []string `json:"nft_holdings"`
}

// HasAny reports whether the actor holds at least one of the required
// attributes. An empty requirement is satisfied by every actor.
func (a Actor) HasAny(required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, want := range required {
		for _, held := range a.Holdings {
			if held == want {
				return true
			}
		}
	}
	return false
}

// Envelope is one published unit of data: its channel, an opaque payload,
// and the identifier and timestamp assigned by the message store.
type Envelope struct {
	ID           string    `json:"id"`
	Channel      string    `json:"channel"`
	Kind         string    `json:"type"`
	From         string    `json:"from_wallet,omitempty"`
	To           string    `json:"to_wallet,omitempty"`
	Content      string    `json:"content"`
	RequiredNFTs []string  `json:"required_nfts,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Envelope kinds stored and fanned out by the broker.
const (
	EnvelopeRoomMessage    = "room_message"
	EnvelopePrivateMessage = "private_message"
	EnvelopeNFTMessage     = "nft_message"
	EnvelopeStatus         = "status"
)

// Room describes a broadcast scope that actors can join. Gated rooms
// carry the NFT set a joining actor must intersect.
type Room struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	RoomType     string    `json:"room_type"`
	RequiredNFTs []string  `json:"required_nfts,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Room types.
const (
	RoomTypeOpen     = "open"
	RoomTypeNFTGated = "nft_gated"
)

// Gated reports whether joining the room requires attribute possession.
func (r *Room) Gated() bool {
	return r.RoomType == RoomTypeNFTGated && len(r.RequiredNFTs) > 0
}

// StatusChannel carries actor online/offline transitions.
const StatusChannel = "status"

// RoomChannel names the broadcast channel for a room.
func RoomChannel(roomID string) string {
	return "room:" + roomID
}

// WalletChannel names the direct channel for a single actor.
func WalletChannel(wallet string) string {
	return "wallet:" + wallet
}

// NFTChannel names the attribute-gated channel for a requirement set.
// The requirement is sorted so equivalent sets map to one channel.
func NFTChannel(required []string) string {
	sorted := make([]string, len(required))
	copy(sorted, required)
	sort.Strings(sorted)
	return "nft:" + strings.Join(sorted, "+")
}
