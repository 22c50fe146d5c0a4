package types

import (
	"strings"
	"testing"
)

func TestActor_HasAny(t *testing.T) {
	actor := Actor{Wallet: "w", Holdings: []string{"a", "b"}}

	tests := []struct {
		name     string
		required []string
		want     bool
	}{
		{"empty requirement admits everyone", nil, true},
		{"holds one of several", []string{"z", "b"}, true},
		{"holds none", []string{"x", "y"}, false},
		{"exact match", []string{"a"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := actor.HasAny(tt.required); got != tt.want {
				t.Errorf("HasAny(%v) = %v, want %v", tt.required, got, tt.want)
			}
		})
	}

	empty := Actor{Wallet: "w"}
	if empty.HasAny([]string{"a"}) {
		t.Error("actor without holdings must fail a non-empty requirement")
	}
	if !empty.HasAny(nil) {
		t.Error("empty requirement must admit an actor without holdings")
	}
}

func TestRoom_Gated(t *testing.T) {
	open := Room{ID: "a", RoomType: RoomTypeOpen}
	gated := Room{ID: "b", RoomType: RoomTypeNFTGated, RequiredNFTs: []string{"x"}}
	// A gated type without a requirement set degrades to open.
	degenerate := Room{ID: "c", RoomType: RoomTypeNFTGated}

	if open.Gated() || degenerate.Gated() {
		t.Error("only rooms with a requirement set are gated")
	}
	if !gated.Gated() {
		t.Error("gated room with requirements must report gated")
	}
}

func TestChannelNaming(t *testing.T) {
	if got := RoomChannel("general"); got != "room:general" {
		t.Errorf("RoomChannel = %q", got)
	}
	if got := WalletChannel("abc"); got != "wallet:abc" {
		t.Errorf("WalletChannel = %q", got)
	}
}

func TestNFTChannel_CanonicalOrdering(t *testing.T) {
	a := NFTChannel([]string{"beta", "alpha"})
	b := NFTChannel([]string{"alpha", "beta"})
	if a != b {
		t.Errorf("equivalent requirement sets must share a channel: %q vs %q", a, b)
	}
	if a != "nft:alpha+beta" {
		t.Errorf("unexpected channel name: %q", a)
	}

	// Sorting must not mutate the caller's slice.
	input := []string{"beta", "alpha"}
	NFTChannel(input)
	if input[0] != "beta" {
		t.Error("input slice was reordered")
	}
}

func TestIsValidWallet(t *testing.T) {
	valid := []string{
		"walletA1234567890123456789",
		strings.Repeat("a", 20),
		strings.Repeat("Z", 64),
	}
	for _, w := range valid {
		if !IsValidWallet(w) {
			t.Errorf("expected %q to be valid", w)
		}
	}

	invalid := []string{
		"",
		"short",
		strings.Repeat("a", 65),
		strings.Repeat("a", 19) + "!",
	}
	for _, w := range invalid {
		if IsValidWallet(w) {
			t.Errorf("expected %q to be invalid", w)
		}
	}
}

func TestIsValidRoomID(t *testing.T) {
	valid := []string{"general", "study-hall", "room_42", strings.Repeat("a", 50)}
	for _, id := range valid {
		if !IsValidRoomID(id) {
			t.Errorf("expected %q to be valid", id)
		}
	}

	invalid := []string{"", "has space", "has/slash", strings.Repeat("a", 51)}
	for _, id := range invalid {
		if IsValidRoomID(id) {
			t.Errorf("expected %q to be invalid", id)
		}
	}
}

func TestValidateContent(t *testing.T) {
	if err := ValidateContent("hello"); err != nil {
		t.Errorf("plain content: %v", err)
	}
	if err := ValidateContent(""); err != ErrEmptyContent {
		t.Errorf("empty content: got %v", err)
	}
	if err := ValidateContent("   "); err != ErrEmptyContent {
		t.Errorf("whitespace content: got %v", err)
	}
	if err := ValidateContent(strings.Repeat("x", MaxContentBytes+1)); err != ErrContentTooLarge {
		t.Errorf("oversized content: got %v", err)
	}
	if err := ValidateContent(strings.Repeat("x", MaxContentBytes)); err != nil {
		t.Errorf("content at the limit: %v", err)
	}
}
