package types

import (
	"regexp"
	"strings"
)

// MaxContentBytes caps a single message payload.
const MaxContentBytes = 64 * 1024

var (
	walletPattern = regexp.MustCompile(`^[A-Za-z0-9]{20,64}$`)
	roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)
)

// IsValidWallet reports whether s looks like a base58-ish wallet address.
// Cryptographic validity is the identity service's concern, not ours.
func IsValidWallet(s string) bool {
	return walletPattern.MatchString(s)
}

// IsValidRoomID reports whether s is an acceptable room identifier.
func IsValidRoomID(s string) bool {
	return roomIDPattern.MatchString(s)
}

// ValidateContent checks a message payload against size bounds.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if len(content) > MaxContentBytes {
		return ErrContentTooLarge
	}
	return nil
}
