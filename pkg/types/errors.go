package types

import "errors"

var (
	ErrInvalidWallet   = errors.New("wallet address must be 20-64 alphanumeric characters")
	ErrInvalidRoomID   = errors.New("room ID must be 1-50 characters, alphanumeric + underscore/hyphen")
	ErrEmptyContent    = errors.New("message content cannot be empty")
	ErrContentTooLarge = errors.New("message content exceeds 64KB limit")
)
