package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timeout")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Handshake-related errors
var (
	ErrAuthTimeout = errors.New("authentication handshake timed out")
	ErrAuthFailed  = errors.New("authentication failed")
)
