package interfaces

import "errors"

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomExists       = errors.New("room already exists")
	ErrInvalidToken     = errors.New("invalid or expired token")
	ErrConnectionClosed = errors.New("connection closed")
)
