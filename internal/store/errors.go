package store

import "errors"

var (
	ErrStoreClosed  = errors.New("message store is closed")
	ErrWriteTimeout = errors.New("write operation timed out")
)
