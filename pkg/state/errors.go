package state

import "errors"

var (
	ErrConnectionExists   = errors.New("connection is already registered")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomQuotaExceeded  = errors.New("room quota exceeded for connection")
)
