package domain

import "errors"

// Protocol errors. They are reported to the offending connection only.
var (
	ErrInvalidJoinRequest = errors.New("invalid join request")
	ErrDuplicateJoin      = errors.New("connection already joined a room")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrRoomNotFound       = errors.New("room not found")
	ErrBadPayload         = errors.New("bad payload")
	ErrUnknownEvent       = errors.New("unknown event")
	ErrRateLimited        = errors.New("rate limited")
)
