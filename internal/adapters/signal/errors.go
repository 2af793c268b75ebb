package signal

import (
	"errors"

	"github.com/dkeye/Podium/internal/core"
	"github.com/dkeye/Podium/internal/domain"
	"github.com/rs/zerolog/log"
)

// Error codes carried by protocol-error events.
const (
	CodeInvalidJoinRequest = "invalid_join_request"
	CodeDuplicateJoin      = "duplicate_join"
	CodeUnauthorized       = "unauthorized"
	CodeRoomNotFound       = "room_not_found"
	CodeBadPayload         = "bad_payload"
	CodeUnknownEvent       = "unknown_event"
	CodeRateLimited        = "rate_limited"
	CodeInternal           = "internal"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{domain.ErrInvalidJoinRequest, CodeInvalidJoinRequest},
	{domain.ErrDuplicateJoin, CodeDuplicateJoin},
	{domain.ErrUnauthorized, CodeUnauthorized},
	{domain.ErrRoomNotFound, CodeRoomNotFound},
	{domain.ErrBadPayload, CodeBadPayload},
	{domain.ErrUnknownEvent, CodeUnknownEvent},
	{domain.ErrRateLimited, CodeRateLimited},
}

func errorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return CodeInternal
}

// sendError reports err to the offending connection only.
func (ctl *SignalWSController) sendError(c core.SignalConnection, err error) {
	code := errorCode(err)
	msg := err.Error()
	if code == CodeInternal {
		log.Error().Err(err).Str("module", "signal").Msg("request failed")
		msg = "internal error"
	}
	ctl.sendJSON(c, core.ProtocolError{Type: core.EventProtocolError, Code: code, Message: msg})
}
