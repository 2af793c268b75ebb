package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dkeye/Podium/internal/app/orch"
	"github.com/dkeye/Podium/internal/core"
	"github.com/dkeye/Podium/internal/domain"
	"github.com/rs/zerolog/log"
)

// decode unmarshals a payload, tagging failures as bad payloads.
func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrBadPayload)
	}
	return nil
}

func (ctl *SignalWSController) handleJoin(
	ctx context.Context,
	id core.ConnID,
	conn core.SignalConnection,
	data []byte,
) {
	type joinPayload struct {
		Room        string `json:"room"`
		Role        string `json:"role"`
		ViewerID    string `json:"viewerId"`
		DisplayName string `json:"displayName"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad join payload")
		ctl.sendError(conn, fmt.Errorf("malformed join: %w", domain.ErrInvalidJoinRequest))
		return
	}

	_, err := ctl.Orch.Join(ctx, id, orch.JoinRequest{
		Room:        p.Room,
		Role:        p.Role,
		ViewerID:    p.ViewerID,
		DisplayName: p.DisplayName,
	})
	if err != nil {
		log.Info().Err(err).Str("module", "signal").Str("conn", string(id)).Str("room", p.Room).Msg("join rejected")
		ctl.sendError(conn, err)
	}
}

// handleLeave leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(
	ctx context.Context,
	id core.ConnID,
	conn core.SignalConnection,
) {
	if err := ctl.Orch.Leave(ctx, id); err != nil {
		ctl.sendError(conn, err)
	}
}
