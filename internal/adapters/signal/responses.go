package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Podium/internal/core"
	"github.com/dkeye/Podium/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleResponseSubmit(ctx context.Context, id core.ConnID, conn core.SignalConnection, data []byte) {
	var p struct {
		Room      string          `json:"room"`
		FrameID   string          `json:"frameId"`
		ElementID string          `json:"elementId"`
		Value     json.RawMessage `json:"value"`
	}
	if err := decode(data, &p); err != nil {
		ctl.sendError(conn, err)
		return
	}

	s := domain.Submission{FrameID: domain.FrameID(p.FrameID), ElementID: p.ElementID, Value: p.Value}
	if err := s.Validate(); err != nil {
		ctl.sendError(conn, err)
		return
	}

	// Only joined viewers are charged; everyone else is rejected by the room.
	if e, ok := ctl.Orch.Registry.Lookup(id); ok && e.Role == domain.RoleViewer {
		if !ctl.Limiter.Allow(e.Room, e.Identity.ViewerID) {
			log.Warn().
				Str("module", "signal").
				Str("conn", string(id)).
				Str("viewer", string(e.Identity.ViewerID)).
				Msg("response rate limited")
			ctl.sendError(conn, domain.ErrRateLimited)
			return
		}
	}

	if err := ctl.Orch.SubmitResponse(ctx, id, p.Room, s); err != nil {
		ctl.sendError(conn, err)
	}
}
