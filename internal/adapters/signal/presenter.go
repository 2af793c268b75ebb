package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dkeye/Podium/internal/core"
	"github.com/dkeye/Podium/internal/domain"
)

func frameRef(index *int, frameID string) (int, domain.FrameID, error) {
	if index == nil || *index < 0 {
		return 0, "", fmt.Errorf("frameIndex must be a non-negative number: %w", domain.ErrBadPayload)
	}
	if frameID == "" {
		return 0, "", fmt.Errorf("frameId is required: %w", domain.ErrBadPayload)
	}
	return *index, domain.FrameID(frameID), nil
}

func (ctl *SignalWSController) handleFrameUpdate(ctx context.Context, id core.ConnID, conn core.SignalConnection, data []byte) {
	var p struct {
		Room              string          `json:"room"`
		FrameIndex        *int            `json:"frameIndex"`
		FrameID           string          `json:"frameId"`
		FrameData         json.RawMessage `json:"frameData"`
		PresentationID    string          `json:"presentationId"`
		PresentationTitle string          `json:"presentationTitle"`
		TotalFrames       int             `json:"totalFrames"`
	}
	if err := decode(data, &p); err != nil {
		ctl.sendError(conn, err)
		return
	}
	index, frameID, err := frameRef(p.FrameIndex, p.FrameID)
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	if string(p.FrameData) == "null" {
		p.FrameData = nil
	}

	frame := domain.Frame{Index: index, ID: frameID, Data: p.FrameData}
	pres := domain.Presentation{ID: p.PresentationID, Title: p.PresentationTitle, TotalFrames: p.TotalFrames}
	if err := ctl.Orch.UpdateFrame(ctx, id, p.Room, frame, pres); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleManualFrameChange(ctx context.Context, id core.ConnID, conn core.SignalConnection, data []byte) {
	var p struct {
		Room       string `json:"room"`
		FrameIndex *int   `json:"frameIndex"`
		FrameID    string `json:"frameId"`
	}
	if err := decode(data, &p); err != nil {
		ctl.sendError(conn, err)
		return
	}
	index, frameID, err := frameRef(p.FrameIndex, p.FrameID)
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	if err := ctl.Orch.ChangeFrame(ctx, id, p.Room, index, frameID); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handlePresentationStart(ctx context.Context, id core.ConnID, conn core.SignalConnection, data []byte) {
	var p struct {
		Room           string `json:"room"`
		PresentationID string `json:"presentationId"`
		Title          string `json:"title"`
		TotalFrames    int    `json:"totalFrames"`
	}
	if err := decode(data, &p); err != nil {
		ctl.sendError(conn, err)
		return
	}
	pres := domain.Presentation{ID: p.PresentationID, Title: p.Title, TotalFrames: p.TotalFrames}
	if err := ctl.Orch.StartPresentation(ctx, id, p.Room, pres); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handlePresentationEnd(ctx context.Context, id core.ConnID, conn core.SignalConnection, data []byte) {
	var p struct {
		Room string `json:"room"`
	}
	if err := decode(data, &p); err != nil {
		ctl.sendError(conn, err)
		return
	}
	if err := ctl.Orch.EndPresentation(ctx, id, p.Room); err != nil {
		ctl.sendError(conn, err)
	}
}

type framePayload struct {
	Room    string `json:"room"`
	FrameID string `json:"frameId"`
}

func (p framePayload) validate() error {
	if p.FrameID == "" {
		return fmt.Errorf("frameId is required: %w", domain.ErrBadPayload)
	}
	return nil
}

func (ctl *SignalWSController) handleClearFrameResponses(ctx context.Context, id core.ConnID, conn core.SignalConnection, data []byte) {
	var p framePayload
	if err := decode(data, &p); err != nil {
		ctl.sendError(conn, err)
		return
	}
	if err := p.validate(); err != nil {
		ctl.sendError(conn, err)
		return
	}
	if err := ctl.Orch.ClearFrameResponses(ctx, id, p.Room, domain.FrameID(p.FrameID)); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleResponsesQuery(ctx context.Context, id core.ConnID, conn core.SignalConnection, data []byte) {
	var p framePayload
	if err := decode(data, &p); err != nil {
		ctl.sendError(conn, err)
		return
	}
	if err := p.validate(); err != nil {
		ctl.sendError(conn, err)
		return
	}
	if err := ctl.Orch.QueryResponses(ctx, id, p.Room, domain.FrameID(p.FrameID)); err != nil {
		ctl.sendError(conn, err)
	}
}
