package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/acme/parallel-dialer/internal/dialer/engine"
	"github.com/acme/parallel-dialer/internal/dialer/line"
	"github.com/acme/parallel-dialer/internal/domain"
)

type lineView struct {
	ID          int        `json:"id"`
	State       line.State `json:"state"`
	ContactID   string     `json:"contact_id,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
}

type snapshotResponse struct {
	CampaignID     uuid.UUID             `json:"campaign_id"`
	Status         domain.CampaignStatus `json:"status"`
	Mode           domain.DialMode       `json:"mode"`
	Lines          []lineView            `json:"lines"`
	QueueDepth     int                   `json:"queue_depth"`
	AgentCapacity  int                   `json:"agent_capacity"`
	AgentsInUse    int                   `json:"agents_in_use"`
	Dialed         int64                 `json:"dialed"`
	Connected      int64                 `json:"connected"`
	Contacted      int64                 `json:"contacted"`
	AgentRejects   int64                 `json:"agent_rejects"`
	Alerts         int64                 `json:"alerts"`
	ConnectRate    float64               `json:"connect_rate"`
	BudgetConsumed int64                 `json:"budget_consumed"`
}

type engineEventPayload struct {
	Kind       engine.EventKind      `json:"kind"`
	CampaignID uuid.UUID             `json:"campaign_id"`
	Status     domain.CampaignStatus `json:"status,omitempty"`
	LineID     int                   `json:"line_id,omitempty"`
	LineState  line.State            `json:"line_state,omitempty"`
	QueueDepth int                   `json:"queue_depth,omitempty"`
	Detail     string                `json:"detail,omitempty"`
	OccurredAt time.Time             `json:"occurred_at"`
}

func (h *HandlerSet) startCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	if err := h.dialer.StartCampaign(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) pauseCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	if err := h.dialer.PauseCampaign(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) resumeCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	if err := h.dialer.ResumeCampaign(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) stopCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	if err := h.dialer.StopCampaign(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusAccepted)
}

func (h *HandlerSet) dialNext(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	if err := h.dialer.DialNext(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusAccepted)
}

func (h *HandlerSet) disconnectLine(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	lineID, err := strconv.Atoi(ctx.Params("line"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid line id")
	}
	if err := h.dialer.DisconnectLine(ctx.Context(), id, lineID); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) campaignSnapshot(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	snap, err := h.dialer.Snapshot(id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toSnapshotResponse(snap))
}

func (h *HandlerSet) runningCampaigns(ctx *fiber.Ctx) error {
	snaps := h.dialer.Running()
	resp := make([]snapshotResponse, 0, len(snaps))
	for _, snap := range snaps {
		resp = append(resp, toSnapshotResponse(snap))
	}
	return ctx.Status(http.StatusOK).JSON(fiber.Map{"campaigns": resp})
}

// streamEvents pushes engine events over server-sent events. The subscription
// is lossy on the engine side, so a slow dashboard never stalls dialing.
func (h *HandlerSet) streamEvents(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	events, cancel, err := h.dialer.Subscribe(id)
	if err != nil {
		return translateError(err)
	}

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")

	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()

		heartbeat := time.NewTicker(15 * time.Second)
		defer heartbeat.Stop()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				payload, err := json.Marshal(toEventPayload(ev))
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))

	return nil
}

func toSnapshotResponse(snap engine.Snapshot) snapshotResponse {
	lines := make([]lineView, 0, len(snap.Lines))
	for _, l := range snap.Lines {
		lines = append(lines, lineView{
			ID:          l.ID,
			State:       l.State,
			ContactID:   l.ContactID,
			Phone:       l.Phone,
			StartedAt:   l.StartedAt,
			ConnectedAt: l.ConnectedAt,
		})
	}
	return snapshotResponse{
		CampaignID:     snap.CampaignID,
		Status:         snap.Status,
		Mode:           snap.Mode,
		Lines:          lines,
		QueueDepth:     snap.QueueDepth,
		AgentCapacity:  snap.AgentCapacity,
		AgentsInUse:    snap.AgentsInUse,
		Dialed:         snap.Dialed,
		Connected:      snap.Connected,
		Contacted:      snap.Contacted,
		AgentRejects:   snap.AgentRejects,
		Alerts:         snap.Alerts,
		ConnectRate:    snap.ConnectRate,
		BudgetConsumed: snap.BudgetConsumed,
	}
}

func toEventPayload(ev engine.Event) engineEventPayload {
	return engineEventPayload{
		Kind:       ev.Kind,
		CampaignID: ev.CampaignID,
		Status:     ev.Status,
		LineID:     ev.LineID,
		LineState:  ev.LineState,
		QueueDepth: ev.QueueDepth,
		Detail:     ev.Detail,
		OccurredAt: ev.OccurredAt,
	}
}
