package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/acme/parallel-dialer/internal/telephony"
)

type telephonyWebhookRequest struct {
	CampaignID string `json:"campaign_id"`
	Kind       string `json:"kind"`
	LineID     int    `json:"line_id"`
	CallHandle string `json:"call_handle"`
	AMDResult  string `json:"amd_result,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	FailCode   string `json:"fail_code,omitempty"`
	OccurredAt string `json:"occurred_at,omitempty"`
}

// telephonyWebhook ingests signed provider callbacks. Verification fails
// closed: a missing or stale token rejects the event before it reaches any
// engine.
func (h *HandlerSet) telephonyWebhook(ctx *fiber.Ctx) error {
	token := bearerToken(ctx.Get(fiber.HeaderAuthorization))
	if token == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing webhook token")
	}
	if _, err := h.container.WebhookVerifier().Verify(token); err != nil {
		return translateError(err)
	}

	var req telephonyWebhookRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	campaignID, err := parseUUID(req.CampaignID)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	ev, err := toTelephonyEvent(req)
	if err != nil {
		return err
	}

	if err := h.dialer.Deliver(campaignID, ev); err != nil {
		return translateError(err)
	}

	return ctx.SendStatus(http.StatusAccepted)
}

func toTelephonyEvent(req telephonyWebhookRequest) (telephony.Event, error) {
	var kind telephony.EventKind
	switch telephony.EventKind(req.Kind) {
	case telephony.EventRinging, telephony.EventAnswered, telephony.EventAMDResult,
		telephony.EventCompleted, telephony.EventFailed:
		kind = telephony.EventKind(req.Kind)
	default:
		return telephony.Event{}, fiber.NewError(http.StatusBadRequest, "unknown event kind")
	}

	ev := telephony.Event{
		Kind:       kind,
		LineID:     req.LineID,
		Handle:     telephony.CallHandle(req.CallHandle),
		Duration:   time.Duration(req.DurationMs) * time.Millisecond,
		FailCode:   req.FailCode,
		OccurredAt: time.Now().UTC(),
	}

	if kind == telephony.EventAMDResult {
		switch telephony.AMDKind(req.AMDResult) {
		case telephony.AMDHuman, telephony.AMDMachine:
			ev.AMD = telephony.AMDKind(req.AMDResult)
		default:
			return telephony.Event{}, fiber.NewError(http.StatusBadRequest, "unknown amd result")
		}
	}

	if req.OccurredAt != "" {
		if ts, err := time.Parse(time.RFC3339, req.OccurredAt); err == nil {
			ev.OccurredAt = ts
		}
	}

	return ev, nil
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
