package amd

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/acme/parallel-dialer/internal/domain"
	"github.com/acme/parallel-dialer/internal/telephony"
)

// CallbackScheduler enqueues a callback task for contacts whose machines
// answered under the mark-callback behavior. The scheduling itself is owned
// by a separate collaborator.
type CallbackScheduler interface {
	ScheduleCallback(ctx context.Context, campaignID, contactID uuid.UUID, phone string) error
}

// Handler applies the configured answering-machine behavior to a line whose
// AMD verdict came back "machine".
type Handler struct {
	settings  domain.DialerSettings
	provider  telephony.Provider
	callbacks CallbackScheduler
}

// NewHandler builds the AMD decision handler.
func NewHandler(settings domain.DialerSettings, provider telephony.Provider, callbacks CallbackScheduler) *Handler {
	return &Handler{settings: settings, provider: provider, callbacks: callbacks}
}

// Handle executes the configured behavior and returns the disposition the
// attempt terminates with. Provider errors on the hangup path are returned
// for logging but do not change the disposition: the attempt is over either
// way.
func (h *Handler) Handle(ctx context.Context, campaignID uuid.UUID, entry *domain.QueueEntry, handle telephony.CallHandle) (domain.Disposition, error) {
	switch h.settings.AMDBehavior {
	case domain.AMDLeaveVoicemail:
		if h.settings.VoicemailDropURL != "" {
			if err := h.provider.PlayVoicemail(ctx, handle, h.settings.VoicemailDropURL); err != nil {
				// Could not drop the message; fall back to a plain disconnect.
				hangErr := h.provider.Hangup(ctx, handle)
				return domain.DispositionVoicemail, errors2(err, hangErr)
			}
			err := h.provider.Hangup(ctx, handle)
			return domain.DispositionVoicemailLeft, err
		}
		// No drop configured: behave as disconnect.
		err := h.provider.Hangup(ctx, handle)
		return domain.DispositionVoicemail, err

	case domain.AMDMarkCallback:
		hangErr := h.provider.Hangup(ctx, handle)
		if h.callbacks != nil {
			if err := h.callbacks.ScheduleCallback(ctx, campaignID, entry.ContactID, entry.Phone); err != nil {
				return domain.DispositionVoicemail, errors2(err, hangErr)
			}
		}
		return domain.DispositionVoicemail, hangErr

	case domain.AMDDisconnect:
		fallthrough
	default:
		err := h.provider.Hangup(ctx, handle)
		return domain.DispositionVoicemail, err
	}
}

func errors2(primary, secondary error) error {
	if primary == nil {
		return secondary
	}
	if secondary == nil {
		return primary
	}
	return fmt.Errorf("%v (also: %v)", primary, secondary)
}
