package amd

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/acme/parallel-dialer/internal/domain"
	"github.com/acme/parallel-dialer/internal/telephony"
)

type fakeProvider struct {
	hangups    []telephony.CallHandle
	voicemails []string
	playErr    error
}

func (f *fakeProvider) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (telephony.CallHandle, error) {
	return "", errors.New("not used")
}

func (f *fakeProvider) Hangup(ctx context.Context, handle telephony.CallHandle) error {
	f.hangups = append(f.hangups, handle)
	return nil
}

func (f *fakeProvider) SendDigits(ctx context.Context, handle telephony.CallHandle, digits string) error {
	return nil
}

func (f *fakeProvider) PlayVoicemail(ctx context.Context, handle telephony.CallHandle, url string) error {
	if f.playErr != nil {
		return f.playErr
	}
	f.voicemails = append(f.voicemails, url)
	return nil
}

func (f *fakeProvider) Events() <-chan telephony.Event { return nil }

type recordingScheduler struct {
	scheduled int
}

func (r *recordingScheduler) ScheduleCallback(ctx context.Context, campaignID, contactID uuid.UUID, phone string) error {
	r.scheduled++
	return nil
}

func testEntry() *domain.QueueEntry {
	return &domain.QueueEntry{ContactID: uuid.New(), Phone: "+15550001111"}
}

func TestDisconnectBehavior(t *testing.T) {
	p := &fakeProvider{}
	h := NewHandler(domain.DialerSettings{AMDBehavior: domain.AMDDisconnect}, p, nil)

	disp, err := h.Handle(context.Background(), uuid.New(), testEntry(), "call-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if disp != domain.DispositionVoicemail {
		t.Fatalf("disposition = %s, want voicemail", disp)
	}
	if len(p.hangups) != 1 {
		t.Fatalf("hangups = %d, want 1", len(p.hangups))
	}
}

func TestLeaveVoicemailWithDrop(t *testing.T) {
	p := &fakeProvider{}
	settings := domain.DialerSettings{
		AMDBehavior:      domain.AMDLeaveVoicemail,
		VoicemailDropURL: "https://recordings.example/drop.wav",
	}
	h := NewHandler(settings, p, nil)

	disp, err := h.Handle(context.Background(), uuid.New(), testEntry(), "call-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if disp != domain.DispositionVoicemailLeft {
		t.Fatalf("disposition = %s, want voicemail-left", disp)
	}
	if len(p.voicemails) != 1 || len(p.hangups) != 1 {
		t.Fatalf("voicemails=%d hangups=%d, want 1/1", len(p.voicemails), len(p.hangups))
	}
}

func TestLeaveVoicemailWithoutDropFallsBackToDisconnect(t *testing.T) {
	p := &fakeProvider{}
	h := NewHandler(domain.DialerSettings{AMDBehavior: domain.AMDLeaveVoicemail}, p, nil)

	disp, _ := h.Handle(context.Background(), uuid.New(), testEntry(), "call-1")
	if disp != domain.DispositionVoicemail {
		t.Fatalf("disposition = %s, want voicemail", disp)
	}
}

func TestLeaveVoicemailPlayFailure(t *testing.T) {
	p := &fakeProvider{playErr: errors.New("stream unavailable")}
	settings := domain.DialerSettings{
		AMDBehavior:      domain.AMDLeaveVoicemail,
		VoicemailDropURL: "https://recordings.example/drop.wav",
	}
	h := NewHandler(settings, p, nil)

	disp, err := h.Handle(context.Background(), uuid.New(), testEntry(), "call-1")
	if err == nil {
		t.Fatal("expected advisory error from failed drop")
	}
	if disp != domain.DispositionVoicemail {
		t.Fatalf("disposition = %s, want voicemail fallback", disp)
	}
	if len(p.hangups) != 1 {
		t.Fatal("failed drop must still hang up")
	}
}

func TestMarkCallbackSchedules(t *testing.T) {
	p := &fakeProvider{}
	sched := &recordingScheduler{}
	h := NewHandler(domain.DialerSettings{AMDBehavior: domain.AMDMarkCallback}, p, sched)

	disp, err := h.Handle(context.Background(), uuid.New(), testEntry(), "call-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if disp != domain.DispositionVoicemail {
		t.Fatalf("disposition = %s, want voicemail", disp)
	}
	if sched.scheduled != 1 {
		t.Fatalf("callbacks scheduled = %d, want 1", sched.scheduled)
	}
	if len(p.hangups) != 1 {
		t.Fatal("mark-callback must hang up the machine")
	}
}
