package campaign

import (
	"testing"
	"time"

	"github.com/acme/parallel-dialer/internal/domain"
)

func TestValidateCreateInputFailures(t *testing.T) {
	cases := []CreateCampaignInput{
		{Name: "", Mode: domain.DialModePower, TimeZone: "UTC"},
		{Name: "test", Mode: "turbo", TimeZone: "UTC"},
		{Name: "test", Mode: domain.DialModePower, TimeZone: ""},
		{Name: "test", Mode: domain.DialModePower, TimeZone: "invalid"},
		{Name: "test", Mode: domain.DialModePower, TimeZone: "UTC", ParallelCallLimit: 11},
		{Name: "test", Mode: domain.DialModePower, TimeZone: "UTC", DailyCallLimit: -1},
	}

	for _, tc := range cases {
		if err := validateCreateInput(tc); err == nil {
			t.Errorf("expected validation error for input %+v", tc)
		}
	}
}

func TestValidateCreateInputSuccess(t *testing.T) {
	input := CreateCampaignInput{
		Name:              "q3 renewals",
		Mode:              domain.DialModePredictive,
		TimeZone:          "America/New_York",
		ParallelCallLimit: 5,
		DailyCallLimit:    500,
	}

	if err := validateCreateInput(input); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateSettings(t *testing.T) {
	good := domain.DialerSettings{
		AMDEnabled:         true,
		AMDBehavior:        domain.AMDLeaveVoicemail,
		VoicemailDropURL:   "https://cdn.example.com/drop.wav",
		PacingAlgorithm:    domain.PacingConservative,
		MaxAttemptsPerLead: 3,
		RetryInterval:      10 * time.Minute,
		AllowedCallingHours: domain.CallingHours{
			Start: 9 * 60,
			End:   17 * 60,
		},
		AllowedCallingDays: []time.Weekday{time.Monday, time.Friday},
	}
	if err := validateSettings(good); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Midnight-spanning windows are legal.
	good.AllowedCallingHours = domain.CallingHours{Start: 22 * 60, End: 2 * 60}
	if err := validateSettings(good); err != nil {
		t.Fatalf("expected midnight-spanning hours to pass, got: %v", err)
	}

	bad := []domain.DialerSettings{
		{AMDBehavior: "shred"},
		{PacingAlgorithm: "ludicrous"},
		{AMDBehavior: domain.AMDLeaveVoicemail}, // no drop URL
		{MaxAttemptsPerLead: -1},
		{RetryInterval: -time.Second},
		{AllowedCallingHours: domain.CallingHours{Start: -1}},
		{AllowedCallingHours: domain.CallingHours{End: 1440}},
		{AllowedCallingDays: []time.Weekday{time.Weekday(9)}},
	}
	for i, tc := range bad {
		if err := validateSettings(tc); err == nil {
			t.Errorf("case %d: expected validation error for %+v", i, tc)
		}
	}
}
