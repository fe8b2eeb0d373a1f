package models

import (
	"strings"
	"time"
)

const (
	MeetingScheduled = "scheduled"
	MeetingCancelled = "cancelled"
)

var meetingDurations = map[int]bool{15: true, 30: true, 45: true, 60: true}

type Meeting struct {
	ID              string    `json:"id" db:"id"`
	LeadID          string    `json:"lead_id,omitempty" db:"lead_id"`
	Email           string    `json:"email" db:"email"`
	Name            string    `json:"name" db:"name"`
	Topic           string    `json:"topic" db:"topic"`
	StartsAt        time.Time `json:"starts_at" db:"starts_at"`
	DurationMinutes int       `json:"duration_minutes" db:"duration_minutes"`
	Timezone        string    `json:"timezone" db:"timezone"`
	Status          string    `json:"status" db:"status"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// EndsAt is the exclusive end of the meeting slot.
func (m *Meeting) EndsAt() time.Time {
	return m.StartsAt.Add(time.Duration(m.DurationMinutes) * time.Minute)
}

type MeetingInput struct {
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Topic           string    `json:"topic"`
	StartsAt        time.Time `json:"starts_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Timezone        string    `json:"timezone"`
	SessionID       string    `json:"session_id"`
}

// Validate normalizes the input in place. now is injected so tests can pin it.
func (in *MeetingInput) Validate(now time.Time) error {
	var errs ValidationErrors

	in.Name = strings.TrimSpace(in.Name)
	in.Topic = strings.TrimSpace(in.Topic)
	in.Timezone = strings.TrimSpace(in.Timezone)

	email, ok := NormalizeEmail(in.Email)
	if !ok {
		errs.add("email", "must be a valid email address")
	}
	in.Email = email

	if runeLen(in.Name) > 120 {
		errs.add("name", "must be at most 120 characters")
	}
	if runeLen(in.Topic) > 500 {
		errs.add("topic", "must be at most 500 characters")
	}
	if in.StartsAt.IsZero() {
		errs.add("starts_at", "is required")
	} else if in.StartsAt = in.StartsAt.UTC().Truncate(time.Minute); !in.StartsAt.After(now) {
		errs.add("starts_at", "must be in the future")
	}
	if in.DurationMinutes == 0 {
		in.DurationMinutes = 30
	}
	if !meetingDurations[in.DurationMinutes] {
		errs.add("duration_minutes", "must be 15, 30, 45 or 60")
	}
	if in.Timezone == "" {
		in.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(in.Timezone); err != nil {
		errs.add("timezone", "unknown time zone %q", in.Timezone)
	}
	in.StartsAt = in.StartsAt.UTC()
	return errs.err()
}
