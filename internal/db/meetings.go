package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/RichardoC/leadline/internal/models"
)

const meetingColumns = `id, lead_id, email, name, topic, starts_at, duration_minutes, timezone, status, created_at`

// longest bookable slot; bounds the overlap scan
const maxMeetingDuration = 60 * time.Minute

// CreateMeeting books a slot, failing with ErrConflict when it overlaps a
// scheduled meeting.
func (d *Database) CreateMeeting(ctx context.Context, m *models.Meeting) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Status = models.MeetingScheduled
	m.StartsAt = m.StartsAt.UTC().Truncate(time.Minute)
	m.CreatedAt = d.timestamp()

	return d.withTx(ctx, func(tx *sqlx.Tx) error {
		var nearby []models.Meeting
		query := d.rebind(`SELECT ` + meetingColumns + ` FROM meetings
            WHERE status = ? AND starts_at > ? AND starts_at < ?`)
		err := tx.SelectContext(ctx, &nearby, query,
			models.MeetingScheduled, m.StartsAt.Add(-maxMeetingDuration), m.EndsAt())
		if err != nil {
			return fmt.Errorf("failed to check meeting overlap: %w", err)
		}
		for _, other := range nearby {
			if other.StartsAt.Before(m.EndsAt()) && other.EndsAt().After(m.StartsAt) {
				return fmt.Errorf("slot overlaps meeting %s: %w", other.ID, ErrConflict)
			}
		}

		insert := `
            INSERT INTO meetings (` + meetingColumns + `)
            VALUES (:id, :lead_id, :email, :name, :topic, :starts_at, :duration_minutes, :timezone, :status, :created_at)`
		if _, err := tx.NamedExecContext(ctx, insert, m); err != nil {
			return fmt.Errorf("failed to insert meeting: %w", err)
		}
		return nil
	})
}

func (d *Database) GetMeeting(ctx context.Context, id string) (*models.Meeting, error) {
	var m models.Meeting
	query := d.rebind(`SELECT ` + meetingColumns + ` FROM meetings WHERE id = ?`)
	if err := d.db.GetContext(ctx, &m, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("meeting", id)
		}
		return nil, fmt.Errorf("failed to get meeting: %w", err)
	}
	return &m, nil
}

// ListMeetings returns meetings starting at or after from, soonest first.
func (d *Database) ListMeetings(ctx context.Context, from time.Time, includeCancelled bool) ([]models.Meeting, error) {
	query := `SELECT ` + meetingColumns + ` FROM meetings WHERE starts_at >= ?`
	args := []interface{}{from.UTC()}
	if !includeCancelled {
		query += ` AND status = ?`
		args = append(args, models.MeetingScheduled)
	}
	query += ` ORDER BY starts_at`

	out := make([]models.Meeting, 0)
	if err := d.db.SelectContext(ctx, &out, d.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}
	return out, nil
}

// CancelMeeting marks the meeting cancelled. Cancelling twice is a no-op;
// changed reports whether this call did the cancelling.
func (d *Database) CancelMeeting(ctx context.Context, id string) (m *models.Meeting, changed bool, err error) {
	m, err = d.GetMeeting(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if m.Status == models.MeetingCancelled {
		return m, false, nil
	}

	query := d.rebind(`UPDATE meetings SET status = ? WHERE id = ? AND status = ?`)
	res, err := d.db.ExecContext(ctx, query, models.MeetingCancelled, id, models.MeetingScheduled)
	if err != nil {
		return nil, false, fmt.Errorf("failed to cancel meeting: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	m.Status = models.MeetingCancelled
	return m, n > 0, nil
}
