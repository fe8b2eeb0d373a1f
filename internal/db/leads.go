package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/RichardoC/leadline/internal/models"
)

const leadColumns = `id, name, email, company, role, intent, score, conversation_summary,
    research_summary, source, status, session_id, created_at, updated_at`

// LeadFilter narrows ListLeads. Zero values mean no filtering.
type LeadFilter struct {
	Query    string
	Status   string
	MinScore int
	Limit    int
	Offset   int
}

func (d *Database) CreateLead(ctx context.Context, lead *models.Lead) error {
	now := d.timestamp()
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.Status == "" {
		lead.Status = models.LeadStatusNew
	}
	if lead.Intent == "" {
		lead.Intent = "other"
	}
	lead.Email = strings.ToLower(strings.TrimSpace(lead.Email))
	lead.CreatedAt = now
	lead.UpdatedAt = now

	query := `
        INSERT INTO leads (` + leadColumns + `)
        VALUES (:id, :name, :email, :company, :role, :intent, :score, :conversation_summary,
            :research_summary, :source, :status, :session_id, :created_at, :updated_at)`

	if _, err := d.db.NamedExecContext(ctx, query, lead); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("lead with email %s: %w", lead.Email, ErrConflict)
		}
		return fmt.Errorf("failed to insert lead: %w", err)
	}
	return nil
}

func (d *Database) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	return d.getLead(ctx, d.db, "id", id)
}

func (d *Database) GetLeadByEmail(ctx context.Context, email string) (*models.Lead, error) {
	return d.getLead(ctx, d.db, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (d *Database) getLead(ctx context.Context, q sqlx.QueryerContext, column, value string) (*models.Lead, error) {
	var lead models.Lead
	query := d.rebind(`SELECT ` + leadColumns + ` FROM leads WHERE ` + column + ` = ?`)
	if err := sqlx.GetContext(ctx, q, &lead, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("lead", value)
		}
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	return &lead, nil
}

// ListLeads returns one page of leads, newest first, and the total matching count.
func (d *Database) ListLeads(ctx context.Context, f LeadFilter) ([]models.Lead, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		like := "%" + q + "%"
		where = append(where, "(LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(company) LIKE ?)")
		args = append(args, like, like, like)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.MinScore > 0 {
		where = append(where, "score >= ?")
		args = append(args, f.MinScore)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := d.db.GetContext(ctx, &total, d.rebind(`SELECT COUNT(*) FROM leads`+clause), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count leads: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := d.rebind(`SELECT ` + leadColumns + ` FROM leads` + clause + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`)
	leads := make([]models.Lead, 0)
	if err := d.db.SelectContext(ctx, &leads, query, append(args, limit, f.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("failed to list leads: %w", err)
	}
	return leads, total, nil
}

// UpdateLead applies patch and returns the stored lead.
func (d *Database) UpdateLead(ctx context.Context, id string, patch *models.LeadPatch) (*models.Lead, error) {
	var lead *models.Lead
	err := d.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		lead, err = d.getLead(ctx, tx, "id", id)
		if err != nil {
			return err
		}
		patch.Apply(lead)
		lead.UpdatedAt = d.timestamp()

		query := `
            UPDATE leads SET name = :name, company = :company, status = :status, score = :score,
                conversation_summary = :conversation_summary, research_summary = :research_summary,
                updated_at = :updated_at
            WHERE id = :id`
		if _, err := tx.NamedExecContext(ctx, query, lead); err != nil {
			return fmt.Errorf("failed to update lead: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lead, nil
}

// DeleteLead removes the lead and its meetings.
func (d *Database) DeleteLead(ctx context.Context, id string) error {
	return d.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM leads WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("failed to delete lead: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return notFound("lead", id)
		}
		if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM meetings WHERE lead_id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete meetings of lead: %w", err)
		}
		if _, err := tx.ExecContext(ctx, d.rebind(`UPDATE conversation_contexts SET lead_id = '' WHERE lead_id = ?`), id); err != nil {
			return fmt.Errorf("failed to detach lead from sessions: %w", err)
		}
		return nil
	})
}

func (d *Database) LeadStats(ctx context.Context) (*models.LeadStats, error) {
	stats := &models.LeadStats{
		ByStatus: map[string]int{},
		ByIntent: map[string]int{},
	}

	var avg sql.NullFloat64
	row := d.db.QueryRowxContext(ctx, `SELECT COUNT(*), AVG(score) FROM leads`)
	if err := row.Scan(&stats.Total, &avg); err != nil {
		return nil, fmt.Errorf("failed to read lead totals: %w", err)
	}
	if avg.Valid {
		stats.AverageScore = avg.Float64
	}

	if err := d.groupCount(ctx, "status", stats.ByStatus); err != nil {
		return nil, err
	}
	if err := d.groupCount(ctx, "intent", stats.ByIntent); err != nil {
		return nil, err
	}
	return stats, nil
}

func (d *Database) groupCount(ctx context.Context, column string, into map[string]int) error {
	rows, err := d.db.QueryxContext(ctx, `SELECT `+column+`, COUNT(*) FROM leads GROUP BY `+column)
	if err != nil {
		return fmt.Errorf("failed to group leads by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		into[key] = count
	}
	return rows.Err()
}
