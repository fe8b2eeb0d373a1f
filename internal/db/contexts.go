package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/RichardoC/leadline/internal/models"
)

const contextColumns = `session_id, role, role_category, intent, capabilities_used, lead_id, updated_at`

func (d *Database) GetContext(ctx context.Context, sessionID string) (*models.ConversationContext, error) {
	return d.getContext(ctx, d.db, sessionID)
}

func (d *Database) getContext(ctx context.Context, q sqlx.QueryerContext, sessionID string) (*models.ConversationContext, error) {
	var c models.ConversationContext
	query := d.rebind(`SELECT ` + contextColumns + ` FROM conversation_contexts WHERE session_id = ?`)
	if err := sqlx.GetContext(ctx, q, &c, query, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("conversation context", sessionID)
		}
		return nil, fmt.Errorf("failed to get conversation context: %w", err)
	}
	return &c, nil
}

// UpsertContext stores the snapshot, replacing any existing row for the session.
func (d *Database) UpsertContext(ctx context.Context, c *models.ConversationContext) error {
	return d.upsertContext(ctx, d.db, c)
}

func (d *Database) upsertContext(ctx context.Context, e sqlx.ExtContext, c *models.ConversationContext) error {
	if c.SessionID == "" {
		return errors.New("session id is required")
	}
	if c.CapabilitiesUsed == nil {
		c.CapabilitiesUsed = models.StringList{}
	}
	c.UpdatedAt = d.timestamp()

	query := `
        INSERT INTO conversation_contexts (` + contextColumns + `)
        VALUES (:session_id, :role, :role_category, :intent, :capabilities_used, :lead_id, :updated_at)
        ON CONFLICT (session_id) DO UPDATE SET
            role = excluded.role,
            role_category = excluded.role_category,
            intent = excluded.intent,
            capabilities_used = excluded.capabilities_used,
            lead_id = excluded.lead_id,
            updated_at = excluded.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, e, query, c); err != nil {
		return fmt.Errorf("failed to upsert conversation context: %w", err)
	}
	return nil
}

// AddCapability records the first use of a capability in a session. It
// reports false when the capability had already been recorded.
func (d *Database) AddCapability(ctx context.Context, sessionID, name string) (bool, *models.ConversationContext, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	var (
		added bool
		out   *models.ConversationContext
	)
	err := d.withTx(ctx, func(tx *sqlx.Tx) error {
		c, err := d.getContext(ctx, tx, sessionID)
		switch {
		case errors.Is(err, ErrNotFound):
			c = &models.ConversationContext{SessionID: sessionID}
		case err != nil:
			return err
		}

		out = c
		if c.HasCapability(name) {
			return nil
		}
		c.CapabilitiesUsed = append(c.CapabilitiesUsed, name)
		added = true
		return d.upsertContext(ctx, tx, c)
	})
	if err != nil {
		return false, nil, err
	}
	return added, out, nil
}
