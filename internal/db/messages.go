package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/RichardoC/leadline/internal/models"
)

func (d *Database) SaveMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = d.timestamp()

	query := `
        INSERT INTO messages (id, session_id, role, content, created_at)
        VALUES (:id, :session_id, :role, :content, :created_at)`
	if _, err := d.db.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// GetSessionHistory returns up to limit of the latest messages, oldest first.
func (d *Database) GetSessionHistory(ctx context.Context, sessionID string, limit int) ([]models.Message, error) {
	query := d.rebind(`
        SELECT id, session_id, role, content, created_at
        FROM messages
        WHERE session_id = ?
        ORDER BY created_at DESC
        LIMIT ?`)

	messages := make([]models.Message, 0)
	if err := d.db.SelectContext(ctx, &messages, query, sessionID, limit); err != nil {
		return nil, fmt.Errorf("failed to get session history: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
