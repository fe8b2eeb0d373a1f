package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/RichardoC/leadline/internal/models"
)

func (d *Database) LogActivity(ctx context.Context, kind models.ActivityKind, subjectID, detail string) error {
	a := models.Activity{
		ID:        uuid.NewString(),
		Kind:      kind,
		SubjectID: subjectID,
		Detail:    detail,
		CreatedAt: d.timestamp(),
	}
	query := `
        INSERT INTO activity_log (id, kind, subject_id, detail, created_at)
        VALUES (:id, :kind, :subject_id, :detail, :created_at)`
	if _, err := d.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}
	return nil
}

// ListActivity returns the newest entries first.
func (d *Database) ListActivity(ctx context.Context, limit, offset int) ([]models.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	query := d.rebind(`
        SELECT id, kind, subject_id, detail, created_at
        FROM activity_log
        ORDER BY created_at DESC
        LIMIT ? OFFSET ?`)

	out := make([]models.Activity, 0)
	if err := d.db.SelectContext(ctx, &out, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	return out, nil
}
