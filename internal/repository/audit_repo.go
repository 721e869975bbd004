package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"pennywise/internal/model"
)

type AuditRepository struct {
	db *pgxpool.Pool
}

func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert stores one audit event. Metadata goes to a JSONB column.
func (r *AuditRepository) Insert(ctx context.Context, event *model.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	query := `
        INSERT INTO audit_logs (id, owner_id, action, entity, entity_id, metadata, ip_address, user_agent, created_at)
        VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), NULLIF($8, ''), $9)
    `
	_, err := r.db.Exec(ctx, query,
		event.ID, event.OwnerID, event.Action, event.Entity, event.EntityID, event.Metadata,
		event.IPAddress, event.UserAgent, event.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
