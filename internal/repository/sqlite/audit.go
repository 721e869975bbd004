package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"pennywise/internal/model"
)

type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Insert(ctx context.Context, event *model.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now()
	}
	var metadata []byte
	if event.Metadata != nil {
		var err error
		if metadata, err = json.Marshal(event.Metadata); err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, owner_id, action, entity, entity_id, metadata, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.OwnerID, event.Action, event.Entity, event.EntityID, string(metadata),
		event.IPAddress, event.UserAgent, toMicros(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListByEntity returns events for one entity, oldest first.
func (s *AuditStore) ListByEntity(ctx context.Context, entity, entityID string) ([]model.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, action, entity, entity_id, metadata, ip_address, user_agent, created_at
		FROM audit_logs WHERE entity = ? AND entity_id = ?
		ORDER BY created_at ASC, rowid ASC`, entity, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var (
			e                          model.AuditEvent
			entID, metadata, ip, agent sql.NullString
			created                    int64
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Action, &e.Entity, &entID, &metadata, &ip, &agent, &created); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		e.EntityID = entID.String
		e.IPAddress = ip.String
		e.UserAgent = agent.String
		e.CreatedAt = fromMicros(created)
		if metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
