package repository

import (
	"context"
	"fmt"
	"strings"

	"labcafe/internal/domain"
)

const auditSearch = `($1 = '' OR action ILIKE '%' || $1 || '%' OR entity_type ILIKE '%' || $1 || '%' OR entity_id ILIKE '%' || $1 || '%' OR actor_id ILIKE '%' || $1 || '%')`

func (q *pgQueries) InsertAudit(ctx context.Context, e domain.AuditEntry) error {
	diff := "{}"
	if len(e.Diff) > 0 {
		diff = string(e.Diff)
	}
	if _, err := q.db.Exec(ctx, `
		INSERT INTO audit_log (id, actor_id, action, entity_type, entity_id, diff, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
	`, e.ID, e.ActorID, e.Action, e.EntityType, e.EntityID, diff, e.CreatedAt); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (q *pgQueries) ListAudit(ctx context.Context, search string, limit, offset int) ([]domain.AuditEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, actor_id, action, entity_type, entity_id, diff::text, created_at
		FROM audit_log
		WHERE `+auditSearch+`
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, strings.TrimSpace(search), NormalizeLimit(limit), NormalizeOffset(offset))
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var (
			e    domain.AuditEntry
			diff string
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.EntityType, &e.EntityID, &diff, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Diff = []byte(diff)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return entries, nil
}

func (q *pgQueries) CountAudit(ctx context.Context, search string) (int, error) {
	var count int
	if err := q.db.QueryRow(ctx, `
		SELECT COUNT(*)::int
		FROM audit_log
		WHERE `+auditSearch, strings.TrimSpace(search)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit log: %w", err)
	}
	return count, nil
}
