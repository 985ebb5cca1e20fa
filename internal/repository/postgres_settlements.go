package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"labcafe/internal/domain"

	"github.com/jackc/pgx/v5"
)

const settlementColumns = `
	id,
	number,
	start_date,
	end_date,
	status,
	notes,
	created_by,
	created_at,
	finalized_at
`

func (q *pgQueries) InsertSettlement(ctx context.Context, s *domain.Settlement) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO settlements (id, start_date, end_date, status, notes, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING number
	`, s.ID, s.StartDate, s.EndDate, s.Status, s.Notes, s.CreatedBy, s.CreatedAt).Scan(&s.Number)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

func (q *pgQueries) GetSettlement(ctx context.Context, id string, forUpdate bool) (domain.Settlement, error) {
	query := "SELECT " + settlementColumns + " FROM settlements WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	s, err := scanSettlementRow(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if notFound(err) {
			return domain.Settlement{}, ErrNotFound
		}
		return domain.Settlement{}, fmt.Errorf("get settlement %s: %w", id, err)
	}
	return s, nil
}

func (q *pgQueries) ListSettlements(ctx context.Context, limit, offset int) ([]domain.Settlement, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+settlementColumns+`
		FROM settlements
		ORDER BY start_date DESC, number DESC
		LIMIT $1 OFFSET $2
	`, NormalizeLimit(limit), NormalizeOffset(offset))
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	list := make([]domain.Settlement, 0)
	for rows.Next() {
		s, err := scanSettlementRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlements: %w", err)
	}
	return list, nil
}

func (q *pgQueries) UpdateSettlementStatus(
	ctx context.Context,
	id string,
	from, to domain.SettlementStatus,
	finalizedAt *time.Time,
) (bool, error) {
	var finalized sql.NullTime
	if finalizedAt != nil {
		finalized = sql.NullTime{Time: *finalizedAt, Valid: true}
	}
	cmd, err := q.db.Exec(ctx, `
		UPDATE settlements
		SET status = $3, finalized_at = COALESCE($4, finalized_at)
		WHERE id = $1 AND status = $2
	`, id, from, to, finalized)
	if err != nil {
		return false, fmt.Errorf("move settlement %s from %s to %s: %w", id, from, to, err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (q *pgQueries) InsertSettlementLine(ctx context.Context, line domain.SettlementLine) error {
	if _, err := q.db.Exec(ctx, `
		INSERT INTO settlement_lines (
			id,
			settlement_id,
			user_id,
			display_name,
			email,
			position,
			item_count,
			total_cents,
			breakdown_json,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		line.ID,
		line.SettlementID,
		line.UserID,
		line.DisplayName,
		line.Email,
		line.Position,
		line.ItemCount,
		line.TotalCents,
		string(line.Breakdown),
		line.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert settlement line: %w", err)
	}
	return nil
}

func (q *pgQueries) ListSettlementLines(ctx context.Context, settlementID string) ([]domain.SettlementLine, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, settlement_id, user_id, display_name, email, position, item_count, total_cents, breakdown_json::text, created_at
		FROM settlement_lines
		WHERE settlement_id = $1
		ORDER BY position ASC, display_name ASC, email ASC
	`, settlementID)
	if err != nil {
		return nil, fmt.Errorf("list settlement lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.SettlementLine, 0)
	for rows.Next() {
		var (
			line      domain.SettlementLine
			breakdown string
		)
		if err := rows.Scan(
			&line.ID,
			&line.SettlementID,
			&line.UserID,
			&line.DisplayName,
			&line.Email,
			&line.Position,
			&line.ItemCount,
			&line.TotalCents,
			&breakdown,
			&line.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan settlement line: %w", err)
		}
		line.Breakdown = []byte(breakdown)
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlement lines: %w", err)
	}
	return lines, nil
}

func (q *pgQueries) CountPayments(ctx context.Context, settlementID string) (int, error) {
	var count int
	if err := q.db.QueryRow(ctx, `
		SELECT COUNT(*)::int FROM payments WHERE settlement_id = $1
	`, settlementID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count payments: %w", err)
	}
	return count, nil
}

func (q *pgQueries) ListPayments(ctx context.Context, settlementID string) ([]domain.Payment, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, settlement_id, user_id, amount_cents, method, reference, created_by, created_at
		FROM payments
		WHERE settlement_id = $1
		ORDER BY created_at ASC, id ASC
	`, settlementID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.SettlementID, &p.UserID, &p.AmountCents, &p.Method, &p.Reference, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

func (q *pgQueries) DeletePayments(ctx context.Context, settlementID, userID string) (int, error) {
	cmd, err := q.db.Exec(ctx, `
		DELETE FROM payments WHERE settlement_id = $1 AND user_id = $2
	`, settlementID, userID)
	if err != nil {
		return 0, fmt.Errorf("delete payments: %w", err)
	}
	return int(cmd.RowsAffected()), nil
}

func (q *pgQueries) InsertPayment(ctx context.Context, p domain.Payment) error {
	if _, err := q.db.Exec(ctx, `
		INSERT INTO payments (id, settlement_id, user_id, amount_cents, method, reference, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.SettlementID, p.UserID, p.AmountCents, p.Method, p.Reference, p.CreatedBy, p.CreatedAt); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func scanSettlementRow(row pgx.Row) (domain.Settlement, error) {
	var (
		s           domain.Settlement
		finalizedAt sql.NullTime
	)
	if err := row.Scan(
		&s.ID,
		&s.Number,
		&s.StartDate,
		&s.EndDate,
		&s.Status,
		&s.Notes,
		&s.CreatedBy,
		&s.CreatedAt,
		&finalizedAt,
	); err != nil {
		return domain.Settlement{}, err
	}
	if finalizedAt.Valid {
		value := finalizedAt.Time.UTC()
		s.FinalizedAt = &value
	}
	s.StartDate = s.StartDate.UTC()
	s.EndDate = s.EndDate.UTC()
	return s, nil
}
