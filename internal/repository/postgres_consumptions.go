package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"labcafe/internal/domain"

	"github.com/jackc/pgx/v5"
)

const consumptionDetailSelect = `
	SELECT
		c.id,
		c.user_id,
		c.item_id,
		c.quantity,
		c.price_at_tx_cents,
		c.currency,
		c.created_at,
		c.reversed_at,
		c.settlement_id,
		u.display_name,
		u.email,
		i.name
	FROM consumptions c
	JOIN users u ON u.id = c.user_id
	JOIN items i ON i.id = c.item_id
`

func (q *pgQueries) InsertConsumption(ctx context.Context, c domain.Consumption) error {
	if _, err := q.db.Exec(ctx, `
		INSERT INTO consumptions (
			id,
			user_id,
			item_id,
			quantity,
			price_at_tx_cents,
			currency,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.UserID, c.ItemID, c.Quantity, c.PriceAtTxCents, c.Currency, c.CreatedAt); err != nil {
		return fmt.Errorf("insert consumption: %w", err)
	}
	return nil
}

func (q *pgQueries) GetConsumption(ctx context.Context, id string) (domain.Consumption, error) {
	var (
		c            domain.Consumption
		reversedAt   sql.NullTime
		settlementID sql.NullString
	)
	err := q.db.QueryRow(ctx, `
		SELECT id, user_id, item_id, quantity, price_at_tx_cents, currency, created_at, reversed_at, settlement_id
		FROM consumptions
		WHERE id = $1
	`, id).Scan(&c.ID, &c.UserID, &c.ItemID, &c.Quantity, &c.PriceAtTxCents, &c.Currency, &c.CreatedAt, &reversedAt, &settlementID)
	if err != nil {
		if notFound(err) {
			return domain.Consumption{}, ErrNotFound
		}
		return domain.Consumption{}, fmt.Errorf("get consumption %s: %w", id, err)
	}
	if reversedAt.Valid {
		value := reversedAt.Time
		c.ReversedAt = &value
	}
	c.SettlementID = stringPtr(settlementID)
	return c, nil
}

func (q *pgQueries) MarkConsumptionReversed(ctx context.Context, id, ownerID string, at time.Time) (bool, error) {
	cmd, err := q.db.Exec(ctx, `
		UPDATE consumptions
		SET reversed_at = $2
		WHERE id = $1
		  AND reversed_at IS NULL
		  AND settlement_id IS NULL
		  AND ($3 = '' OR user_id = $3)
	`, id, at, ownerID)
	if err != nil {
		return false, fmt.Errorf("reverse consumption %s: %w", id, err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (q *pgQueries) ListConsumptions(ctx context.Context, filter ConsumptionFilter) ([]domain.ConsumptionDetail, error) {
	rows, err := q.db.Query(ctx, consumptionDetailSelect+`
		WHERE ($1 = '' OR c.user_id = $1)
		  AND ($2 OR c.reversed_at IS NULL)
		ORDER BY c.created_at DESC, c.id DESC
		LIMIT $3 OFFSET $4
	`, filter.UserID, filter.IncludeReversed, NormalizeLimit(filter.Limit), NormalizeOffset(filter.Offset))
	if err != nil {
		return nil, fmt.Errorf("list consumptions: %w", err)
	}
	return collectConsumptionDetails(rows)
}

func (q *pgQueries) ListUnsettledConsumptions(ctx context.Context, start, end time.Time) ([]domain.ConsumptionDetail, error) {
	rows, err := q.db.Query(ctx, consumptionDetailSelect+`
		WHERE c.settlement_id IS NULL
		  AND c.reversed_at IS NULL
		  AND c.created_at >= $1
		  AND c.created_at <= $2
		ORDER BY c.created_at ASC, c.id ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("list unsettled consumptions: %w", err)
	}
	return collectConsumptionDetails(rows)
}

func (q *pgQueries) AssignConsumptions(ctx context.Context, settlementID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	cmd, err := q.db.Exec(ctx, `
		UPDATE consumptions
		SET settlement_id = $1
		WHERE id = ANY($2)
		  AND settlement_id IS NULL
		  AND reversed_at IS NULL
	`, settlementID, ids)
	if err != nil {
		return 0, fmt.Errorf("assign consumptions to settlement %s: %w", settlementID, err)
	}
	return int(cmd.RowsAffected()), nil
}

func collectConsumptionDetails(rows pgx.Rows) ([]domain.ConsumptionDetail, error) {
	defer rows.Close()
	list := make([]domain.ConsumptionDetail, 0)
	for rows.Next() {
		var (
			d            domain.ConsumptionDetail
			reversedAt   sql.NullTime
			settlementID sql.NullString
		)
		if err := rows.Scan(
			&d.ID,
			&d.UserID,
			&d.ItemID,
			&d.Quantity,
			&d.PriceAtTxCents,
			&d.Currency,
			&d.CreatedAt,
			&reversedAt,
			&settlementID,
			&d.UserDisplayName,
			&d.UserEmail,
			&d.ItemName,
		); err != nil {
			return nil, fmt.Errorf("scan consumption: %w", err)
		}
		if reversedAt.Valid {
			value := reversedAt.Time
			d.ReversedAt = &value
		}
		d.SettlementID = stringPtr(settlementID)
		list = append(list, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consumptions: %w", err)
	}
	return list, nil
}
