package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"labcafe/internal/domain"

	"github.com/jackc/pgx/v5"
)

const itemColumns = `
	id,
	name,
	price_cents,
	currency,
	current_stock,
	low_stock_threshold,
	is_active,
	created_at,
	updated_at
`

func (q *pgQueries) GetUser(ctx context.Context, id string) (domain.User, error) {
	var user domain.User
	err := q.db.QueryRow(ctx, `
		SELECT id, email, display_name, role, is_active, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.Email, &user.DisplayName, &user.Role, &user.IsActive, &user.CreatedAt)
	if err != nil {
		if notFound(err) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return user, nil
}

func (q *pgQueries) UpsertUser(ctx context.Context, user domain.User) error {
	if _, err := q.db.Exec(ctx, `
		INSERT INTO users (id, email, display_name, role, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			role = EXCLUDED.role,
			is_active = EXCLUDED.is_active
	`, user.ID, user.Email, user.DisplayName, user.Role, user.IsActive, user.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("upsert user %s: %w", user.ID, err)
	}
	return nil
}

func (q *pgQueries) GetItem(ctx context.Context, id string, forUpdate bool) (domain.Item, error) {
	query := "SELECT " + itemColumns + " FROM items WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	item, err := scanItemRow(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if notFound(err) {
			return domain.Item{}, ErrNotFound
		}
		return domain.Item{}, fmt.Errorf("get item %s: %w", id, err)
	}
	return item, nil
}

func (q *pgQueries) GetItemByName(ctx context.Context, name string) (domain.Item, error) {
	item, err := scanItemRow(q.db.QueryRow(ctx, "SELECT "+itemColumns+" FROM items WHERE name = $1", name))
	if err != nil {
		if notFound(err) {
			return domain.Item{}, ErrNotFound
		}
		return domain.Item{}, fmt.Errorf("get item by name: %w", err)
	}
	return item, nil
}

func (q *pgQueries) ListItems(ctx context.Context, filter ItemFilter) ([]domain.Item, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE ($1 OR is_active)
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%')
		ORDER BY name ASC
		LIMIT $3 OFFSET $4
	`, filter.IncludeArchived, strings.TrimSpace(filter.Search), NormalizeLimit(filter.Limit), NormalizeOffset(filter.Offset))
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return collectItems(rows)
}

func (q *pgQueries) ListLowStock(ctx context.Context) ([]domain.Item, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE is_active AND current_stock <= low_stock_threshold
		ORDER BY (low_stock_threshold - current_stock) DESC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	return collectItems(rows)
}

func (q *pgQueries) InsertItem(ctx context.Context, item domain.Item) error {
	if _, err := q.db.Exec(ctx, `
		INSERT INTO items (
			id,
			name,
			price_cents,
			currency,
			current_stock,
			low_stock_threshold,
			is_active,
			created_at,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		item.ID,
		item.Name,
		item.PriceCents,
		item.Currency,
		item.CurrentStock,
		item.LowStockThreshold,
		item.IsActive,
		item.CreatedAt,
		item.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (q *pgQueries) UpdateItemDetails(ctx context.Context, item domain.Item) error {
	cmd, err := q.db.Exec(ctx, `
		UPDATE items
		SET
			name = $2,
			price_cents = $3,
			low_stock_threshold = $4,
			updated_at = $5
		WHERE id = $1
	`, item.ID, item.Name, item.PriceCents, item.LowStockThreshold, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("update item %s: %w", item.ID, err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *pgQueries) ArchiveItem(ctx context.Context, id string, at time.Time) (bool, error) {
	cmd, err := q.db.Exec(ctx, `
		UPDATE items
		SET is_active = FALSE, updated_at = $2
		WHERE id = $1 AND current_stock = 0
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("archive item %s: %w", id, err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (q *pgQueries) ReactivateItem(ctx context.Context, id string, at time.Time) error {
	cmd, err := q.db.Exec(ctx, `
		UPDATE items
		SET is_active = TRUE, updated_at = $2
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("reactivate item %s: %w", id, err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *pgQueries) AdjustStock(ctx context.Context, id string, delta int, requireActive bool, at time.Time) (StockChange, bool, error) {
	var change StockChange
	err := q.db.QueryRow(ctx, `
		UPDATE items
		SET current_stock = current_stock + $2, updated_at = $4
		WHERE id = $1
		  AND (NOT $3 OR is_active)
		  AND current_stock + $2 >= 0
		RETURNING current_stock, price_cents, currency
	`, id, delta, requireActive, at).Scan(&change.NewStock, &change.PriceCents, &change.Currency)
	if err != nil {
		if notFound(err) {
			return StockChange{}, false, nil
		}
		return StockChange{}, false, fmt.Errorf("adjust stock %s by %d: %w", id, delta, err)
	}
	return change, true, nil
}

func (q *pgQueries) InsertPriceHistory(ctx context.Context, entry domain.PriceHistory) error {
	var oldPrice sql.NullInt64
	if entry.OldPriceCents != nil {
		oldPrice = sql.NullInt64{Int64: *entry.OldPriceCents, Valid: true}
	}
	if _, err := q.db.Exec(ctx, `
		INSERT INTO price_history (id, item_id, old_price_cents, new_price_cents, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.ItemID, oldPrice, entry.NewPriceCents, entry.ChangedBy, entry.ChangedAt); err != nil {
		return fmt.Errorf("insert price history: %w", err)
	}
	return nil
}

func (q *pgQueries) ListPriceHistory(ctx context.Context, itemID string) ([]domain.PriceHistory, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, item_id, old_price_cents, new_price_cents, changed_by, changed_at
		FROM price_history
		WHERE item_id = $1
		ORDER BY changed_at ASC, id ASC
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list price history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.PriceHistory, 0)
	for rows.Next() {
		var (
			entry    domain.PriceHistory
			oldPrice sql.NullInt64
		)
		if err := rows.Scan(&entry.ID, &entry.ItemID, &oldPrice, &entry.NewPriceCents, &entry.ChangedBy, &entry.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan price history: %w", err)
		}
		entry.OldPriceCents = int64Ptr(oldPrice)
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price history: %w", err)
	}
	return history, nil
}

func (q *pgQueries) InsertStockMovement(ctx context.Context, m domain.StockMovement) error {
	var unitCost sql.NullInt64
	if m.UnitCostCents != nil {
		unitCost = sql.NullInt64{Int64: *m.UnitCostCents, Valid: true}
	}
	if _, err := q.db.Exec(ctx, `
		INSERT INTO stock_movements (
			id,
			item_id,
			type,
			quantity,
			unit_cost_cents,
			by_user_id,
			related_po_id,
			note,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, m.ID, m.ItemID, m.Type, m.Quantity, unitCost, m.ByUserID, nullString(m.RelatedPOID), m.Note, m.CreatedAt); err != nil {
		return fmt.Errorf("insert stock movement: %w", err)
	}
	return nil
}

func (q *pgQueries) ListStockMovements(ctx context.Context, itemID string, since time.Time) ([]domain.StockMovement, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, item_id, type, quantity, unit_cost_cents, by_user_id, related_po_id, note, created_at
		FROM stock_movements
		WHERE item_id = $1 AND created_at >= $2
		ORDER BY created_at ASC, id ASC
	`, itemID, since)
	if err != nil {
		return nil, fmt.Errorf("list stock movements: %w", err)
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0)
	for rows.Next() {
		var (
			m        domain.StockMovement
			unitCost sql.NullInt64
			poID     sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.ItemID, &m.Type, &m.Quantity, &unitCost, &m.ByUserID, &poID, &m.Note, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stock movement: %w", err)
		}
		m.UnitCostCents = int64Ptr(unitCost)
		m.RelatedPOID = stringPtr(poID)
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock movements: %w", err)
	}
	return movements, nil
}

func collectItems(rows pgx.Rows) ([]domain.Item, error) {
	defer rows.Close()
	items := make([]domain.Item, 0)
	for rows.Next() {
		item, err := scanItemRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func scanItemRow(row pgx.Row) (domain.Item, error) {
	var item domain.Item
	if err := row.Scan(
		&item.ID,
		&item.Name,
		&item.PriceCents,
		&item.Currency,
		&item.CurrentStock,
		&item.LowStockThreshold,
		&item.IsActive,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return domain.Item{}, err
	}
	return item, nil
}
