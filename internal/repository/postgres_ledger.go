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

const ledgerColumns = `
	id,
	occurred_at,
	description,
	amount_cents,
	category,
	user_id,
	settlement_id,
	purchase_order_id,
	balance_after_cents,
	created_by,
	created_at
`

func (q *pgQueries) InsertLedgerEntry(ctx context.Context, e domain.LedgerEntry) error {
	var balanceAfter sql.NullInt64
	if e.BalanceAfterCents != nil {
		balanceAfter = sql.NullInt64{Int64: *e.BalanceAfterCents, Valid: true}
	}
	if _, err := q.db.Exec(ctx, `
		INSERT INTO ledger_entries (`+ledgerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		e.ID,
		e.Timestamp,
		e.Description,
		e.AmountCents,
		e.Category,
		nullString(e.UserID),
		nullString(e.SettlementID),
		nullString(e.PurchaseOrderID),
		balanceAfter,
		e.CreatedBy,
		e.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (q *pgQueries) LedgerBalance(ctx context.Context, before *time.Time) (int64, error) {
	var cutoff sql.NullTime
	if before != nil {
		cutoff = sql.NullTime{Time: *before, Valid: true}
	}
	var balance int64
	if err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)::bigint
		FROM ledger_entries
		WHERE $1::timestamptz IS NULL OR occurred_at < $1
	`, cutoff).Scan(&balance); err != nil {
		return 0, fmt.Errorf("sum ledger balance: %w", err)
	}
	return balance, nil
}

func (q *pgQueries) ListLedgerEntries(ctx context.Context, filter LedgerFilter) ([]domain.LedgerEntry, error) {
	var from, to sql.NullTime
	if filter.From != nil {
		from = sql.NullTime{Time: *filter.From, Valid: true}
	}
	if filter.To != nil {
		to = sql.NullTime{Time: *filter.To, Valid: true}
	}
	rows, err := q.db.Query(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		  AND ($2::timestamptz IS NULL OR occurred_at <= $2)
		  AND ($3 = '' OR category = $3)
		ORDER BY occurred_at DESC, created_at DESC, id DESC
		LIMIT $4 OFFSET $5
	`, from, to, strings.TrimSpace(filter.Category), NormalizeLimit(filter.Limit), NormalizeOffset(filter.Offset))
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return collectLedgerEntries(rows)
}

func (q *pgQueries) LedgerEntriesSince(ctx context.Context, since time.Time) ([]domain.LedgerEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE occurred_at >= $1
		ORDER BY occurred_at ASC, created_at ASC, id ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries since %s: %w", since.Format(time.RFC3339), err)
	}
	return collectLedgerEntries(rows)
}

func collectLedgerEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	defer rows.Close()
	entries := make([]domain.LedgerEntry, 0)
	for rows.Next() {
		var (
			e            domain.LedgerEntry
			userID       sql.NullString
			settlementID sql.NullString
			poID         sql.NullString
			balanceAfter sql.NullInt64
		)
		if err := rows.Scan(
			&e.ID,
			&e.Timestamp,
			&e.Description,
			&e.AmountCents,
			&e.Category,
			&userID,
			&settlementID,
			&poID,
			&balanceAfter,
			&e.CreatedBy,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.UserID = stringPtr(userID)
		e.SettlementID = stringPtr(settlementID)
		e.PurchaseOrderID = stringPtr(poID)
		e.BalanceAfterCents = int64Ptr(balanceAfter)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}

func (q *pgQueries) InsertPurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error {
	if _, err := q.db.Exec(ctx, `
		INSERT INTO purchase_orders (
			id,
			vendor_name,
			status,
			notes,
			misc_cost_cents,
			total_cost_cents,
			ordered_at,
			received_at,
			created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		po.ID,
		po.VendorName,
		po.Status,
		po.Notes,
		po.MiscCostCents,
		po.TotalCostCents,
		po.OrderedAt,
		po.ReceivedAt,
		po.CreatedBy,
	); err != nil {
		return fmt.Errorf("insert purchase order: %w", err)
	}

	batch := &pgx.Batch{}
	for _, line := range po.Lines {
		batch.Queue(`
			INSERT INTO purchase_order_lines (id, purchase_order_id, item_id, quantity, unit_cost_cents)
			VALUES ($1, $2, $3, $4, $5)
		`, line.ID, po.ID, line.ItemID, line.Quantity, line.UnitCostCents)
	}
	if batch.Len() == 0 {
		return nil
	}
	results := q.db.SendBatch(ctx, batch)
	for range po.Lines {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert purchase order line: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close purchase order batch: %w", err)
	}
	return nil
}

func (q *pgQueries) GetPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	po, err := scanPurchaseOrderRow(q.db.QueryRow(ctx, `
		SELECT id, vendor_name, status, notes, misc_cost_cents, total_cost_cents, ordered_at, received_at, created_by
		FROM purchase_orders
		WHERE id = $1
	`, id))
	if err != nil {
		if notFound(err) {
			return domain.PurchaseOrder{}, ErrNotFound
		}
		return domain.PurchaseOrder{}, fmt.Errorf("get purchase order %s: %w", id, err)
	}

	rows, err := q.db.Query(ctx, `
		SELECT id, purchase_order_id, item_id, quantity, unit_cost_cents
		FROM purchase_order_lines
		WHERE purchase_order_id = $1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return domain.PurchaseOrder{}, fmt.Errorf("list purchase order lines: %w", err)
	}
	defer rows.Close()

	po.Lines = make([]domain.PurchaseOrderLine, 0)
	for rows.Next() {
		var line domain.PurchaseOrderLine
		if err := rows.Scan(&line.ID, &line.PurchaseOrderID, &line.ItemID, &line.Quantity, &line.UnitCostCents); err != nil {
			return domain.PurchaseOrder{}, fmt.Errorf("scan purchase order line: %w", err)
		}
		po.Lines = append(po.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return domain.PurchaseOrder{}, fmt.Errorf("iterate purchase order lines: %w", err)
	}
	return po, nil
}

func (q *pgQueries) ListPurchaseOrders(ctx context.Context, limit, offset int) ([]domain.PurchaseOrder, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, vendor_name, status, notes, misc_cost_cents, total_cost_cents, ordered_at, received_at, created_by
		FROM purchase_orders
		ORDER BY received_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, NormalizeLimit(limit), NormalizeOffset(offset))
	if err != nil {
		return nil, fmt.Errorf("list purchase orders: %w", err)
	}
	defer rows.Close()

	list := make([]domain.PurchaseOrder, 0)
	for rows.Next() {
		po, err := scanPurchaseOrderRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase order: %w", err)
		}
		list = append(list, po)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchase orders: %w", err)
	}
	return list, nil
}

func scanPurchaseOrderRow(row pgx.Row) (domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	if err := row.Scan(
		&po.ID,
		&po.VendorName,
		&po.Status,
		&po.Notes,
		&po.MiscCostCents,
		&po.TotalCostCents,
		&po.OrderedAt,
		&po.ReceivedAt,
		&po.CreatedBy,
	); err != nil {
		return domain.PurchaseOrder{}, err
	}
	return po, nil
}
