package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"labcafe/internal/analytics"
	"labcafe/internal/domain"
	"labcafe/internal/money"
	"labcafe/internal/repository"
	"labcafe/internal/validation"

	"github.com/sirupsen/logrus"
)

type CreateItemInput struct {
	Name              string
	PriceCents        int64
	Currency          string
	LowStockThreshold int
}

func (in CreateItemInput) Validate() validation.Violations {
	v := validation.Violations{}
	validateItemName(in.Name, v)
	validation.NonNegative("price_cents", in.PriceCents, v)
	validation.AtMost("price_cents", in.PriceCents, money.MaxCents, v)
	validation.NonNegative("low_stock_threshold", int64(in.LowStockThreshold), v)
	if in.Currency != "" && len(strings.TrimSpace(in.Currency)) != 3 {
		v["currency"] = "invalid_currency"
	}
	return v
}

type UpdateItemInput struct {
	Name              *string
	PriceCents        *int64
	LowStockThreshold *int
}

func (in UpdateItemInput) Validate() validation.Violations {
	v := validation.Violations{}
	if in.Name != nil {
		validateItemName(*in.Name, v)
	}
	if in.PriceCents != nil {
		validation.NonNegative("price_cents", *in.PriceCents, v)
		validation.AtMost("price_cents", *in.PriceCents, money.MaxCents, v)
	}
	if in.LowStockThreshold != nil {
		validation.NonNegative("low_stock_threshold", int64(*in.LowStockThreshold), v)
	}
	return v
}

func validateItemName(name string, v validation.Violations) {
	validation.Required("name", name, v)
	validation.NoControlChars("name", name, v)
	validation.MaxLen("name", name, 120, v)
}

func (s *Service) ListItems(ctx context.Context, filter repository.ItemFilter) ([]domain.Item, error) {
	var items []domain.Item
	err := s.store.Read(ctx, func(q repository.Queries) error {
		var err error
		items, err = q.ListItems(ctx, filter)
		return err
	})
	return items, err
}

func (s *Service) GetItem(ctx context.Context, id string) (domain.Item, error) {
	var item domain.Item
	err := s.store.Read(ctx, func(q repository.Queries) error {
		var err error
		item, err = q.GetItem(ctx, id, false)
		return err
	})
	return item, mapStoreErr(err, domain.ErrNotFound)
}

func (s *Service) LowStock(ctx context.Context) ([]domain.Item, error) {
	var items []domain.Item
	err := s.store.Read(ctx, func(q repository.Queries) error {
		var err error
		items, err = q.ListLowStock(ctx)
		return err
	})
	return items, err
}

func (s *Service) PriceHistory(ctx context.Context, itemID string) ([]domain.PriceHistory, error) {
	var history []domain.PriceHistory
	err := s.store.Read(ctx, func(q repository.Queries) error {
		if _, err := q.GetItem(ctx, itemID, false); err != nil {
			return err
		}
		var err error
		history, err = q.ListPriceHistory(ctx, itemID)
		return err
	})
	return history, mapStoreErr(err, domain.ErrNotFound)
}

func (s *Service) CreateItem(ctx context.Context, actor domain.Actor, in CreateItemInput) (domain.Item, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.Item{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate().Err(); err != nil {
		return domain.Item{}, err
	}

	now := s.timestamp()
	item := domain.Item{
		ID:                s.newID(),
		Name:              in.Name,
		PriceCents:        in.PriceCents,
		Currency:          s.currency(in.Currency),
		LowStockThreshold: in.LowStockThreshold,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		return s.insertItem(ctx, q, actor, item)
	})
	if err != nil {
		return domain.Item{}, mapStoreErr(err, domain.ErrNotFound)
	}
	return item, nil
}

func (s *Service) currency(code string) string {
	if strings.TrimSpace(code) == "" {
		return s.defaultCurrency
	}
	return money.NormalizeCurrency(code)
}

func (s *Service) insertItem(ctx context.Context, q repository.Queries, actor domain.Actor, item domain.Item) error {
	if err := q.InsertItem(ctx, item); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.NewError(domain.CodeConflict, "an item with this name already exists")
		}
		return err
	}
	if err := q.InsertPriceHistory(ctx, domain.PriceHistory{
		ID:            s.newID(),
		ItemID:        item.ID,
		NewPriceCents: item.PriceCents,
		ChangedBy:     actor.ID,
		ChangedAt:     item.CreatedAt,
	}); err != nil {
		return err
	}
	return s.audit(ctx, q, actor, domain.AuditItemCreated, domain.EntityItem, item.ID, map[string]any{
		"name":                item.Name,
		"price_cents":         item.PriceCents,
		"currency":            item.Currency,
		"low_stock_threshold": item.LowStockThreshold,
	}, item.CreatedAt)
}

func (s *Service) UpdateItem(ctx context.Context, actor domain.Actor, id string, in UpdateItemInput) (domain.Item, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.Item{}, err
	}
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		in.Name = &trimmed
	}
	if err := in.Validate().Err(); err != nil {
		return domain.Item{}, err
	}

	var updated domain.Item
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		item, err := q.GetItem(ctx, id, true)
		if err != nil {
			return err
		}
		now := s.timestamp()
		next := item
		if in.Name != nil {
			next.Name = *in.Name
		}
		if in.PriceCents != nil {
			next.PriceCents = *in.PriceCents
		}
		if in.LowStockThreshold != nil {
			next.LowStockThreshold = *in.LowStockThreshold
		}
		next.UpdatedAt = now
		if err := q.UpdateItemDetails(ctx, next); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return domain.NewError(domain.CodeConflict, "an item with this name already exists")
			}
			return err
		}

		if next.PriceCents != item.PriceCents {
			oldPrice := item.PriceCents
			if err := q.InsertPriceHistory(ctx, domain.PriceHistory{
				ID:            s.newID(),
				ItemID:        item.ID,
				OldPriceCents: &oldPrice,
				NewPriceCents: next.PriceCents,
				ChangedBy:     actor.ID,
				ChangedAt:     now,
			}); err != nil {
				return err
			}
			if err := s.audit(ctx, q, actor, domain.AuditItemPriceChanged, domain.EntityItem, item.ID, map[string]any{
				"old_price_cents": oldPrice,
				"new_price_cents": next.PriceCents,
			}, now); err != nil {
				return err
			}
		}
		if next.Name != item.Name || next.LowStockThreshold != item.LowStockThreshold {
			if err := s.audit(ctx, q, actor, domain.AuditItemUpdated, domain.EntityItem, item.ID, map[string]any{
				"old": map[string]any{"name": item.Name, "low_stock_threshold": item.LowStockThreshold},
				"new": map[string]any{"name": next.Name, "low_stock_threshold": next.LowStockThreshold},
			}, now); err != nil {
				return err
			}
		}
		updated = next
		return nil
	})
	if err != nil {
		return domain.Item{}, mapStoreErr(err, domain.ErrNotFound)
	}
	return updated, nil
}

// ArchiveItem hides an item from consumption. The caller must repeat the
// item's exact name and the item must hold no stock.
func (s *Service) ArchiveItem(ctx context.Context, actor domain.Actor, id, confirmName string) (domain.Item, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.Item{}, err
	}
	var archived domain.Item
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		item, err := q.GetItem(ctx, id, true)
		if err != nil {
			return err
		}
		if confirmName != item.Name {
			return domain.ErrConfirmationMismatch
		}
		now := s.timestamp()
		ok, err := q.ArchiveItem(ctx, id, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrStockNotZero.WithDetails(map[string]any{"current_stock": item.CurrentStock})
		}
		item.IsActive = false
		item.UpdatedAt = now
		archived = item
		return s.audit(ctx, q, actor, domain.AuditItemArchived, domain.EntityItem, id, map[string]any{"name": item.Name}, now)
	})
	if err != nil {
		return domain.Item{}, mapStoreErr(err, domain.ErrNotFound)
	}
	return archived, nil
}

func (s *Service) ReactivateItem(ctx context.Context, actor domain.Actor, id string) (domain.Item, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.Item{}, err
	}
	var item domain.Item
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		now := s.timestamp()
		if err := q.ReactivateItem(ctx, id, now); err != nil {
			return err
		}
		var err error
		if item, err = q.GetItem(ctx, id, false); err != nil {
			return err
		}
		return s.audit(ctx, q, actor, domain.AuditItemReactivated, domain.EntityItem, id, map[string]any{"name": item.Name}, now)
	})
	if err != nil {
		return domain.Item{}, mapStoreErr(err, domain.ErrNotFound)
	}
	return item, nil
}

type RestockInput struct {
	Quantity      int
	UnitCostCents *int64
	Note          string
}

func (in RestockInput) Validate() validation.Violations {
	v := validation.Violations{}
	validation.PositiveInt("quantity", in.Quantity, v)
	validation.AtMost("quantity", int64(in.Quantity), money.MaxQuantity, v)
	if in.UnitCostCents != nil {
		validation.NonNegative("unit_cost_cents", *in.UnitCostCents, v)
		validation.AtMost("unit_cost_cents", *in.UnitCostCents, money.MaxCents, v)
	}
	validation.NoControlChars("note", in.Note, v)
	validation.MaxLen("note", in.Note, 500, v)
	return v
}

// Restock adds units to an active item outside of a purchase order.
func (s *Service) Restock(ctx context.Context, actor domain.Actor, itemID string, in RestockInput) (domain.Item, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.Item{}, err
	}
	if err := in.Validate().Err(); err != nil {
		return domain.Item{}, err
	}
	var item domain.Item
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		now := s.timestamp()
		stock, err := s.applyStock(ctx, q, itemID, in.Quantity, now)
		if err != nil {
			return err
		}
		if err := q.InsertStockMovement(ctx, domain.StockMovement{
			ID:            s.newID(),
			ItemID:        itemID,
			Type:          domain.MovementRestock,
			Quantity:      in.Quantity,
			UnitCostCents: in.UnitCostCents,
			ByUserID:      actor.ID,
			Note:          strings.TrimSpace(in.Note),
			CreatedAt:     now,
		}); err != nil {
			return err
		}
		if item, err = q.GetItem(ctx, itemID, false); err != nil {
			return err
		}
		return s.audit(ctx, q, actor, domain.AuditStockRestocked, domain.EntityItem, itemID, map[string]any{
			"quantity":  in.Quantity,
			"new_stock": stock.NewStock,
		}, now)
	})
	if err != nil {
		return domain.Item{}, mapStoreErr(err, domain.ErrNotFound)
	}
	return item, nil
}

type WriteOffInput struct {
	Quantity      int
	Reason        string
	RecordLedger  bool
	UnitCostCents *int64
}

func (in WriteOffInput) Validate() validation.Violations {
	v := validation.Violations{}
	validation.PositiveInt("quantity", in.Quantity, v)
	validation.AtMost("quantity", int64(in.Quantity), money.MaxQuantity, v)
	validation.Required("reason", in.Reason, v)
	validation.NoControlChars("reason", in.Reason, v)
	validation.MaxLen("reason", in.Reason, 500, v)
	if in.UnitCostCents != nil {
		validation.NonNegative("unit_cost_cents", *in.UnitCostCents, v)
		validation.AtMost("unit_cost_cents", *in.UnitCostCents, money.MaxCents, v)
	}
	return v
}

type WriteOffResult struct {
	Item        domain.Item         `json:"item"`
	LedgerEntry *domain.LedgerEntry `json:"ledger_entry,omitempty"`
}

// WriteOff removes lost or expired units and can book their value as an outflow.
func (s *Service) WriteOff(ctx context.Context, actor domain.Actor, itemID string, in WriteOffInput) (WriteOffResult, error) {
	if err := requireAdmin(actor); err != nil {
		return WriteOffResult{}, err
	}
	in.Reason = strings.TrimSpace(in.Reason)
	if err := in.Validate().Err(); err != nil {
		return WriteOffResult{}, err
	}
	var result WriteOffResult
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		now := s.timestamp()
		stock, err := s.applyStock(ctx, q, itemID, -in.Quantity, now)
		if err != nil {
			return err
		}
		if err := q.InsertStockMovement(ctx, domain.StockMovement{
			ID:            s.newID(),
			ItemID:        itemID,
			Type:          domain.MovementWriteOff,
			Quantity:      in.Quantity,
			UnitCostCents: in.UnitCostCents,
			ByUserID:      actor.ID,
			Note:          in.Reason,
			CreatedAt:     now,
		}); err != nil {
			return err
		}
		item, err := q.GetItem(ctx, itemID, false)
		if err != nil {
			return err
		}
		result.Item = item

		diff := map[string]any{"quantity": in.Quantity, "reason": in.Reason, "new_stock": stock.NewStock}
		if in.RecordLedger {
			unitCost := stock.PriceCents
			if in.UnitCostCents != nil {
				unitCost = *in.UnitCostCents
			}
			if amount := money.LineTotal(in.Quantity, unitCost); amount != 0 {
				entry, err := s.appendLedger(ctx, q, domain.LedgerEntry{
					Timestamp:   now,
					Description: fmt.Sprintf("Write-off: %s x%d (%s)", item.Name, in.Quantity, in.Reason),
					AmountCents: -amount,
					Category:    domain.LedgerWriteOff,
					CreatedBy:   actor.ID,
				})
				if err != nil {
					return err
				}
				result.LedgerEntry = &entry
				diff["ledger_entry_id"] = entry.ID
				diff["amount_cents"] = entry.AmountCents
			}
		}
		return s.audit(ctx, q, actor, domain.AuditStockWrittenOff, domain.EntityItem, itemID, diff, now)
	})
	if err != nil {
		return WriteOffResult{}, mapStoreErr(err, domain.ErrNotFound)
	}
	return result, nil
}

type AdjustStockInput struct {
	Delta int
	Note  string
}

func (in AdjustStockInput) Validate() validation.Violations {
	v := validation.Violations{}
	validation.NonZero("delta", int64(in.Delta), v)
	validation.RangeInt("delta", in.Delta, -money.MaxQuantity, money.MaxQuantity, v)
	validation.Required("note", in.Note, v)
	validation.NoControlChars("note", in.Note, v)
	validation.MaxLen("note", in.Note, 500, v)
	return v
}

// AdjustStock corrects the count after a physical stocktake.
func (s *Service) AdjustStock(ctx context.Context, actor domain.Actor, itemID string, in AdjustStockInput) (domain.Item, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.Item{}, err
	}
	in.Note = strings.TrimSpace(in.Note)
	if err := in.Validate().Err(); err != nil {
		return domain.Item{}, err
	}
	var item domain.Item
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		now := s.timestamp()
		stock, err := s.applyStock(ctx, q, itemID, in.Delta, now)
		if err != nil {
			return err
		}
		if err := q.InsertStockMovement(ctx, domain.StockMovement{
			ID:        s.newID(),
			ItemID:    itemID,
			Type:      domain.MovementAdjust,
			Quantity:  in.Delta,
			ByUserID:  actor.ID,
			Note:      in.Note,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if item, err = q.GetItem(ctx, itemID, false); err != nil {
			return err
		}
		return s.audit(ctx, q, actor, domain.AuditStockAdjusted, domain.EntityItem, itemID, map[string]any{
			"delta":     in.Delta,
			"note":      in.Note,
			"new_stock": stock.NewStock,
		}, now)
	})
	if err != nil {
		return domain.Item{}, mapStoreErr(err, domain.ErrNotFound)
	}
	return item, nil
}

// applyStock runs the guarded stock update against an active item and
// explains a miss as NOT_FOUND or OUT_OF_STOCK.
func (s *Service) applyStock(ctx context.Context, q repository.Queries, itemID string, delta int, at time.Time) (repository.StockChange, error) {
	change, ok, err := q.AdjustStock(ctx, itemID, delta, true, at)
	if err != nil {
		return repository.StockChange{}, err
	}
	if ok {
		return change, nil
	}
	item, err := q.GetItem(ctx, itemID, false)
	if err != nil {
		return repository.StockChange{}, err
	}
	if !item.IsActive {
		return repository.StockChange{}, domain.ErrNotFound
	}
	return repository.StockChange{}, domain.ErrOutOfStock.WithDetails(map[string]any{
		"current_stock": item.CurrentStock,
		"requested":     -delta,
	})
}

func (s *Service) StockSeries(ctx context.Context, itemID string, from, to time.Time) ([]domain.DayPoint, error) {
	from, to, err := analytics.CheckRange(from, to)
	if err != nil {
		return nil, err
	}
	var points []domain.DayPoint
	err = s.store.Read(ctx, func(q repository.Queries) error {
		item, err := q.GetItem(ctx, itemID, false)
		if err != nil {
			return err
		}
		movements, err := q.ListStockMovements(ctx, itemID, from)
		if err != nil {
			return err
		}
		points, err = analytics.StockSeries(item.CurrentStock, movements, from, to)
		return err
	})
	return points, mapStoreErr(err, domain.ErrNotFound)
}

type ImportResult struct {
	Created   int `json:"created"`
	Repriced  int `json:"repriced"`
	Restocked int `json:"restocked"`
	Skipped   int `json:"skipped"`
}

// ImportCatalogue creates missing items, reprices existing ones and books
// positive stock counts as restocks, all in one transaction.
func (s *Service) ImportCatalogue(ctx context.Context, actor domain.Actor, rows []domain.CatalogueRow) (ImportResult, error) {
	if err := requireAdmin(actor); err != nil {
		return ImportResult{}, err
	}
	if len(rows) == 0 {
		return ImportResult{}, domain.ErrValidation.WithDetails(map[string]string{"rows": "required"})
	}
	for i, row := range rows {
		in := CreateItemInput{Name: strings.TrimSpace(row.Name), PriceCents: row.PriceCents, Currency: row.Currency}
		v := in.Validate()
		if row.Stock < 0 {
			v["stock"] = "must_not_be_negative"
		}
		if row.Stock > money.MaxQuantity {
			v["stock"] = "too_large"
		}
		if err := v.Err(); err != nil {
			return ImportResult{}, domain.ErrValidation.WithDetails(map[string]any{"row": i + 1, "fields": v})
		}
	}

	var result ImportResult
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		now := s.timestamp()
		for _, row := range rows {
			name := strings.TrimSpace(row.Name)
			item, err := q.GetItemByName(ctx, name)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				item = domain.Item{
					ID:         s.newID(),
					Name:       name,
					PriceCents: row.PriceCents,
					Currency:   s.currency(row.Currency),
					IsActive:   true,
					CreatedAt:  now,
					UpdatedAt:  now,
				}
				if row.LowStockThreshold != nil {
					item.LowStockThreshold = *row.LowStockThreshold
				}
				if err := s.insertItem(ctx, q, actor, item); err != nil {
					return err
				}
				result.Created++
			case err != nil:
				return err
			case !item.IsActive:
				result.Skipped++
				continue
			case item.PriceCents != row.PriceCents:
				oldPrice := item.PriceCents
				item.PriceCents = row.PriceCents
				item.UpdatedAt = now
				if err := q.UpdateItemDetails(ctx, item); err != nil {
					return err
				}
				if err := q.InsertPriceHistory(ctx, domain.PriceHistory{
					ID:            s.newID(),
					ItemID:        item.ID,
					OldPriceCents: &oldPrice,
					NewPriceCents: item.PriceCents,
					ChangedBy:     actor.ID,
					ChangedAt:     now,
				}); err != nil {
					return err
				}
				if err := s.audit(ctx, q, actor, domain.AuditItemPriceChanged, domain.EntityItem, item.ID, map[string]any{
					"old_price_cents": oldPrice,
					"new_price_cents": item.PriceCents,
					"source":          "catalogue import",
				}, now); err != nil {
					return err
				}
				result.Repriced++
			}

			if row.Stock <= 0 {
				continue
			}
			stock, err := s.applyStock(ctx, q, item.ID, row.Stock, now)
			if err != nil {
				return err
			}
			if err := q.InsertStockMovement(ctx, domain.StockMovement{
				ID:        s.newID(),
				ItemID:    item.ID,
				Type:      domain.MovementRestock,
				Quantity:  row.Stock,
				ByUserID:  actor.ID,
				Note:      "catalogue import",
				CreatedAt: now,
			}); err != nil {
				return err
			}
			if err := s.audit(ctx, q, actor, domain.AuditStockRestocked, domain.EntityItem, item.ID, map[string]any{
				"quantity":  row.Stock,
				"new_stock": stock.NewStock,
				"source":    "catalogue import",
			}, now); err != nil {
				return err
			}
			result.Restocked++
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, mapStoreErr(err, domain.ErrNotFound)
	}
	s.log.WithFields(logrus.Fields{
		"created":   result.Created,
		"repriced":  result.Repriced,
		"restocked": result.Restocked,
		"skipped":   result.Skipped,
	}).Info("catalogue imported")
	return result, nil
}
