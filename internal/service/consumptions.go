package service

import (
	"context"
	"fmt"
	"strings"

	"labcafe/internal/domain"
	"labcafe/internal/repository"
	"labcafe/internal/validation"
)

type ConsumeInput struct {
	ItemID   string
	Quantity int
	// UserID lets an admin record a take on behalf of someone else.
	UserID string
}

func (in ConsumeInput) Validate() validation.Violations {
	v := validation.Violations{}
	validation.Required("item_id", in.ItemID, v)
	validation.PositiveInt("quantity", in.Quantity, v)
	validation.RangeInt("quantity", in.Quantity, 1, 1000, v)
	return v
}

type ConsumeResult struct {
	Consumption domain.Consumption `json:"consumption"`
	NewStock    int                `json:"new_stock"`
}

// RecordConsumption takes units off the shelf for a member at the item's
// current price. The guarded stock update is the only availability check.
func (s *Service) RecordConsumption(ctx context.Context, actor domain.Actor, in ConsumeInput) (ConsumeResult, error) {
	if err := requireActive(actor); err != nil {
		return ConsumeResult{}, err
	}
	in.ItemID = strings.TrimSpace(in.ItemID)
	in.UserID = strings.TrimSpace(in.UserID)
	if err := in.Validate().Err(); err != nil {
		return ConsumeResult{}, err
	}
	userID := actor.ID
	if in.UserID != "" && in.UserID != actor.ID {
		if !actor.IsAdmin() {
			return ConsumeResult{}, domain.ErrForbidden
		}
		userID = in.UserID
	}

	var result ConsumeResult
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		if userID != actor.ID {
			user, err := q.GetUser(ctx, userID)
			if err != nil {
				return mapStoreErr(err, domain.ErrUserNotFound)
			}
			if !user.IsActive {
				return domain.ErrUserNotFound
			}
		}

		now := s.timestamp()
		stock, err := s.applyStock(ctx, q, in.ItemID, -in.Quantity, now)
		if err != nil {
			return err
		}
		c := domain.Consumption{
			ID:             s.newID(),
			UserID:         userID,
			ItemID:         in.ItemID,
			Quantity:       in.Quantity,
			PriceAtTxCents: stock.PriceCents,
			Currency:       stock.Currency,
			CreatedAt:      now,
		}
		if err := q.InsertConsumption(ctx, c); err != nil {
			return err
		}
		if err := q.InsertStockMovement(ctx, domain.StockMovement{
			ID:        s.newID(),
			ItemID:    in.ItemID,
			Type:      domain.MovementConsume,
			Quantity:  in.Quantity,
			ByUserID:  userID,
			Note:      "consumption " + c.ID,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := s.audit(ctx, q, actor, domain.AuditConsumptionCreated, domain.EntityConsumption, c.ID, map[string]any{
			"user_id":           userID,
			"item_id":           in.ItemID,
			"quantity":          in.Quantity,
			"price_at_tx_cents": c.PriceAtTxCents,
			"new_stock":         stock.NewStock,
		}, now); err != nil {
			return err
		}
		result = ConsumeResult{Consumption: c, NewStock: stock.NewStock}
		return nil
	})
	if err != nil {
		return ConsumeResult{}, mapStoreErr(err, domain.ErrNotFound)
	}
	return result, nil
}

type ReverseResult struct {
	Consumption domain.Consumption `json:"consumption"`
	NewStock    int                `json:"new_stock"`
}

// ReverseConsumption undoes an unsettled take and puts the units back.
// Members may only reverse their own takes.
func (s *Service) ReverseConsumption(ctx context.Context, actor domain.Actor, id, note string) (ReverseResult, error) {
	if err := requireActive(actor); err != nil {
		return ReverseResult{}, err
	}
	note = strings.TrimSpace(note)
	v := validation.Violations{}
	validation.NoControlChars("note", note, v)
	validation.MaxLen("note", note, 500, v)
	if err := v.Err(); err != nil {
		return ReverseResult{}, err
	}

	var result ReverseResult
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		c, err := q.GetConsumption(ctx, id)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && c.UserID != actor.ID {
			return domain.ErrForbidden
		}
		if c.SettlementID != nil {
			return domain.ErrSettled
		}
		if c.ReversedAt != nil {
			return domain.ErrAlreadyReversed
		}

		owner := actor.ID
		if actor.IsAdmin() {
			owner = ""
		}
		now := s.timestamp()
		ok, err := q.MarkConsumptionReversed(ctx, id, owner, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotReversible
		}

		// Archived items still get their units back.
		change, ok, err := q.AdjustStock(ctx, c.ItemID, c.Quantity, false, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("restore stock for consumption %s: item %s missing", id, c.ItemID)
		}
		if err := q.InsertStockMovement(ctx, domain.StockMovement{
			ID:        s.newID(),
			ItemID:    c.ItemID,
			Type:      domain.MovementAdjust,
			Quantity:  c.Quantity,
			ByUserID:  actor.ID,
			Note:      strings.TrimSpace("reversal of consumption " + c.ID + " " + note),
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := s.audit(ctx, q, actor, domain.AuditConsumptionReversed, domain.EntityConsumption, id, map[string]any{
			"note":      note,
			"quantity":  c.Quantity,
			"owner_id":  c.UserID,
			"item_id":   c.ItemID,
			"new_stock": change.NewStock,
		}, now); err != nil {
			return err
		}
		c.ReversedAt = &now
		result = ReverseResult{Consumption: c, NewStock: change.NewStock}
		return nil
	})
	if err != nil {
		return ReverseResult{}, mapStoreErr(err, domain.ErrNotFound)
	}
	return result, nil
}

// ListConsumptions returns newest first. Members only ever see their own.
func (s *Service) ListConsumptions(ctx context.Context, actor domain.Actor, filter repository.ConsumptionFilter) ([]domain.ConsumptionDetail, error) {
	if err := requireActive(actor); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		filter.UserID = actor.ID
	}
	var list []domain.ConsumptionDetail
	err := s.store.Read(ctx, func(q repository.Queries) error {
		var err error
		list, err = q.ListConsumptions(ctx, filter)
		return err
	})
	return list, err
}
