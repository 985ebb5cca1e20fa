package service

import (
	"context"
	"fmt"
	"strings"

	"labcafe/internal/domain"
	"labcafe/internal/money"
	"labcafe/internal/repository"
	"labcafe/internal/validation"

	"github.com/sirupsen/logrus"
)

type PurchaseOrderLineInput struct {
	ItemID        string
	Quantity      int
	UnitCostCents int64
}

type PurchaseOrderInput struct {
	VendorName    string
	Lines         []PurchaseOrderLineInput
	MiscCostCents int64
	Notes         string
}

func (in PurchaseOrderInput) Validate() validation.Violations {
	v := validation.Violations{}
	validation.Required("vendor_name", in.VendorName, v)
	validation.NoControlChars("vendor_name", in.VendorName, v)
	validation.MaxLen("vendor_name", in.VendorName, 200, v)
	validation.NoControlChars("notes", in.Notes, v)
	validation.MaxLen("notes", in.Notes, 1000, v)
	validation.NonNegative("misc_cost_cents", in.MiscCostCents, v)
	validation.AtMost("misc_cost_cents", in.MiscCostCents, money.MaxCents, v)
	if len(in.Lines) == 0 {
		v["lines"] = "required"
	}
	for i, line := range in.Lines {
		prefix := fmt.Sprintf("lines[%d].", i)
		validation.Required(prefix+"item_id", line.ItemID, v)
		validation.PositiveInt(prefix+"quantity", line.Quantity, v)
		validation.AtMost(prefix+"quantity", int64(line.Quantity), money.MaxQuantity, v)
		validation.NonNegative(prefix+"unit_cost_cents", line.UnitCostCents, v)
		validation.AtMost(prefix+"unit_cost_cents", line.UnitCostCents, money.MaxCents, v)
	}
	if v.Empty() && in.TotalCostCents() > money.MaxCents {
		v["total_cost_cents"] = "too_large"
	}
	return v
}

// TotalCostCents is every line's quantity times unit cost, plus misc costs.
// It stops adding once past money.MaxCents.
func (in PurchaseOrderInput) TotalCostCents() int64 {
	total := in.MiscCostCents
	for _, line := range in.Lines {
		if total > money.MaxCents {
			break
		}
		total += money.LineTotal(line.Quantity, line.UnitCostCents)
	}
	return total
}

// ReceivePurchaseOrder books a vendor delivery: stock goes up for every
// line and one purchase outflow hits the ledger, all or nothing.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, actor domain.Actor, in PurchaseOrderInput) (domain.PurchaseOrder, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.PurchaseOrder{}, err
	}
	in.VendorName = strings.TrimSpace(in.VendorName)
	in.Notes = strings.TrimSpace(in.Notes)
	for i := range in.Lines {
		in.Lines[i].ItemID = strings.TrimSpace(in.Lines[i].ItemID)
	}
	if err := in.Validate().Err(); err != nil {
		return domain.PurchaseOrder{}, err
	}
	seen := make(map[string]struct{}, len(in.Lines))
	for _, line := range in.Lines {
		if _, dup := seen[line.ItemID]; dup {
			return domain.PurchaseOrder{}, domain.ErrDuplicateItem.WithDetails(map[string]any{"item_id": line.ItemID})
		}
		seen[line.ItemID] = struct{}{}
	}

	var po domain.PurchaseOrder
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		for _, line := range in.Lines {
			item, err := q.GetItem(ctx, line.ItemID, false)
			if err != nil {
				return mapStoreErr(err, domain.ErrItemNotFound.WithDetails(map[string]any{"item_id": line.ItemID}))
			}
			if !item.IsActive {
				return domain.ErrItemNotFound.WithDetails(map[string]any{"item_id": line.ItemID})
			}
		}

		now := s.timestamp()
		po = domain.PurchaseOrder{
			ID:             s.newID(),
			VendorName:     in.VendorName,
			Status:         domain.PurchaseOrderReceived,
			Notes:          in.Notes,
			MiscCostCents:  in.MiscCostCents,
			TotalCostCents: in.TotalCostCents(),
			OrderedAt:      now,
			ReceivedAt:     now,
			CreatedBy:      actor.ID,
			Lines:          make([]domain.PurchaseOrderLine, 0, len(in.Lines)),
		}
		for _, line := range in.Lines {
			po.Lines = append(po.Lines, domain.PurchaseOrderLine{
				ID:              s.newID(),
				PurchaseOrderID: po.ID,
				ItemID:          line.ItemID,
				Quantity:        line.Quantity,
				UnitCostCents:   line.UnitCostCents,
			})
		}
		if err := q.InsertPurchaseOrder(ctx, po); err != nil {
			return err
		}

		poID := po.ID
		for _, line := range po.Lines {
			if _, err := s.applyStock(ctx, q, line.ItemID, line.Quantity, now); err != nil {
				return mapStoreErr(err, domain.ErrItemNotFound)
			}
			unitCost := line.UnitCostCents
			if err := q.InsertStockMovement(ctx, domain.StockMovement{
				ID:            s.newID(),
				ItemID:        line.ItemID,
				Type:          domain.MovementRestock,
				Quantity:      line.Quantity,
				UnitCostCents: &unitCost,
				ByUserID:      actor.ID,
				RelatedPOID:   &poID,
				Note:          "purchase order from " + po.VendorName,
				CreatedAt:     now,
			}); err != nil {
				return err
			}
		}

		diff := map[string]any{
			"vendor_name":      po.VendorName,
			"line_count":       len(po.Lines),
			"total_cost_cents": po.TotalCostCents,
		}
		if po.TotalCostCents != 0 {
			entry, err := s.appendLedger(ctx, q, domain.LedgerEntry{
				Timestamp:       now,
				Description:     "Purchase order from " + po.VendorName,
				AmountCents:     -po.TotalCostCents,
				Category:        domain.LedgerPurchase,
				PurchaseOrderID: &poID,
				CreatedBy:       actor.ID,
			})
			if err != nil {
				return err
			}
			diff["ledger_entry_id"] = entry.ID
		}
		return s.audit(ctx, q, actor, domain.AuditPurchaseOrderReceive, domain.EntityPurchaseOrder, po.ID, diff, now)
	})
	if err != nil {
		return domain.PurchaseOrder{}, mapStoreErr(err, domain.ErrNotFound)
	}
	s.log.WithFields(logrus.Fields{
		"purchase_order":   po.ID,
		"vendor":           po.VendorName,
		"total_cost_cents": po.TotalCostCents,
	}).Info("purchase order received")
	return po, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, actor domain.Actor, id string) (domain.PurchaseOrder, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.PurchaseOrder{}, err
	}
	var po domain.PurchaseOrder
	err := s.store.Read(ctx, func(q repository.Queries) error {
		var err error
		po, err = q.GetPurchaseOrder(ctx, id)
		return err
	})
	return po, mapStoreErr(err, domain.ErrNotFound)
}

func (s *Service) ListPurchaseOrders(ctx context.Context, actor domain.Actor, limit, offset int) ([]domain.PurchaseOrder, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var list []domain.PurchaseOrder
	err := s.store.Read(ctx, func(q repository.Queries) error {
		var err error
		list, err = q.ListPurchaseOrders(ctx, limit, offset)
		return err
	})
	return list, err
}
