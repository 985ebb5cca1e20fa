package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"labcafe/internal/domain"
	"labcafe/internal/repository"
	"labcafe/internal/settlement"
	"labcafe/internal/validation"

	"github.com/sirupsen/logrus"
)

const DefaultPaymentMethod = "bank_transfer"

type CreateSettlementInput struct {
	Month string
	Notes string
}

func (in CreateSettlementInput) Validate() validation.Violations {
	v := validation.Violations{}
	validation.Required("month", in.Month, v)
	validation.NoControlChars("notes", in.Notes, v)
	validation.MaxLen("notes", in.Notes, 1000, v)
	return v
}

// CreateSettlement opens a DRAFT billing period covering one UTC month.
func (s *Service) CreateSettlement(ctx context.Context, actor domain.Actor, in CreateSettlementInput) (domain.Settlement, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.Settlement{}, err
	}
	if err := in.Validate().Err(); err != nil {
		return domain.Settlement{}, err
	}
	start, end, err := settlement.MonthBounds(in.Month)
	if err != nil {
		return domain.Settlement{}, err
	}

	created := domain.Settlement{
		ID:        s.newID(),
		StartDate: start,
		EndDate:   end,
		Status:    domain.SettlementDraft,
		Notes:     strings.TrimSpace(in.Notes),
		CreatedBy: actor.ID,
		CreatedAt: s.timestamp(),
	}
	err = s.store.InTx(ctx, func(q repository.Queries) error {
		if err := q.InsertSettlement(ctx, &created); err != nil {
			return mapStoreErr(err, domain.ErrNotFound)
		}
		return s.audit(ctx, q, actor, domain.AuditSettlementCreated, domain.EntitySettlement, created.ID, map[string]any{
			"number":     created.Number,
			"start_date": created.StartDate,
			"end_date":   created.EndDate,
		}, created.CreatedAt)
	})
	if err != nil {
		if de, ok := domain.AsError(err); ok && de.Code == domain.CodeConflict {
			return domain.Settlement{}, domain.NewError(domain.CodeConflict, "a settlement already covers "+in.Month)
		}
		return domain.Settlement{}, err
	}
	return created, nil
}

func (s *Service) ListSettlements(ctx context.Context, actor domain.Actor, limit, offset int) ([]domain.Settlement, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var list []domain.Settlement
	err := s.store.Read(ctx, func(q repository.Queries) error {
		var err error
		list, err = q.ListSettlements(ctx, limit, offset)
		return err
	})
	return list, err
}

// GetSettlement returns the settlement with its frozen lines and what has
// been paid against each.
func (s *Service) GetSettlement(ctx context.Context, actor domain.Actor, id string) (domain.SettlementDetail, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.SettlementDetail{}, err
	}
	var detail domain.SettlementDetail
	err := s.store.Read(ctx, func(q repository.Queries) error {
		var err error
		detail, err = loadDetail(ctx, q, id, false)
		return err
	})
	return detail, mapStoreErr(err, domain.ErrNotFound)
}

func loadDetail(ctx context.Context, q repository.Queries, id string, forUpdate bool) (domain.SettlementDetail, error) {
	st, err := q.GetSettlement(ctx, id, forUpdate)
	if err != nil {
		return domain.SettlementDetail{}, err
	}
	lines, err := q.ListSettlementLines(ctx, id)
	if err != nil {
		return domain.SettlementDetail{}, err
	}
	payments, err := q.ListPayments(ctx, id)
	if err != nil {
		return domain.SettlementDetail{}, err
	}
	paid := paidByUser(payments)

	detail := domain.SettlementDetail{Settlement: st, Lines: make([]domain.SettlementLineStatus, 0, len(lines))}
	for _, line := range lines {
		detail.Lines = append(detail.Lines, domain.SettlementLineStatus{
			SettlementLine: line,
			PaidCents:      paid[line.UserID],
			IsPaid:         paid[line.UserID] >= line.TotalCents,
		})
		detail.TotalCents += line.TotalCents
	}
	return detail, nil
}

func paidByUser(payments []domain.Payment) map[string]int64 {
	paid := make(map[string]int64)
	for _, p := range payments {
		paid[p.UserID] += p.AmountCents
	}
	return paid
}

type Preview struct {
	Settlement domain.Settlement    `json:"settlement"`
	Lines      []domain.PreviewLine `json:"lines"`
	TotalCents int64                `json:"total_cents"`
}

// PreviewSettlement shows what billing a DRAFT would produce right now.
func (s *Service) PreviewSettlement(ctx context.Context, actor domain.Actor, id string) (Preview, error) {
	if err := requireAdmin(actor); err != nil {
		return Preview{}, err
	}
	var preview Preview
	err := s.store.Read(ctx, func(q repository.Queries) error {
		st, err := q.GetSettlement(ctx, id, false)
		if err != nil {
			return err
		}
		if st.Status != domain.SettlementDraft {
			return domain.ErrInvalidStatus
		}
		consumptions, err := q.ListUnsettledConsumptions(ctx, st.StartDate, st.EndDate)
		if err != nil {
			return err
		}
		lines := settlement.ComputePreviewLines(consumptions)
		preview = Preview{Settlement: st, Lines: lines, TotalCents: settlement.GrandTotal(lines)}
		return nil
	})
	return preview, mapStoreErr(err, domain.ErrNotFound)
}

// BillSettlement freezes a DRAFT: every unsettled consumption in the period
// is locked to it and one line per member is written from the aggregate.
func (s *Service) BillSettlement(ctx context.Context, actor domain.Actor, id string) (domain.SettlementDetail, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.SettlementDetail{}, err
	}
	var (
		detail       domain.SettlementDetail
		consumptions int
	)
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		st, err := q.GetSettlement(ctx, id, true)
		if err != nil {
			return err
		}
		if st.Status != domain.SettlementDraft {
			return domain.ErrInvalidStatus
		}
		paymentCount, err := q.CountPayments(ctx, id)
		if err != nil {
			return err
		}
		if paymentCount > 0 {
			return domain.ErrHasPayments
		}

		rows, err := q.ListUnsettledConsumptions(ctx, st.StartDate, st.EndDate)
		if err != nil {
			return err
		}
		lines := settlement.ComputePreviewLines(rows)

		ids := make([]string, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		assigned, err := q.AssignConsumptions(ctx, id, ids)
		if err != nil {
			return err
		}
		if assigned != len(ids) {
			return domain.NewError(domain.CodeConflict, "consumptions changed while billing; retry")
		}
		consumptions = assigned

		now := s.timestamp()
		for position, line := range lines {
			breakdown, err := json.Marshal(line.Breakdown)
			if err != nil {
				return fmt.Errorf("encode breakdown for %s: %w", line.UserID, err)
			}
			if err := q.InsertSettlementLine(ctx, domain.SettlementLine{
				ID:           s.newID(),
				SettlementID: id,
				UserID:       line.UserID,
				DisplayName:  line.DisplayName,
				Email:        line.Email,
				Position:     position,
				ItemCount:    line.ItemCount,
				TotalCents:   line.TotalCents,
				Breakdown:    breakdown,
				CreatedAt:    now,
			}); err != nil {
				return err
			}
		}

		ok, err := q.UpdateSettlementStatus(ctx, id, domain.SettlementDraft, domain.SettlementBilled, nil)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidStatus
		}
		if err := s.audit(ctx, q, actor, domain.AuditSettlementBilled, domain.EntitySettlement, id, map[string]any{
			"number":            st.Number,
			"consumption_count": assigned,
			"line_count":        len(lines),
			"total_cents":       settlement.GrandTotal(lines),
		}, now); err != nil {
			return err
		}
		detail, err = loadDetail(ctx, q, id, false)
		return err
	})
	if err != nil {
		return domain.SettlementDetail{}, mapStoreErr(err, domain.ErrNotFound)
	}
	s.log.WithFields(logrus.Fields{
		"settlement":   detail.Number,
		"consumptions": consumptions,
		"lines":        len(detail.Lines),
		"total_cents":  detail.TotalCents,
	}).Info("settlement billed")
	return detail, nil
}

type PaymentInput struct {
	UserID    string
	Paid      bool
	Method    string
	Reference string
}

func (in PaymentInput) Validate() validation.Violations {
	v := validation.Violations{}
	validation.Required("user_id", in.UserID, v)
	validation.NoControlChars("method", in.Method, v)
	validation.MaxLen("method", in.Method, 64, v)
	validation.NoControlChars("reference", in.Reference, v)
	validation.MaxLen("reference", in.Reference, 200, v)
	return v
}

// SetPaymentStatus marks a member's line paid in full or unpaid. Payments
// are all-or-nothing: marking paid leaves exactly one full-amount payment.
func (s *Service) SetPaymentStatus(ctx context.Context, actor domain.Actor, id string, in PaymentInput) (domain.SettlementLineStatus, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.SettlementLineStatus{}, err
	}
	in.UserID = strings.TrimSpace(in.UserID)
	in.Method = strings.TrimSpace(in.Method)
	in.Reference = strings.TrimSpace(in.Reference)
	if err := in.Validate().Err(); err != nil {
		return domain.SettlementLineStatus{}, err
	}
	if in.Method == "" {
		in.Method = DefaultPaymentMethod
	}

	var status domain.SettlementLineStatus
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		st, err := q.GetSettlement(ctx, id, true)
		if err != nil {
			return err
		}
		if st.Status != domain.SettlementBilled {
			return domain.ErrInvalidStatus
		}
		lines, err := q.ListSettlementLines(ctx, id)
		if err != nil {
			return err
		}
		var line *domain.SettlementLine
		for i := range lines {
			if lines[i].UserID == in.UserID {
				line = &lines[i]
				break
			}
		}
		if line == nil {
			return domain.NewError(domain.CodeNotFound, "no settlement line for this user")
		}
		payments, err := q.ListPayments(ctx, id)
		if err != nil {
			return err
		}
		paid := paidByUser(payments)[in.UserID]

		now := s.timestamp()
		action := domain.AuditPaymentUnmarked
		changed := false
		switch {
		case in.Paid && paid >= line.TotalCents:
			action = domain.AuditPaymentMarked
		case in.Paid:
			action = domain.AuditPaymentMarked
			if _, err := q.DeletePayments(ctx, id, in.UserID); err != nil {
				return err
			}
			if err := q.InsertPayment(ctx, domain.Payment{
				ID:           s.newID(),
				SettlementID: id,
				UserID:       in.UserID,
				AmountCents:  line.TotalCents,
				Method:       in.Method,
				Reference:    in.Reference,
				CreatedBy:    actor.ID,
				CreatedAt:    now,
			}); err != nil {
				return err
			}
			paid = line.TotalCents
			changed = true
		default:
			deleted, err := q.DeletePayments(ctx, id, in.UserID)
			if err != nil {
				return err
			}
			paid = 0
			changed = deleted > 0
		}

		if err := s.audit(ctx, q, actor, action, domain.EntitySettlement, id, map[string]any{
			"number":      st.Number,
			"user_id":     in.UserID,
			"total_cents": line.TotalCents,
			"method":      in.Method,
			"changed":     changed,
		}, now); err != nil {
			return err
		}
		status = domain.SettlementLineStatus{SettlementLine: *line, PaidCents: paid, IsPaid: paid >= line.TotalCents}
		return nil
	})
	if err != nil {
		return domain.SettlementLineStatus{}, mapStoreErr(err, domain.ErrNotFound)
	}
	return status, nil
}

// FinalizeSettlement closes a fully paid BILLED settlement and books the
// collected total as one ledger inflow.
func (s *Service) FinalizeSettlement(ctx context.Context, actor domain.Actor, id string) (domain.SettlementDetail, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.SettlementDetail{}, err
	}
	var detail domain.SettlementDetail
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		current, err := loadDetail(ctx, q, id, true)
		if err != nil {
			return err
		}
		if current.Status != domain.SettlementBilled {
			return domain.ErrInvalidStatus
		}
		unpaid := make([]string, 0)
		for _, line := range current.Lines {
			if !line.IsPaid {
				unpaid = append(unpaid, line.UserID)
			}
		}
		if len(unpaid) > 0 {
			return domain.ErrUnpaid.WithDetails(map[string]any{"unpaid_user_ids": unpaid})
		}

		now := s.timestamp()
		diff := map[string]any{"number": current.Number, "total_cents": current.TotalCents}
		if current.TotalCents != 0 {
			settlementID := id
			entry, err := s.appendLedger(ctx, q, domain.LedgerEntry{
				Timestamp:    now,
				Description:  fmt.Sprintf("Settlement #%d (%s)", current.Number, current.StartDate.Format("2006-01")),
				AmountCents:  current.TotalCents,
				Category:     domain.LedgerSettlement,
				SettlementID: &settlementID,
				CreatedBy:    actor.ID,
			})
			if err != nil {
				return err
			}
			diff["ledger_entry_id"] = entry.ID
		}

		ok, err := q.UpdateSettlementStatus(ctx, id, domain.SettlementBilled, domain.SettlementFinalized, &now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidStatus
		}
		if err := s.audit(ctx, q, actor, domain.AuditSettlementFinalized, domain.EntitySettlement, id, diff, now); err != nil {
			return err
		}
		detail, err = loadDetail(ctx, q, id, false)
		return err
	})
	if err != nil {
		return domain.SettlementDetail{}, mapStoreErr(err, domain.ErrNotFound)
	}
	s.log.WithFields(logrus.Fields{
		"settlement":  detail.Number,
		"total_cents": detail.TotalCents,
	}).Info("settlement finalized")
	return detail, nil
}

// VoidSettlement abandons a DRAFT so its month can be created again.
func (s *Service) VoidSettlement(ctx context.Context, actor domain.Actor, id string) (domain.Settlement, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.Settlement{}, err
	}
	var voided domain.Settlement
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		st, err := q.GetSettlement(ctx, id, true)
		if err != nil {
			return err
		}
		if st.Status != domain.SettlementDraft {
			return domain.ErrInvalidStatus
		}
		ok, err := q.UpdateSettlementStatus(ctx, id, domain.SettlementDraft, domain.SettlementVoid, nil)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidStatus
		}
		st.Status = domain.SettlementVoid
		voided = st
		return s.audit(ctx, q, actor, domain.AuditSettlementVoided, domain.EntitySettlement, id, map[string]any{
			"number": st.Number,
		}, s.timestamp())
	})
	if err != nil {
		return domain.Settlement{}, mapStoreErr(err, domain.ErrNotFound)
	}
	return voided, nil
}

const (
	ExportSourceFrozen = "frozen"
	ExportSourceLive   = "live"
)

type ExportData struct {
	Settlement domain.Settlement
	Source     string
	Lines      []domain.PreviewLine
}

// ExportSettlement returns the lines to export. Billed and finalized
// settlements export their frozen snapshot; anything else is computed live.
func (s *Service) ExportSettlement(ctx context.Context, actor domain.Actor, id string) (ExportData, error) {
	if err := requireAdmin(actor); err != nil {
		return ExportData{}, err
	}
	var data ExportData
	err := s.store.Read(ctx, func(q repository.Queries) error {
		st, err := q.GetSettlement(ctx, id, false)
		if err != nil {
			return err
		}
		data.Settlement = st

		if st.Status == domain.SettlementBilled || st.Status == domain.SettlementFinalized {
			frozen, err := q.ListSettlementLines(ctx, id)
			if err != nil {
				return err
			}
			if len(frozen) > 0 {
				data.Source = ExportSourceFrozen
				data.Lines = make([]domain.PreviewLine, 0, len(frozen))
				for _, line := range frozen {
					rows, err := line.BreakdownRows()
					if err != nil {
						return fmt.Errorf("decode breakdown of line %s: %w", line.ID, err)
					}
					data.Lines = append(data.Lines, domain.PreviewLine{
						UserID:      line.UserID,
						DisplayName: line.DisplayName,
						Email:       line.Email,
						ItemCount:   line.ItemCount,
						TotalCents:  line.TotalCents,
						Breakdown:   rows,
					})
				}
				return nil
			}
		}

		consumptions, err := q.ListUnsettledConsumptions(ctx, st.StartDate, st.EndDate)
		if err != nil {
			return err
		}
		data.Source = ExportSourceLive
		data.Lines = settlement.ComputePreviewLines(consumptions)
		return nil
	})
	return data, mapStoreErr(err, domain.ErrNotFound)
}
