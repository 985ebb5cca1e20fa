package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"labcafe/internal/domain"
	"labcafe/internal/repository"
)

func (q *queries) InsertLedgerEntry(_ context.Context, e domain.LedgerEntry) error {
	q.st.ledger = append(q.st.ledger, e)
	return nil
}

func (q *queries) LedgerBalance(_ context.Context, before *time.Time) (int64, error) {
	var balance int64
	for _, e := range q.st.ledger {
		if before != nil && !e.Timestamp.Before(*before) {
			continue
		}
		balance += e.AmountCents
	}
	return balance, nil
}

func (q *queries) ListLedgerEntries(_ context.Context, filter repository.LedgerFilter) ([]domain.LedgerEntry, error) {
	category := strings.TrimSpace(filter.Category)
	list := make([]domain.LedgerEntry, 0)
	for i := len(q.st.ledger) - 1; i >= 0; i-- {
		e := q.st.ledger[i]
		if filter.From != nil && e.Timestamp.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.Timestamp.After(*filter.To) {
			continue
		}
		if category != "" && string(e.Category) != category {
			continue
		}
		list = append(list, e)
	}
	slices.SortStableFunc(list, func(a, b domain.LedgerEntry) int { return b.Timestamp.Compare(a.Timestamp) })
	return page(list, filter.Limit, filter.Offset), nil
}

func (q *queries) LedgerEntriesSince(_ context.Context, since time.Time) ([]domain.LedgerEntry, error) {
	list := make([]domain.LedgerEntry, 0)
	for _, e := range q.st.ledger {
		if !e.Timestamp.Before(since) {
			list = append(list, e)
		}
	}
	slices.SortStableFunc(list, func(a, b domain.LedgerEntry) int { return a.Timestamp.Compare(b.Timestamp) })
	return list, nil
}

func (q *queries) InsertPurchaseOrder(_ context.Context, po domain.PurchaseOrder) error {
	if _, exists := q.st.purchaseOrders[po.ID]; exists {
		return repository.ErrConflict
	}
	po.Lines = slices.Clone(po.Lines)
	for i := range po.Lines {
		po.Lines[i].PurchaseOrderID = po.ID
	}
	q.st.purchaseOrders[po.ID] = po
	return nil
}

func (q *queries) GetPurchaseOrder(_ context.Context, id string) (domain.PurchaseOrder, error) {
	po, ok := q.st.purchaseOrders[id]
	if !ok {
		return domain.PurchaseOrder{}, repository.ErrNotFound
	}
	po.Lines = slices.Clone(po.Lines)
	return po, nil
}

func (q *queries) ListPurchaseOrders(_ context.Context, limit, offset int) ([]domain.PurchaseOrder, error) {
	list := make([]domain.PurchaseOrder, 0, len(q.st.purchaseOrders))
	for _, po := range q.st.purchaseOrders {
		po.Lines = nil
		list = append(list, po)
	}
	slices.SortFunc(list, func(a, b domain.PurchaseOrder) int {
		if c := b.ReceivedAt.Compare(a.ReceivedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return page(list, limit, offset), nil
}

func (q *queries) InsertAudit(_ context.Context, e domain.AuditEntry) error {
	q.st.audit = append(q.st.audit, e)
	return nil
}

func (q *queries) matchingAudit(search string) []domain.AuditEntry {
	search = strings.ToLower(strings.TrimSpace(search))
	list := make([]domain.AuditEntry, 0)
	for i := len(q.st.audit) - 1; i >= 0; i-- {
		e := q.st.audit[i]
		if search != "" {
			haystack := strings.ToLower(strings.Join([]string{e.Action, e.EntityType, e.EntityID, e.ActorID}, " "))
			if !strings.Contains(haystack, search) {
				continue
			}
		}
		list = append(list, e)
	}
	return list
}

func (q *queries) ListAudit(_ context.Context, search string, limit, offset int) ([]domain.AuditEntry, error) {
	return page(q.matchingAudit(search), limit, offset), nil
}

func (q *queries) CountAudit(_ context.Context, search string) (int, error) {
	return len(q.matchingAudit(search)), nil
}
