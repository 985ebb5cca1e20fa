package memory

import (
	"bytes"
	"cmp"
	"context"
	"slices"
	"time"

	"labcafe/internal/domain"
	"labcafe/internal/repository"
)

func (q *queries) InsertSettlement(_ context.Context, s *domain.Settlement) error {
	if _, exists := q.st.settlements[s.ID]; exists {
		return repository.ErrConflict
	}
	for _, existing := range q.st.settlements {
		if existing.Status != domain.SettlementVoid && s.Status != domain.SettlementVoid &&
			existing.StartDate.Equal(s.StartDate) && existing.EndDate.Equal(s.EndDate) {
			return repository.ErrConflict
		}
	}
	q.st.settlementSeq++
	s.Number = q.st.settlementSeq
	q.st.settlements[s.ID] = *s
	return nil
}

func (q *queries) GetSettlement(_ context.Context, id string, _ bool) (domain.Settlement, error) {
	s, ok := q.st.settlements[id]
	if !ok {
		return domain.Settlement{}, repository.ErrNotFound
	}
	return s, nil
}

func (q *queries) ListSettlements(_ context.Context, limit, offset int) ([]domain.Settlement, error) {
	list := make([]domain.Settlement, 0, len(q.st.settlements))
	for _, s := range q.st.settlements {
		list = append(list, s)
	}
	slices.SortFunc(list, func(a, b domain.Settlement) int {
		if c := b.StartDate.Compare(a.StartDate); c != 0 {
			return c
		}
		return cmp.Compare(b.Number, a.Number)
	})
	return page(list, limit, offset), nil
}

func (q *queries) UpdateSettlementStatus(_ context.Context, id string, from, to domain.SettlementStatus, finalizedAt *time.Time) (bool, error) {
	s, ok := q.st.settlements[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	if finalizedAt != nil {
		at := *finalizedAt
		s.FinalizedAt = &at
	}
	q.st.settlements[id] = s
	return true, nil
}

func (q *queries) InsertSettlementLine(_ context.Context, line domain.SettlementLine) error {
	for _, existing := range q.st.lines {
		if existing.SettlementID == line.SettlementID && existing.UserID == line.UserID {
			return repository.ErrConflict
		}
	}
	line.Breakdown = bytes.Clone(line.Breakdown)
	q.st.lines = append(q.st.lines, line)
	return nil
}

func (q *queries) ListSettlementLines(_ context.Context, settlementID string) ([]domain.SettlementLine, error) {
	list := make([]domain.SettlementLine, 0)
	for _, line := range q.st.lines {
		if line.SettlementID == settlementID {
			line.Breakdown = bytes.Clone(line.Breakdown)
			list = append(list, line)
		}
	}
	slices.SortStableFunc(list, func(a, b domain.SettlementLine) int { return a.Position - b.Position })
	return list, nil
}

func (q *queries) CountPayments(_ context.Context, settlementID string) (int, error) {
	count := 0
	for _, p := range q.st.payments {
		if p.SettlementID == settlementID {
			count++
		}
	}
	return count, nil
}

func (q *queries) ListPayments(_ context.Context, settlementID string) ([]domain.Payment, error) {
	list := make([]domain.Payment, 0)
	for _, p := range q.st.payments {
		if p.SettlementID == settlementID {
			list = append(list, p)
		}
	}
	return list, nil
}

func (q *queries) DeletePayments(_ context.Context, settlementID, userID string) (int, error) {
	kept := q.st.payments[:0:0]
	deleted := 0
	for _, p := range q.st.payments {
		if p.SettlementID == settlementID && p.UserID == userID {
			deleted++
			continue
		}
		kept = append(kept, p)
	}
	q.st.payments = kept
	return deleted, nil
}

func (q *queries) InsertPayment(_ context.Context, p domain.Payment) error {
	q.st.payments = append(q.st.payments, p)
	return nil
}
