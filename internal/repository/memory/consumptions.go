package memory

import (
	"context"
	"slices"
	"time"

	"labcafe/internal/domain"
	"labcafe/internal/repository"
)

func (q *queries) InsertConsumption(_ context.Context, c domain.Consumption) error {
	if _, exists := q.st.consumptions[c.ID]; exists {
		return repository.ErrConflict
	}
	q.st.consumptions[c.ID] = c
	q.st.consumptionIDs = append(q.st.consumptionIDs, c.ID)
	return nil
}

func (q *queries) GetConsumption(_ context.Context, id string) (domain.Consumption, error) {
	c, ok := q.st.consumptions[id]
	if !ok {
		return domain.Consumption{}, repository.ErrNotFound
	}
	return c, nil
}

func (q *queries) MarkConsumptionReversed(_ context.Context, id, ownerID string, at time.Time) (bool, error) {
	c, ok := q.st.consumptions[id]
	if !ok || c.ReversedAt != nil || c.SettlementID != nil {
		return false, nil
	}
	if ownerID != "" && c.UserID != ownerID {
		return false, nil
	}
	reversedAt := at
	c.ReversedAt = &reversedAt
	q.st.consumptions[id] = c
	return true, nil
}

func (q *queries) detail(c domain.Consumption) domain.ConsumptionDetail {
	user := q.st.users[c.UserID]
	item := q.st.items[c.ItemID]
	return domain.ConsumptionDetail{
		Consumption:     c,
		UserDisplayName: user.DisplayName,
		UserEmail:       user.Email,
		ItemName:        item.Name,
	}
}

func (q *queries) ListConsumptions(_ context.Context, filter repository.ConsumptionFilter) ([]domain.ConsumptionDetail, error) {
	list := make([]domain.ConsumptionDetail, 0)
	for i := len(q.st.consumptionIDs) - 1; i >= 0; i-- {
		c := q.st.consumptions[q.st.consumptionIDs[i]]
		if filter.UserID != "" && c.UserID != filter.UserID {
			continue
		}
		if !filter.IncludeReversed && c.ReversedAt != nil {
			continue
		}
		list = append(list, q.detail(c))
	}
	slices.SortStableFunc(list, func(a, b domain.ConsumptionDetail) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return page(list, filter.Limit, filter.Offset), nil
}

func (q *queries) ListUnsettledConsumptions(_ context.Context, start, end time.Time) ([]domain.ConsumptionDetail, error) {
	list := make([]domain.ConsumptionDetail, 0)
	for _, id := range q.st.consumptionIDs {
		c := q.st.consumptions[id]
		if c.SettlementID != nil || c.ReversedAt != nil {
			continue
		}
		if c.CreatedAt.Before(start) || c.CreatedAt.After(end) {
			continue
		}
		list = append(list, q.detail(c))
	}
	slices.SortStableFunc(list, func(a, b domain.ConsumptionDetail) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return list, nil
}

func (q *queries) AssignConsumptions(_ context.Context, settlementID string, ids []string) (int, error) {
	assigned := 0
	for _, id := range ids {
		c, ok := q.st.consumptions[id]
		if !ok || c.SettlementID != nil || c.ReversedAt != nil {
			continue
		}
		sid := settlementID
		c.SettlementID = &sid
		q.st.consumptions[id] = c
		assigned++
	}
	return assigned, nil
}
