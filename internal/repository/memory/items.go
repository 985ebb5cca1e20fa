package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"labcafe/internal/domain"
	"labcafe/internal/repository"
)

func (q *queries) GetUser(_ context.Context, id string) (domain.User, error) {
	user, ok := q.st.users[id]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (q *queries) UpsertUser(_ context.Context, user domain.User) error {
	for id, existing := range q.st.users {
		if id != user.ID && strings.EqualFold(existing.Email, user.Email) {
			return repository.ErrConflict
		}
	}
	if existing, ok := q.st.users[user.ID]; ok {
		user.CreatedAt = existing.CreatedAt
	}
	q.st.users[user.ID] = user
	return nil
}

func (q *queries) GetItem(_ context.Context, id string, _ bool) (domain.Item, error) {
	item, ok := q.st.items[id]
	if !ok {
		return domain.Item{}, repository.ErrNotFound
	}
	return item, nil
}

func (q *queries) GetItemByName(_ context.Context, name string) (domain.Item, error) {
	for _, item := range q.st.items {
		if item.Name == name {
			return item, nil
		}
	}
	return domain.Item{}, repository.ErrNotFound
}

func (q *queries) ListItems(_ context.Context, filter repository.ItemFilter) ([]domain.Item, error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	list := make([]domain.Item, 0, len(q.st.items))
	for _, item := range q.st.items {
		if !filter.IncludeArchived && !item.IsActive {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(item.Name), search) {
			continue
		}
		list = append(list, item)
	}
	slices.SortFunc(list, func(a, b domain.Item) int { return strings.Compare(a.Name, b.Name) })
	return page(list, filter.Limit, filter.Offset), nil
}

func (q *queries) ListLowStock(_ context.Context) ([]domain.Item, error) {
	list := make([]domain.Item, 0)
	for _, item := range q.st.items {
		if item.IsActive && item.CurrentStock <= item.LowStockThreshold {
			list = append(list, item)
		}
	}
	slices.SortFunc(list, func(a, b domain.Item) int {
		needA, needB := a.LowStockThreshold-a.CurrentStock, b.LowStockThreshold-b.CurrentStock
		if needA != needB {
			return cmp.Compare(needB, needA)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return list, nil
}

func (q *queries) nameTaken(name, exceptID string) bool {
	for id, item := range q.st.items {
		if id != exceptID && item.Name == name {
			return true
		}
	}
	return false
}

func (q *queries) InsertItem(_ context.Context, item domain.Item) error {
	if _, exists := q.st.items[item.ID]; exists || q.nameTaken(item.Name, "") {
		return repository.ErrConflict
	}
	q.st.items[item.ID] = item
	return nil
}

func (q *queries) UpdateItemDetails(_ context.Context, item domain.Item) error {
	existing, ok := q.st.items[item.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if q.nameTaken(item.Name, item.ID) {
		return repository.ErrConflict
	}
	existing.Name = item.Name
	existing.PriceCents = item.PriceCents
	existing.LowStockThreshold = item.LowStockThreshold
	existing.UpdatedAt = item.UpdatedAt
	q.st.items[item.ID] = existing
	return nil
}

func (q *queries) ArchiveItem(_ context.Context, id string, at time.Time) (bool, error) {
	item, ok := q.st.items[id]
	if !ok || item.CurrentStock != 0 {
		return false, nil
	}
	item.IsActive = false
	item.UpdatedAt = at
	q.st.items[id] = item
	return true, nil
}

func (q *queries) ReactivateItem(_ context.Context, id string, at time.Time) error {
	item, ok := q.st.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	item.IsActive = true
	item.UpdatedAt = at
	q.st.items[id] = item
	return nil
}

func (q *queries) AdjustStock(_ context.Context, id string, delta int, requireActive bool, at time.Time) (repository.StockChange, bool, error) {
	item, ok := q.st.items[id]
	if !ok || (requireActive && !item.IsActive) || item.CurrentStock+delta < 0 {
		return repository.StockChange{}, false, nil
	}
	item.CurrentStock += delta
	item.UpdatedAt = at
	q.st.items[id] = item
	return repository.StockChange{NewStock: item.CurrentStock, PriceCents: item.PriceCents, Currency: item.Currency}, true, nil
}

func (q *queries) InsertPriceHistory(_ context.Context, entry domain.PriceHistory) error {
	q.st.priceHistory = append(q.st.priceHistory, entry)
	return nil
}

func (q *queries) ListPriceHistory(_ context.Context, itemID string) ([]domain.PriceHistory, error) {
	list := make([]domain.PriceHistory, 0)
	for _, entry := range q.st.priceHistory {
		if entry.ItemID == itemID {
			list = append(list, entry)
		}
	}
	return list, nil
}

func (q *queries) InsertStockMovement(_ context.Context, m domain.StockMovement) error {
	q.st.movements = append(q.st.movements, m)
	return nil
}

func (q *queries) ListStockMovements(_ context.Context, itemID string, since time.Time) ([]domain.StockMovement, error) {
	list := make([]domain.StockMovement, 0)
	for _, m := range q.st.movements {
		if m.ItemID == itemID && !m.CreatedAt.Before(since) {
			list = append(list, m)
		}
	}
	slices.SortStableFunc(list, func(a, b domain.StockMovement) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return list, nil
}
