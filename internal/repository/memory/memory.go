// Package memory is an in-process repository.Store. Transactions are
// serialized and roll back by restoring a snapshot taken when they began.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"labcafe/internal/domain"
	"labcafe/internal/repository"
)

type state struct {
	users          map[string]domain.User
	items          map[string]domain.Item
	priceHistory   []domain.PriceHistory
	movements      []domain.StockMovement
	consumptions   map[string]domain.Consumption
	consumptionIDs []string
	settlements    map[string]domain.Settlement
	settlementSeq  int64
	lines          []domain.SettlementLine
	payments       []domain.Payment
	ledger         []domain.LedgerEntry
	purchaseOrders map[string]domain.PurchaseOrder
	audit          []domain.AuditEntry
}

func newState() *state {
	return &state{
		users:          make(map[string]domain.User),
		items:          make(map[string]domain.Item),
		consumptions:   make(map[string]domain.Consumption),
		settlements:    make(map[string]domain.Settlement),
		purchaseOrders: make(map[string]domain.PurchaseOrder),
	}
}

// clone copies the containers. Stored values are never mutated in place,
// so sharing their pointer fields between snapshots is safe.
func (s *state) clone() *state {
	return &state{
		users:          maps.Clone(s.users),
		items:          maps.Clone(s.items),
		priceHistory:   slices.Clone(s.priceHistory),
		movements:      slices.Clone(s.movements),
		consumptions:   maps.Clone(s.consumptions),
		consumptionIDs: slices.Clone(s.consumptionIDs),
		settlements:    maps.Clone(s.settlements),
		settlementSeq:  s.settlementSeq,
		lines:          slices.Clone(s.lines),
		payments:       slices.Clone(s.payments),
		ledger:         slices.Clone(s.ledger),
		purchaseOrders: maps.Clone(s.purchaseOrders),
		audit:          slices.Clone(s.audit),
	}
}

type Store struct {
	mu sync.RWMutex
	st *state
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) InTx(ctx context.Context, fn func(q repository.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&queries{st: s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// Read must only be given read-only work.
func (s *Store) Read(ctx context.Context, fn func(q repository.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&queries{st: s.st})
}

type queries struct {
	st *state
}

func page[T any](list []T, limit, offset int) []T {
	limit = repository.NormalizeLimit(limit)
	offset = repository.NormalizeOffset(offset)
	if offset >= len(list) {
		return []T{}
	}
	end := min(offset+limit, len(list))
	return list[offset:end]
}
