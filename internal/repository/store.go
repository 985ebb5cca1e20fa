package repository

import (
	"context"
	"errors"
	"time"

	"labcafe/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Store hands out Queries either inside one transaction or directly.
type Store interface {
	// InTx runs fn in a single transaction. Any error returned by fn rolls
	// back every write fn made.
	InTx(ctx context.Context, fn func(q Queries) error) error
	// Read runs fn without opening a transaction.
	Read(ctx context.Context, fn func(q Queries) error) error
}

type ItemFilter struct {
	Search          string
	IncludeArchived bool
	Limit           int
	Offset          int
}

type ConsumptionFilter struct {
	UserID          string
	IncludeReversed bool
	Limit           int
	Offset          int
}

type LedgerFilter struct {
	From     *time.Time
	To       *time.Time
	Category string
	Limit    int
	Offset   int
}

// StockChange is the item row as left by a guarded stock update.
type StockChange struct {
	NewStock   int
	PriceCents int64
	Currency   string
}

type Queries interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	UpsertUser(ctx context.Context, user domain.User) error

	GetItem(ctx context.Context, id string, forUpdate bool) (domain.Item, error)
	GetItemByName(ctx context.Context, name string) (domain.Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]domain.Item, error)
	ListLowStock(ctx context.Context) ([]domain.Item, error)
	InsertItem(ctx context.Context, item domain.Item) error
	UpdateItemDetails(ctx context.Context, item domain.Item) error
	// ArchiveItem deactivates the item only while its stock is zero.
	ArchiveItem(ctx context.Context, id string, at time.Time) (bool, error)
	ReactivateItem(ctx context.Context, id string, at time.Time) error
	// AdjustStock applies delta only if the result stays non-negative (and,
	// when requireActive is set, only to an active item). ok is false when
	// no row matched.
	AdjustStock(ctx context.Context, id string, delta int, requireActive bool, at time.Time) (StockChange, bool, error)
	InsertPriceHistory(ctx context.Context, entry domain.PriceHistory) error
	ListPriceHistory(ctx context.Context, itemID string) ([]domain.PriceHistory, error)
	InsertStockMovement(ctx context.Context, movement domain.StockMovement) error
	ListStockMovements(ctx context.Context, itemID string, since time.Time) ([]domain.StockMovement, error)

	InsertConsumption(ctx context.Context, c domain.Consumption) error
	GetConsumption(ctx context.Context, id string) (domain.Consumption, error)
	// MarkConsumptionReversed flips reversed_at while the row is neither
	// reversed nor settled. A non-empty ownerID further restricts the match.
	MarkConsumptionReversed(ctx context.Context, id, ownerID string, at time.Time) (bool, error)
	ListConsumptions(ctx context.Context, filter ConsumptionFilter) ([]domain.ConsumptionDetail, error)
	ListUnsettledConsumptions(ctx context.Context, start, end time.Time) ([]domain.ConsumptionDetail, error)
	// AssignConsumptions locks the given unsettled, unreversed rows into a
	// settlement and reports how many rows it changed.
	AssignConsumptions(ctx context.Context, settlementID string, ids []string) (int, error)

	// InsertSettlement assigns settlement.Number.
	InsertSettlement(ctx context.Context, settlement *domain.Settlement) error
	GetSettlement(ctx context.Context, id string, forUpdate bool) (domain.Settlement, error)
	ListSettlements(ctx context.Context, limit, offset int) ([]domain.Settlement, error)
	UpdateSettlementStatus(ctx context.Context, id string, from, to domain.SettlementStatus, finalizedAt *time.Time) (bool, error)
	InsertSettlementLine(ctx context.Context, line domain.SettlementLine) error
	ListSettlementLines(ctx context.Context, settlementID string) ([]domain.SettlementLine, error)

	CountPayments(ctx context.Context, settlementID string) (int, error)
	ListPayments(ctx context.Context, settlementID string) ([]domain.Payment, error)
	DeletePayments(ctx context.Context, settlementID, userID string) (int, error)
	InsertPayment(ctx context.Context, payment domain.Payment) error

	InsertLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error
	// LedgerBalance sums every entry, or only those strictly before *before.
	LedgerBalance(ctx context.Context, before *time.Time) (int64, error)
	ListLedgerEntries(ctx context.Context, filter LedgerFilter) ([]domain.LedgerEntry, error)
	LedgerEntriesSince(ctx context.Context, since time.Time) ([]domain.LedgerEntry, error)

	InsertPurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error
	GetPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, limit, offset int) ([]domain.PurchaseOrder, error)

	InsertAudit(ctx context.Context, entry domain.AuditEntry) error
	ListAudit(ctx context.Context, search string, limit, offset int) ([]domain.AuditEntry, error)
	CountAudit(ctx context.Context, search string) (int, error)
}

func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return 200
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func NormalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
