package domain

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Actor is the authenticated caller of a mutating operation.
type Actor struct {
	ID       string `json:"id"`
	Role     Role   `json:"role"`
	IsActive bool   `json:"is_active"`
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

type Item struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	PriceCents        int64     `json:"price_cents"`
	Currency          string    `json:"currency"`
	CurrentStock      int       `json:"current_stock"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type PriceHistory struct {
	ID            string    `json:"id"`
	ItemID        string    `json:"item_id"`
	OldPriceCents *int64    `json:"old_price_cents,omitempty"`
	NewPriceCents int64     `json:"new_price_cents"`
	ChangedBy     string    `json:"changed_by"`
	ChangedAt     time.Time `json:"changed_at"`
}

type MovementType string

const (
	MovementRestock  MovementType = "RESTOCK"
	MovementConsume  MovementType = "CONSUME"
	MovementWriteOff MovementType = "WRITE_OFF"
	MovementAdjust   MovementType = "ADJUST"
)

// StockMovement quantities are magnitudes for RESTOCK, CONSUME and WRITE_OFF.
// ADJUST carries its own sign.
type StockMovement struct {
	ID            string       `json:"id"`
	ItemID        string       `json:"item_id"`
	Type          MovementType `json:"type"`
	Quantity      int          `json:"quantity"`
	UnitCostCents *int64       `json:"unit_cost_cents,omitempty"`
	ByUserID      string       `json:"by_user_id"`
	RelatedPOID   *string      `json:"related_po_id,omitempty"`
	Note          string       `json:"note"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Delta is the signed change the movement applied to current stock.
func (m StockMovement) Delta() int {
	switch m.Type {
	case MovementConsume, MovementWriteOff:
		return -m.Quantity
	default:
		return m.Quantity
	}
}

type Consumption struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	ItemID         string     `json:"item_id"`
	Quantity       int        `json:"quantity"`
	PriceAtTxCents int64      `json:"price_at_tx_cents"`
	Currency       string     `json:"currency"`
	CreatedAt      time.Time  `json:"created_at"`
	ReversedAt     *time.Time `json:"reversed_at,omitempty"`
	SettlementID   *string    `json:"settlement_id,omitempty"`
}

// ConsumptionDetail is a consumption joined with the names the aggregator needs.
type ConsumptionDetail struct {
	Consumption
	UserDisplayName string `json:"user_display_name"`
	UserEmail       string `json:"user_email"`
	ItemName        string `json:"item_name"`
}

type SettlementStatus string

const (
	SettlementDraft     SettlementStatus = "DRAFT"
	SettlementBilled    SettlementStatus = "BILLED"
	SettlementFinalized SettlementStatus = "FINALIZED"
	SettlementVoid      SettlementStatus = "VOID"
)

type Settlement struct {
	ID          string           `json:"id"`
	Number      int64            `json:"number"`
	StartDate   time.Time        `json:"start_date"`
	EndDate     time.Time        `json:"end_date"`
	Status      SettlementStatus `json:"status"`
	Notes       string           `json:"notes"`
	CreatedBy   string           `json:"created_by"`
	CreatedAt   time.Time        `json:"created_at"`
	FinalizedAt *time.Time       `json:"finalized_at,omitempty"`
}

type BreakdownRow struct {
	ItemID         string `json:"item_id"`
	ItemName       string `json:"item_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	TotalCents     int64  `json:"total_cents"`
}

// PreviewLine is one member's bill as computed from live consumptions.
type PreviewLine struct {
	UserID      string         `json:"user_id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	ItemCount   int            `json:"item_count"`
	TotalCents  int64          `json:"total_cents"`
	Breakdown   []BreakdownRow `json:"breakdown"`
}

// SettlementLine is the frozen bill written when a settlement is billed.
// Breakdown holds the serialized snapshot exactly as it was persisted.
type SettlementLine struct {
	ID           string          `json:"id"`
	SettlementID string          `json:"settlement_id"`
	UserID       string          `json:"user_id"`
	DisplayName  string          `json:"display_name"`
	Email        string          `json:"email"`
	// Position is the line's rank in the aggregator output.
	Position     int             `json:"position"`
	ItemCount    int             `json:"item_count"`
	TotalCents   int64           `json:"total_cents"`
	Breakdown    json.RawMessage `json:"breakdown"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (l SettlementLine) BreakdownRows() ([]BreakdownRow, error) {
	var rows []BreakdownRow
	if len(l.Breakdown) == 0 {
		return rows, nil
	}
	if err := json.Unmarshal(l.Breakdown, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

type SettlementLineStatus struct {
	SettlementLine
	PaidCents int64 `json:"paid_cents"`
	IsPaid    bool  `json:"is_paid"`
}

type SettlementDetail struct {
	Settlement
	Lines      []SettlementLineStatus `json:"lines"`
	TotalCents int64                  `json:"total_cents"`
}

type Payment struct {
	ID           string    `json:"id"`
	SettlementID string    `json:"settlement_id"`
	UserID       string    `json:"user_id"`
	AmountCents  int64     `json:"amount_cents"`
	Method       string    `json:"method"`
	Reference    string    `json:"reference"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

type LedgerCategory string

const (
	LedgerReceipt    LedgerCategory = "RECEIPT"
	LedgerSettlement LedgerCategory = "SETTLEMENT"
	LedgerPurchase   LedgerCategory = "PURCHASE"
	LedgerWriteOff   LedgerCategory = "WRITE_OFF"
	LedgerAdjustment LedgerCategory = "ADJUSTMENT"
	LedgerOther      LedgerCategory = "OTHER"
)

var LedgerCategories = []LedgerCategory{
	LedgerReceipt, LedgerSettlement, LedgerPurchase, LedgerWriteOff, LedgerAdjustment, LedgerOther,
}

type LedgerEntry struct {
	ID                string         `json:"id"`
	Timestamp         time.Time      `json:"timestamp"`
	Description       string         `json:"description"`
	AmountCents       int64          `json:"amount_cents"`
	Category          LedgerCategory `json:"category"`
	UserID            *string        `json:"user_id,omitempty"`
	SettlementID      *string        `json:"settlement_id,omitempty"`
	PurchaseOrderID   *string        `json:"purchase_order_id,omitempty"`
	BalanceAfterCents *int64         `json:"balance_after_cents,omitempty"`
	CreatedBy         string         `json:"created_by"`
	CreatedAt         time.Time      `json:"created_at"`
}

const PurchaseOrderReceived = "RECEIVED"

type PurchaseOrder struct {
	ID             string              `json:"id"`
	VendorName     string              `json:"vendor_name"`
	Status         string              `json:"status"`
	Notes          string              `json:"notes"`
	MiscCostCents  int64               `json:"misc_cost_cents"`
	TotalCostCents int64               `json:"total_cost_cents"`
	OrderedAt      time.Time           `json:"ordered_at"`
	ReceivedAt     time.Time           `json:"received_at"`
	CreatedBy      string              `json:"created_by"`
	Lines          []PurchaseOrderLine `json:"lines,omitempty"`
}

type PurchaseOrderLine struct {
	ID              string `json:"id"`
	PurchaseOrderID string `json:"purchase_order_id"`
	ItemID          string `json:"item_id"`
	Quantity        int    `json:"quantity"`
	UnitCostCents   int64  `json:"unit_cost_cents"`
}

type AuditEntry struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actor_id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Diff       json.RawMessage `json:"diff,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// DayPoint is one calendar day (UTC, YYYY-MM-DD) of a chart series.
type DayPoint struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

// CatalogueRow is one parsed line of a spreadsheet item import.
type CatalogueRow struct {
	Name              string
	PriceCents        int64
	Currency          string
	Stock             int
	LowStockThreshold *int
}
