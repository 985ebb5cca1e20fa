package domain

const (
	AuditItemCreated          = "ITEM_CREATED"
	AuditItemUpdated          = "ITEM_UPDATED"
	AuditItemPriceChanged     = "ITEM_PRICE_CHANGED"
	AuditItemArchived         = "ITEM_ARCHIVED"
	AuditItemReactivated      = "ITEM_REACTIVATED"
	AuditStockRestocked       = "STOCK_RESTOCKED"
	AuditStockWrittenOff      = "STOCK_WRITTEN_OFF"
	AuditStockAdjusted        = "STOCK_ADJUSTED"
	AuditConsumptionCreated   = "CONSUMPTION_CREATED"
	AuditConsumptionReversed  = "CONSUMPTION_REVERSED"
	AuditSettlementCreated    = "SETTLEMENT_CREATED"
	AuditSettlementBilled     = "SETTLEMENT_BILLED"
	AuditPaymentMarked        = "SETTLEMENT_PAYMENT_MARKED"
	AuditPaymentUnmarked      = "SETTLEMENT_PAYMENT_UNMARKED"
	AuditSettlementFinalized  = "SETTLEMENT_FINALIZED"
	AuditSettlementVoided     = "SETTLEMENT_VOIDED"
	AuditLedgerEntryCreated   = "LEDGER_ENTRY_CREATED"
	AuditPurchaseOrderReceive = "PURCHASE_ORDER_RECEIVED"
)

const (
	EntityItem          = "item"
	EntityConsumption   = "consumption"
	EntitySettlement    = "settlement"
	EntityLedgerEntry   = "ledger_entry"
	EntityPurchaseOrder = "purchase_order"
)
