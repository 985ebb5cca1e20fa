package service

import (
	"testing"
	"time"

	"labcafe/internal/domain"
	"labcafe/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateItem(t *testing.T) {
	f := newFixture(t)

	item, err := f.svc.CreateItem(f.ctx, f.admin, CreateItemInput{Name: "  Cold Brew ", PriceCents: 350, LowStockThreshold: 3})
	require.NoError(t, err)
	assert.Equal(t, "Cold Brew", item.Name)
	assert.Equal(t, "USD", item.Currency)
	assert.True(t, item.IsActive)
	assert.Zero(t, item.CurrentStock)

	_, err = f.svc.CreateItem(f.ctx, f.admin, CreateItemInput{Name: "Cold Brew", PriceCents: 100})
	assertCode(t, err, domain.CodeConflict)

	_, err = f.svc.CreateItem(f.ctx, f.alice, CreateItemInput{Name: "Tea", PriceCents: 100})
	assertCode(t, err, domain.CodeForbidden)

	_, err = f.svc.CreateItem(f.ctx, f.admin, CreateItemInput{Name: "Tea\x07", PriceCents: -1})
	assertCode(t, err, domain.CodeValidation)
	de, _ := domain.AsError(err)
	assert.Equal(t, map[string]string{"name": "control_characters", "price_cents": "must_not_be_negative"}, de.Details)

	history, err := f.svc.PriceHistory(f.ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].OldPriceCents)
	assert.Equal(t, int64(350), history[0].NewPriceCents)
}

func TestUpdateItemRecordsPriceHistory(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "Cola", 150, 0)

	price := int64(175)
	updated, err := f.svc.UpdateItem(f.ctx, f.admin, item.ID, UpdateItemInput{PriceCents: &price})
	require.NoError(t, err)
	assert.Equal(t, int64(175), updated.PriceCents)

	history, err := f.svc.PriceHistory(f.ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	var changed *domain.PriceHistory
	for i := range history {
		if history[i].OldPriceCents != nil {
			changed = &history[i]
		}
	}
	require.NotNil(t, changed)
	assert.Equal(t, int64(150), *changed.OldPriceCents)
	assert.Equal(t, int64(175), changed.NewPriceCents)
	assert.Contains(t, f.auditActions(t), domain.AuditItemPriceChanged)

	same := int64(175)
	_, err = f.svc.UpdateItem(f.ctx, f.admin, item.ID, UpdateItemInput{PriceCents: &same})
	require.NoError(t, err)
	history, err = f.svc.PriceHistory(f.ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	_, err = f.svc.UpdateItem(f.ctx, f.admin, "missing", UpdateItemInput{PriceCents: &price})
	assertCode(t, err, domain.CodeNotFound)
}

func TestArchiveRules(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "Chips", 100, 2)

	_, err := f.svc.ArchiveItem(f.ctx, f.admin, item.ID, "chips")
	assertCode(t, err, domain.CodeConfirmationMismatch)

	_, err = f.svc.ArchiveItem(f.ctx, f.admin, item.ID, "Chips")
	assertCode(t, err, domain.CodeStockNotZero)

	_, err = f.svc.WriteOff(f.ctx, f.admin, item.ID, WriteOffInput{Quantity: 2, Reason: "expired"})
	require.NoError(t, err)

	archived, err := f.svc.ArchiveItem(f.ctx, f.admin, item.ID, "Chips")
	require.NoError(t, err)
	assert.False(t, archived.IsActive)

	_, err = f.svc.RecordConsumption(f.ctx, f.alice, ConsumeInput{ItemID: item.ID, Quantity: 1})
	assertCode(t, err, domain.CodeNotFound)
	_, err = f.svc.Restock(f.ctx, f.admin, item.ID, RestockInput{Quantity: 1})
	assertCode(t, err, domain.CodeNotFound)

	visible, err := f.svc.ListItems(f.ctx, repository.ItemFilter{})
	require.NoError(t, err)
	assert.Empty(t, visible)
	all, err := f.svc.ListItems(f.ctx, repository.ItemFilter{IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	reactivated, err := f.svc.ReactivateItem(f.ctx, f.admin, item.ID)
	require.NoError(t, err)
	assert.True(t, reactivated.IsActive)
	_, err = f.svc.Restock(f.ctx, f.admin, item.ID, RestockInput{Quantity: 1})
	require.NoError(t, err)
}

func TestWriteOffAndAdjust(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "Bar", 200, 5)

	_, err := f.svc.WriteOff(f.ctx, f.admin, item.ID, WriteOffInput{Quantity: 6, Reason: "lost"})
	assertCode(t, err, domain.CodeOutOfStock)

	res, err := f.svc.WriteOff(f.ctx, f.admin, item.ID, WriteOffInput{Quantity: 2, Reason: "crushed", RecordLedger: true})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Item.CurrentStock)
	require.NotNil(t, res.LedgerEntry)
	assert.Equal(t, int64(-400), res.LedgerEntry.AmountCents)
	assert.Equal(t, domain.LedgerWriteOff, res.LedgerEntry.Category)

	cost := int64(80)
	res, err = f.svc.WriteOff(f.ctx, f.admin, item.ID, WriteOffInput{Quantity: 1, Reason: "expired", RecordLedger: true, UnitCostCents: &cost})
	require.NoError(t, err)
	require.NotNil(t, res.LedgerEntry)
	assert.Equal(t, int64(-80), res.LedgerEntry.AmountCents)
	require.NotNil(t, res.LedgerEntry.BalanceAfterCents)
	assert.Equal(t, int64(-480), *res.LedgerEntry.BalanceAfterCents)

	_, err = f.svc.AdjustStock(f.ctx, f.admin, item.ID, AdjustStockInput{Delta: -3, Note: ""})
	assertCode(t, err, domain.CodeValidation)

	adjusted, err := f.svc.AdjustStock(f.ctx, f.admin, item.ID, AdjustStockInput{Delta: 4, Note: "stocktake"})
	require.NoError(t, err)
	assert.Equal(t, 6, adjusted.CurrentStock)

	_, err = f.svc.AdjustStock(f.ctx, f.admin, item.ID, AdjustStockInput{Delta: -7, Note: "stocktake"})
	assertCode(t, err, domain.CodeOutOfStock)

	low, err := f.svc.LowStock(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, low)
}

func TestStockSeriesReconstructsHistory(t *testing.T) {
	f := newFixture(t)
	day := func(d int) time.Time { return time.Date(2026, 3, d, 9, 0, 0, 0, time.UTC) }

	f.clock.Set(day(1))
	item := f.item(t, "Cola", 150, 10)
	f.clock.Set(day(2))
	f.consume(t, f.alice, item.ID, 3)
	f.clock.Set(day(4))
	_, err := f.svc.WriteOff(f.ctx, f.admin, item.ID, WriteOffInput{Quantity: 1, Reason: "dented"})
	require.NoError(t, err)
	f.clock.Set(day(5))

	points, err := f.svc.StockSeries(f.ctx, item.ID, day(1), day(5))
	require.NoError(t, err)
	values := make([]int64, 0, len(points))
	for _, p := range points {
		values = append(values, p.Value)
	}
	assert.Equal(t, []int64{10, 7, 7, 6, 6}, values)
	assert.Equal(t, "2026-03-01", points[0].Date)

	_, err = f.svc.StockSeries(f.ctx, item.ID, day(5), day(1))
	assertCode(t, err, domain.CodeInvalidRange)

	_, err = f.svc.StockSeries(f.ctx, item.ID, time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC))
	assertCode(t, err, domain.CodeInvalidRange)
}

func TestImportCatalogue(t *testing.T) {
	f := newFixture(t)
	existing := f.item(t, "Cola", 150, 2)
	archived := f.item(t, "Gum", 50, 0)
	_, err := f.svc.ArchiveItem(f.ctx, f.admin, archived.ID, "Gum")
	require.NoError(t, err)

	threshold := 4
	res, err := f.svc.ImportCatalogue(f.ctx, f.admin, []domain.CatalogueRow{
		{Name: "Cola", PriceCents: 175, Stock: 10},
		{Name: "Cold Brew", PriceCents: 350, Stock: 12, LowStockThreshold: &threshold},
		{Name: "Gum", PriceCents: 60, Stock: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Created: 1, Repriced: 1, Restocked: 2, Skipped: 1}, res)

	cola, err := f.svc.GetItem(f.ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(175), cola.PriceCents)
	assert.Equal(t, 12, cola.CurrentStock)

	gum, err := f.svc.GetItem(f.ctx, archived.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), gum.PriceCents)

	_, err = f.svc.ImportCatalogue(f.ctx, f.admin, []domain.CatalogueRow{
		{Name: "Tea", PriceCents: 100, Stock: 1},
		{Name: "", PriceCents: 100},
	})
	assertCode(t, err, domain.CodeValidation)
	items, err := f.svc.ListItems(f.ctx, repository.ItemFilter{Search: "tea"})
	require.NoError(t, err)
	assert.Empty(t, items)
}
