package service

import (
	"testing"
	"time"

	"labcafe/internal/domain"
	"labcafe/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// monthOfTakes records a March of consumptions: Alice takes Cold Brew
// before and after a price change, Bob takes one Cola, Alice's Cola is
// reversed and Bob's April Cola falls outside the period.
func monthOfTakes(t *testing.T, f *fixture) (brew, cola domain.Item) {
	t.Helper()
	f.clock.Set(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	brew = f.item(t, "Cold Brew", 350, 10)
	cola = f.item(t, "Cola", 150, 10)

	f.clock.Set(time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC))
	f.consume(t, f.alice, brew.ID, 2)
	f.consume(t, f.bob, cola.ID, 1)

	f.clock.Set(time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC))
	price := int64(400)
	_, err := f.svc.UpdateItem(f.ctx, f.admin, brew.ID, UpdateItemInput{PriceCents: &price})
	require.NoError(t, err)
	f.consume(t, f.alice, brew.ID, 1)
	mistake := f.consume(t, f.alice, cola.ID, 1)
	_, err = f.svc.ReverseConsumption(f.ctx, f.alice, mistake.ID, "wrong button")
	require.NoError(t, err)

	f.clock.Set(time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC))
	f.consume(t, f.bob, cola.ID, 1)
	f.clock.Set(time.Date(2026, 4, 3, 10, 0, 0, 0, time.UTC))
	return brew, cola
}

func TestSettlementLifecycle(t *testing.T) {
	f := newFixture(t)
	brew, cola := monthOfTakes(t, f)

	st, err := f.svc.CreateSettlement(f.ctx, f.admin, CreateSettlementInput{Month: "2026-03"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Number)
	assert.Equal(t, domain.SettlementDraft, st.Status)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), st.StartDate)

	preview, err := f.svc.PreviewSettlement(f.ctx, f.admin, st.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), preview.TotalCents)
	require.Len(t, preview.Lines, 2)
	alice, bob := preview.Lines[0], preview.Lines[1]
	assert.Equal(t, "u-alice", alice.UserID)
	assert.Equal(t, 3, alice.ItemCount)
	assert.Equal(t, int64(1100), alice.TotalCents)
	assert.Equal(t, []domain.BreakdownRow{
		{ItemID: brew.ID, ItemName: "Cold Brew", Quantity: 2, UnitPriceCents: 350, TotalCents: 700},
		{ItemID: brew.ID, ItemName: "Cold Brew", Quantity: 1, UnitPriceCents: 400, TotalCents: 400},
	}, alice.Breakdown)
	assert.Equal(t, "u-bob", bob.UserID)
	assert.Equal(t, int64(150), bob.TotalCents)

	billed, err := f.svc.BillSettlement(f.ctx, f.admin, st.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementBilled, billed.Status)
	assert.Equal(t, int64(1250), billed.TotalCents)
	require.Len(t, billed.Lines, 2)
	assert.False(t, billed.Lines[0].IsPaid)

	// Billed takes are locked and renaming an item leaves the snapshot alone.
	march, err := f.svc.ListConsumptions(f.ctx, f.admin, repository.ConsumptionFilter{UserID: "u-alice"})
	require.NoError(t, err)
	require.NotEmpty(t, march)
	require.NotNil(t, march[0].SettlementID)
	_, err = f.svc.ReverseConsumption(f.ctx, f.alice, march[0].ID, "")
	assertCode(t, err, domain.CodeSettled)

	renamed := "Nitro Cold Brew"
	_, err = f.svc.UpdateItem(f.ctx, f.admin, brew.ID, UpdateItemInput{Name: &renamed})
	require.NoError(t, err)
	export, err := f.svc.ExportSettlement(f.ctx, f.admin, st.ID)
	require.NoError(t, err)
	assert.Equal(t, ExportSourceFrozen, export.Source)
	assert.Equal(t, "Cold Brew", export.Lines[0].Breakdown[0].ItemName)

	_, err = f.svc.BillSettlement(f.ctx, f.admin, st.ID)
	assertCode(t, err, domain.CodeInvalidStatus)
	_, err = f.svc.PreviewSettlement(f.ctx, f.admin, st.ID)
	assertCode(t, err, domain.CodeInvalidStatus)

	_, err = f.svc.FinalizeSettlement(f.ctx, f.admin, st.ID)
	assertCode(t, err, domain.CodeUnpaid)
	de, _ := domain.AsError(err)
	assert.Equal(t, map[string]any{"unpaid_user_ids": []string{"u-alice", "u-bob"}}, de.Details)

	line, err := f.svc.SetPaymentStatus(f.ctx, f.admin, st.ID, PaymentInput{UserID: "u-alice", Paid: true})
	require.NoError(t, err)
	assert.True(t, line.IsPaid)
	assert.Equal(t, int64(1100), line.PaidCents)

	_, err = f.svc.FinalizeSettlement(f.ctx, f.admin, st.ID)
	assertCode(t, err, domain.CodeUnpaid)

	_, err = f.svc.SetPaymentStatus(f.ctx, f.admin, st.ID, PaymentInput{UserID: "u-bob", Paid: true, Method: "cash"})
	require.NoError(t, err)

	final, err := f.svc.FinalizeSettlement(f.ctx, f.admin, st.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementFinalized, final.Status)
	require.NotNil(t, final.FinalizedAt)

	entries, err := f.svc.ListLedgerEntries(f.ctx, f.admin, repository.LedgerFilter{Category: string(domain.LedgerSettlement)})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1250), entries[0].AmountCents)
	assert.Equal(t, "Settlement #1 (2026-03)", entries[0].Description)
	require.NotNil(t, entries[0].SettlementID)
	assert.Equal(t, st.ID, *entries[0].SettlementID)

	balance, err := f.svc.CurrentBalance(f.ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), balance)

	_, err = f.svc.SetPaymentStatus(f.ctx, f.admin, st.ID, PaymentInput{UserID: "u-bob", Paid: false})
	assertCode(t, err, domain.CodeInvalidStatus)
	_, err = f.svc.VoidSettlement(f.ctx, f.admin, st.ID)
	assertCode(t, err, domain.CodeInvalidStatus)

	// April's take is still open for the next period.
	april, err := f.svc.CreateSettlement(f.ctx, f.admin, CreateSettlementInput{Month: "2026-04"})
	require.NoError(t, err)
	next, err := f.svc.PreviewSettlement(f.ctx, f.admin, april.ID)
	require.NoError(t, err)
	require.Len(t, next.Lines, 1)
	assert.Equal(t, []domain.BreakdownRow{
		{ItemID: cola.ID, ItemName: "Cola", Quantity: 1, UnitPriceCents: 150, TotalCents: 150},
	}, next.Lines[0].Breakdown)
}

func TestBilledLinesKeepPreviewOrder(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, "u-aaron", "aaron@lab.test", "aaron", true)
	aaron := domain.Actor{ID: "u-aaron", Role: domain.RoleMember, IsActive: true}
	_, cola := monthOfTakes(t, f)
	f.clock.Set(time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC))
	f.consume(t, aaron, cola.ID, 1)
	f.clock.Set(time.Date(2026, 4, 3, 10, 0, 0, 0, time.UTC))

	st, err := f.svc.CreateSettlement(f.ctx, f.admin, CreateSettlementInput{Month: "2026-03"})
	require.NoError(t, err)
	want := []string{"u-aaron", "u-alice", "u-bob"}

	preview, err := f.svc.PreviewSettlement(f.ctx, f.admin, st.ID)
	require.NoError(t, err)
	var got []string
	for _, line := range preview.Lines {
		got = append(got, line.UserID)
	}
	require.Equal(t, want, got)

	billed, err := f.svc.BillSettlement(f.ctx, f.admin, st.ID)
	require.NoError(t, err)
	got = got[:0]
	for _, line := range billed.Lines {
		got = append(got, line.UserID)
	}
	assert.Equal(t, want, got)

	detail, err := f.svc.GetSettlement(f.ctx, f.admin, st.ID)
	require.NoError(t, err)
	got = got[:0]
	for _, line := range detail.Lines {
		got = append(got, line.UserID)
	}
	assert.Equal(t, want, got)

	export, err := f.svc.ExportSettlement(f.ctx, f.admin, st.ID)
	require.NoError(t, err)
	assert.Equal(t, ExportSourceFrozen, export.Source)
	got = got[:0]
	for _, line := range export.Lines {
		got = append(got, line.UserID)
	}
	assert.Equal(t, want, got)
}

func TestBilledBreakdownSurvivesLaterReversal(t *testing.T) {
	f := newFixture(t)
	monthOfTakes(t, f)

	st, err := f.svc.CreateSettlement(f.ctx, f.admin, CreateSettlementInput{Month: "2026-03"})
	require.NoError(t, err)
	_, err = f.svc.BillSettlement(f.ctx, f.admin, st.ID)
	require.NoError(t, err)

	frozen := func() map[string]string {
		out := map[string]string{}
		require.NoError(t, f.store.Read(f.ctx, func(q repository.Queries) error {
			lines, err := q.ListSettlementLines(f.ctx, st.ID)
			for _, line := range lines {
				out[line.UserID] = string(line.Breakdown)
			}
			return err
		}))
		return out
	}
	before := frozen()
	require.Len(t, before, 2)

	// Bob's April take sits outside the billed period and stays reversible.
	takes, err := f.svc.ListConsumptions(f.ctx, f.bob, repository.ConsumptionFilter{})
	require.NoError(t, err)
	var open *domain.ConsumptionDetail
	for i := range takes {
		if takes[i].SettlementID == nil {
			open = &takes[i]
		}
	}
	require.NotNil(t, open)
	_, err = f.svc.ReverseConsumption(f.ctx, f.bob, open.ID, "changed my mind")
	require.NoError(t, err)

	assert.Equal(t, before, frozen())
}

func TestSettlementPeriodsAreExclusive(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.CreateSettlement(f.ctx, f.admin, CreateSettlementInput{Month: "2026-02"})
	require.NoError(t, err)

	_, err = f.svc.CreateSettlement(f.ctx, f.admin, CreateSettlementInput{Month: "2026-02"})
	assertCode(t, err, domain.CodeConflict)

	_, err = f.svc.CreateSettlement(f.ctx, f.admin, CreateSettlementInput{Month: "Feb 2026"})
	assertCode(t, err, domain.CodeValidation)

	voided, err := f.svc.VoidSettlement(f.ctx, f.admin, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementVoid, voided.Status)

	again, err := f.svc.CreateSettlement(f.ctx, f.admin, CreateSettlementInput{Month: "2026-02"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Number)

	_, err = f.svc.CreateSettlement(f.ctx, f.alice, CreateSettlementInput{Month: "2026-05"})
	assertCode(t, err, domain.CodeForbidden)

	list, err := f.svc.ListSettlements(f.ctx, f.admin, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestPaymentToggle(t *testing.T) {
	f := newFixture(t)
	monthOfTakes(t, f)
	st, err := f.svc.CreateSettlement(f.ctx, f.admin, CreateSettlementInput{Month: "2026-03"})
	require.NoError(t, err)

	_, err = f.svc.SetPaymentStatus(f.ctx, f.admin, st.ID, PaymentInput{UserID: "u-alice", Paid: true})
	assertCode(t, err, domain.CodeInvalidStatus)

	_, err = f.svc.BillSettlement(f.ctx, f.admin, st.ID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		line, err := f.svc.SetPaymentStatus(f.ctx, f.admin, st.ID, PaymentInput{UserID: "u-alice", Paid: true, Reference: "tx-1"})
		require.NoError(t, err)
		assert.Equal(t, int64(1100), line.PaidCents)
	}
	detail, err := f.svc.GetSettlement(f.ctx, f.admin, st.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1100), detail.Lines[0].PaidCents)

	line, err := f.svc.SetPaymentStatus(f.ctx, f.admin, st.ID, PaymentInput{UserID: "u-alice", Paid: false})
	require.NoError(t, err)
	assert.False(t, line.IsPaid)
	assert.Zero(t, line.PaidCents)

	_, err = f.svc.SetPaymentStatus(f.ctx, f.admin, st.ID, PaymentInput{UserID: "u-admin", Paid: true})
	assertCode(t, err, domain.CodeNotFound)

	toggles := 0
	for _, action := range f.auditActions(t) {
		if action == domain.AuditPaymentMarked || action == domain.AuditPaymentUnmarked {
			toggles++
		}
	}
	assert.Equal(t, 3, toggles)
}

func TestEmptySettlementFinalizesWithoutLedgerEntry(t *testing.T) {
	f := newFixture(t)

	st, err := f.svc.CreateSettlement(f.ctx, f.admin, CreateSettlementInput{Month: "2026-01"})
	require.NoError(t, err)
	billed, err := f.svc.BillSettlement(f.ctx, f.admin, st.ID)
	require.NoError(t, err)
	assert.Empty(t, billed.Lines)

	final, err := f.svc.FinalizeSettlement(f.ctx, f.admin, st.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementFinalized, final.Status)

	entries, err := f.svc.ListLedgerEntries(f.ctx, f.admin, repository.LedgerFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExportDraftIsLive(t *testing.T) {
	f := newFixture(t)
	monthOfTakes(t, f)
	st, err := f.svc.CreateSettlement(f.ctx, f.admin, CreateSettlementInput{Month: "2026-03"})
	require.NoError(t, err)

	export, err := f.svc.ExportSettlement(f.ctx, f.admin, st.ID)
	require.NoError(t, err)
	assert.Equal(t, ExportSourceLive, export.Source)
	assert.Len(t, export.Lines, 2)

	_, err = f.svc.ExportSettlement(f.ctx, f.admin, "missing")
	assertCode(t, err, domain.CodeNotFound)
}
