package analytics

import (
	"testing"
	"time"

	"labcafe/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(day, hour int) time.Time {
	return time.Date(2025, 3, day, hour, 0, 0, 0, time.UTC)
}

func movement(typ domain.MovementType, qty int, when time.Time) domain.StockMovement {
	return domain.StockMovement{Type: typ, Quantity: qty, CreatedAt: when}
}

func TestStockSeriesTiesOutWithCurrentStock(t *testing.T) {
	movements := []domain.StockMovement{
		movement(domain.MovementRestock, 10, at(1, 9)),
		movement(domain.MovementConsume, 2, at(3, 10)),
		movement(domain.MovementConsume, 1, at(3, 15)),
		movement(domain.MovementAdjust, 1, at(4, 8)),
		movement(domain.MovementWriteOff, 3, at(5, 12)),
	}
	current := 10 - 2 - 1 + 1 - 3

	points, err := StockSeries(current, movements, at(2, 0), at(5, 0))
	require.NoError(t, err)
	assert.Equal(t, []domain.DayPoint{
		{Date: "2025-03-02", Value: 10},
		{Date: "2025-03-03", Value: 7},
		{Date: "2025-03-04", Value: 8},
		{Date: "2025-03-05", Value: 5},
	}, points)
	assert.Equal(t, int64(current), points[len(points)-1].Value)
}

func TestStockSeriesWindowBeforeLaterMovements(t *testing.T) {
	movements := []domain.StockMovement{
		movement(domain.MovementRestock, 5, at(1, 9)),
		movement(domain.MovementConsume, 4, at(10, 9)),
	}
	points, err := StockSeries(1, movements, at(1, 0), at(2, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(5), points[0].Value)
	assert.Equal(t, int64(5), points[1].Value)
}

func TestStockAt(t *testing.T) {
	movements := []domain.StockMovement{
		movement(domain.MovementRestock, 5, at(1, 9)),
		movement(domain.MovementConsume, 4, at(10, 9)),
	}
	assert.Equal(t, 0, StockAt(1, movements, at(1, 8)))
	assert.Equal(t, 5, StockAt(1, movements, at(5, 0)))
	assert.Equal(t, 1, StockAt(1, movements, at(11, 0)))
}

func TestSeriesRejectInvertedRange(t *testing.T) {
	_, err := StockSeries(0, nil, at(5, 0), at(4, 0))
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = LedgerSeries(0, nil, at(5, 0), at(4, 0))
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}

func TestCheckRangeCapsLength(t *testing.T) {
	from := time.Date(2025, 1, 1, 15, 0, 0, 0, time.UTC)

	gotFrom, gotTo, err := CheckRange(from, from.AddDate(0, 0, MaxDays-1))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), gotFrom)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), gotTo)

	_, _, err = CheckRange(from, from.AddDate(0, 0, MaxDays))
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = StockSeries(0, nil, time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}

func TestLedgerSeriesFlatDaysAndFinalBalance(t *testing.T) {
	entries := []domain.LedgerEntry{
		{AmountCents: 500, Timestamp: at(2, 10)},
		{AmountCents: -700, Timestamp: at(2, 18)},
		{AmountCents: 700, Timestamp: at(4, 23)},
	}
	points, err := LedgerSeries(1000, entries, at(1, 0), at(5, 0))
	require.NoError(t, err)
	assert.Equal(t, []domain.DayPoint{
		{Date: "2025-03-01", Value: 1000},
		{Date: "2025-03-02", Value: 800},
		{Date: "2025-03-03", Value: 800},
		{Date: "2025-03-04", Value: 1500},
		{Date: "2025-03-05", Value: 1500},
	}, points)
}

func TestWindow(t *testing.T) {
	from, to := Window(at(10, 15), 7)
	assert.Equal(t, at(4, 0), from)
	assert.Equal(t, at(10, 0), to)

	from, to = Window(at(10, 15), 1)
	assert.Equal(t, from, to)
}
