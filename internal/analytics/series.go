// Package analytics builds per-day chart series from append-only journals.
package analytics

import (
	"strconv"
	"time"

	"labcafe/internal/domain"
)

const dayLayout = "2006-01-02"

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Window returns the first and last day of a trailing window of n days ending on the day of now.
func Window(now time.Time, days int) (time.Time, time.Time) {
	last := DayStart(now)
	return last.AddDate(0, 0, -(days - 1)), last
}

// MaxDays bounds the length of any series.
const MaxDays = 366

// CheckRange truncates both ends to UTC days and rejects inverted or overlong ranges.
func CheckRange(from, to time.Time) (time.Time, time.Time, error) {
	from, to = DayStart(from), DayStart(to)
	if to.Before(from) {
		return time.Time{}, time.Time{}, domain.ErrInvalidRange
	}
	if to.After(from.AddDate(0, 0, MaxDays-1)) {
		return time.Time{}, time.Time{}, domain.ErrInvalidRange.WithDetails(map[string]string{"max_days": strconv.Itoa(MaxDays)})
	}
	return from, to, nil
}

// StockAt reconstructs the stock level at instant t by undoing every movement after it.
func StockAt(currentStock int, movements []domain.StockMovement, t time.Time) int {
	stock := currentStock
	for _, m := range movements {
		if m.CreatedAt.After(t) {
			stock -= m.Delta()
		}
	}
	return stock
}

// StockSeries returns the closing stock of every UTC day in [from, to].
// When to is today and no movement is newer than now, the last value equals currentStock.
func StockSeries(currentStock int, movements []domain.StockMovement, from, to time.Time) ([]domain.DayPoint, error) {
	from, to, err := CheckRange(from, to)
	if err != nil {
		return nil, err
	}

	starting := currentStock
	daily := make(map[string]int)
	for _, m := range movements {
		if !m.CreatedAt.Before(from) {
			starting -= m.Delta()
			daily[m.CreatedAt.UTC().Format(dayLayout)] += m.Delta()
		}
	}

	points := make([]domain.DayPoint, 0, int(to.Sub(from).Hours()/24)+1)
	running := starting
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		label := day.Format(dayLayout)
		running += daily[label]
		points = append(points, domain.DayPoint{Date: label, Value: int64(running)})
	}
	return points, nil
}

// LedgerSeries returns the closing balance of every UTC day in [from, to],
// seeded with the balance of everything before from.
func LedgerSeries(startingBalance int64, entries []domain.LedgerEntry, from, to time.Time) ([]domain.DayPoint, error) {
	from, to, err := CheckRange(from, to)
	if err != nil {
		return nil, err
	}

	daily := make(map[string]int64)
	for _, e := range entries {
		if e.Timestamp.Before(from) {
			continue
		}
		daily[e.Timestamp.UTC().Format(dayLayout)] += e.AmountCents
	}

	points := make([]domain.DayPoint, 0, int(to.Sub(from).Hours()/24)+1)
	running := startingBalance
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		label := day.Format(dayLayout)
		running += daily[label]
		points = append(points, domain.DayPoint{Date: label, Value: running})
	}
	return points, nil
}
