package service

import (
	"context"
	"strings"
	"time"

	"labcafe/internal/analytics"
	"labcafe/internal/domain"
	"labcafe/internal/money"
	"labcafe/internal/repository"
	"labcafe/internal/validation"
)

type LedgerEntryInput struct {
	Description string
	AmountCents int64
	Category    domain.LedgerCategory
	Timestamp   *time.Time
	UserID      *string
}

func (in LedgerEntryInput) Validate() validation.Violations {
	v := validation.Violations{}
	validation.Required("description", in.Description, v)
	validation.NoControlChars("description", in.Description, v)
	validation.MaxLen("description", in.Description, 500, v)
	validation.NonZero("amount_cents", in.AmountCents, v)
	validation.RangeInt64("amount_cents", in.AmountCents, -money.MaxCents, money.MaxCents, v)
	categories := make([]string, 0, len(domain.LedgerCategories))
	for _, c := range domain.LedgerCategories {
		categories = append(categories, string(c))
	}
	validation.OneOf("category", string(in.Category), categories, v)
	return v
}

// appendLedger writes one entry, caching the running balance it produces.
// The cache is informational; balances are always recomputed from the sum.
func (s *Service) appendLedger(ctx context.Context, q repository.Queries, entry domain.LedgerEntry) (domain.LedgerEntry, error) {
	balance, err := q.LedgerBalance(ctx, nil)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	after := balance + entry.AmountCents
	entry.ID = s.newID()
	entry.BalanceAfterCents = &after
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.timestamp()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = entry.CreatedAt
	}
	if err := q.InsertLedgerEntry(ctx, entry); err != nil {
		return domain.LedgerEntry{}, err
	}
	return entry, nil
}

// CreateLedgerEntry records a manual inflow or outflow.
func (s *Service) CreateLedgerEntry(ctx context.Context, actor domain.Actor, in LedgerEntryInput) (domain.LedgerEntry, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.LedgerEntry{}, err
	}
	in.Description = strings.TrimSpace(in.Description)
	in.Category = domain.LedgerCategory(strings.ToUpper(strings.TrimSpace(string(in.Category))))
	if err := in.Validate().Err(); err != nil {
		return domain.LedgerEntry{}, err
	}

	var created domain.LedgerEntry
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		now := s.timestamp()
		if in.UserID != nil {
			if _, err := q.GetUser(ctx, *in.UserID); err != nil {
				return mapStoreErr(err, domain.ErrUserNotFound)
			}
		}
		entry := domain.LedgerEntry{
			Timestamp:   now,
			Description: in.Description,
			AmountCents: in.AmountCents,
			Category:    in.Category,
			UserID:      in.UserID,
			CreatedBy:   actor.ID,
			CreatedAt:   now,
		}
		if in.Timestamp != nil {
			entry.Timestamp = in.Timestamp.UTC()
		}
		var err error
		if created, err = s.appendLedger(ctx, q, entry); err != nil {
			return err
		}
		return s.audit(ctx, q, actor, domain.AuditLedgerEntryCreated, domain.EntityLedgerEntry, created.ID, map[string]any{
			"description":  created.Description,
			"amount_cents": created.AmountCents,
			"category":     created.Category,
			"timestamp":    created.Timestamp,
		}, now)
	})
	if err != nil {
		return domain.LedgerEntry{}, mapStoreErr(err, domain.ErrNotFound)
	}
	return created, nil
}

func (s *Service) ListLedgerEntries(ctx context.Context, actor domain.Actor, filter repository.LedgerFilter) ([]domain.LedgerEntry, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, domain.ErrInvalidRange
	}
	var entries []domain.LedgerEntry
	err := s.store.Read(ctx, func(q repository.Queries) error {
		var err error
		entries, err = q.ListLedgerEntries(ctx, filter)
		return err
	})
	return entries, err
}

// CurrentBalance is the sum of every ledger entry.
func (s *Service) CurrentBalance(ctx context.Context, actor domain.Actor) (int64, error) {
	if err := requireAdmin(actor); err != nil {
		return 0, err
	}
	var balance int64
	err := s.store.Read(ctx, func(q repository.Queries) error {
		var err error
		balance, err = q.LedgerBalance(ctx, nil)
		return err
	})
	return balance, err
}

type LedgerSummary struct {
	From                 string            `json:"from"`
	To                   string            `json:"to"`
	StartingBalanceCents int64             `json:"starting_balance_cents"`
	CurrentBalanceCents  int64             `json:"current_balance_cents"`
	Points               []domain.DayPoint `json:"points"`
}

// LedgerSummary charts the closing balance of each of the last days UTC days, today included.
func (s *Service) LedgerSummary(ctx context.Context, actor domain.Actor, days int) (LedgerSummary, error) {
	if err := requireAdmin(actor); err != nil {
		return LedgerSummary{}, err
	}
	v := validation.Violations{}
	validation.RangeInt("days", days, 1, analytics.MaxDays, v)
	if err := v.Err(); err != nil {
		return LedgerSummary{}, err
	}

	from, to := analytics.Window(s.now(), days)
	var summary LedgerSummary
	err := s.store.Read(ctx, func(q repository.Queries) error {
		starting, err := q.LedgerBalance(ctx, &from)
		if err != nil {
			return err
		}
		current, err := q.LedgerBalance(ctx, nil)
		if err != nil {
			return err
		}
		entries, err := q.LedgerEntriesSince(ctx, from)
		if err != nil {
			return err
		}
		points, err := analytics.LedgerSeries(starting, entries, from, to)
		if err != nil {
			return err
		}
		summary = LedgerSummary{
			From:                 from.Format("2006-01-02"),
			To:                   to.Format("2006-01-02"),
			StartingBalanceCents: starting,
			CurrentBalanceCents:  current,
			Points:               points,
		}
		return nil
	})
	return summary, err
}
