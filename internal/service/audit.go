package service

import (
	"context"

	"labcafe/internal/domain"
	"labcafe/internal/repository"
)

func (s *Service) ListAudit(ctx context.Context, actor domain.Actor, search string, limit, offset int) ([]domain.AuditEntry, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var entries []domain.AuditEntry
	err := s.store.Read(ctx, func(q repository.Queries) error {
		var err error
		entries, err = q.ListAudit(ctx, search, limit, offset)
		return err
	})
	return entries, err
}

func (s *Service) CountAudit(ctx context.Context, actor domain.Actor, search string) (int, error) {
	if err := requireAdmin(actor); err != nil {
		return 0, err
	}
	var count int
	err := s.store.Read(ctx, func(q repository.Queries) error {
		var err error
		count, err = q.CountAudit(ctx, search)
		return err
	})
	return count, err
}
