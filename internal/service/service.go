package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"labcafe/internal/domain"
	"labcafe/internal/money"
	"labcafe/internal/repository"
	"labcafe/internal/validation"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Service struct {
	store           repository.Store
	log             logrus.FieldLogger
	now             func() time.Time
	newID           func() string
	defaultCurrency string
}

type Option func(*Service)

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) { s.log = log }
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithDefaultCurrency(code string) Option {
	return func(s *Service) { s.defaultCurrency = money.NormalizeCurrency(code) }
}

func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:           store,
		log:             logrus.StandardLogger(),
		now:             time.Now,
		newID:           uuid.NewString,
		defaultCurrency: money.DefaultCurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// timestamp is the current instant at the precision the database keeps.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) audit(
	ctx context.Context,
	q repository.Queries,
	actor domain.Actor,
	action, entityType, entityID string,
	diff map[string]any,
	at time.Time,
) error {
	raw, err := json.Marshal(diff)
	if err != nil {
		return fmt.Errorf("encode audit diff: %w", err)
	}
	return q.InsertAudit(ctx, domain.AuditEntry{
		ID:         s.newID(),
		ActorID:    actor.ID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Diff:       raw,
		CreatedAt:  at,
	})
}

func requireActive(actor domain.Actor) error {
	if actor.ID == "" {
		return domain.ErrUnauthenticated
	}
	if !actor.IsActive {
		return domain.ErrAccountInactive
	}
	return nil
}

func requireAdmin(actor domain.Actor) error {
	if err := requireActive(actor); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return domain.ErrForbidden
	}
	return nil
}

// mapStoreErr turns repository sentinels into the caller-facing error.
func mapStoreErr(err error, notFound *domain.Error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return notFound
	case errors.Is(err, repository.ErrConflict):
		return domain.ErrConflict
	default:
		return err
	}
}

// ResolveActor loads the user behind an authenticated identity.
func (s *Service) ResolveActor(ctx context.Context, userID string) (domain.User, error) {
	var user domain.User
	err := s.store.Read(ctx, func(q repository.Queries) error {
		var err error
		user, err = q.GetUser(ctx, userID)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return domain.User{}, domain.ErrUnauthenticated
	}
	return user, err
}

func (s *Service) Me(ctx context.Context, actor domain.Actor) (domain.User, error) {
	if err := requireActive(actor); err != nil {
		return domain.User{}, err
	}
	var user domain.User
	err := s.store.Read(ctx, func(q repository.Queries) error {
		var err error
		user, err = q.GetUser(ctx, actor.ID)
		return err
	})
	return user, mapStoreErr(err, domain.ErrUserNotFound)
}

type UserInput struct {
	ID          string
	Email       string
	DisplayName string
	Role        domain.Role
	IsActive    bool
}

func (in UserInput) Validate() validation.Violations {
	v := validation.Violations{}
	validation.Required("id", in.ID, v)
	validation.Required("email", in.Email, v)
	validation.Required("display_name", in.DisplayName, v)
	validation.NoControlChars("display_name", in.DisplayName, v)
	validation.MaxLen("display_name", in.DisplayName, 120, v)
	if in.Email != "" && !strings.Contains(in.Email, "@") {
		v["email"] = "invalid_email"
	}
	validation.OneOf("role", string(in.Role), []string{string(domain.RoleAdmin), string(domain.RoleMember)}, v)
	return v
}

// SyncUser mirrors a user record from the identity provider.
func (s *Service) SyncUser(ctx context.Context, actor domain.Actor, in UserInput) (domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.User{}, err
	}
	return s.upsertUser(ctx, in)
}

// EnsureAdmin creates or refreshes the bootstrap administrator.
func (s *Service) EnsureAdmin(ctx context.Context, id, email, displayName string) error {
	_, err := s.upsertUser(ctx, UserInput{
		ID:          id,
		Email:       email,
		DisplayName: displayName,
		Role:        domain.RoleAdmin,
		IsActive:    true,
	})
	return err
}

func (s *Service) upsertUser(ctx context.Context, in UserInput) (domain.User, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if err := in.Validate().Err(); err != nil {
		return domain.User{}, err
	}
	user := domain.User{
		ID:          in.ID,
		Email:       in.Email,
		DisplayName: in.DisplayName,
		Role:        in.Role,
		IsActive:    in.IsActive,
		CreatedAt:   s.timestamp(),
	}
	err := s.store.InTx(ctx, func(q repository.Queries) error {
		if err := q.UpsertUser(ctx, user); err != nil {
			return err
		}
		stored, err := q.GetUser(ctx, user.ID)
		user = stored
		return err
	})
	if err != nil {
		return domain.User{}, mapStoreErr(err, domain.ErrUserNotFound)
	}
	return user, nil
}
