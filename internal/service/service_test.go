package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"labcafe/internal/domain"
	"labcafe/internal/repository/memory"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	ctx   context.Context
	svc   *Service
	store *memory.Store
	clock *testClock
	admin domain.Actor
	alice domain.Actor
	bob   domain.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	clock := &testClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	store := memory.New()
	svc := New(store, WithLogger(log), WithClock(clock.Now))
	f := &fixture{
		ctx:   context.Background(),
		svc:   svc,
		store: store,
		clock: clock,
		admin: domain.Actor{ID: "u-admin", Role: domain.RoleAdmin, IsActive: true},
		alice: domain.Actor{ID: "u-alice", Role: domain.RoleMember, IsActive: true},
		bob:   domain.Actor{ID: "u-bob", Role: domain.RoleMember, IsActive: true},
	}
	require.NoError(t, svc.EnsureAdmin(f.ctx, "u-admin", "admin@lab.test", "Admin"))
	f.addMember(t, "u-alice", "alice@lab.test", "Alice", true)
	f.addMember(t, "u-bob", "bob@lab.test", "Bob", true)
	return f
}

func (f *fixture) addMember(t *testing.T, id, email, name string, active bool) {
	t.Helper()
	_, err := f.svc.SyncUser(f.ctx, f.admin, UserInput{
		ID: id, Email: email, DisplayName: name, Role: domain.RoleMember, IsActive: active,
	})
	require.NoError(t, err)
}

func (f *fixture) item(t *testing.T, name string, price int64, stock int) domain.Item {
	t.Helper()
	item, err := f.svc.CreateItem(f.ctx, f.admin, CreateItemInput{Name: name, PriceCents: price})
	require.NoError(t, err)
	if stock > 0 {
		item, err = f.svc.Restock(f.ctx, f.admin, item.ID, RestockInput{Quantity: stock})
		require.NoError(t, err)
	}
	return item
}

func (f *fixture) consume(t *testing.T, actor domain.Actor, itemID string, qty int) domain.Consumption {
	t.Helper()
	res, err := f.svc.RecordConsumption(f.ctx, actor, ConsumeInput{ItemID: itemID, Quantity: qty})
	require.NoError(t, err)
	return res.Consumption
}

func (f *fixture) auditActions(t *testing.T) []string {
	t.Helper()
	entries, err := f.svc.ListAudit(f.ctx, f.admin, "", 1000, 0)
	require.NoError(t, err)
	actions := make([]string, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	return actions
}

func assertCode(t *testing.T, err error, code domain.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	de, ok := domain.AsError(err)
	require.True(t, ok, "expected a domain error, got %v", err)
	assert.Equal(t, code, de.Code)
}

func TestResolveActor(t *testing.T) {
	f := newFixture(t)

	user, err := f.svc.ResolveActor(f.ctx, "u-alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@lab.test", user.Email)
	assert.Equal(t, domain.RoleMember, user.Role)

	_, err = f.svc.ResolveActor(f.ctx, "u-nobody")
	assertCode(t, err, domain.CodeUnauthenticated)
}

func TestSyncUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SyncUser(f.ctx, f.alice, UserInput{ID: "u-x", Email: "x@lab.test", DisplayName: "X", Role: domain.RoleMember})
	assertCode(t, err, domain.CodeForbidden)

	_, err = f.svc.SyncUser(f.ctx, f.admin, UserInput{ID: "u-x", Email: "not-an-email", DisplayName: "X", Role: domain.RoleMember})
	assertCode(t, err, domain.CodeValidation)

	_, err = f.svc.SyncUser(f.ctx, f.admin, UserInput{ID: "u-x", Email: "ALICE@lab.test", DisplayName: "X", Role: domain.RoleMember})
	assertCode(t, err, domain.CodeConflict)

	user, err := f.svc.SyncUser(f.ctx, f.admin, UserInput{ID: "u-alice", Email: " Alice@Lab.test ", DisplayName: "Alice B", Role: domain.RoleMember})
	require.NoError(t, err)
	assert.Equal(t, "alice@lab.test", user.Email)
	assert.Equal(t, "Alice B", user.DisplayName)
	assert.False(t, user.IsActive)
}

func TestInactiveActorIsRejected(t *testing.T) {
	f := newFixture(t)
	item := f.item(t, "Cola", 150, 5)

	inactive := domain.Actor{ID: "u-alice", Role: domain.RoleMember, IsActive: false}
	_, err := f.svc.RecordConsumption(f.ctx, inactive, ConsumeInput{ItemID: item.ID, Quantity: 1})
	assertCode(t, err, domain.CodeAccountInactive)

	_, err = f.svc.RecordConsumption(f.ctx, domain.Actor{}, ConsumeInput{ItemID: item.ID, Quantity: 1})
	assertCode(t, err, domain.CodeUnauthenticated)
}
