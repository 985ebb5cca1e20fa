// Package auth verifies bearer tokens issued by the lab's identity
// provider and resolves them to an actor.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"labcafe/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// UserResolver loads the user behind a token subject.
type UserResolver interface {
	ResolveActor(ctx context.Context, userID string) (domain.User, error)
}

type Authenticator struct {
	secret []byte
	users  UserResolver
	now    func() time.Time
}

func New(secret string, users UserResolver) *Authenticator {
	return &Authenticator{secret: []byte(secret), users: users, now: time.Now}
}

// Issue signs an HS256 token for userID. The server never logs anyone in;
// this exists for operators and tests.
func (a *Authenticator) Issue(userID string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Subject verifies the token and returns its sub claim.
func (a *Authenticator) Subject(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !parsed.Valid {
		return "", domain.ErrUnauthenticated
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", domain.ErrUnauthenticated
	}
	return claims.Subject, nil
}

// Authenticate turns an Authorization header into an active actor.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (domain.Actor, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return domain.Actor{}, domain.ErrUnauthenticated
	}
	subject, err := a.Subject(strings.TrimSpace(token))
	if err != nil {
		return domain.Actor{}, err
	}
	user, err := a.users.ResolveActor(ctx, subject)
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return domain.Actor{}, de
		}
		return domain.Actor{}, fmt.Errorf("resolve actor %s: %w", subject, err)
	}
	if !user.IsActive {
		return domain.Actor{}, domain.ErrAccountInactive
	}
	return domain.Actor{ID: user.ID, Role: user.Role, IsActive: user.IsActive}, nil
}

type ctxKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

// ActorFromContext returns the zero Actor when the request was not authenticated.
func ActorFromContext(ctx context.Context) domain.Actor {
	actor, _ := ctx.Value(ctxKey{}).(domain.Actor)
	return actor
}
