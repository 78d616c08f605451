package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/redisclient"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Role is a user's capability level.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// RoleStore is the source of truth for roles.
type RoleStore interface {
	GetUserRole(ctx context.Context, userID string) (string, error)
}

// Resolver answers role questions for user ids, independent of the identity
// provider. Lookups are cached when a cache is configured.
type Resolver struct {
	store  RoleStore
	cache  *redisclient.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewResolver creates a role resolver. cache may be nil.
func NewResolver(store RoleStore, cache *redisclient.Client, ttl time.Duration) *Resolver {
	return &Resolver{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		logger: util.GetLogger().Named("auth"),
	}
}

// RoleOf returns the role of userID. Users without a stored role, including
// guests, are customers.
func (r *Resolver) RoleOf(ctx context.Context, userID string) (Role, error) {
	if userID == "" {
		return RoleCustomer, nil
	}

	var cached Role
	if r.cache.GetJSON(ctx, redisclient.RoleKey(userID), &cached) {
		return cached, nil
	}

	raw, err := r.store.GetUserRole(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("failed to look up role: %w", err)
	}

	role := RoleCustomer
	if Role(raw) == RoleAdmin {
		role = RoleAdmin
	}

	r.cache.SetJSON(ctx, redisclient.RoleKey(userID), role, r.ttl)
	return role, nil
}

// IsAdmin reports whether userID holds the admin role.
func (r *Resolver) IsAdmin(ctx context.Context, userID string) (bool, error) {
	role, err := r.RoleOf(ctx, userID)
	if err != nil {
		return false, err
	}
	return role == RoleAdmin, nil
}
