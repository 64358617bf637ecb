// Package tenant maps users to church partitions and holds the
// partition-scoped authorization pieces.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tesouraria/internal/store"
)

// Tenant is one named church partition. The set of partitions is fixed
// at startup; entries never cross partitions.
type Tenant struct {
	ID   string
	Name string
}

var (
	// ErrNotFound means the user belongs to no partition. Callers treat
	// this as the normal "no data" state, never as a fatal error.
	ErrNotFound = errors.New("tenant: user has no membership")

	// ErrAmbiguousMembership means the user was found in more than one
	// partition. This is an invariant violation that must be surfaced,
	// not silently resolved by lookup order.
	ErrAmbiguousMembership = errors.New("tenant: user belongs to multiple partitions")

	// ErrUnknownTenant means the target partition is not in the
	// configured set.
	ErrUnknownTenant = errors.New("tenant: unknown partition")
)

// Store paths. Membership and the admin flag are leaf values; entries
// are a collection per partition.
func memberPath(tenantID, userID string) string {
	return "tenants/" + tenantID + "/members/" + userID
}

func adminPath(userID string) string {
	return "admins/" + userID
}

func secretPath(tenantID string) string {
	return "tenants/" + tenantID + "/settings/deletePassword"
}

// EntriesPath is the collection holding a partition's ledger entries.
func EntriesPath(tenantID string) string {
	return "tenants/" + tenantID + "/entries"
}

// Resolver looks up tenant membership and the global administrator
// flag. Lookup failures degrade to absence: resolution fails empty,
// privilege checks fail closed.
type Resolver struct {
	store   store.Store
	tenants []Tenant
}

func NewResolver(st store.Store, tenants []Tenant) *Resolver {
	return &Resolver{store: st, tenants: tenants}
}

// Tenants returns the configured partition set.
func (r *Resolver) Tenants() []Tenant {
	return r.tenants
}

// Lookup returns the partition with the given id.
func (r *Resolver) Lookup(tenantID string) (Tenant, bool) {
	for _, t := range r.tenants {
		if t.ID == tenantID {
			return t, true
		}
	}
	return Tenant{}, false
}

// Resolve finds the partition the user belongs to. Every partition is
// checked; membership in more than one is reported as
// ErrAmbiguousMembership rather than picking one by scan order.
func (r *Resolver) Resolve(ctx context.Context, userID string) (Tenant, error) {
	var matches []Tenant
	for _, t := range r.tenants {
		_, err := r.store.ReadOnce(ctx, memberPath(t.ID, userID))
		switch {
		case err == nil:
			matches = append(matches, t)
		case errors.Is(err, store.ErrNotFound):
			// normal absence
		default:
			slog.WarnContext(ctx, "Membership lookup failed, treating as absent",
				"tenant", t.ID, "user", userID, "error", err)
		}
	}

	switch len(matches) {
	case 0:
		return Tenant{}, ErrNotFound
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, t := range matches {
			ids[i] = t.ID
		}
		return Tenant{}, fmt.Errorf("%w: %v", ErrAmbiguousMembership, ids)
	}
}

// IsAdministrator checks the global administrator registry. Absence and
// lookup failures both report false; the flag gates tenant switching
// only, so failing closed is the safe default.
func (r *Resolver) IsAdministrator(ctx context.Context, userID string) bool {
	v, err := r.store.ReadOnce(ctx, adminPath(userID))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "Administrator lookup failed, failing closed",
				"user", userID, "error", err)
		}
		return false
	}
	flag, ok := v.(bool)
	return ok && flag
}

// SetAdministrator grants or revokes the global administrator flag.
func (r *Resolver) SetAdministrator(ctx context.Context, userID string, admin bool) error {
	if !admin {
		return r.store.Remove(ctx, adminPath(userID))
	}
	return r.store.Put(ctx, adminPath(userID), true)
}

// Assign moves the user into newTenantID. Existing memberships are
// removed first, then the new one is written. The two steps are not
// atomic: a failure after removal leaves the user in no partition, a
// detectable orphaned state (Resolve returns ErrNotFound) rather than a
// silent duplicate. The caller must reload any session state derived
// from tenant identity afterwards.
func (r *Resolver) Assign(ctx context.Context, userID, newTenantID string) error {
	if _, ok := r.Lookup(newTenantID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTenant, newTenantID)
	}

	for _, t := range r.tenants {
		if t.ID == newTenantID {
			continue
		}
		path := memberPath(t.ID, userID)
		if _, err := r.store.ReadOnce(ctx, path); errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err := r.store.Remove(ctx, path); err != nil {
			return fmt.Errorf("remove membership in %s: %w", t.ID, err)
		}
	}

	if err := r.store.Put(ctx, memberPath(newTenantID, userID), true); err != nil {
		return fmt.Errorf("write membership in %s (user is now orphaned): %w", newTenantID, err)
	}

	slog.InfoContext(ctx, "Tenant membership assigned", "user", userID, "tenant", newTenantID)
	return nil
}
