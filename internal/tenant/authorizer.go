package tenant

import (
	"context"
	"errors"
	"log/slog"

	"tesouraria/internal/store"
)

// DeleteAuthorizer decides whether a deletion may proceed. Pluggable so
// the shared-password default can be swapped for per-user authorization
// without touching the ledger logic.
type DeleteAuthorizer interface {
	Authorize(ctx context.Context, tenantID, secret string) bool
}

// SharedSecretAuthorizer compares the supplied secret against the one
// stored at the partition's well-known path. A missing secret or a
// failed lookup denies the deletion.
type SharedSecretAuthorizer struct {
	store store.Store
}

func NewSharedSecretAuthorizer(st store.Store) *SharedSecretAuthorizer {
	return &SharedSecretAuthorizer{store: st}
}

func (a *SharedSecretAuthorizer) Authorize(ctx context.Context, tenantID, secret string) bool {
	v, err := a.store.ReadOnce(ctx, secretPath(tenantID))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "Deletion secret lookup failed, denying",
				"tenant", tenantID, "error", err)
		}
		return false
	}
	stored, ok := v.(string)
	return ok && stored != "" && stored == secret
}

// SetSecret stores the partition's deletion password.
func (a *SharedSecretAuthorizer) SetSecret(ctx context.Context, tenantID, secret string) error {
	return a.store.Put(ctx, secretPath(tenantID), secret)
}
