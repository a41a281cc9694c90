package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"talentcore/internal/util"
	"talentcore/pkg/domain"
	"talentcore/pkg/store"
)

// ReferenceResolver resolves loosely-typed organizational references
// (area/position) captured as free text.
//
// The contract is at-least-once creation: the lookup and the insert are not
// atomic, so two concurrent resolutions of the same new name may create two
// rows. Duplicates are accepted; lookups prefer the oldest row.
type ReferenceResolver struct {
	store store.Store
}

// NewReferenceResolver wires the resolver.
func NewReferenceResolver(st store.Store) *ReferenceResolver {
	return &ReferenceResolver{store: st}
}

// ResolveOrCreate looks up a reference by case-insensitive name and creates
// it when absent, returning the reference id either way.
func (r *ReferenceResolver) ResolveOrCreate(ctx context.Context, kind domain.ReferenceKind, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%s name is required", kind)
	}
	ref, found, err := r.store.FindReference(ctx, kind, name)
	if err != nil {
		return "", fmt.Errorf("find %s %q: %w", kind, name, err)
	}
	if found {
		return ref.ID, nil
	}
	created := domain.Reference{
		ID:        util.NewID(),
		Kind:      kind,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.CreateReference(ctx, created); err != nil {
		return "", fmt.Errorf("create %s %q: %w", kind, name, err)
	}
	return created.ID, nil
}
