// Package groups implements the registry of broadcast destinations.
package groups

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/tpmb/tpmb2/internal/domain/model"
	errs "github.com/tpmb/tpmb2/internal/errors"
)

// Store persists registry entries.
type Store interface {
	ListGroups(ctx context.Context) ([]model.Group, error)
	AddGroup(ctx context.Context, group model.Group) error
	RemoveGroup(ctx context.Context, id int64) error
}

// Registry is a set of destinations keyed by chat id. The in-memory set only
// changes after the store accepted the change. It is owned by the bot event
// loop and is not safe for concurrent use.
type Registry struct {
	store  Store
	groups map[int64]model.Group
	logger *slog.Logger
}

// Load builds a registry from the groups already persisted in store.
func Load(ctx context.Context, store Store, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	stored, err := store.ListGroups(ctx)
	if err != nil {
		return nil, errs.NewPersistenceError("failed to load groups", err)
	}

	r := &Registry{
		store:  store,
		groups: make(map[int64]model.Group, len(stored)),
		logger: logger.With("component", "group_registry"),
	}
	for _, g := range stored {
		r.groups[g.ID] = g
	}

	r.logger.InfoContext(ctx, "Loaded group registry", "count", len(r.groups))
	return r, nil
}

// Add registers id. Adding an id that is already present is a successful no-op
// and reports added=false.
func (r *Registry) Add(ctx context.Context, id int64, now time.Time) (bool, error) {
	if id == 0 {
		return false, errs.NewValidationError("group id must be a non-zero number", nil)
	}
	if _, ok := r.groups[id]; ok {
		return false, nil
	}

	g := model.Group{ID: id, AddedAt: now}
	if err := r.store.AddGroup(ctx, g); err != nil {
		return false, errs.NewPersistenceError(fmt.Sprintf("failed to save group %d", id), err)
	}

	r.groups[id] = g
	r.logger.InfoContext(ctx, "Group added", "group_id", id)
	return true, nil
}

// Remove unregisters id. Removing an unknown id is a successful no-op and
// reports removed=false.
func (r *Registry) Remove(ctx context.Context, id int64) (bool, error) {
	if _, ok := r.groups[id]; !ok {
		return false, nil
	}

	if err := r.store.RemoveGroup(ctx, id); err != nil {
		return false, errs.NewPersistenceError(fmt.Sprintf("failed to remove group %d", id), err)
	}

	delete(r.groups, id)
	r.logger.InfoContext(ctx, "Group removed", "group_id", id)
	return true, nil
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id int64) bool {
	_, ok := r.groups[id]
	return ok
}

// List returns a snapshot ordered by the time the groups were added.
func (r *Registry) List() []model.Group {
	out := make([]model.Group, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AddedAt.Before(out[j].AddedAt)
	})
	return out
}

// Len returns the number of registered groups.
func (r *Registry) Len() int {
	return len(r.groups)
}
