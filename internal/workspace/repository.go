package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tooldock/resilience-core/internal/store"
)

// Repository persists current workspace state
type Repository interface {
	Get(ctx context.Context, id string) (*Workspace, error)
	Save(ctx context.Context, ws *Workspace) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}

// StoreRepository keeps workspaces as JSON blobs in a key-value store
type StoreRepository struct {
	store  store.Store
	prefix string
}

// NewStoreRepository creates a repository on top of the given store
func NewStoreRepository(s store.Store) *StoreRepository {
	return &StoreRepository{
		store:  s,
		prefix: "workspace",
	}
}

func (r *StoreRepository) key(id string) string {
	return fmt.Sprintf("%s:%s", r.prefix, id)
}

// Get loads a workspace by ID. Returns store.ErrNotFound when absent.
func (r *StoreRepository) Get(ctx context.Context, id string) (*Workspace, error) {
	data, err := r.store.Get(ctx, r.key(id))
	if err != nil {
		if store.IsNotFound(err) {
			return nil, fmt.Errorf("workspace %q: %w", id, store.ErrNotFound)
		}
		return nil, err
	}

	var ws Workspace
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("failed to decode workspace %q: %w", id, err)
	}
	return &ws, nil
}

// Save persists the workspace, replacing any previous state
func (r *StoreRepository) Save(ctx context.Context, ws *Workspace) error {
	if ws == nil || ws.ID == "" {
		return fmt.Errorf("workspace with a non-empty ID is required")
	}

	data, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("failed to encode workspace %q: %w", ws.ID, err)
	}
	return r.store.Set(ctx, r.key(ws.ID), data, 0)
}

// Delete removes the workspace state
func (r *StoreRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, r.key(id))
}

// List returns the IDs of all stored workspaces
func (r *StoreRepository) List(ctx context.Context) ([]string, error) {
	keys, err := r.store.Keys(ctx, r.prefix+":*")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, r.prefix+":"))
	}
	return ids, nil
}
