package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tooldock/resilience-core/internal/store"
	appErrors "github.com/tooldock/resilience-core/pkg/errors"
	"github.com/tooldock/resilience-core/pkg/logging"
	"github.com/tooldock/resilience-core/pkg/metrics"
)

// Config bounds the checkpoint manager
type Config struct {
	MaxCheckpoints int
	KeyPrefix      string
}

// DefaultConfig returns the standard checkpoint limits
func DefaultConfig() Config {
	return Config{
		MaxCheckpoints: 10,
		KeyPrefix:      "checkpoint",
	}
}

// Manager persists checkpoints to the KV store. Creation and eviction
// for one workspace are serialized by a per-workspace mutex so the index
// never loses an entry under concurrent saves.
type Manager struct {
	store          store.Store
	maxCheckpoints int
	keyPrefix      string
	logger         *logging.Logger
	metrics        *metrics.Metrics

	mutex sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a checkpoint manager. Metrics may be nil.
func NewManager(s store.Store, cfg Config, m *metrics.Metrics) *Manager {
	if cfg.MaxCheckpoints <= 0 {
		cfg.MaxCheckpoints = 10
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "checkpoint"
	}

	return &Manager{
		store:          s,
		maxCheckpoints: cfg.MaxCheckpoints,
		keyPrefix:      cfg.KeyPrefix,
		logger:         logging.GetLogger(),
		metrics:        m,
		locks:          make(map[string]*sync.Mutex),
	}
}

// Create snapshots data for workspaceID. When the workspace already
// holds MaxCheckpoints, the oldest checkpoint is evicted.
func (m *Manager) Create(ctx context.Context, workspaceID string, data map[string]interface{}, description string) (*Checkpoint, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("workspace id must not be empty")
	}
	if data == nil {
		return nil, fmt.Errorf("checkpoint data must not be nil")
	}

	canonical, err := Canonicalize(data)
	if err != nil {
		m.record("create", "error", 0)
		return nil, err
	}

	cp := &Checkpoint{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		Data:        canonical,
		Checksum:    Checksum(canonical),
		CreatedAt:   time.Now().UTC(),
		Metadata: Metadata{
			Version:     "1.0",
			Description: description,
			FileCount:   fileCount(data),
			DataSize:    int64(len(canonical)),
		},
	}

	lock := m.lockFor(workspaceID)
	lock.Lock()
	defer lock.Unlock()

	payload, err := json.Marshal(cp)
	if err != nil {
		m.record("create", "error", 0)
		return nil, fmt.Errorf("failed to serialize checkpoint: %w", err)
	}
	if err := m.store.Set(ctx, m.dataKey(cp.ID), payload, 0); err != nil {
		m.record("create", "error", 0)
		return nil, fmt.Errorf("failed to persist checkpoint: %w", err)
	}

	ids, err := m.readIndex(ctx, workspaceID)
	if err != nil {
		m.record("create", "error", 0)
		return nil, err
	}
	ids = append(ids, cp.ID)

	for len(ids) > m.maxCheckpoints {
		evicted := ids[0]
		ids = ids[1:]
		if err := m.store.Delete(ctx, m.dataKey(evicted)); err != nil {
			m.logger.Warn("Failed to delete evicted checkpoint",
				"checkpoint_id", evicted,
				"workspace_id", workspaceID,
				"error", err,
			)
		}
		m.logger.LogCheckpointEvent(ctx, "checkpoint_evicted", workspaceID, evicted, nil)
	}

	if err := m.writeIndex(ctx, workspaceID, ids); err != nil {
		m.record("create", "error", 0)
		return nil, err
	}

	m.logger.LogCheckpointEvent(ctx, "checkpoint_created", workspaceID, cp.ID, logrus.Fields{
		"file_count": cp.Metadata.FileCount,
		"data_size":  cp.Metadata.DataSize,
	})
	m.record("create", "success", len(canonical))
	return cp, nil
}

// Restore loads a checkpoint by ID and verifies its checksum. A missing
// checkpoint wraps store.ErrNotFound; corrupted data is an integrity
// error.
func (m *Manager) Restore(ctx context.Context, checkpointID string) (*Checkpoint, error) {
	raw, err := m.store.Get(ctx, m.dataKey(checkpointID))
	if err != nil {
		if store.IsNotFound(err) {
			m.record("restore", "not_found", 0)
			return nil, fmt.Errorf("checkpoint %q: %w", checkpointID, store.ErrNotFound)
		}
		m.record("restore", "error", 0)
		return nil, fmt.Errorf("failed to load checkpoint %q: %w", checkpointID, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		m.record("restore", "error", 0)
		return nil, appErrors.NewIntegrityError(checkpointID, "checkpoint record is not valid JSON")
	}

	if err := m.Verify(&cp); err != nil {
		m.record("restore", "integrity_error", 0)
		return nil, err
	}

	m.logger.LogCheckpointEvent(ctx, "checkpoint_restored", cp.WorkspaceID, cp.ID, logrus.Fields{
		"file_count": cp.Metadata.FileCount,
	})
	m.record("restore", "success", len(cp.Data))
	return &cp, nil
}

// Verify recomputes the checksum over the stored payload
func (m *Manager) Verify(cp *Checkpoint) error {
	if actual := Checksum(cp.Data); actual != cp.Checksum {
		return appErrors.NewIntegrityError(cp.ID,
			fmt.Sprintf("checksum mismatch: expected %s, computed %s", cp.Checksum, actual))
	}
	return nil
}

// List returns all checkpoints for a workspace, newest first. Index
// entries whose payload has gone missing are skipped with a warning.
func (m *Manager) List(ctx context.Context, workspaceID string) ([]*Checkpoint, error) {
	ids, err := m.readIndex(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	checkpoints := make([]*Checkpoint, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		raw, err := m.store.Get(ctx, m.dataKey(ids[i]))
		if err != nil {
			m.logger.Warn("Checkpoint in index but payload missing",
				"checkpoint_id", ids[i],
				"workspace_id", workspaceID,
				"error", err,
			)
			continue
		}
		var cp Checkpoint
		if err := json.Unmarshal(raw, &cp); err != nil {
			m.logger.Warn("Checkpoint payload is corrupt",
				"checkpoint_id", ids[i],
				"workspace_id", workspaceID,
				"error", err,
			)
			continue
		}
		checkpoints = append(checkpoints, &cp)
	}
	return checkpoints, nil
}

// Latest restores the most recent checkpoint for a workspace
func (m *Manager) Latest(ctx context.Context, workspaceID string) (*Checkpoint, error) {
	ids, err := m.readIndex(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no checkpoints for workspace %q: %w", workspaceID, store.ErrNotFound)
	}
	return m.Restore(ctx, ids[len(ids)-1])
}

// Delete removes one checkpoint and its index entry
func (m *Manager) Delete(ctx context.Context, checkpointID string) error {
	raw, err := m.store.Get(ctx, m.dataKey(checkpointID))
	if err != nil {
		if store.IsNotFound(err) {
			return fmt.Errorf("checkpoint %q: %w", checkpointID, store.ErrNotFound)
		}
		return fmt.Errorf("failed to load checkpoint %q: %w", checkpointID, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		// Payload unreadable, remove it anyway.
		return m.store.Delete(ctx, m.dataKey(checkpointID))
	}

	lock := m.lockFor(cp.WorkspaceID)
	lock.Lock()
	defer lock.Unlock()

	if err := m.store.Delete(ctx, m.dataKey(checkpointID)); err != nil {
		return fmt.Errorf("failed to delete checkpoint %q: %w", checkpointID, err)
	}

	ids, err := m.readIndex(ctx, cp.WorkspaceID)
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, id := range ids {
		if id != checkpointID {
			kept = append(kept, id)
		}
	}
	if err := m.writeIndex(ctx, cp.WorkspaceID, kept); err != nil {
		return err
	}

	m.logger.LogCheckpointEvent(ctx, "checkpoint_deleted", cp.WorkspaceID, checkpointID, nil)
	m.record("delete", "success", 0)
	return nil
}

// Clear removes every checkpoint for a workspace
func (m *Manager) Clear(ctx context.Context, workspaceID string) error {
	lock := m.lockFor(workspaceID)
	lock.Lock()
	defer lock.Unlock()

	ids, err := m.readIndex(ctx, workspaceID)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, m.dataKey(id))
	}
	keys = append(keys, m.indexKey(workspaceID))

	if err := m.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to clear checkpoints for workspace %q: %w", workspaceID, err)
	}

	m.logger.LogCheckpointEvent(ctx, "checkpoints_cleared", workspaceID, "", logrus.Fields{
		"count": len(ids),
	})
	return nil
}

func (m *Manager) dataKey(checkpointID string) string {
	return fmt.Sprintf("%s:data:%s", m.keyPrefix, checkpointID)
}

func (m *Manager) indexKey(workspaceID string) string {
	return fmt.Sprintf("%s:index:%s", m.keyPrefix, workspaceID)
}

func (m *Manager) readIndex(ctx context.Context, workspaceID string) ([]string, error) {
	raw, err := m.store.Get(ctx, m.indexKey(workspaceID))
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load checkpoint index for %q: %w", workspaceID, err)
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("checkpoint index for %q is corrupt: %w", workspaceID, err)
	}
	return ids, nil
}

func (m *Manager) writeIndex(ctx context.Context, workspaceID string, ids []string) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint index: %w", err)
	}
	if err := m.store.Set(ctx, m.indexKey(workspaceID), raw, 0); err != nil {
		return fmt.Errorf("failed to persist checkpoint index: %w", err)
	}
	return nil
}

func (m *Manager) lockFor(workspaceID string) *sync.Mutex {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	lock, ok := m.locks[workspaceID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[workspaceID] = lock
	}
	return lock
}

func (m *Manager) record(operation, status string, size int) {
	if m.metrics != nil {
		m.metrics.RecordCheckpointOperation(operation, status, size)
	}
}

func fileCount(data map[string]interface{}) int {
	switch files := data["files"].(type) {
	case []interface{}:
		return len(files)
	case []map[string]interface{}:
		return len(files)
	}
	return 0
}
