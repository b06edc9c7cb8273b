// Package checkpoint creates and restores checksum-verified snapshots of
// workspace state, bounded per workspace with FIFO eviction.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Checkpoint is one immutable snapshot of a workspace. Data holds the
// canonical JSON the checksum was computed over; both travel together so
// restore can re-verify without trusting the store.
type Checkpoint struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspaceId"`
	Data        json.RawMessage `json:"data"`
	Checksum    string          `json:"checksum"`
	CreatedAt   time.Time       `json:"createdAt"`
	Metadata    Metadata        `json:"metadata"`
}

// Metadata describes a checkpoint without its payload
type Metadata struct {
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	FileCount   int    `json:"fileCount"`
	DataSize    int64  `json:"dataSize"`
}

// Canonicalize serializes data with stable key order at every depth.
// The round trip through interface{} normalizes structs into maps so
// encoding/json's sorted map-key output applies throughout.
func Canonicalize(data map[string]interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize checkpoint data: %w", err)
	}

	var normalized interface{}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, fmt.Errorf("failed to normalize checkpoint data: %w", err)
	}

	canonical, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize checkpoint data: %w", err)
	}
	return canonical, nil
}

// Checksum returns the hex SHA-256 of the canonical payload
func Checksum(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// Unmarshal decodes the checkpoint payload into out
func (c *Checkpoint) Unmarshal(out interface{}) error {
	if err := json.Unmarshal(c.Data, out); err != nil {
		return fmt.Errorf("failed to decode checkpoint %s: %w", c.ID, err)
	}
	return nil
}
