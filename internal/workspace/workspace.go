// Package workspace defines the workspace model shared by checkpointing,
// validation, and recovery.
package workspace

// FileType categorizes a file reference for transformation compatibility
type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypeDocument FileType = "document"
	FileTypeCode     FileType = "code"
	FileTypeText     FileType = "text"
	FileTypeAudio    FileType = "audio"
	FileTypeVideo    FileType = "video"
	FileTypeMedia    FileType = "media"
)

// FileReference describes one file tracked by a workspace. Size is in
// bytes; URL points at the backing content when the file is remote.
type FileReference struct {
	ID   string   `json:"id" validate:"required"`
	Name string   `json:"name" validate:"required"`
	Type FileType `json:"type" validate:"required"`
	Size int64    `json:"size" validate:"gte=0"`
	URL  string   `json:"url,omitempty" validate:"omitempty,url"`
}

// Workspace is the unit of user state that gets checkpointed and restored
type Workspace struct {
	ID       string                 `json:"id" validate:"required"`
	Name     string                 `json:"name" validate:"required"`
	Files    []FileReference        `json:"files" validate:"dive"`
	Settings map[string]interface{} `json:"settings,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Clone returns a deep copy so callers can mutate freely without aliasing
// checkpointed state
func (w *Workspace) Clone() *Workspace {
	if w == nil {
		return nil
	}

	clone := &Workspace{
		ID:   w.ID,
		Name: w.Name,
	}
	if w.Files != nil {
		clone.Files = make([]FileReference, len(w.Files))
		copy(clone.Files, w.Files)
	}
	if w.Settings != nil {
		clone.Settings = cloneMap(w.Settings)
	}
	if w.Metadata != nil {
		clone.Metadata = cloneMap(w.Metadata)
	}
	return clone
}

// FileByID returns the file reference with the given ID, if present
func (w *Workspace) FileByID(id string) (FileReference, bool) {
	for _, f := range w.Files {
		if f.ID == id {
			return f, true
		}
	}
	return FileReference{}, false
}

// FileCount returns the number of tracked files
func (w *Workspace) FileCount() int {
	return len(w.Files)
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = cloneMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
