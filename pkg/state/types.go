package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-prefs"
)

var ErrETagMismatch = errors.New("state: etag mismatch")

// ErrRootRequired reports a Folder ref without a root.
var ErrRootRequired = errors.New("state: folder scope requires a root")

// Ref identifies one persisted snapshot.
type Ref struct {
	Scope prefs.Scope
	// Root is the workspace folder a Folder snapshot belongs to. It is
	// ignored for other scopes.
	Root string
}

// Meta is storage-owned metadata used for audit and concurrency control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Store loads and saves the snapshot of a single Ref. Snapshots are flat
// maps keyed by preference name.
type Store interface {
	Load(ctx context.Context, ref Ref) (snapshot map[string]any, meta Meta, ok bool, err error)
	// Save replaces the snapshot. A non-empty meta.ETag must match the
	// stored ETag, otherwise ErrETagMismatch is returned.
	Save(ctx context.Context, ref Ref, snapshot map[string]any, meta Meta) (Meta, error)
}

// Identifier returns the canonical storage key for r.
func (r Ref) Identifier() (string, error) {
	switch r.Scope {
	case prefs.User, prefs.Workspace:
		return strings.ToLower(r.Scope.String()), nil
	case prefs.Folder:
		if r.Root == "" {
			return "", ErrRootRequired
		}
		return "folder/" + r.Root, nil
	default:
		return "", fmt.Errorf("state: unsupported scope %s", r.Scope)
	}
}

// ConfigURI locates the snapshot for provenance reports.
func (r Ref) ConfigURI() string {
	id, err := r.Identifier()
	if err != nil {
		return ""
	}
	return "state://" + id
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SnapshotID != "" {
		out.SnapshotID = override.SnapshotID
	}
	if override.ETag != "" {
		out.ETag = override.ETag
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}
