package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no blob exists for the requested user.
// Callers treat it as a valid empty state, not a failure.
var ErrNotFound = errors.New("store: not found")

// UserStore is the authoritative durable storage for per-user state: one
// serialized graph blob and one serialized embedding-index blob per user id.
// A failed Save must be surfaced to the ingestion caller; the in-memory
// state has already mutated at that point.
type UserStore interface {
	LoadGraph(ctx context.Context, userID string) ([]byte, error)
	SaveGraph(ctx context.Context, userID string, blob []byte) error
	DeleteGraph(ctx context.Context, userID string) error

	LoadIndex(ctx context.Context, userID string) ([]byte, error)
	SaveIndex(ctx context.Context, userID string, blob []byte) error
	DeleteIndex(ctx context.Context, userID string) error
}

// MirrorNode is a node row replicated to the mirror store.
type MirrorNode struct {
	NodeID      string
	EntityText  string
	EntityType  string
	EntityValue string
	FileID      string
	DocType     string
	Metadata    map[string]any
}

// MirrorEdge is an edge row replicated to the mirror store. Endpoints are
// node identity keys.
type MirrorEdge struct {
	SourceNode string
	TargetNode string
	Relation   string
}

// MirrorChunk is a chunk+embedding row replicated to the mirror store.
type MirrorChunk struct {
	Content   string
	Chunk     string
	Embedding []float32
}

// Mirror receives best-effort replication of graph and index state. Mirror
// write failures are logged and swallowed by callers; the local blobs remain
// the authoritative recovery source.
type Mirror interface {
	UpsertGraph(ctx context.Context, userID string, nodes []MirrorNode, edges []MirrorEdge) error
	UpsertChunks(ctx context.Context, userID string, chunks []MirrorChunk) error
	DeleteUser(ctx context.Context, userID string) error
}
