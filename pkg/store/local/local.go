package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"docrag/internal/util"
	"docrag/pkg/store"
)

// BlobStore implements store.UserStore on the local filesystem. Graph blobs
// live under {root}/graphs, index blobs under {root}/indices. Writes go to a
// temp file first and are renamed into place so a crashed write never leaves
// a truncated blob behind.
type BlobStore struct {
	root string
}

// NewBlobStore creates a filesystem-backed store rooted at root.
func NewBlobStore(root string) *BlobStore {
	return &BlobStore{root: root}
}

func (s *BlobStore) graphPath(userID string) string {
	return filepath.Join(s.root, "graphs", util.SanitizeKey(userID)+".json")
}

func (s *BlobStore) indexPath(userID string) string {
	return filepath.Join(s.root, "indices", util.SanitizeKey(userID)+".json")
}

func (s *BlobStore) LoadGraph(ctx context.Context, userID string) ([]byte, error) {
	return s.load(ctx, s.graphPath(userID))
}

func (s *BlobStore) SaveGraph(ctx context.Context, userID string, blob []byte) error {
	return s.save(ctx, s.graphPath(userID), blob)
}

func (s *BlobStore) DeleteGraph(ctx context.Context, userID string) error {
	return s.delete(ctx, s.graphPath(userID))
}

func (s *BlobStore) LoadIndex(ctx context.Context, userID string) ([]byte, error) {
	return s.load(ctx, s.indexPath(userID))
}

func (s *BlobStore) SaveIndex(ctx context.Context, userID string, blob []byte) error {
	return s.save(ctx, s.indexPath(userID), blob)
}

func (s *BlobStore) DeleteIndex(ctx context.Context, userID string) error {
	return s.delete(ctx, s.indexPath(userID))
}

func (s *BlobStore) load(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return blob, nil
}

func (s *BlobStore) save(ctx context.Context, path string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func (s *BlobStore) delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("delete %s: %w", path, err)
}
