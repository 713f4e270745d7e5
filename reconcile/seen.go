package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/rustyeddy/autotrader/ledger"
)

// SeenStore persists the ids of deals already folded into the ledger.
// SaveSeen receives the whole set.
type SeenStore interface {
	LoadSeen(ctx context.Context) ([]string, error)
	SaveSeen(ctx context.Context, ids []string) error
}

// FileSeenStore keeps the set as a sorted JSON array.
type FileSeenStore struct {
	Path string
}

func NewFileSeenStore(path string) *FileSeenStore {
	return &FileSeenStore{Path: path}
}

func (s *FileSeenStore) LoadSeen(context.Context) ([]string, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.Path, err)
	}
	return ids, nil
}

func (s *FileSeenStore) SaveSeen(_ context.Context, ids []string) error {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	b, err := json.Marshal(sorted)
	if err != nil {
		return err
	}
	return ledger.WriteFileAtomic(s.Path, b, 0o644)
}
