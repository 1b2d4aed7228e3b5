package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/jun/drivechat/internal/adapter"
	"github.com/jun/drivechat/internal/apperr"
)

// errSearchLimit ends a tree search that visited too many folders.
var errSearchLimit = errors.New("search limit reached")

// findAnywhere walks the tree breadth-first from the root looking for a
// file named exactly name. It stops at the second match, and gives up as
// Unavailable after visiting SearchLimit folders.
func (e *Executor) findAnywhere(ctx context.Context, storage adapter.StorageAdapter, name string) (*adapter.FileMetadata, error) {
	const op = "find file"
	var matches []adapter.FileMetadata
	queue := []string{adapter.RootID}
	seen := map[string]bool{adapter.RootID: true}

	for visited := 0; len(queue) > 0; visited++ {
		if visited >= e.cfg.SearchLimit {
			return nil, apperr.New(apperr.KindUnavailable, op, name,
				fmt.Errorf("%w after %d folders", errSearchLimit, visited))
		}
		if err := ctx.Err(); err != nil {
			return nil, apperr.Wrap(op, name, err)
		}

		folderID := queue[0]
		queue = queue[1:]
		children, err := storage.ListChildren(ctx, folderID)
		if err != nil {
			return nil, apperr.Wrap(op, name, err)
		}
		for _, f := range children {
			if f.IsFolder() {
				if !seen[f.ID] {
					seen[f.ID] = true
					queue = append(queue, f.ID)
				}
				continue
			}
			if f.Name == name {
				matches = append(matches, f)
				if len(matches) > 1 {
					return nil, apperr.New(apperr.KindAmbiguous, op, name,
						fmt.Errorf("more than one file named %q", name))
				}
			}
		}
	}

	if len(matches) == 0 {
		return nil, apperr.New(apperr.KindNotFound, op, name, adapter.ErrNotFound)
	}
	return &matches[0], nil
}
