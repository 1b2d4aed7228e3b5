// Package pathres turns slash-delimited folder paths into chains of
// storage folder IDs, caching each prefix per identity.
package pathres

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jun/drivechat/internal/adapter"
	"github.com/jun/drivechat/internal/apperr"
	"go.uber.org/zap"
)

const DefaultTTL = 10 * time.Minute

// Segment is one resolved step of a path.
type Segment struct {
	Name string
	ID   string
}

// ResolvedPath runs from just below the root to the target folder. An
// empty ResolvedPath is the root itself.
type ResolvedPath []Segment

// ID is the folder the path ends at.
func (p ResolvedPath) ID() string {
	if len(p) == 0 {
		return adapter.RootID
	}
	return p[len(p)-1].ID
}

// String renders the normalized path.
func (p ResolvedPath) String() string {
	names := make([]string, len(p))
	for i, s := range p {
		names[i] = s.Name
	}
	return strings.Join(names, "/")
}

// Split normalizes a path into its segments. Leading, trailing and
// doubled slashes are dropped and each segment is trimmed.
func Split(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Normalize returns the canonical form of path.
func Normalize(path string) string {
	return strings.Join(Split(path), "/")
}

type cacheEntry struct {
	id      string
	expires time.Time
}

// folderCache is one identity's prefix cache.
type folderCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

// Resolver resolves paths against a storage adapter. Caches are per
// identity and never shared.
type Resolver struct {
	ttl    time.Duration
	mu     sync.Mutex
	caches map[string]*folderCache
	log    *zap.Logger
	now    func() time.Time
}

// New creates a Resolver whose cache entries live for ttl.
func New(ttl time.Duration, log *zap.Logger) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		ttl:    ttl,
		caches: make(map[string]*folderCache),
		log:    log,
		now:    time.Now,
	}
}

func (r *Resolver) cache(identity string) *folderCache {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.caches[identity]
	if !ok {
		c = &folderCache{entries: make(map[string]cacheEntry)}
		r.caches[identity] = c
	}
	return c
}

func (c *folderCache) get(key string, now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if now.After(e.expires) {
		delete(c.entries, key)
		return "", false
	}
	return e.id, true
}

func (c *folderCache) put(key, id string, expires time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{id: id, expires: expires}
}

// Resolve walks path from the root. A missing segment is NotFound; two
// folders with the same name under one parent is Ambiguous.
func (r *Resolver) Resolve(ctx context.Context, identity string, a adapter.StorageAdapter, path string) (ResolvedPath, error) {
	return r.walk(ctx, identity, a, path, false)
}

// ResolveOrCreate is Resolve, but missing segments are created.
func (r *Resolver) ResolveOrCreate(ctx context.Context, identity string, a adapter.StorageAdapter, path string) (ResolvedPath, error) {
	return r.walk(ctx, identity, a, path, true)
}

func (r *Resolver) walk(ctx context.Context, identity string, a adapter.StorageAdapter, path string, create bool) (ResolvedPath, error) {
	const op = "resolve path"
	c := r.cache(identity)
	segments := Split(path)
	resolved := make(ResolvedPath, 0, len(segments))
	parent := adapter.RootID

	for i, name := range segments {
		key := strings.Join(segments[:i+1], "/")
		if id, ok := c.get(key, r.now()); ok {
			resolved = append(resolved, Segment{Name: name, ID: id})
			parent = id
			continue
		}

		matches, err := a.FindFolders(ctx, parent, name)
		if err != nil {
			return nil, apperr.Wrap(op, key, err)
		}

		var id string
		switch len(matches) {
		case 0:
			if !create {
				return nil, apperr.New(apperr.KindNotFound, op, key, adapter.ErrNotFound)
			}
			f, err := a.CreateFolder(ctx, name, parent)
			if err != nil {
				return nil, apperr.Wrap("create folder", key, err)
			}
			r.log.Info("created folder", zap.String("identity", identity), zap.String("path", key))
			id = f.ID
		case 1:
			id = matches[0].ID
		default:
			return nil, apperr.New(apperr.KindAmbiguous, op, key,
				fmt.Errorf("%d folders named %q", len(matches), name))
		}

		c.put(key, id, r.now().Add(r.ttl))
		resolved = append(resolved, Segment{Name: name, ID: id})
		parent = id
	}
	return resolved, nil
}

// Invalidate drops path and every cached descendant of it for identity.
// An empty path drops the identity's whole cache.
func (r *Resolver) Invalidate(identity, path string) {
	prefix := Normalize(path)
	if prefix == "" {
		r.InvalidateAll(identity)
		return
	}
	c := r.cache(identity)
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key == prefix || strings.HasPrefix(key, prefix+"/") {
			delete(c.entries, key)
		}
	}
}

// InvalidateAll drops every cached entry for identity.
func (r *Resolver) InvalidateAll(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.caches, identity)
}
