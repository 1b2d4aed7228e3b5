package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jun/drivechat/internal/adapter"
	"golang.org/x/oauth2"
)

const (
	maxDemoContentSize = 10 * 1024 * 1024 // 10MB
	maxDemoTitleLength = 255
	maxDemoItemCount   = 500
)

type entry struct {
	adapter.FileMetadata
	content []byte
	trashed bool
}

// MemoryAdapter implements adapter.StorageAdapter on an in-process tree.
// It backs tests and dev mode; nothing survives a restart.
type MemoryAdapter struct {
	files map[string]*entry
	mu    sync.RWMutex
}

// NewMemoryAdapter creates an empty drive.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{files: make(map[string]*entry)}
}

func (m *MemoryAdapter) liveChildren(folderID string) []*entry {
	var out []*entry
	for _, f := range m.files {
		if f.trashed {
			continue
		}
		for _, p := range f.Parents {
			if p == folderID {
				out = append(out, f)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *MemoryAdapter) folderExists(id string) bool {
	if id == adapter.RootID {
		return true
	}
	f, ok := m.files[id]
	return ok && !f.trashed && f.IsFolder()
}

func (m *MemoryAdapter) checkLimits(name string, size int) error {
	if len(name) > maxDemoTitleLength {
		return fmt.Errorf("name too long (max %d)", maxDemoTitleLength)
	}
	if size > maxDemoContentSize {
		return fmt.Errorf("content too large (max %d bytes)", maxDemoContentSize)
	}
	if len(m.files) >= maxDemoItemCount {
		return fmt.Errorf("item limit reached (max %d)", maxDemoItemCount)
	}
	return nil
}

func (m *MemoryAdapter) FindFolders(ctx context.Context, parentID, name string) ([]adapter.FileMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	files := []adapter.FileMetadata{}
	for _, f := range m.liveChildren(parentID) {
		if f.IsFolder() && f.Name == name {
			files = append(files, f.FileMetadata)
		}
	}
	return files, nil
}

func (m *MemoryAdapter) ListChildren(ctx context.Context, folderID string) ([]adapter.FileMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.folderExists(folderID) {
		return nil, adapter.ErrNotFound
	}
	files := []adapter.FileMetadata{}
	for _, f := range m.liveChildren(folderID) {
		files = append(files, f.FileMetadata)
	}
	return files, nil
}

func (m *MemoryAdapter) FindFiles(ctx context.Context, folderID, name string) ([]adapter.FileMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	files := []adapter.FileMetadata{}
	for _, f := range m.liveChildren(folderID) {
		if !f.IsFolder() && f.Name == name {
			files = append(files, f.FileMetadata)
		}
	}
	return files, nil
}

func (m *MemoryAdapter) CreateFolder(ctx context.Context, name, parentID string) (*adapter.FileMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLimits(name, 0); err != nil {
		return nil, err
	}
	if !m.folderExists(parentID) {
		return nil, adapter.ErrNotFound
	}
	f := &entry{FileMetadata: adapter.FileMetadata{
		ID:           uuid.New().String(),
		Name:         name,
		MIMEType:     adapter.MIMEFolder,
		ModifiedTime: time.Now(),
		Parents:      []string{parentID},
	}}
	m.files[f.ID] = f
	meta := f.FileMetadata
	return &meta, nil
}

func (m *MemoryAdapter) Upload(ctx context.Context, name, mimeType string, r io.Reader, parentID string) (*adapter.FileMetadata, error) {
	content, err := io.ReadAll(io.LimitReader(r, maxDemoContentSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLimits(name, len(content)); err != nil {
		return nil, err
	}
	if !m.folderExists(parentID) {
		return nil, adapter.ErrNotFound
	}
	f := &entry{
		FileMetadata: adapter.FileMetadata{
			ID:           uuid.New().String(),
			Name:         name,
			MIMEType:     mimeType,
			ModifiedTime: time.Now(),
			Size:         int64(len(content)),
			Parents:      []string{parentID},
		},
		content: content,
	}
	m.files[f.ID] = f
	meta := f.FileMetadata
	return &meta, nil
}

func (m *MemoryAdapter) Rename(ctx context.Context, fileID, newName string) (*adapter.FileMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[fileID]
	if !ok || f.trashed {
		return nil, adapter.ErrNotFound
	}
	if len(newName) > maxDemoTitleLength {
		return nil, fmt.Errorf("name too long (max %d)", maxDemoTitleLength)
	}
	f.Name = newName
	f.ModifiedTime = time.Now()
	meta := f.FileMetadata
	return &meta, nil
}

func (m *MemoryAdapter) Move(ctx context.Context, fileID, fromParentID, toParentID string) (*adapter.FileMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[fileID]
	if !ok || f.trashed || !m.folderExists(toParentID) {
		return nil, adapter.ErrNotFound
	}
	parents := []string{toParentID}
	for _, p := range f.Parents {
		if p != fromParentID && p != toParentID {
			parents = append(parents, p)
		}
	}
	f.Parents = parents
	f.ModifiedTime = time.Now()
	meta := f.FileMetadata
	return &meta, nil
}

func (m *MemoryAdapter) Trash(ctx context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[fileID]
	if !ok || f.trashed {
		return adapter.ErrNotFound
	}
	f.trashed = true
	return nil
}

// IsTrashed reports whether a file sits in the trash.
func (m *MemoryAdapter) IsTrashed(fileID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[fileID]
	return ok && f.trashed
}

func isNative(mimeType string) bool {
	return mimeType == adapter.MIMEGoogleDoc || mimeType == adapter.MIMEGoogleSlides || mimeType == adapter.MIMEGoogleSheet
}

// ExportText only works on provider-native documents, as on Drive.
func (m *MemoryAdapter) ExportText(ctx context.Context, fileID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.files[fileID]
	if !ok || f.trashed {
		return nil, adapter.ErrNotFound
	}
	if !isNative(f.MIMEType) {
		return nil, fmt.Errorf("export of %s: %w", f.MIMEType, adapter.ErrForbidden)
	}
	return append([]byte(nil), f.content...), nil
}

// Download refuses provider-native documents, as on Drive.
func (m *MemoryAdapter) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.files[fileID]
	if !ok || f.trashed {
		return nil, adapter.ErrNotFound
	}
	if isNative(f.MIMEType) || f.IsFolder() {
		return nil, fmt.Errorf("download of %s: %w", f.MIMEType, adapter.ErrForbidden)
	}
	return io.NopCloser(bytes.NewReader(f.content)), nil
}

// Provider hands out one MemoryAdapter per identity.
type Provider struct {
	stores map[string]*MemoryAdapter
	mu     sync.Mutex
}

func NewProvider() *Provider {
	return &Provider{stores: make(map[string]*MemoryAdapter)}
}

// Drive returns the identity's drive, creating it on first use.
func (p *Provider) Drive(identity string) *MemoryAdapter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.stores[identity]; !ok {
		p.stores[identity] = NewMemoryAdapter()
	}
	return p.stores[identity]
}

func (p *Provider) GetAdapter(ctx context.Context, identity string, _ *oauth2.Token) (adapter.StorageAdapter, error) {
	return p.Drive(identity), nil
}
