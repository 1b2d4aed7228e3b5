package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// WithTimeout wraps a StorageAdapter so every call carries its own deadline.
// A call that runs out of time fails with ErrUnavailable instead of hanging.
func WithTimeout(a StorageAdapter, d time.Duration) StorageAdapter {
	if d <= 0 {
		return a
	}
	return &timeoutAdapter{next: a, d: d}
}

type timeoutAdapter struct {
	next StorageAdapter
	d    time.Duration
}

func (t *timeoutAdapter) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, t.d)
}

func deadline(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out: %w", op, ErrUnavailable)
	}
	return err
}

func (t *timeoutAdapter) FindFolders(ctx context.Context, parentID, name string) ([]FileMetadata, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	out, err := t.next.FindFolders(ctx, parentID, name)
	return out, deadline(ctx, "find folders", err)
}

func (t *timeoutAdapter) ListChildren(ctx context.Context, folderID string) ([]FileMetadata, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	out, err := t.next.ListChildren(ctx, folderID)
	return out, deadline(ctx, "list children", err)
}

func (t *timeoutAdapter) FindFiles(ctx context.Context, folderID, name string) ([]FileMetadata, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	out, err := t.next.FindFiles(ctx, folderID, name)
	return out, deadline(ctx, "find files", err)
}

func (t *timeoutAdapter) CreateFolder(ctx context.Context, name, parentID string) (*FileMetadata, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	out, err := t.next.CreateFolder(ctx, name, parentID)
	return out, deadline(ctx, "create folder", err)
}

func (t *timeoutAdapter) Upload(ctx context.Context, name, mimeType string, r io.Reader, parentID string) (*FileMetadata, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	out, err := t.next.Upload(ctx, name, mimeType, r, parentID)
	return out, deadline(ctx, "upload", err)
}

func (t *timeoutAdapter) Rename(ctx context.Context, fileID, newName string) (*FileMetadata, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	out, err := t.next.Rename(ctx, fileID, newName)
	return out, deadline(ctx, "rename", err)
}

func (t *timeoutAdapter) Move(ctx context.Context, fileID, fromParentID, toParentID string) (*FileMetadata, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	out, err := t.next.Move(ctx, fileID, fromParentID, toParentID)
	return out, deadline(ctx, "move", err)
}

func (t *timeoutAdapter) Trash(ctx context.Context, fileID string) error {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	return deadline(ctx, "trash", t.next.Trash(ctx, fileID))
}

func (t *timeoutAdapter) ExportText(ctx context.Context, fileID string) ([]byte, error) {
	ctx, cancel := t.bound(ctx)
	defer cancel()
	out, err := t.next.ExportText(ctx, fileID)
	return out, deadline(ctx, "export", err)
}

// Download keeps the deadline alive until the body is closed.
func (t *timeoutAdapter) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	ctx, cancel := t.bound(ctx)
	rc, err := t.next.Download(ctx, fileID)
	if err != nil {
		cancel()
		return nil, deadline(ctx, "download", err)
	}
	return &cancelOnClose{ReadCloser: rc, ctx: ctx, cancel: cancel}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	ctx    context.Context
	cancel context.CancelFunc
}

func (c *cancelOnClose) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	if err != nil && err != io.EOF {
		err = deadline(c.ctx, "download", err)
	}
	return n, err
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
