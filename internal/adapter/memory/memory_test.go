package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/jun/drivechat/internal/adapter"
)

func TestMemoryAdapter_CreateAndList(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()

	folder, err := m.CreateFolder(ctx, "Reports", adapter.RootID)
	if err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}
	file, err := m.Upload(ctx, "notes.txt", "text/plain", strings.NewReader("hello"), folder.ID)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	files, err := m.ListChildren(ctx, folder.ID)
	if err != nil {
		t.Fatalf("ListChildren failed: %v", err)
	}
	if len(files) != 1 || files[0].ID != file.ID {
		t.Fatalf("Expected only %s, got %+v", file.ID, files)
	}
	if files[0].Size != 5 {
		t.Errorf("Expected size 5, got %d", files[0].Size)
	}
}

func TestMemoryAdapter_ListChildren_MissingFolder(t *testing.T) {
	m := NewMemoryAdapter()

	_, err := m.ListChildren(context.Background(), "nope")
	if !errors.Is(err, adapter.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemoryAdapter_FindIsExactAndScoped(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()

	a, _ := m.CreateFolder(ctx, "A", adapter.RootID)
	b, _ := m.CreateFolder(ctx, "B", adapter.RootID)
	m.Upload(ctx, "x.txt", "text/plain", strings.NewReader("1"), a.ID)
	m.Upload(ctx, "x.txt.bak", "text/plain", strings.NewReader("2"), a.ID)
	m.Upload(ctx, "x.txt", "text/plain", strings.NewReader("3"), b.ID)

	got, _ := m.FindFiles(ctx, a.ID, "x.txt")
	if len(got) != 1 {
		t.Fatalf("Expected 1 exact match under A, got %d", len(got))
	}
	got, _ = m.FindFiles(ctx, a.ID, "X.TXT")
	if len(got) != 0 {
		t.Errorf("Expected case-sensitive lookup, got %d matches", len(got))
	}
	folders, _ := m.FindFolders(ctx, adapter.RootID, "A")
	if len(folders) != 1 || folders[0].ID != a.ID {
		t.Errorf("Expected folder A, got %+v", folders)
	}
}

func TestMemoryAdapter_MoveAndTrash(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()

	src, _ := m.CreateFolder(ctx, "Src", adapter.RootID)
	dst, _ := m.CreateFolder(ctx, "Dst", adapter.RootID)
	f, _ := m.Upload(ctx, "a.pdf", adapter.MIMEPDF, strings.NewReader("%PDF"), src.ID)

	moved, err := m.Move(ctx, f.ID, src.ID, dst.ID)
	if err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if len(moved.Parents) != 1 || moved.Parents[0] != dst.ID {
		t.Errorf("Expected parent %s, got %v", dst.ID, moved.Parents)
	}
	if left, _ := m.ListChildren(ctx, src.ID); len(left) != 0 {
		t.Errorf("Expected source to be empty, got %d", len(left))
	}

	if err := m.Trash(ctx, f.ID); err != nil {
		t.Fatalf("Trash failed: %v", err)
	}
	if !m.IsTrashed(f.ID) {
		t.Error("Expected file to be trashed")
	}
	if left, _ := m.ListChildren(ctx, dst.ID); len(left) != 0 {
		t.Errorf("Expected trashed file to be hidden, got %d", len(left))
	}
}

func TestMemoryAdapter_ExportAndDownload(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()

	doc, _ := m.Upload(ctx, "Plan", adapter.MIMEGoogleDoc, strings.NewReader("native text"), adapter.RootID)
	txt, _ := m.Upload(ctx, "a.txt", "text/plain", strings.NewReader("raw text"), adapter.RootID)

	out, err := m.ExportText(ctx, doc.ID)
	if err != nil || string(out) != "native text" {
		t.Fatalf("ExportText = %q, %v", out, err)
	}
	if _, err := m.ExportText(ctx, txt.ID); !errors.Is(err, adapter.ErrForbidden) {
		t.Errorf("Expected ErrForbidden exporting a non-native file, got %v", err)
	}

	rc, err := m.Download(ctx, txt.ID)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "raw text" {
		t.Errorf("Expected 'raw text', got %q", body)
	}
	if _, err := m.Download(ctx, doc.ID); !errors.Is(err, adapter.ErrForbidden) {
		t.Errorf("Expected ErrForbidden downloading a native doc, got %v", err)
	}
}

func TestMemoryAdapter_Limits(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryAdapter()

	t.Run("Title length limit", func(t *testing.T) {
		longName := strings.Repeat("a", maxDemoTitleLength+1)
		_, err := m.CreateFolder(ctx, longName, adapter.RootID)
		if err == nil || !strings.Contains(err.Error(), "name too long") {
			t.Errorf("Expected error about name length, got: %v", err)
		}
	})

	t.Run("Content size limit", func(t *testing.T) {
		large := strings.NewReader(strings.Repeat("x", maxDemoContentSize+1))
		_, err := m.Upload(ctx, "big.txt", "text/plain", large, adapter.RootID)
		if err == nil || !strings.Contains(err.Error(), "content too large") {
			t.Errorf("Expected error about content size, got: %v", err)
		}
	})
}

func TestProvider_IsolatesIdentities(t *testing.T) {
	p := NewProvider()
	ctx := context.Background()

	a, _ := p.GetAdapter(ctx, "alice", nil)
	b, _ := p.GetAdapter(ctx, "bob", nil)
	a.CreateFolder(ctx, "Private", adapter.RootID)

	if got, _ := b.FindFolders(ctx, adapter.RootID, "Private"); len(got) != 0 {
		t.Errorf("Expected bob not to see alice's folder, got %+v", got)
	}
	if again, _ := p.GetAdapter(ctx, "alice", nil); again != a {
		t.Error("Expected the same drive for the same identity")
	}
}
