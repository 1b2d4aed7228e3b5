package adapter

import (
	"context"
	"io"
	"time"
)

// RootID is the identifier of the top of the user's drive.
const RootID = "root"

// Well-known MIME types.
const (
	MIMEFolder       = "application/vnd.google-apps.folder"
	MIMEGoogleDoc    = "application/vnd.google-apps.document"
	MIMEGoogleSlides = "application/vnd.google-apps.presentation"
	MIMEGoogleSheet  = "application/vnd.google-apps.spreadsheet"
	MIMEPDF          = "application/pdf"
	MIMEDocx         = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEPlainText    = "text/plain"
	MIMEMarkdown     = "text/markdown"
	MIMECSV          = "text/csv"
)

// FileMetadata represents metadata about a file stored in the cloud storage.
type FileMetadata struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MIMEType     string    `json:"mimeType"`
	ModifiedTime time.Time `json:"modifiedTime"`
	Size         int64     `json:"size"`
	Parents      []string  `json:"parents,omitempty"`
}

// IsFolder reports whether the entry is a folder.
func (f FileMetadata) IsFolder() bool {
	return f.MIMEType == MIMEFolder
}

// StorageAdapter defines the interface for interacting with cloud storage services.
// All lookups compare names verbatim; none of them guess between several matches.
type StorageAdapter interface {
	// FindFolders returns folders named exactly name directly under parentID.
	FindFolders(ctx context.Context, parentID, name string) ([]FileMetadata, error)

	// ListChildren lists the non-trashed direct children of a folder.
	ListChildren(ctx context.Context, folderID string) ([]FileMetadata, error)

	// FindFiles returns non-folder entries named exactly name directly under folderID.
	FindFiles(ctx context.Context, folderID, name string) ([]FileMetadata, error)

	// CreateFolder creates a folder under parentID.
	CreateFolder(ctx context.Context, name, parentID string) (*FileMetadata, error)

	// Upload streams r into a new file under parentID.
	Upload(ctx context.Context, name, mimeType string, r io.Reader, parentID string) (*FileMetadata, error)

	// Rename renames a file in place.
	Rename(ctx context.Context, fileID, newName string) (*FileMetadata, error)

	// Move reparents a file from one folder to another.
	Move(ctx context.Context, fileID, fromParentID, toParentID string) (*FileMetadata, error)

	// Trash moves a file to the trash. Nothing is erased permanently.
	Trash(ctx context.Context, fileID string) error

	// ExportText exports a provider-native document as plain text.
	ExportText(ctx context.Context, fileID string) ([]byte, error)

	// Download opens the raw content of a stored file.
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
}
