package googledrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jun/drivechat/internal/adapter"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const fileFields = "id, name, mimeType, modifiedTime, size, parents"

const listFields = "nextPageToken, files(" + fileFields + ")"

// DriveAdapter implements adapter.StorageAdapter for Google Drive.
type DriveAdapter struct {
	service *drive.Service
}

// NewDriveAdapter creates a new DriveAdapter.
// client should be an authenticated http.Client with specific user credentials.
func NewDriveAdapter(ctx context.Context, client *http.Client) (*DriveAdapter, error) {
	srv, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}
	return &DriveAdapter{service: srv}, nil
}

// quote escapes a value for use inside a single-quoted Drive query literal.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, `'`, `\'`) + "'"
}

func toMetadata(f *drive.File) adapter.FileMetadata {
	modTime, _ := time.Parse(time.RFC3339, f.ModifiedTime)
	return adapter.FileMetadata{
		ID:           f.Id,
		Name:         f.Name,
		MIMEType:     f.MimeType,
		ModifiedTime: modTime,
		Size:         f.Size,
		Parents:      f.Parents,
	}
}

// list runs a query and follows every result page.
func (d *DriveAdapter) list(ctx context.Context, q, orderBy string) ([]adapter.FileMetadata, error) {
	call := d.service.Files.List().
		Q(q).
		Spaces("drive").
		PageSize(200).
		Fields(googleapi.Field(listFields)).
		Context(ctx)
	if orderBy != "" {
		call = call.OrderBy(orderBy)
	}

	files := []adapter.FileMetadata{}
	err := call.Pages(ctx, func(r *drive.FileList) error {
		for _, f := range r.Files {
			files = append(files, toMetadata(f))
		}
		return nil
	})
	if err != nil {
		return nil, classify("list files", err)
	}
	return files, nil
}

// FindFolders returns folders named exactly name directly under parentID.
func (d *DriveAdapter) FindFolders(ctx context.Context, parentID, name string) ([]adapter.FileMetadata, error) {
	q := fmt.Sprintf("name = %s and mimeType = %s and %s in parents and trashed = false",
		quote(name), quote(adapter.MIMEFolder), quote(parentID))
	return d.list(ctx, q, "")
}

// ListChildren lists the direct children of a folder.
func (d *DriveAdapter) ListChildren(ctx context.Context, folderID string) ([]adapter.FileMetadata, error) {
	q := fmt.Sprintf("%s in parents and trashed = false", quote(folderID))
	return d.list(ctx, q, "folder, name")
}

// FindFiles returns non-folder entries named exactly name directly under folderID.
func (d *DriveAdapter) FindFiles(ctx context.Context, folderID, name string) ([]adapter.FileMetadata, error) {
	q := fmt.Sprintf("name = %s and mimeType != %s and %s in parents and trashed = false",
		quote(name), quote(adapter.MIMEFolder), quote(folderID))
	return d.list(ctx, q, "")
}

// CreateFolder creates a new folder.
func (d *DriveAdapter) CreateFolder(ctx context.Context, name, parentID string) (*adapter.FileMetadata, error) {
	f := &drive.File{
		Name:     name,
		MimeType: adapter.MIMEFolder,
		Parents:  []string{parentID},
	}

	res, err := d.service.Files.Create(f).
		Fields(fileFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("create folder", err)
	}
	meta := toMetadata(res)
	return &meta, nil
}

// Upload creates a new file in the specified folder from r.
func (d *DriveAdapter) Upload(ctx context.Context, name, mimeType string, r io.Reader, parentID string) (*adapter.FileMetadata, error) {
	f := &drive.File{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{parentID},
	}
	res, err := d.service.Files.Create(f).
		Media(r, googleapi.ContentType(mimeType)).
		SupportsAllDrives(true).
		Fields(fileFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("upload file", err)
	}
	meta := toMetadata(res)
	return &meta, nil
}

// Rename renames a file.
func (d *DriveAdapter) Rename(ctx context.Context, fileID, newName string) (*adapter.FileMetadata, error) {
	res, err := d.service.Files.Update(fileID, &drive.File{Name: newName}).
		SupportsAllDrives(true).
		Fields(fileFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("rename file", err)
	}
	meta := toMetadata(res)
	return &meta, nil
}

// Move removes fromParentID and adds toParentID in a single update.
func (d *DriveAdapter) Move(ctx context.Context, fileID, fromParentID, toParentID string) (*adapter.FileMetadata, error) {
	res, err := d.service.Files.Update(fileID, &drive.File{}).
		AddParents(toParentID).
		RemoveParents(fromParentID).
		SupportsAllDrives(true).
		Fields(fileFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("move file", err)
	}
	meta := toMetadata(res)
	return &meta, nil
}

// Trash sets the trashed flag on a file.
func (d *DriveAdapter) Trash(ctx context.Context, fileID string) error {
	f := &drive.File{Trashed: true}
	f.ForceSendFields = []string{"Trashed"}

	_, err := d.service.Files.Update(fileID, f).
		SupportsAllDrives(true).
		Fields("id, trashed").
		Context(ctx).
		Do()
	if err != nil {
		return classify("trash file", err)
	}
	return nil
}

// ExportText exports a Google Docs or Slides file as text/plain.
func (d *DriveAdapter) ExportText(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := d.service.Files.Export(fileID, adapter.MIMEPlainText).Context(ctx).Download()
	if err != nil {
		return nil, classify("export file", err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify("read export", err)
	}
	return content, nil
}

// Download opens a stored (non-native) file's content.
func (d *DriveAdapter) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := d.service.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, classify("download file", err)
	}
	return resp.Body, nil
}

// classify maps Drive API failures onto the adapter sentinels.
func classify(op string, err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch {
		case gErr.Code == http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, adapter.ErrNotFound)
		case gErr.Code == http.StatusUnauthorized:
			return fmt.Errorf("%s: %w", op, adapter.ErrUnauthenticated)
		case gErr.Code == http.StatusForbidden && !isRateLimited(gErr):
			return fmt.Errorf("%s: %w", op, adapter.ErrForbidden)
		case gErr.Code == http.StatusForbidden,
			gErr.Code == http.StatusTooManyRequests,
			gErr.Code >= http.StatusInternalServerError:
			return fmt.Errorf("%s: %v: %w", op, gErr.Message, adapter.ErrUnavailable)
		}
	}
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		return fmt.Errorf("%s: %v: %w", op, rErr, adapter.ErrUnauthenticated)
	}
	// Connection failures surface as *url.Error, which implements net.Error.
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return fmt.Errorf("%s: %v: %w", op, err, adapter.ErrUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isRateLimited(gErr *googleapi.Error) bool {
	for _, item := range gErr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "dailyLimitExceeded":
			return true
		}
	}
	return false
}
