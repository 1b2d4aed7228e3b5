// Package extract pulls plain text out of the document kinds SUMMARY
// understands.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/jun/drivechat/internal/adapter"
	"github.com/jun/drivechat/internal/markdown"
)

// Format is the decoder used for a document.
type Format string

const (
	FormatNative   Format = "native"
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
)

const DefaultMaxBytes = 20 << 20

// ErrTooLarge is returned for a document above the download cap.
var ErrTooLarge = errors.New("document too large to extract")

// Document is the text of one file.
type Document struct {
	Name   string
	Text   string
	Format Format
}

// Classify reports which decoder handles f, if any.
func Classify(f adapter.FileMetadata) (Format, bool) {
	switch f.MIMEType {
	case adapter.MIMEGoogleDoc, adapter.MIMEGoogleSlides:
		return FormatNative, true
	case adapter.MIMEPDF:
		return FormatPDF, true
	case adapter.MIMEDocx:
		return FormatDOCX, true
	case adapter.MIMEMarkdown:
		return FormatMarkdown, true
	case adapter.MIMECSV:
		return FormatCSV, true
	}

	switch strings.ToLower(path.Ext(f.Name)) {
	case ".md", ".markdown":
		return FormatMarkdown, true
	case ".txt":
		return FormatText, true
	case ".csv":
		return FormatCSV, true
	}
	if strings.HasPrefix(f.MIMEType, "text/plain") {
		return FormatText, true
	}
	return "", false
}

// Extractor decodes documents fetched from a storage adapter.
type Extractor struct {
	md       *markdown.Renderer
	maxBytes int64
}

// New creates an Extractor. maxBytes <= 0 uses DefaultMaxBytes.
func New(md *markdown.Renderer, maxBytes int64) *Extractor {
	if md == nil {
		md = markdown.NewRenderer()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Extractor{md: md, maxBytes: maxBytes}
}

// Extract fetches f and returns its plain text.
func (e *Extractor) Extract(ctx context.Context, a adapter.StorageAdapter, f adapter.FileMetadata) (*Document, error) {
	format, ok := Classify(f)
	if !ok {
		return nil, fmt.Errorf("unsupported type %s", f.MIMEType)
	}

	var (
		raw []byte
		err error
	)
	if format == FormatNative {
		raw, err = a.ExportText(ctx, f.ID)
	} else {
		raw, err = e.download(ctx, a, f.ID)
	}
	if err != nil {
		return nil, err
	}

	text, err := e.decode(format, raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	return &Document{Name: f.Name, Text: strings.TrimSpace(text), Format: format}, nil
}

func (e *Extractor) download(ctx context.Context, a adapter.StorageAdapter, fileID string) ([]byte, error) {
	rc, err := a.Download(ctx, fileID)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	raw, err := io.ReadAll(io.LimitReader(rc, e.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if int64(len(raw)) > e.maxBytes {
		return nil, ErrTooLarge
	}
	return raw, nil
}

// Decode converts raw content in the given format to text.
func (e *Extractor) decode(format Format, raw []byte) (string, error) {
	switch format {
	case FormatNative, FormatText:
		return plain(raw), nil
	case FormatMarkdown:
		return e.md.Text(raw), nil
	case FormatCSV:
		return table(raw), nil
	case FormatPDF:
		return pdfText(raw)
	case FormatDOCX:
		return docxText(raw, e.maxBytes*docxExpansion)
	}
	return "", fmt.Errorf("no decoder for %s", format)
}

// plain drops a UTF-8 BOM and any invalid byte sequences.
func plain(raw []byte) string {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	return strings.ToValidUTF8(string(raw), "")
}
