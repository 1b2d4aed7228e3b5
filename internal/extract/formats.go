package extract

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"
)

// table renders CSV rows with " | " between cells. Content that does not
// parse as CSV is returned as plain text.
func table(raw []byte) string {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return plain(raw)
	}
	var b strings.Builder
	for _, rec := range records {
		b.WriteString(strings.Join(rec, " | "))
		b.WriteByte('\n')
	}
	return b.String()
}

func pdfText(raw []byte) (text string, err error) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	body, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	out, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return plain(out), nil
}

// docxExpansion bounds how far a DOCX package may inflate relative to the
// download cap.
const docxExpansion = 10

// docxText renders paragraphs as lines and table rows with " | " between
// cells. limit caps the declared uncompressed size of the package.
func docxText(raw []byte, limit int64) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed docx: %v", r)
		}
	}()

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	var (
		total   uint64
		hasBody bool
	)
	for _, f := range zr.File {
		total += f.UncompressedSize64
		if f.Name == "word/document.xml" {
			hasBody = true
		}
	}
	if !hasBody {
		return "", errors.New("docx has no word/document.xml")
	}
	if total > uint64(limit) {
		return "", fmt.Errorf("docx expands to %d bytes: %w", total, ErrTooLarge)
	}

	doc, err := docx.Parse(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("parse docx: %w", err)
	}

	var b strings.Builder
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			b.WriteString(it.String())
			b.WriteByte('\n')
		case *docx.Table:
			for _, row := range it.TableRows {
				cells := make([]string, 0, len(row.TableCells))
				for _, c := range row.TableCells {
					parts := make([]string, 0, len(c.Paragraphs))
					for _, p := range c.Paragraphs {
						parts = append(parts, p.String())
					}
					cells = append(cells, strings.Join(parts, " "))
				}
				b.WriteString(strings.Join(cells, " | "))
				b.WriteByte('\n')
			}
		}
	}
	return b.String(), nil
}
