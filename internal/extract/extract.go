// Package extract recovers plain text from user-supplied URLs and
// uploaded files. Failures are per-document: callers continue with the
// documents that survive.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gonfva/docxlib"
	"github.com/ledongthuc/pdf"
)

var (
	// ErrNoText means the document yielded no usable text.
	ErrNoText = errors.New("no meaningful text could be extracted")

	// ErrUnsupportedFormat means the file type is not recognized.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// A URL or file has to produce at least this much text to count as a
// meaningful extraction.
const minTextLength = 50

// Document is extracted plain text plus the identifier it came from.
type Document struct {
	Source string
	Text   string
}

// FromFile extracts text from uploaded file bytes by extension:
// txt and csv as-is, pdf page by page, docx paragraph by paragraph.
func FromFile(name string, data []byte) (*Document, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))

	var text string
	var err error

	switch ext {
	case "txt", "csv":
		text = decodeText(data)
	case "pdf":
		text, err = pdfText(data)
	case "docx", "doc":
		text, err = docxText(data)
	default:
		return nil, fmt.Errorf("%w: .%s", ErrUnsupportedFormat, ext)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to extract text from %s: %w", name, err)
	}

	if len(strings.TrimSpace(text)) < minTextLength {
		return nil, fmt.Errorf("%s: %w", name, ErrNoText)
	}

	return &Document{Source: name, Text: text}, nil
}

// decodeText is a best-effort UTF-8 decode: invalid bytes are dropped
// rather than failing the document.
func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}

func pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var text strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page doesn't fail the document.
			continue
		}
		text.WriteString(pageText)
		text.WriteString("\n")
	}

	return text.String(), nil
}

func docxText(data []byte) (string, error) {
	doc, err := docxlib.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse DOCX: %w", err)
	}

	var text strings.Builder
	for _, paragraph := range doc.Paragraphs() {
		var line strings.Builder
		for _, child := range paragraph.Children() {
			if child.Run != nil && child.Run.Text != nil {
				line.WriteString(child.Run.Text.Text)
			}
			if child.Link != nil && child.Link.Run.Text != nil {
				line.WriteString(child.Link.Run.Text.Text)
			}
		}
		if trimmed := strings.TrimSpace(line.String()); trimmed != "" {
			text.WriteString(trimmed)
			text.WriteString("\n")
		}
	}

	return text.String(), nil
}
