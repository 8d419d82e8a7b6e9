// Package ingest reads invoice documents from disk and produces plain
// text for extraction. PDFs and scanned images go through the ocr
// package; text files are read as-is. Every document is content-hashed
// for duplicate detection.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/agenticap/invoice-cli/internal/config"
	"github.com/agenticap/invoice-cli/internal/ocr"
)

// Document is the ingested form of one invoice file.
type Document struct {
	FileName string
	FilePath string
	Format   string
	Hash     string
	Text     string
}

// Reader turns a file path into a Document.
type Reader interface {
	Read(ctx context.Context, path string) (*Document, error)
}

// FileReader reads PDF, image, and plain-text invoices from the
// filesystem.
type FileReader struct {
	extractor   ocr.Extractor
	maxFileSize int64
}

// NewFileReader builds a FileReader from ingest configuration with the
// given OCR backend for non-text formats.
func NewFileReader(cfg config.IngestConfig, extractor ocr.Extractor) *FileReader {
	return &FileReader{
		extractor:   extractor,
		maxFileSize: cfg.MaxFileSize,
	}
}

// Read ingests one document. Unsupported extensions and oversized
// files are rejected before any content is read.
func (r *FileReader) Read(ctx context.Context, path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: stat %s", path)
	}
	if r.maxFileSize > 0 && info.Size() > r.maxFileSize {
		return nil, eris.Errorf("ingest: %s is %d bytes, exceeds limit of %d", path, info.Size(), r.maxFileSize)
	}

	format, err := formatFor(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}

	var text string
	if format == "text" {
		text = string(data)
	} else {
		text, err = r.extractor.ExtractText(ctx, path)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: extract text from %s", path)
		}
	}

	doc := &Document{
		FileName: filepath.Base(path),
		FilePath: path,
		Format:   format,
		Hash:     HashBytes(data),
		Text:     text,
	}
	zap.L().Debug("document ingested",
		zap.String("file", doc.FileName),
		zap.String("format", doc.Format),
		zap.Int("text_bytes", len(doc.Text)))
	return doc, nil
}

func formatFor(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return "pdf", nil
	case ".txt", ".md":
		return "text", nil
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff":
		return "image", nil
	default:
		return "", eris.Errorf("ingest: unsupported format %q", ext)
	}
}

// Supported reports whether the file extension maps to an ingestible
// format.
func Supported(path string) bool {
	_, err := formatFor(path)
	return err == nil
}

// HashBytes returns the hex SHA-256 digest of raw file content.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
