package ocr

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Local extracts text with command line tools: pdftotext for PDFs,
// tesseract for scanned images.
type Local struct {
	pdfToTextPath string
	tesseractPath string
}

// NewLocal creates a Local extractor. Empty paths fall back to the
// binary names resolved via PATH.
func NewLocal(pdfToTextPath, tesseractPath string) *Local {
	if pdfToTextPath == "" {
		pdfToTextPath = "pdftotext"
	}
	if tesseractPath == "" {
		tesseractPath = "tesseract"
	}
	return &Local{pdfToTextPath: pdfToTextPath, tesseractPath: tesseractPath}
}

// ExtractText dispatches by file extension: PDFs go through
// pdftotext -layout, supported image formats through tesseract.
func (l *Local) ExtractText(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".pdf" {
		return l.run(ctx, path, l.pdfToTextPath, "-layout", path, "-")
	}
	if imageMIME(ext) != "" {
		return l.run(ctx, path, l.tesseractPath, path, "stdout")
	}
	return "", eris.Errorf("ocr: unsupported file type %q", ext)
}

func (l *Local) run(ctx context.Context, path, bin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: %s failed for %s: %s",
			filepath.Base(bin), path, stderr.String())
	}

	return stdout.String(), nil
}
