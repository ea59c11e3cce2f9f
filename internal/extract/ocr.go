package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Recognizer turns a PDF into text when its embedded text layer is
// unusable. Implementations own the rendering and recognition details.
type Recognizer interface {
	Recognize(ctx context.Context, pdfData []byte) (string, error)
}

// ExecRecognizer shells out to pdftoppm and tesseract. Both binaries must be
// on PATH; missing tools surface as recognition errors, which the document
// extractor treats as a soft fallback.
type ExecRecognizer struct {
	workDir string
	logger  zerolog.Logger
}

// NewExecRecognizer constructs an OCR runner. workDir may be empty to use
// the system temp directory.
func NewExecRecognizer(workDir string, logger zerolog.Logger) *ExecRecognizer {
	return &ExecRecognizer{
		workDir: workDir,
		logger:  logger.With().Str("component", "ocr").Logger(),
	}
}

// Recognize renders the first page to an image and reads it with tesseract.
func (r *ExecRecognizer) Recognize(ctx context.Context, pdfData []byte) (string, error) {
	dir, err := os.MkdirTemp(r.workDir, "rbzocr-*")
	if err != nil {
		return "", fmt.Errorf("create ocr workdir: %w", err)
	}
	defer os.RemoveAll(dir)

	pdfPath := filepath.Join(dir, "sheet.pdf")
	if err := os.WriteFile(pdfPath, pdfData, 0o600); err != nil {
		return "", fmt.Errorf("write ocr input: %w", err)
	}

	render := exec.CommandContext(ctx, "pdftoppm", "-png", "-r", "300", "-f", "1", "-l", "1",
		pdfPath, filepath.Join(dir, "page"))
	if out, err := render.CombinedOutput(); err != nil {
		return "", fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(string(out)))
	}

	pages, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil || len(pages) == 0 {
		return "", errors.New("pdftoppm produced no page image")
	}

	recognize := exec.CommandContext(ctx, "tesseract", pages[0], "stdout")
	out, err := recognize.Output()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}

	text := string(out)
	r.logger.Debug().Int("chars", len(text)).Msg("ocr finished")
	return text, nil
}

var _ Recognizer = (*ExecRecognizer)(nil)
