// Package extract provides format-dispatched text extraction for uploaded
// documents.
//
// Dispatch is by file extension. Unsupported extensions return
// ErrUnsupportedFormat, a typed error callers branch on; extraction problems
// of any other kind return ErrExtractionFailed. Extraction has no side
// effects beyond reading the file (and invoking the external pdftotext /
// tesseract binaries for PDF and image formats).
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Sentinel errors for extraction.
var (
	// ErrUnsupportedFormat is returned for extensions with no registered handler.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrExtractionFailed is returned when a handler cannot produce text.
	ErrExtractionFailed = errors.New("text extraction failed")
)

// Config holds extraction limits.
type Config struct {
	// MaxFileSize bounds the size of documents read into memory.
	MaxFileSize int64
}

// Service extracts plain text from documents on disk.
type Service struct {
	cfg    Config
	runner CommandRunner
	logger *zap.Logger
}

// NewService creates an extraction service.
//
// runner executes the external pdftotext and tesseract binaries; pass
// NewExecRunner() outside of tests.
func NewService(cfg Config, runner CommandRunner, logger *zap.Logger) *Service {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 32 * 1024 * 1024
	}
	return &Service{
		cfg:    cfg,
		runner: runner,
		logger: logger.Named("extract"),
	}
}

// Supported reports whether the extension (with leading dot) has a handler.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".txt", ".md", ".json", ".html", ".htm", ".docx", ".pdf", ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// Extract returns the plain text of the document at path.
//
// Returns ErrUnsupportedFormat for unknown extensions and ErrExtractionFailed
// (wrapped with detail) for anything else that goes wrong. An empty string
// with a nil error means the document genuinely contains no text.
func (s *Service) Extract(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: stat %s: %v", ErrExtractionFailed, filepath.Base(path), err)
	}
	if info.Size() > s.cfg.MaxFileSize {
		return "", fmt.Errorf("%w: %s is %d bytes, limit %d", ErrExtractionFailed, filepath.Base(path), info.Size(), s.cfg.MaxFileSize)
	}

	var text string
	switch ext {
	case ".txt", ".md":
		text, err = extractPlain(path)
	case ".json":
		text, err = extractJSON(path)
	case ".html", ".htm":
		text, err = extractHTML(path)
	case ".docx":
		text, err = extractDOCX(path)
	case ".pdf":
		text, err = s.extractPDF(ctx, path)
	case ".png", ".jpg", ".jpeg":
		text, err = s.extractImage(ctx, path)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		s.logger.Warn("extraction failed",
			zap.String("path", filepath.Base(path)),
			zap.String("ext", ext),
			zap.Error(err))
		return "", err
	}

	return text, nil
}
