package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// extractPDF shells out to pdftotext, writing to stdout.
func (s *Service) extractPDF(ctx context.Context, path string) (string, error) {
	out, err := s.runner.Run(ctx, "pdftotext", "-layout", path, "-")
	if err != nil {
		return "", fmt.Errorf("%w: pdftotext %s: %v", ErrExtractionFailed, filepath.Base(path), err)
	}
	return strings.ToValidUTF8(string(out), ""), nil
}

// extractImage runs tesseract OCR on an image, writing to stdout.
func (s *Service) extractImage(ctx context.Context, path string) (string, error) {
	out, err := s.runner.Run(ctx, "tesseract", path, "stdout")
	if err != nil {
		return "", fmt.Errorf("%w: tesseract %s: %v", ErrExtractionFailed, filepath.Base(path), err)
	}
	return strings.ToValidUTF8(string(out), ""), nil
}
