package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// extractPlain reads .txt and .md files, dropping invalid UTF-8 bytes.
func extractPlain(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrExtractionFailed, filepath.Base(path), err)
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

// extractJSON parses a JSON document and re-renders it indented so keys and
// values become searchable prose-ish text.
func extractJSON(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrExtractionFailed, filepath.Base(path), err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return "", fmt.Errorf("%w: parse %s: %v", ErrExtractionFailed, filepath.Base(path), err)
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: render %s: %v", ErrExtractionFailed, filepath.Base(path), err)
	}
	return string(pretty), nil
}
