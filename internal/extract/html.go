package extract

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Pre-compiled expressions for tag stripping.
var (
	scriptTag     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag      = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag   = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	htmlComments  = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockOpenTag  = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article|br)[^>]*>`)
	allTags       = regexp.MustCompile(`<[^>]+>`)
	multiSpaces   = regexp.MustCompile(`[ \t]+`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// extractHTML strips markup from an HTML document, keeping block structure
// as line breaks and decoding entities.
func extractHTML(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrExtractionFailed, filepath.Base(path), err)
	}
	return stripHTML(strings.ToValidUTF8(string(data), "")), nil
}

func stripHTML(content string) string {
	content = scriptTag.ReplaceAllString(content, "")
	content = styleTag.ReplaceAllString(content, "")
	content = noscriptTag.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")
	content = blockOpenTag.ReplaceAllString(content, "\n")
	content = allTags.ReplaceAllString(content, " ")
	content = html.UnescapeString(content)
	content = multiSpaces.ReplaceAllString(content, " ")
	content = multiNewlines.ReplaceAllString(content, "\n\n")

	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}
