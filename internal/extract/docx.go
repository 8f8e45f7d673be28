package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// documentXML mirrors the parts of word/document.xml we read.
type documentXML struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

// extractDOCX pulls paragraph text out of the OOXML document part.
func extractDOCX(path string) (string, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s as zip: %v", ErrExtractionFailed, filepath.Base(path), err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("%w: open document part: %v", ErrExtractionFailed, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("%w: read document part: %v", ErrExtractionFailed, err)
		}
		return parseDocumentXML(content)
	}

	return "", fmt.Errorf("%w: %s has no word/document.xml", ErrExtractionFailed, filepath.Base(path))
}

func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("%w: parse document xml: %v", ErrExtractionFailed, err)
	}

	var b strings.Builder
	for i, para := range doc.Body.Paragraphs {
		if i > 0 {
			b.WriteString("\n")
		}
		for _, run := range para.Runs {
			for _, text := range run.Text {
				b.WriteString(text.Content)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}
