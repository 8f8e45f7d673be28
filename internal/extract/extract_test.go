package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockRunner is a test double for CommandRunner.
type mockRunner struct {
	output []byte
	err    error
	calls  [][]string
}

func (m *mockRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	m.calls = append(m.calls, append([]string{name}, args...))
	return m.output, m.err
}

func newTestService(runner CommandRunner) *Service {
	if runner == nil {
		runner = &mockRunner{}
	}
	return NewService(Config{}, runner, zap.NewNop())
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(".pdf"))
	assert.True(t, Supported(".DOCX"))
	assert.True(t, Supported(".md"))
	assert.False(t, Supported(".xyz"))
	assert.False(t, Supported(""))
}

func TestExtractUnsupportedExtension(t *testing.T) {
	svc := newTestService(nil)
	path := writeFile(t, "report.xyz", []byte("data"))

	_, err := svc.Extract(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractMissingFile(t *testing.T) {
	svc := newTestService(nil)
	_, err := svc.Extract(context.Background(), filepath.Join(t.TempDir(), "absent.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtractPlainText(t *testing.T) {
	svc := newTestService(nil)
	path := writeFile(t, "notes.txt", []byte("hello world\nsecond line"))

	text, err := svc.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "hello world\nsecond line", text)
}

func TestExtractMarkdown(t *testing.T) {
	svc := newTestService(nil)
	path := writeFile(t, "readme.md", []byte("# Title\n\nBody text."))

	text, err := svc.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, text, "Body text.")
}

func TestExtractJSON(t *testing.T) {
	svc := newTestService(nil)
	path := writeFile(t, "data.json", []byte(`{"name":"acme","count":3}`))

	text, err := svc.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, text, `"name": "acme"`)
	assert.Contains(t, text, `"count": 3`)
}

func TestExtractJSONInvalid(t *testing.T) {
	svc := newTestService(nil)
	path := writeFile(t, "broken.json", []byte(`{"name":`))

	_, err := svc.Extract(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtractHTML(t *testing.T) {
	svc := newTestService(nil)
	page := `<html><head><title>t</title><style>p{color:red}</style></head>
<body><script>alert(1)</script><p>First &amp; foremost.</p><div>Second block.</div></body></html>`
	path := writeFile(t, "page.html", []byte(page))

	text, err := svc.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, text, "First & foremost.")
	assert.Contains(t, text, "Second block.")
	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "color:red")
}

func TestExtractDOCX(t *testing.T) {
	docXML := `<?xml version="1.0"?>
<document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <body>
    <p><r><t>First paragraph.</t></r></p>
    <p><r><t>Second </t></r><r><t>paragraph.</t></r></p>
  </body>
</document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(docXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	svc := newTestService(nil)
	path := writeFile(t, "memo.docx", buf.Bytes())

	text, err := svc.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "First paragraph.\nSecond paragraph.", text)
}

func TestExtractDOCXNotAZip(t *testing.T) {
	svc := newTestService(nil)
	path := writeFile(t, "memo.docx", []byte("plainly not a zip"))

	_, err := svc.Extract(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtractPDFUsesRunner(t *testing.T) {
	runner := &mockRunner{output: []byte("page one text")}
	svc := newTestService(runner)
	path := writeFile(t, "doc.pdf", []byte("%PDF-1.4"))

	text, err := svc.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "page one text", text)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "pdftotext", runner.calls[0][0])
}

func TestExtractPDFRunnerFailure(t *testing.T) {
	runner := &mockRunner{err: errors.New("binary not found")}
	svc := newTestService(runner)
	path := writeFile(t, "doc.pdf", []byte("%PDF-1.4"))

	_, err := svc.Extract(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtractImageOCR(t *testing.T) {
	runner := &mockRunner{output: []byte("scanned words")}
	svc := newTestService(runner)
	path := writeFile(t, "scan.png", []byte{0x89, 0x50, 0x4e, 0x47})

	text, err := svc.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "scanned words", text)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "tesseract", runner.calls[0][0])
}

func TestExtractFileTooLarge(t *testing.T) {
	svc := NewService(Config{MaxFileSize: 4}, &mockRunner{}, zap.NewNop())
	path := writeFile(t, "big.txt", []byte("more than four bytes"))

	_, err := svc.Extract(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
}
