package extract

import (
	"context"
	"os/exec"
)

// CommandRunner executes an external command and returns its stdout.
//
// It exists so PDF and OCR extraction can be exercised in tests without
// the pdftotext/tesseract binaries installed.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner runs commands via os/exec.
type execRunner struct{}

// NewExecRunner returns a CommandRunner backed by os/exec.
func NewExecRunner() CommandRunner {
	return execRunner{}
}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
