package extract

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/poiesic/docqa/core"
)

// CommandRunner runs an external command and returns its standard output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner runs commands with os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, ErrPDFToolNotFound
	}
	return exec.CommandContext(ctx, name, args...).Output()
}

// PDFToText extracts PDF text with poppler's pdftotext in layout mode.
// It does not extract images.
type PDFToText struct {
	runner CommandRunner
}

var _ Strategy = (*PDFToText)(nil)

// Extract implements Strategy.
func (p *PDFToText) Extract(ctx context.Context, doc *core.SourceDocument, _ ImageSink) error {
	out, err := p.runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", doc.ID, "-")
	if errors.Is(err, ErrPDFToolNotFound) {
		return fmt.Errorf("%w: %w", core.ErrInvalidConfiguration, err)
	}
	if err != nil {
		return fmt.Errorf("%w: pdftotext failed: %w", core.ErrCorruptDocument, err)
	}
	doc.Pages = splitPages(string(out))
	return nil
}
