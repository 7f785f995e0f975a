package extract

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/docqa/core"
)

// Text reads UTF-8 plain text and markdown. Form feeds separate pages.
type Text struct{}

var _ Strategy = (*Text)(nil)

// Extract implements Strategy.
func (t *Text) Extract(_ context.Context, doc *core.SourceDocument, _ ImageSink) error {
	data, err := os.ReadFile(doc.ID)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrCorruptDocument, err)
	}
	if !utf8.Valid(data) {
		return fmt.Errorf("%w: %s is not valid UTF-8", core.ErrCorruptDocument, doc.Name)
	}

	text := strings.TrimPrefix(string(data), "\ufeff")
	doc.Pages = splitPages(text)
	return nil
}

// splitPages splits on form feeds. A trailing form feed does not open an
// empty last page.
func splitPages(text string) []core.Page {
	parts := strings.Split(text, "\f")
	if len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	pages := make([]core.Page, len(parts))
	for i, p := range parts {
		pages[i] = core.Page{Number: i + 1, Text: strings.ReplaceAll(p, "\r\n", "\n")}
	}
	return pages
}
