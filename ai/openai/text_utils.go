package openai

import (
	"context"
	"strings"
	"time"
	"unicode"
)

// cleanText replaces invalid UTF-8 and drops control characters other than
// newlines and tabs. PDF text layers often carry NULs and form feeds that some
// servers reject.
func cleanText(s string) string {
	s = strings.ToValidUTF8(s, "�")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == '\f' || r == '\r' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// requestOptions holds per-request settings shared by the embedder and completer.
type requestOptions struct {
	requestTimeout time.Duration
}

// withTimeout derives a context bounded by the request timeout. A zero timeout
// leaves the context unchanged.
func (o requestOptions) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.requestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, o.requestTimeout)
}
