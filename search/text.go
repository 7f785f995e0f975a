package search

import "strings"

// DefaultSnippetLength is the length, in characters, of citation snippets.
const DefaultSnippetLength = 200

// Stop words to filter out when looking for question keywords
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "what": true, "which": true, "how": true, "does": true,
}

// tokenizeAndFilter splits text into words, lowercases, trims punctuation, and removes stop words
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		// Lowercase and trim punctuation
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))

		// Skip stop words and empty strings
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// Snippet returns at most length characters of text with whitespace collapsed.
// When the text is longer, the excerpt is centred on the first keyword of
// question that occurs in it and elided with "..." on the cut sides.
func Snippet(text, question string, length int) string {
	if length < 1 {
		length = DefaultSnippetLength
	}
	runes := []rune(strings.Join(strings.Fields(text), " "))
	if len(runes) <= length {
		return string(runes)
	}

	start := 0
	if pos := keywordPosition(runes, question); pos > 0 {
		start = max(0, min(pos-length/2, len(runes)-length))
	}
	end := start + length

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(strings.TrimSpace(string(runes[start:end])))
	if end < len(runes) {
		b.WriteString("...")
	}
	return b.String()
}

// keywordPosition returns the rune offset of the earliest question keyword in
// runes, or -1.
func keywordPosition(runes []rune, question string) int {
	lower := []rune(strings.ToLower(string(runes)))
	if len(lower) != len(runes) {
		// case mapping changed the length; offsets would not line up
		return -1
	}
	haystack := string(lower)

	best := -1
	for _, word := range tokenizeAndFilter(question) {
		i := strings.Index(haystack, word)
		if i < 0 {
			continue
		}
		pos := len([]rune(haystack[:i]))
		if best < 0 || pos < best {
			best = pos
		}
	}
	return best
}
