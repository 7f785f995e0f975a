// Package chunk splits page text into overlapping windows for embedding.
//
// Windows are measured in characters (runes). A window ends at the best break
// found within a tolerance window before the size limit, preferring a blank
// line, then a newline, then the end of a sentence, then any whitespace. When
// none exists the window is cut at the limit. Consecutive windows share exactly
// the configured overlap, and together they cover the page text.
package chunk
