package answer

import (
	"fmt"
	"strings"

	"github.com/poiesic/docqa/core"
)

// NoContextReply is returned without calling the model when nothing relevant
// could be placed in the prompt.
const NoContextReply = "I couldn't find any relevant documents to answer your question. " +
	"Please try rephrasing your query or check if documents have been properly indexed."

const systemPrompt = `You are a helpful assistant that answers questions about inspection reports using only the provided context documents.

Guidelines:
1. Answer the question accurately from the provided context.
2. If the information is not in the context, say so clearly.
3. Cite the documents you rely on by file name and page.
4. Treat DIAGRAM/IMAGE references as visual evidence that may hold charts, photos, technical diagrams or measurements.
5. When an image is relevant, suggest that the user view the referenced diagrams/images for visual details.
6. Be concise but complete.
7. If documents disagree, point out the difference and reconcile it where possible.`

const userPromptTemplate = `Based on the following context documents, please answer this question: %s

Context Documents:
%s
Please provide a complete answer based on the available information.`

// Prompt is a fully rendered model request together with the material it holds.
type Prompt struct {
	System string
	User   string

	// Chunks are the chunks placed in the context, in the order they appear.
	Chunks []core.ScoredChunk

	// Images are the image descriptions placed in the context.
	Images []core.ImageRef

	// ContextChars is the rune length of the rendered context section.
	ContextChars int
}

// Empty reports whether no chunk fit in the context.
func (p *Prompt) Empty() bool {
	return len(p.Chunks) == 0
}

// BuildPrompt renders the prompt for result with a context section of at most
// maxChars runes. Chunks are taken in descending score order and the first one
// that would overflow the budget ends the selection. Image descriptions follow
// the chunks and are only added for pages the selected chunks cover, while
// budget remains.
func BuildPrompt(result *core.RetrievalResult, maxChars int) *Prompt {
	p := &Prompt{System: systemPrompt}

	var sections []string
	used := 0
	fits := func(s string) bool {
		n := len([]rune(s))
		if len(sections) > 0 {
			n++ // separator
		}
		if used+n > maxChars {
			return false
		}
		used += n
		return true
	}

	covered := make(map[core.PageKey]struct{})
	for _, sc := range result.Chunks {
		section := chunkSection(len(sections)+1, &sc)
		if !fits(section) {
			break
		}
		sections = append(sections, section)
		p.Chunks = append(p.Chunks, sc)
		for _, k := range sc.Chunk.Keys() {
			covered[k] = struct{}{}
		}
	}

	if len(p.Chunks) > 0 {
		for _, img := range result.Images {
			if _, ok := covered[img.Key()]; !ok {
				continue
			}
			section := imageSection(len(sections)+1, &img)
			if !fits(section) {
				break
			}
			sections = append(sections, section)
			p.Images = append(p.Images, img)
		}
	}

	body := strings.Join(sections, "\n")
	p.ContextChars = used
	p.User = fmt.Sprintf(userPromptTemplate, strings.TrimSpace(result.Question), body)
	return p
}

func chunkSection(n int, sc *core.ScoredChunk) string {
	return fmt.Sprintf("Document %d:\n%s\nSource: %s\n", n, sc.Chunk.Text, sourceLine(sc.Chunk.DocumentID, sc.Chunk.Pages))
}

func imageSection(n int, img *core.ImageRef) string {
	name := core.DocumentName(img.DocumentID)
	size := "unknown size"
	if img.Width > 0 && img.Height > 0 {
		size = fmt.Sprintf("%dx%d pixels", img.Width, img.Height)
	}
	desc := fmt.Sprintf("[DIAGRAM/IMAGE: Located on page %d of %s. Size: %s. "+
		"This is a visual element that may contain diagrams, charts, photos or technical illustrations relevant to the report.]",
		img.Page, name, size)
	return fmt.Sprintf("Document %d:\n%s\nSource: %s\n", n, desc, sourceLine(img.DocumentID, []int{img.Page}))
}

func sourceLine(documentID string, pages []int) string {
	name := core.DocumentName(documentID)
	switch len(pages) {
	case 0:
		return name
	case 1:
		return fmt.Sprintf("%s, page %s", name, core.PageList(pages))
	default:
		return fmt.Sprintf("%s, pages %s", name, core.PageList(pages))
	}
}
