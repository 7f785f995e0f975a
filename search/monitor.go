package search

import (
	"github.com/poiesic/docqa/core"
)

// RetrievalMonitor provides hooks to observe the retrieval process.
// Implement this interface to track intermediate steps and results.
type RetrievalMonitor interface {
	Start(question string, k int)
	AfterEmbedding(dimension int)
	AfterSearch(chunks []core.ScoredChunk)
	AfterThreshold(kept, dropped int)
	AfterImageJoin(images []core.ImageRef)
	Finish(result *core.RetrievalResult)
}

// noopMonitor is a no-op implementation of RetrievalMonitor
type noopMonitor struct{}

var _ RetrievalMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ int)            {}
func (n *noopMonitor) AfterEmbedding(_ int)             {}
func (n *noopMonitor) AfterSearch(_ []core.ScoredChunk) {}
func (n *noopMonitor) AfterThreshold(_, _ int)          {}
func (n *noopMonitor) AfterImageJoin(_ []core.ImageRef) {}
func (n *noopMonitor) Finish(_ *core.RetrievalResult)   {}
