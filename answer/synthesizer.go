// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/docqa/ai"
	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/search"
)

const (
	// DefaultMaxContextChars bounds the context section of a prompt.
	DefaultMaxContextChars = 12000

	// DefaultSnippetLength is the citation snippet length in runes.
	DefaultSnippetLength = search.DefaultSnippetLength
)

// Synthesizer produces answers from retrieval results with a chat model.
// It is safe for concurrent use.
type Synthesizer struct {
	completer  ai.Completer
	maxContext int
	snippetLen int
	logger     *slog.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer) error

// WithMaxContextChars sets the context budget in runes.
func WithMaxContextChars(n int) Option {
	return func(s *Synthesizer) error {
		if n < 1 {
			return fmt.Errorf("%w: max context chars must be positive, got %d", core.ErrInvalidConfiguration, n)
		}
		s.maxContext = n
		return nil
	}
}

// WithSnippetLength sets the length of citation snippets. Zero disables snippets.
func WithSnippetLength(n int) Option {
	return func(s *Synthesizer) error {
		if n < 0 {
			return fmt.Errorf("%w: snippet length cannot be negative", core.ErrInvalidConfiguration)
		}
		s.snippetLen = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Synthesizer) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSynthesizer creates a synthesizer that calls completer once per answer.
func NewSynthesizer(completer ai.Completer, opts ...Option) (*Synthesizer, error) {
	if completer == nil {
		return nil, ErrCompleterRequired
	}

	s := &Synthesizer{
		completer:  completer,
		maxContext: DefaultMaxContextChars,
		snippetLen: DefaultSnippetLength,
		logger:     slog.Default().With("component", "synthesizer"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Synthesize answers result.Question from result's chunks. The images of the
// result are returned unmodified whether or not they made it into the prompt.
func (s *Synthesizer) Synthesize(ctx context.Context, result *core.RetrievalResult) (*core.Answer, error) {
	if result == nil {
		return nil, ErrResultRequired
	}

	ans := &core.Answer{
		Question: result.Question,
		Images:   result.Images,
	}

	prompt := BuildPrompt(result, s.maxContext)
	if prompt.Empty() {
		s.logger.Debug("no context fits, skipping model call",
			"chunks", len(result.Chunks), "budget", s.maxContext)
		ans.Text = NoContextReply
		return ans, nil
	}
	if dropped := len(result.Chunks) - len(prompt.Chunks); dropped > 0 {
		s.logger.Debug("context budget reached", "kept", len(prompt.Chunks), "dropped", dropped)
	}

	start := time.Now()
	text, err := s.completer.Complete(ctx, prompt.System, prompt.User)
	if err != nil {
		s.logger.Error("synthesis failed", "err", err)
		if errors.Is(err, core.ErrSynthesisService) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrSynthesisService, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty reply", core.ErrSynthesisService)
	}

	s.logger.Debug("answer synthesized",
		"chunks", len(prompt.Chunks),
		"images", len(prompt.Images),
		"context_chars", prompt.ContextChars,
		"duration", time.Since(start))

	ans.Text = text
	ans.Citations = s.citations(result.Question, prompt.Chunks)
	return ans, nil
}

func (s *Synthesizer) citations(question string, chunks []core.ScoredChunk) []core.Citation {
	out := make([]core.Citation, len(chunks))
	for i, sc := range chunks {
		out[i] = core.Citation{
			ChunkID:    sc.Chunk.ID,
			DocumentID: sc.Chunk.DocumentID,
			Pages:      sc.Chunk.Pages,
			Score:      sc.Score,
		}
		if s.snippetLen > 0 {
			out[i].Snippet = search.Snippet(sc.Chunk.Text, question, s.snippetLen)
		}
	}
	return out
}
