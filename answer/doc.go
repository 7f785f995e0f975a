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


// Package answer turns retrieval results into natural-language answers.
//
// A Synthesizer packs the highest-scoring chunks into a bounded prompt,
// describes the co-located images in text, and makes exactly one call to a
// chat-completion model. Chunks are never truncated: when the budget runs out
// the remaining lower-scoring chunks are left out. Upstream failures surface as
// core.ErrSynthesisService and are not retried.
//
// Basic usage:
//
//	synth, err := answer.NewSynthesizer(provider.Completer(),
//		answer.WithMaxContextChars(12000),
//	)
//	if err != nil {
//		return err
//	}
//	result, err := retriever.Retrieve(ctx, "Where is the ridge vent damage?")
//	if err != nil {
//		return err
//	}
//	ans, err := synth.Synthesize(ctx, result)
package answer
