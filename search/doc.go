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


// Package search retrieves the chunks and images relevant to a question.
//
// The Retriever embeds the question with the same embedder used at ingestion,
// asks the index for the k most similar chunks and joins the images stored for
// the pages those chunks cover. The join is exact on (document, page); images
// carry no embedding of their own.
//
// An empty or whitespace-only question fails with core.ErrInvalidQuery before
// any embedding call is made. Querying an empty index fails with
// core.ErrNothingIndexed.
//
// Snippet produces the short excerpt shown with a citation, centred on the
// first question keyword found in the chunk.
package search
