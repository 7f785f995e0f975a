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


package core

import "errors"

var (
	// ErrUnsupportedFormat indicates a file extension no extractor handles.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrCorruptDocument indicates a document could not be parsed.
	ErrCorruptDocument = errors.New("corrupt document")

	// ErrInvalidConfiguration indicates parameters that cannot be used.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrEmbeddingService indicates the embedding service failed a request.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrDimensionMismatch indicates a vector does not match the index dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrCorruptIndex indicates a persisted index has an unknown format or version,
	// or could not be decoded.
	ErrCorruptIndex = errors.New("corrupt index")

	// ErrInvalidQuery indicates an empty question or invalid retrieval parameters.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrSynthesisService indicates the chat-completion service failed a request.
	ErrSynthesisService = errors.New("synthesis service error")

	// ErrNothingIndexed indicates a question was asked before anything was ingested.
	ErrNothingIndexed = errors.New("nothing indexed yet")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidImageRef indicates an ImageRef failed validation.
	ErrInvalidImageRef = errors.New("invalid image reference")

	// ErrEmptyVector indicates an index entry without an embedding.
	ErrEmptyVector = errors.New("vector cannot be empty")

	// ErrMalformedData indicates encoded bytes declare more data than they hold.
	ErrMalformedData = errors.New("malformed encoded data")
)
