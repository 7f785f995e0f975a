package chunk

import (
	"fmt"

	"github.com/poiesic/docqa/core"
)

var (
	// ErrInvalidChunkSize indicates the chunk size is not positive.
	ErrInvalidChunkSize = fmt.Errorf("%w: chunk size must be positive", core.ErrInvalidConfiguration)

	// ErrInvalidOverlap indicates the overlap is negative or not smaller than the chunk size.
	ErrInvalidOverlap = fmt.Errorf("%w: overlap must satisfy 0 <= overlap < chunk size", core.ErrInvalidConfiguration)

	// ErrInvalidTolerance indicates a negative tolerance window.
	ErrInvalidTolerance = fmt.Errorf("%w: tolerance cannot be negative", core.ErrInvalidConfiguration)
)
