package answer

import "errors"

var (
	// ErrCompleterRequired is returned when a completer is not provided.
	ErrCompleterRequired = errors.New("completer required")

	// ErrResultRequired is returned when Synthesize is called without a retrieval result.
	ErrResultRequired = errors.New("retrieval result required")
)
