package extract

import "errors"

var (
	// ErrUnknownStrategy indicates a configured strategy name that is not built in.
	ErrUnknownStrategy = errors.New("unknown extraction strategy")

	// ErrPDFToolNotFound indicates the pdftotext binary is not on PATH.
	ErrPDFToolNotFound = errors.New("pdftotext not found: install poppler-utils")
)
