package util

import "errors"

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNoExtractableText = errors.New("no extractable text found in PDF")
	ErrTooManyDocuments  = errors.New("too many documents for session")

	// EmbeddingFailed means retries were exhausted; it wraps the last cause.
	ErrEmbeddingFailed = errors.New("embedding failed after retries")

	ErrIndexWrite = errors.New("vector index write failed")
	ErrIndexQuery = errors.New("vector index query failed")
)
