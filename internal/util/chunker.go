package util

import "fmt"

// Window is one chunk of source text with its rune offsets into the input.
type Window struct {
	Text      string `json:"text"`
	CharStart int    `json:"char_start"`
	CharEnd   int    `json:"char_end"`
}

// ChunkText splits text into overlapping sliding windows. Offsets are rune
// offsets, half-open [CharStart, CharEnd). The windows cover the whole input
// with no gaps and the final window always ends exactly at the text length.
func ChunkText(text string, chunkSize, overlap int) ([]Window, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidArgument, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap must be in [0, chunk size), got %d", ErrInvalidArgument, overlap)
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}
	out := make([]Window, 0, len(runes)/(chunkSize-overlap)+1)
	start := 0
	for {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, Window{
			Text:      string(runes[start:end]),
			CharStart: start,
			CharEnd:   end,
		})
		if end == len(runes) {
			break
		}
		start = end - overlap
	}
	return out, nil
}
