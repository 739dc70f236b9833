package util

import (
	"errors"
	"strings"
	"testing"
)

func TestChunkTextOverlapOffsets(t *testing.T) {
	text := strings.Repeat("abcdefghij", 10) // 100 chars
	chunks, err := ChunkText(text, 20, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if chunks[0].CharStart != 0 || chunks[0].CharEnd != 20 {
		t.Fatalf("unexpected first window: %+v", chunks[0])
	}
	if chunks[1].CharStart != 15 || chunks[1].CharEnd != 35 {
		t.Fatalf("unexpected second window: %+v", chunks[1])
	}
	if chunks[len(chunks)-1].CharEnd != len(text) {
		t.Fatalf("last window must end at text length, got %d", chunks[len(chunks)-1].CharEnd)
	}
}

func TestChunkTextCoversWithoutGaps(t *testing.T) {
	text := strings.Repeat("x", 137)
	chunks, err := ChunkText(text, 40, 13)
	if err != nil {
		t.Fatal(err)
	}
	covered := 0
	endings := 0
	for _, c := range chunks {
		if c.CharStart > covered {
			t.Fatalf("gap before offset %d", c.CharStart)
		}
		if c.CharEnd > covered {
			covered = c.CharEnd
		}
		if c.CharEnd == len(text) {
			endings++
		}
	}
	if covered != len(text) {
		t.Fatalf("coverage ends at %d, want %d", covered, len(text))
	}
	if endings != 1 {
		t.Fatalf("exactly one window must end at text length, got %d", endings)
	}
}

func TestChunkTextShortInput(t *testing.T) {
	chunks, err := ChunkText("tiny", 800, 120)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected a single window, got %d", len(chunks))
	}
	if chunks[0].Text != "tiny" || chunks[0].CharStart != 0 || chunks[0].CharEnd != 4 {
		t.Fatalf("unexpected window: %+v", chunks[0])
	}
}

func TestChunkTextEmptyInput(t *testing.T) {
	chunks, err := ChunkText("", 800, 120)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no windows for empty text, got %d", len(chunks))
	}
}

func TestChunkTextInvalidParams(t *testing.T) {
	if _, err := ChunkText("abc", 0, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("zero chunk size: got %v", err)
	}
	if _, err := ChunkText("abc", 10, 10); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("overlap == size: got %v", err)
	}
	if _, err := ChunkText("abc", 10, -1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("negative overlap: got %v", err)
	}
}

func TestChunkTextRuneOffsets(t *testing.T) {
	text := "héllo wörld, héllo wörld"
	chunks, err := ChunkText(text, 10, 3)
	if err != nil {
		t.Fatal(err)
	}
	runes := []rune(text)
	for _, c := range chunks {
		if string(runes[c.CharStart:c.CharEnd]) != c.Text {
			t.Fatalf("offsets do not reproduce window text: %+v", c)
		}
	}
	if chunks[len(chunks)-1].CharEnd != len(runes) {
		t.Fatalf("last window must end at rune length %d", len(runes))
	}
}
