package flashcards

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CoerceItems normalizes the shapes the generation model actually produces
// into a flat card list: a single card, a bare list, the wrapper object, or
// any of those serialized as text (optionally fenced). A shape it cannot
// resolve returns an error and an empty list; callers treat that as an
// empty round, not a failure.
func CoerceItems(output any) ([]Flashcard, error) {
	switch v := output.(type) {
	case nil:
		return nil, fmt.Errorf("coerce flashcards: nil output")
	case Flashcard:
		return []Flashcard{v}, nil
	case *Flashcard:
		if v == nil {
			return nil, fmt.Errorf("coerce flashcards: nil card")
		}
		return []Flashcard{*v}, nil
	case []Flashcard:
		return v, nil
	case FlashcardSet:
		return v.Flashcards, nil
	case *FlashcardSet:
		if v == nil {
			return nil, fmt.Errorf("coerce flashcards: nil set")
		}
		return v.Flashcards, nil
	case []byte:
		return coerceText(string(v))
	case string:
		return coerceText(v)
	case map[string]any, []any:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("coerce flashcards: re-encode: %w", err)
		}
		return coerceText(string(raw))
	default:
		return nil, fmt.Errorf("coerce flashcards: unsupported shape %T", output)
	}
}

func coerceText(raw string) ([]Flashcard, error) {
	raw = stripCodeFence(strings.TrimSpace(raw))
	if raw == "" {
		return nil, fmt.Errorf("coerce flashcards: empty output")
	}

	var set FlashcardSet
	if err := json.Unmarshal([]byte(raw), &set); err == nil && len(set.Flashcards) > 0 {
		return set.Flashcards, nil
	}
	var list []Flashcard
	if err := json.Unmarshal([]byte(raw), &list); err == nil && len(list) > 0 {
		return list, nil
	}
	var single Flashcard
	if err := json.Unmarshal([]byte(raw), &single); err == nil && strings.TrimSpace(single.Question) != "" {
		return []Flashcard{single}, nil
	}
	return nil, fmt.Errorf("coerce flashcards: no recognizable card shape in output")
}

// ExtractCitedIDs flattens every resolvable chunk id cited by the given
// cards. Duplicates are preserved; set semantics belong to the evaluator.
func ExtractCitedIDs(items []Flashcard) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		for _, c := range it.Citations {
			if id := strings.TrimSpace(c.Location.ChunkID); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func stripCodeFence(s string) string {
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
