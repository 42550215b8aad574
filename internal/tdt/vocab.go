package tdt

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadVocabulary reads a token vocabulary JSON file and returns a token
// ID -> subword mapping. The format is {"0": "▁the", "1": "▁a", ...}
// where keys are string token IDs.
func LoadVocabulary(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tdt: reading vocabulary: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("tdt: parsing vocabulary JSON: %w", err)
	}

	maxID := 0
	for k := range raw {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("tdt: invalid token ID %q: %w", k, err)
		}
		if id < 0 {
			return nil, fmt.Errorf("tdt: invalid token ID %q: %w", k, ErrProcessingFailed)
		}
		if id > maxID {
			maxID = id
		}
	}

	vocab := make([]string, maxID+1)
	for k, v := range raw {
		id, _ := strconv.Atoi(k)
		vocab[id] = v
	}

	return vocab, nil
}

// SentenceEndTokenIDs returns the ids of sentence-final punctuation
// pieces in the vocabulary.
func SentenceEndTokenIDs(vocab []string) []int32 {
	var ids []int32
	for id, piece := range vocab {
		switch piece {
		case ".", "!", "?", "▁.", "▁!", "▁?":
			ids = append(ids, int32(id))
		}
	}
	return ids
}

// TokensToText converts a token sequence to text using the vocabulary.
// SentencePiece "▁" word-boundary markers become spaces, then the result
// is trimmed.
func TokensToText(tokens []int32, vocab []string) string {
	var b strings.Builder
	for _, id := range tokens {
		if int(id) < len(vocab) {
			b.WriteString(vocab[id])
		}
	}
	text := b.String()
	text = strings.ReplaceAll(text, "▁", " ")
	return strings.TrimSpace(text)
}
