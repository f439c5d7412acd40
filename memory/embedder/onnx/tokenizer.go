package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const (
	clsToken = 101
	sepToken = 102
	unkToken = 100
)

// tokenizer is a BERT WordPiece tokenizer driven by a tokenizer.json vocab.
type tokenizer struct {
	vocab map[string]int
}

func loadTokenizer(path string) (*tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}
	var file struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tokenizer: %w", err)
	}
	if len(file.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has an empty vocab", path)
	}
	return &tokenizer{vocab: file.Model.Vocab}, nil
}

// encode lowercases text and returns WordPiece ids without [CLS]/[SEP].
func (t *tokenizer) encode(text string) []int64 {
	var ids []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]")
		if word == "" {
			continue
		}
		if id, ok := t.vocab[word]; ok {
			ids = append(ids, int64(id))
			continue
		}
		for _, piece := range t.wordPieces(word) {
			if id, ok := t.vocab[piece]; ok {
				ids = append(ids, int64(id))
			} else {
				ids = append(ids, unkToken)
			}
		}
	}
	return ids
}

// wordPieces splits word greedily into the longest known prefixes.
func (t *tokenizer) wordPieces(word string) []string {
	var pieces []string
	for start := 0; start < len(word); {
		end := len(word)
		found := false
		for ; end > start; end-- {
			sub := word[start:end]
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := t.vocab[sub]; ok {
				pieces = append(pieces, sub)
				found = true
				break
			}
		}
		if !found {
			pieces = append(pieces, "[UNK]")
			start++
			continue
		}
		start = end
	}
	return pieces
}

// frame wraps ids in [CLS] ... [SEP], truncating to maxLen, and returns the
// padded input ids with their attention mask.
func frame(ids []int64, maxLen int) (inputIDs, mask []int64) {
	inputIDs = make([]int64, maxLen)
	mask = make([]int64, maxLen)
	if len(ids) > maxLen-2 {
		ids = ids[:maxLen-2]
	}
	inputIDs[0], mask[0] = clsToken, 1
	for i, id := range ids {
		inputIDs[i+1], mask[i+1] = id, 1
	}
	end := len(ids) + 1
	inputIDs[end], mask[end] = sepToken, 1
	return inputIDs, mask
}

// meanPool averages hidden states [seqLen x hidden] over attended positions.
func meanPool(data []float32, seqLen, hidden int, mask []int64) []float32 {
	out := make([]float32, hidden)
	var attended float32
	for i := 0; i < seqLen && i < len(mask); i++ {
		if mask[i] == 0 {
			continue
		}
		attended++
		row := data[i*hidden : (i+1)*hidden]
		for j, v := range row {
			out[j] += v
		}
	}
	if attended == 0 {
		return out
	}
	for j := range out {
		out[j] /= attended
	}
	return out
}
