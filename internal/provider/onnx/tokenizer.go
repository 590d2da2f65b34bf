// Package onnx runs a BERT-style sentence model locally on ONNX Runtime.
// The runtime-backed embedder needs the onnx build tag and the shared
// library; the tokenizer and pooling helpers build everywhere.
package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/felixgeelhaar/recall/internal/textsim"
)

// Tokenizer is a WordPiece tokenizer read from a Hugging Face tokenizer.json.
type Tokenizer struct {
	vocab     map[string]int
	lowercase bool
	cls       int
	sep       int
	unk       int
	pad       int
}

// LoadTokenizer reads the vocabulary and normalizer settings from path.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read tokenizer: %w", err)
	}

	var raw struct {
		Normalizer *struct {
			Lowercase *bool `json:"lowercase"`
		} `json:"normalizer"`
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse tokenizer: %w", err)
	}
	if len(raw.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has an empty vocabulary", path)
	}

	lower := true
	if raw.Normalizer != nil && raw.Normalizer.Lowercase != nil {
		lower = *raw.Normalizer.Lowercase
	}
	return NewTokenizer(raw.Model.Vocab, lower), nil
}

// NewTokenizer builds a tokenizer over vocab. Special tokens default to the
// BERT ids when vocab does not name them.
func NewTokenizer(vocab map[string]int, lowercase bool) *Tokenizer {
	id := func(tok string, def int) int {
		if v, ok := vocab[tok]; ok {
			return v
		}
		return def
	}
	return &Tokenizer{
		vocab:     vocab,
		lowercase: lowercase,
		cls:       id("[CLS]", 101),
		sep:       id("[SEP]", 102),
		unk:       id("[UNK]", 100),
		pad:       id("[PAD]", 0),
	}
}

// Tokenize splits text into words and punctuation, then into WordPiece ids.
func (t *Tokenizer) Tokenize(text string) []int64 {
	if t.lowercase {
		text = strings.ToLower(text)
	}

	var ids []int64
	for _, word := range preTokenize(text) {
		if id, ok := t.vocab[word]; ok {
			ids = append(ids, int64(id))
			continue
		}
		for _, piece := range t.wordPiece(word) {
			if id, ok := t.vocab[piece]; ok {
				ids = append(ids, int64(id))
			} else {
				ids = append(ids, int64(t.unk))
			}
		}
	}
	return ids
}

// Encode wraps the token ids in [CLS] ... [SEP] and pads to maxLen.
func (t *Tokenizer) Encode(text string, maxLen int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	tokens := t.Tokenize(text)
	if len(tokens) > maxLen-2 {
		tokens = tokens[:maxLen-2]
	}

	inputIDs = make([]int64, maxLen)
	attentionMask = make([]int64, maxLen)
	tokenTypeIDs = make([]int64, maxLen)
	for i := range inputIDs {
		inputIDs[i] = int64(t.pad)
	}

	inputIDs[0] = int64(t.cls)
	attentionMask[0] = 1
	for i, id := range tokens {
		inputIDs[i+1] = id
		attentionMask[i+1] = 1
	}
	end := len(tokens) + 1
	inputIDs[end] = int64(t.sep)
	attentionMask[end] = 1
	return inputIDs, attentionMask, tokenTypeIDs
}

// preTokenize splits on whitespace and isolates punctuation, as BERT's
// basic tokenizer does.
func preTokenize(text string) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			out = append(out, string(r))
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return out
}

// wordPiece greedily matches the longest vocabulary prefix, rune by rune.
func (t *Tokenizer) wordPiece(word string) []string {
	runes := []rune(word)
	var pieces []string
	for start := 0; start < len(runes); {
		end := len(runes)
		match := ""
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := t.vocab[sub]; ok {
				match = sub
				break
			}
			end--
		}
		if match == "" {
			// One unknown piece stands for the whole word.
			return []string{"[UNK]"}
		}
		pieces = append(pieces, match)
		start = end
	}
	return pieces
}

// MeanPool averages the hidden states of attended tokens. Output already
// pooled to [1, dims] is passed through. The result is unit length.
func MeanPool(data []float32, shape []int64, mask []int64, dims int) ([]float32, error) {
	out := make([]float32, dims)
	switch len(shape) {
	case 2:
		if len(data) < dims {
			return nil, fmt.Errorf("output dimension mismatch: got %d, expected %d", len(data), dims)
		}
		copy(out, data[:dims])
	case 3:
		if shape[0] != 1 {
			return nil, fmt.Errorf("expected batch size 1, got %d", shape[0])
		}
		seqLen, hidden := int(shape[1]), int(shape[2])
		if hidden != dims {
			return nil, fmt.Errorf("hidden size mismatch: got %d, expected %d", hidden, dims)
		}
		if len(data) < seqLen*hidden {
			return nil, fmt.Errorf("output has %d values, expected %d", len(data), seqLen*hidden)
		}
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
		if attended > 0 {
			for j := range out {
				out[j] /= attended
			}
		}
	default:
		return nil, fmt.Errorf("unexpected output shape: %v", shape)
	}
	return textsim.Normalize(out), nil
}
