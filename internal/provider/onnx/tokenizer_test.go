package onnx

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func testVocab() map[string]int {
	return map[string]int{
		"[PAD]": 0, "[UNK]": 1, "[CLS]": 2, "[SEP]": 3,
		"привет": 10, "как": 11, "дел": 12, "##а": 13, ",": 14, "?": 15,
	}
}

func TestTokenizer_Tokenize(t *testing.T) {
	tok := NewTokenizer(testVocab(), true)

	got := tok.Tokenize("Привет, как дела?")
	want := []int64{10, 14, 11, 12, 13, 15}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}

	if got := tok.Tokenize("неизвестно"); !reflect.DeepEqual(got, []int64{1}) {
		t.Errorf("expected single [UNK], got %v", got)
	}
}

func TestTokenizer_Encode(t *testing.T) {
	tok := NewTokenizer(testVocab(), true)

	ids, mask, types := tok.Encode("как дела", 6)
	if !reflect.DeepEqual(ids, []int64{2, 11, 12, 13, 3, 0}) {
		t.Errorf("ids = %v", ids)
	}
	if !reflect.DeepEqual(mask, []int64{1, 1, 1, 1, 1, 0}) {
		t.Errorf("mask = %v", mask)
	}
	if len(types) != 6 {
		t.Errorf("types len = %d", len(types))
	}

	t.Run("Truncation keeps SEP", func(t *testing.T) {
		ids, _, _ := tok.Encode("как как как как как", 4)
		if !reflect.DeepEqual(ids, []int64{2, 11, 11, 3}) {
			t.Errorf("ids = %v", ids)
		}
	})
}

func TestLoadTokenizer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokenizer.json")
	content := `{"normalizer": {"type": "BertNormalizer", "lowercase": false}, "model": {"vocab": {"[CLS]": 5, "[SEP]": 6, "Hi": 7}}}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	tok, err := LoadTokenizer(path)
	if err != nil {
		t.Fatalf("LoadTokenizer failed: %v", err)
	}
	if tok.lowercase {
		t.Error("expected cased tokenizer")
	}
	if tok.cls != 5 || tok.sep != 6 || tok.unk != 100 {
		t.Errorf("unexpected special ids: cls=%d sep=%d unk=%d", tok.cls, tok.sep, tok.unk)
	}
	if got := tok.Tokenize("Hi"); !reflect.DeepEqual(got, []int64{7}) {
		t.Errorf("Tokenize = %v", got)
	}

	if _, err := LoadTokenizer(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestMeanPool(t *testing.T) {
	t.Run("Masked mean", func(t *testing.T) {
		data := []float32{
			1, 0,
			3, 0,
			100, 100, // padding
		}
		got, err := MeanPool(data, []int64{1, 3, 2}, []int64{1, 1, 0}, 2)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(float64(got[0])-1) > 1e-6 || got[1] != 0 {
			t.Errorf("expected unit [1,0], got %v", got)
		}
	})

	t.Run("Already pooled", func(t *testing.T) {
		got, err := MeanPool([]float32{3, 4}, []int64{1, 2}, nil, 2)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(float64(got[0])-0.6) > 1e-6 || math.Abs(float64(got[1])-0.8) > 1e-6 {
			t.Errorf("got %v", got)
		}
	})

	t.Run("Hidden size mismatch", func(t *testing.T) {
		if _, err := MeanPool(make([]float32, 6), []int64{1, 2, 3}, []int64{1, 1}, 2); err == nil {
			t.Error("expected mismatch error")
		}
	})
}
