package onnx

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeVocab(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokenizer.json")
	vocab := `{"model":{"vocab":{"[UNK]":100,"[CLS]":101,"[SEP]":102,"python":2000,"func":2001,"##tions":2002,"hello":2003}}}`
	if err := os.WriteFile(path, []byte(vocab), 0o644); err != nil {
		t.Fatalf("write vocab: %v", err)
	}
	return path
}

func TestTokenizerEncode(t *testing.T) {
	tok, err := loadTokenizer(writeVocab(t))
	if err != nil {
		t.Fatalf("loadTokenizer failed: %v", err)
	}

	got := tok.encode("Hello, Python functions!")
	want := []int64{2003, 2000, 2001, 2002}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("encode = %v, want %v", got, want)
	}

	got = tok.encode("zz")
	want = []int64{unkToken, unkToken}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("encode unknown = %v, want %v", got, want)
	}
}

func TestFrameTruncates(t *testing.T) {
	ids, mask := frame([]int64{1, 2, 3, 4, 5, 6}, 5)
	wantIDs := []int64{clsToken, 1, 2, 3, sepToken}
	if !reflect.DeepEqual(ids, wantIDs) {
		t.Errorf("ids = %v, want %v", ids, wantIDs)
	}
	for i, m := range mask {
		if m != 1 {
			t.Errorf("mask[%d] = %d, want 1", i, m)
		}
	}

	ids, mask = frame([]int64{7}, 5)
	if !reflect.DeepEqual(ids, []int64{clsToken, 7, sepToken, 0, 0}) {
		t.Errorf("short ids = %v", ids)
	}
	if !reflect.DeepEqual(mask, []int64{1, 1, 1, 0, 0}) {
		t.Errorf("short mask = %v", mask)
	}
}

func TestMeanPoolIgnoresPadding(t *testing.T) {
	data := []float32{
		1, 3,
		3, 5,
		100, 100,
	}
	got := meanPool(data, 3, 2, []int64{1, 1, 0})
	if !reflect.DeepEqual(got, []float32{2, 4}) {
		t.Errorf("meanPool = %v, want [2 4]", got)
	}
}

func TestLoadTokenizerMissingFile(t *testing.T) {
	if _, err := loadTokenizer(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing tokenizer")
	}
}
