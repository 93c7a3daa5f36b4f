package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

type line struct {
	N int `json:"n"`
}

func TestReadTailDropsTrailingFragment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.jsonl")

	raw := `{"n":1}` + "\n" + `{"n":2}` + "\n" + `{"partial":`
	if err := os.WriteFile(path, []byte(raw), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadTail[line](path)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	if len(got) != 2 || got[0].N != 1 || got[1].N != 2 {
		t.Fatalf("got %+v, want [1,2]", got)
	}
}

func TestReadTailRejectsInvalidNonFinalLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.jsonl")

	raw := `{"n":1}` + "\n" + `not json` + "\n" + `{"n":3}` + "\n"
	if err := os.WriteFile(path, []byte(raw), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := ReadTail[line](path)
	var invalid *ErrInvalidLine
	if err == nil {
		t.Fatal("expected ErrInvalidLine, got nil")
	}
	if !asErrInvalidLine(err, &invalid) {
		t.Fatalf("got %v, want ErrInvalidLine", err)
	}
	if invalid.N != 2 {
		t.Errorf("N = %d, want 2", invalid.N)
	}
}

func asErrInvalidLine(err error, target **ErrInvalidLine) bool {
	e, ok := err.(*ErrInvalidLine)
	if ok {
		*target = e
	}
	return ok
}

func TestReadTailMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	got, err := ReadTail[line](filepath.Join(dir, "absent.jsonl"))
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

func TestAppendLineThenReadTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.jsonl")

	for i := 1; i <= 3; i++ {
		if err := AppendLine(path, line{N: i}); err != nil {
			t.Fatalf("AppendLine: %v", err)
		}
	}

	got, err := ReadTail[line](path)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d lines, want 3", len(got))
	}
}
