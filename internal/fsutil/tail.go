package fsutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// ErrInvalidLine is returned by ReadTail when a non-final line in the file
// fails to parse as JSON. The invariant: a trailing newline commits a
// record, and only the bytes after the very last newline may ever be
// incomplete — a crash can only interrupt the final, in-flight append.
type ErrInvalidLine struct {
	Path string
	N    int
	Err  error
}

func (e *ErrInvalidLine) Error() string {
	return fmt.Sprintf("fsutil: invalid line %d in %s: %v", e.N, e.Path, e.Err)
}

func (e *ErrInvalidLine) Unwrap() error { return e.Err }

// ReadTail reads path line by line and unmarshals each complete line into
// a T. A crash can only ever interrupt the single in-flight append at the
// end of the file, so if the file does not end in a newline, the trailing
// fragment is that interrupted write and is silently discarded; every
// other line is newline-terminated and therefore committed. A missing
// file yields an empty result.
func ReadTail[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fsutil: read %s: %w", path, err)
	}

	// Only the fragment after the last newline may be incomplete; every
	// line surviving splitCommittedLines is newline-terminated and
	// therefore committed, so all of them must parse.
	lines := splitCommittedLines(data)
	out := make([]T, 0, len(lines))
	for i, line := range lines {
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			return nil, &ErrInvalidLine{Path: path, N: i + 1, Err: err}
		}
		out = append(out, v)
	}
	return out, nil
}

// splitCommittedLines returns the complete (newline-terminated) lines in
// data, dropping a final fragment that has no trailing newline.
func splitCommittedLines(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	trailingFragment := data[len(data)-1] != '\n'
	parts := bytes.Split(data, []byte("\n"))
	if trailingFragment {
		parts = parts[:len(parts)-1]
	} else if len(parts) > 0 && len(parts[len(parts)-1]) == 0 {
		parts = parts[:len(parts)-1]
	}
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}
