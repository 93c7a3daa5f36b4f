package fsutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// AppendLine serializes v as a single JSON line and appends it to path,
// creating the file (and parent directories) with mode 0600 if it does
// not yet exist. Every write is flushed before return.
func AppendLine(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("fsutil: mkdir %s: %w", dir, err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("fsutil: marshal line for %s: %w", path, err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("fsutil: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("fsutil: append to %s: %w", path, err)
	}
	return f.Sync()
}
