// Package export writes shopping lists and price history to local disk or S3.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalExporter writes documents under a directory
type LocalExporter struct {
	dir string
}

func NewLocalExporter(dir string) *LocalExporter {
	return &LocalExporter{dir: dir}
}

// Export writes body to dir/name and returns the file path
func (e *LocalExporter) Export(ctx context.Context, name, contentType string, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(e.dir, filepath.Base(name))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}
