package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// FileSource reads a JSON knowledge document from disk on every call. Nothing is
// cached, so edits to the file are visible to the next retrieval.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Path() string { return s.path }

// Facts returns no facts and no error when the file does not exist.
func (s *FileSource) Facts(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read knowledge store %s: %w", s.path, err)
	}
	facts, err := ParseFacts(data)
	if err != nil {
		return nil, fmt.Errorf("parse knowledge store %s: %w", s.path, err)
	}
	return facts, nil
}

func (s *FileSource) Close() error { return nil }
