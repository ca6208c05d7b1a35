package documents

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"insurance-checkout/internal/models"
)

// FileSource reads staged uploads from a directory. StorageRef is a path
// relative to Root.
type FileSource struct {
	Root string
}

func NewFileSource(root string) *FileSource {
	return &FileSource{Root: root}
}

func (s *FileSource) Open(_ context.Context, doc models.Document) (io.ReadCloser, error) {
	if doc.StorageRef == "" {
		return nil, fmt.Errorf("document %q has no storage reference", doc.Name)
	}
	path, err := s.resolve(doc.StorageRef)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	return f, nil
}

func (s *FileSource) resolve(ref string) (string, error) {
	root, err := filepath.Abs(s.Root)
	if err != nil {
		return "", fmt.Errorf("resolve document root: %w", err)
	}
	path := filepath.Join(root, filepath.FromSlash(ref))
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", fmt.Errorf("storage reference %q escapes document root", ref)
	}
	return path, nil
}
