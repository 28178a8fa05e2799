package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrTooLarge = errors.New("file exceeds the maximum size")
	ErrNotPDF   = errors.New("only .pdf files are accepted")
	ErrOutside  = errors.New("path is outside the storage directory")
)

// LocalStorage keeps uploaded exam PDFs on the local filesystem, one
// directory per upload.
type LocalStorage struct {
	basePath string
	maxSize  int64
}

// NewLocalStorage stores files under basePath. maxSize <= 0 means no limit.
func NewLocalStorage(basePath string, maxSize int64) *LocalStorage {
	return &LocalStorage{basePath: basePath, maxSize: maxSize}
}

// Save writes reader to <base>/<uuid>/<filename> and returns the path.
func (s *LocalStorage) Save(_ context.Context, filename string, reader io.Reader) (string, error) {
	filename = filepath.Base(filepath.Clean("/" + filename))
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return "", ErrNotPDF
	}

	dir := filepath.Join(s.basePath, uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	storagePath := filepath.Join(dir, filename)
	f, err := os.Create(storagePath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	src := reader
	if s.maxSize > 0 {
		src = io.LimitReader(reader, s.maxSize+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.maxSize > 0 && n > s.maxSize {
		err = ErrTooLarge
	}
	if err != nil {
		_ = s.Delete(context.Background(), storagePath)
		if errors.Is(err, ErrTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("write file: %w", err)
	}

	return storagePath, nil
}

// Open opens a stored file. Paths outside the storage directory are refused.
func (s *LocalStorage) Open(_ context.Context, storagePath string) (io.ReadCloser, error) {
	if !s.contains(storagePath) {
		return nil, ErrOutside
	}
	f, err := os.Open(storagePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (s *LocalStorage) Delete(_ context.Context, storagePath string) error {
	if !s.contains(storagePath) {
		return ErrOutside
	}
	if err := os.Remove(storagePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	// upload dir, if now empty
	_ = os.Remove(filepath.Dir(storagePath))
	return nil
}

func (s *LocalStorage) contains(path string) bool {
	base, err := filepath.Abs(s.basePath)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(base, abs)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}
