package resources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Closable interface {
	Close() error
}

// FileStore reads and rewrites a single durable file as a whole.
type FileStore interface {
	Path() string
	ReadAll(ctx context.Context) ([]byte, error)
	WriteAll(ctx context.Context, data []byte) error
}

type fileStore struct {
	path string
}

func NewFileStore(path string) FileStore {
	return &fileStore{path: path}
}

func (s *fileStore) Path() string {
	return s.path
}

func (s *fileStore) ReadAll(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	return data, nil
}

// WriteAll replaces the file through a temp file in the same directory.
func (s *fileStore) WriteAll(_ context.Context, data []byte) error {
	dir := filepath.Dir(s.path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	_, err = tmp.Write(data)
	if err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	err = tmp.Sync()
	if err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	//nolint:gosec
	err = os.Chmod(tmpName, 0o644)
	if err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	err = os.Rename(tmpName, s.path)
	if err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}

	return nil
}

func CreateFileStore(ctx context.Context) (FileStore, error) {
	path := viper.GetString("store.path")
	if path == "" {
		return nil, fmt.Errorf("store path is empty")
	}

	err := os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("path", path).Msg("unable to create store directory")
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	log.Ctx(ctx).Info().Str("path", path).Msg("using file store")

	return NewFileStore(path), nil
}
