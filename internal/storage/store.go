package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"example.com/backstage/services/esign/config"
)

// ArtifactStore persists document bytes and signed artifacts. The engine
// treats it as an external collaborator; this filesystem implementation is
// the default backing.
type ArtifactStore interface {
	// Load reads document bytes by storage path
	Load(ctx context.Context, path string) ([]byte, error)
	// SaveArtifact persists a signed artifact and returns its reference
	SaveArtifact(ctx context.Context, requestID uuid.UUID, content []byte) (string, error)
}

type fileStore struct {
	dir string
}

// NewFileStore creates a filesystem-backed artifact store
func NewFileStore(cfg config.StorageConfig) (ArtifactStore, error) {
	if cfg.ArtifactDir == "" {
		return nil, errors.New("artifact directory is not configured")
	}
	if err := os.MkdirAll(cfg.ArtifactDir, 0o700); err != nil {
		return nil, errors.Wrap(err, "failed to create artifact directory")
	}
	return &fileStore{dir: cfg.ArtifactDir}, nil
}

func (s *fileStore) Load(_ context.Context, path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read document")
	}
	return content, nil
}

func (s *fileStore) SaveArtifact(_ context.Context, requestID uuid.UUID, content []byte) (string, error) {
	sum := sha256.Sum256(content)
	name := fmt.Sprintf("%s-%s.pdf", requestID.String(), hex.EncodeToString(sum[:8]))
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, content, 0o600); err != nil {
		return "", errors.Wrap(err, "failed to write signed artifact")
	}
	return path, nil
}
