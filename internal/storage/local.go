package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"messaging-service/internal/models"
	apperrors "messaging-service/pkg/errors"
)

// Store persists attachment bytes and hands back opaque storage references.
// The message ledger only ever records the reference; it never touches the
// bytes.
type Store interface {
	Save(data []byte, originalName string) (string, error)
	Open(ref string) (io.ReadCloser, error)
	Delete(ref string) error
}

// LocalStore keeps attachment files on the local filesystem under a single
// directory, named by random UUID plus the original extension.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Save(data []byte, originalName string) (string, error) {
	ref := uuid.NewString() + strings.ToLower(filepath.Ext(originalName))
	if err := os.WriteFile(filepath.Join(s.dir, ref), data, 0o644); err != nil {
		return "", err
	}
	return ref, nil
}

func (s *LocalStore) Open(ref string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dir, filepath.Base(ref)))
	if os.IsNotExist(err) {
		return nil, apperrors.NotFound("attachment file not found")
	}
	return f, err
}

func (s *LocalStore) Delete(ref string) error {
	err := os.Remove(filepath.Join(s.dir, filepath.Base(ref)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ClassifyMIME maps a MIME type onto the attachment type enum. Document
// covers PDF and the two Word formats; everything unrecognized is other.
func ClassifyMIME(mimeType string) models.AttachmentType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return models.AttachmentImage
	case strings.HasPrefix(mimeType, "video/"):
		return models.AttachmentVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return models.AttachmentAudio
	case strings.HasPrefix(mimeType, "application/pdf"),
		strings.HasPrefix(mimeType, "application/msword"),
		strings.HasPrefix(mimeType, "application/vnd.openxmlformats-officedocument.wordprocessingml.document"):
		return models.AttachmentDocument
	default:
		return models.AttachmentOther
	}
}
