package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrFileTypeNotAllowed = errors.New("file type not allowed")

var allowedExtensions = map[string]struct{}{
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {},
	"pdf": {}, "doc": {}, "docx": {}, "mp4": {},
}

// Attachment describes a stored upload.
type Attachment struct {
	Name string
	URL  string
}

// AttachmentStore persists uploaded attachments.
type AttachmentStore interface {
	Save(ctx context.Context, originalName string, r io.Reader) (Attachment, error)
	Remove(ctx context.Context, name string) error
}

// ValidateName checks the extension of an uploaded file name against the
// allow-list. Comparison is case-insensitive.
func ValidateName(name string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return "", ErrFileTypeNotAllowed
	}
	if _, ok := allowedExtensions[ext]; !ok {
		return "", ErrFileTypeNotAllowed
	}
	return ext, nil
}

// KindForContentType classifies an upload by its declared content type.
func KindForContentType(contentType string) string {
	if strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return "image"
	}
	return "file"
}

// DiskStore writes attachments to a local directory served under baseURL.
type DiskStore struct {
	dir     string
	baseURL string
	now     func() time.Time
}

// NewDiskStore creates dir if needed.
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), now: time.Now}, nil
}

// Save validates the name, then writes the content under a fresh
// timestamp-prefixed name. Nothing is written for a rejected name.
func (s *DiskStore) Save(ctx context.Context, originalName string, r io.Reader) (Attachment, error) {
	ext, err := ValidateName(originalName)
	if err != nil {
		return Attachment{}, err
	}
	if err := ctx.Err(); err != nil {
		return Attachment{}, err
	}

	name := fmt.Sprintf("%d_%s.%s", s.now().UnixNano(), uuid.NewString(), ext)
	dst := filepath.Join(s.dir, name)

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Attachment{}, fmt.Errorf("create attachment: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(dst)
		return Attachment{}, fmt.Errorf("write attachment: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dst)
		return Attachment{}, fmt.Errorf("close attachment: %w", err)
	}

	return Attachment{Name: name, URL: s.baseURL + "/" + path.Clean(name)}, nil
}

// Remove deletes a stored attachment. A missing file is not an error.
func (s *DiskStore) Remove(_ context.Context, name string) error {
	err := os.Remove(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
