package media

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	chatsync_errors "chatsync/pkg/errors"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxBytes is the server's upload ceiling.
const DefaultMaxBytes int64 = 10 * 1024 * 1024

// AllowedTypes are the media types the server accepts.
var AllowedTypes = []string{"image/jpeg", "image/png", "image/gif", "video/mp4"}

// File is a validated attachment ready for upload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

func (f *File) Size() int64 {
	return int64(len(f.Data))
}

func (f *File) Reader() *bytes.Reader {
	return bytes.NewReader(f.Data)
}

// Validator rejects attachments the server would refuse.
type Validator struct {
	MaxBytes int64
	Allowed  []string
}

func NewValidator(maxBytes int64) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Validator{MaxBytes: maxBytes, Allowed: AllowedTypes}
}

// Load reads and validates a file from disk. The size is checked before
// the content is read; the type is sniffed from the bytes, not the name.
func (v *Validator) Load(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat attachment: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory: %w", path, chatsync_errors.ErrInvalidInput)
	}
	if info.Size() > v.MaxBytes {
		return nil, fmt.Errorf("%s is %d bytes, limit %d: %w", filepath.Base(path), info.Size(), v.MaxBytes, chatsync_errors.ErrTooLarge)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	return v.Validate(filepath.Base(path), data)
}

// Validate checks in-memory content.
func (v *Validator) Validate(name string, data []byte) (*File, error) {
	if int64(len(data)) > v.MaxBytes {
		return nil, fmt.Errorf("%s is %d bytes, limit %d: %w", name, len(data), v.MaxBytes, chatsync_errors.ErrTooLarge)
	}
	mt := mimetype.Detect(data)
	for _, allowed := range v.Allowed {
		if mt.Is(allowed) {
			return &File{Name: name, ContentType: allowed, Data: data}, nil
		}
	}
	return nil, fmt.Errorf("%s has type %s: %w", name, mt.String(), chatsync_errors.ErrUnsupportedMedia)
}
