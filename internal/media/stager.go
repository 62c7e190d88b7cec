package media

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
)

var ErrFileTooLarge = errors.New("uploaded file too large")

// Stager copies multipart uploads into a local temp directory so the relay
// can stream them from disk.
type Stager struct {
	dir      string
	maxBytes int64
}

func NewStager(dir string, maxBytes int64) (*Stager, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("upload temp directory is required")
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("max upload bytes must be > 0")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload temp directory: %w", err)
	}
	return &Stager{dir: dir, maxBytes: maxBytes}, nil
}

// MaxBytes is the largest single file Stage accepts.
func (s *Stager) MaxBytes() int64 {
	return s.maxBytes
}

// Stage writes the uploaded file to a new temp file and returns its path.
// The caller owns the file; Relay.Upload or Discard removes it.
func (s *Stager) Stage(header *multipart.FileHeader) (string, error) {
	src, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("opening upload: %w", err)
	}
	defer src.Close()

	tmpFile, err := os.CreateTemp(s.dir, "upload-*"+safeExt(header.Filename))
	if err != nil {
		return "", fmt.Errorf("creating staged file: %w", err)
	}
	tmpPath := tmpFile.Name()

	written, err := io.Copy(tmpFile, io.LimitReader(src, s.maxBytes+1))
	closeErr := tmpFile.Close()
	switch {
	case err != nil:
		err = fmt.Errorf("writing staged file: %w", err)
	case closeErr != nil:
		err = fmt.Errorf("closing staged file: %w", closeErr)
	case written > s.maxBytes:
		err = ErrFileTooLarge
	}
	if err != nil {
		_ = Discard(tmpPath)
		return "", err
	}
	return tmpPath, nil
}

// Discard removes a staged file. Already removed files are not an error.
func Discard(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
