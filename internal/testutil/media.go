package testutil

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vidtube/apiserver/internal/media"
)

const CDNPrefix = "http://cdn.test/"

// Relay records uploads and removes staged files like media.Relay.
type Relay struct {
	mu sync.Mutex

	// Fail makes every upload fail.
	Fail bool
	// FailContaining fails uploads whose file name contains the substring.
	FailContaining string

	Uploaded  []string
	Discarded []string
}

func (r *Relay) Upload(_ context.Context, localPath string) (*media.Asset, error) {
	if localPath == "" {
		return nil, nil
	}
	defer func() { _ = media.Discard(localPath) }()

	if _, err := os.Stat(localPath); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail || (r.FailContaining != "" && strings.Contains(filepath.Base(localPath), r.FailContaining)) {
		return nil, errors.New("upload failed")
	}
	url := CDNPrefix + filepath.Base(localPath)
	r.Uploaded = append(r.Uploaded, url)
	return &media.Asset{URL: url, Key: filepath.Base(localPath)}, nil
}

func (r *Relay) Discard(_ context.Context, rawURL string) {
	if !strings.HasPrefix(rawURL, CDNPrefix) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Discarded = append(r.Discarded, rawURL)
}

// StageFile writes data to a new file in dir and returns its path.
func StageFile(dir, name string, data []byte) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
