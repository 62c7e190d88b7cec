// Package media moves staged uploads into object storage.
package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vidtube/apiserver/internal/metrics"
)

// ObjectStore is the subset of storage.Storage the relay needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
	KeyFromURL(rawURL string) (string, bool)
}

// Asset describes an object the relay stored.
type Asset struct {
	URL         string
	Key         string
	ContentType string
	Size        int64
}

// Relay uploads staged files to object storage.
type Relay struct {
	store  ObjectStore
	prefix string
	logger zerolog.Logger
	now    func() time.Time
}

func NewRelay(store ObjectStore, prefix string, logger zerolog.Logger) *Relay {
	return &Relay{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.With().Str("component", "media_relay").Logger(),
		now:    time.Now,
	}
}

// Upload stores the file at localPath and returns where it lives. An empty
// path yields (nil, nil). The local file is removed on every return path.
func (r *Relay) Upload(ctx context.Context, localPath string) (*Asset, error) {
	if localPath == "" {
		return nil, nil
	}
	defer func() {
		if err := Discard(localPath); err != nil {
			r.logger.Warn().Err(err).Str("path", localPath).Msg("failed to remove staged file")
		}
	}()

	asset, err := r.put(ctx, localPath)
	if err != nil {
		metrics.MediaUploads.WithLabelValues(metrics.UploadFailed).Inc()
		r.logger.Error().Err(err).Str("path", localPath).Msg("media upload failed")
		return nil, err
	}
	metrics.MediaUploads.WithLabelValues(metrics.UploadSucceeded).Inc()
	return asset, nil
}

// Discard deletes a previously uploaded object. URLs not produced by this
// relay's storage are ignored. Failures are logged only.
func (r *Relay) Discard(ctx context.Context, rawURL string) {
	key, ok := r.store.KeyFromURL(rawURL)
	if !ok || (r.prefix != "" && !strings.HasPrefix(key, r.prefix+"/")) {
		return
	}
	if err := r.store.Delete(ctx, key); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("failed to delete replaced media")
	}
}

func (r *Relay) put(ctx context.Context, localPath string) (*Asset, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open staged file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat staged file: %w", err)
	}

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return nil, fmt.Errorf("detect content type: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind staged file: %w", err)
	}

	key := r.objectKey(mtype.Extension())
	if err := r.store.Put(ctx, key, file, info.Size(), mtype.String()); err != nil {
		return nil, fmt.Errorf("put object %s: %w", key, err)
	}

	return &Asset{
		URL:         r.store.URL(key),
		Key:         key,
		ContentType: mtype.String(),
		Size:        info.Size(),
	}, nil
}

func (r *Relay) objectKey(ext string) string {
	now := r.now().UTC()
	return path.Join(
		r.prefix,
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", int(now.Month())),
		fmt.Sprintf("%02d", now.Day()),
		uuid.NewString()+ext,
	)
}
