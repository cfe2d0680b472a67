// Package storage fetches media assets from a Google Cloud Storage bucket
// into the local staging directory.
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

	gcs "cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/allanbts17/zoom-meeting-bot/pkg/models"
)

// ErrNotFound is returned when the named remote object does not exist.
var ErrNotFound = errors.New("remote object not found")

// videoExtensions is the set of names List exposes.
var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
}

// Manager downloads, lists, and inspects objects in one bucket.
type Manager struct {
	client     *gcs.Client
	bucket     string
	stagingDir string
	log        zerolog.Logger
}

// NewManager creates a storage manager. credentialsFile may be empty, in
// which case application default credentials apply.
func NewManager(ctx context.Context, bucket, credentialsFile, stagingDir string, log zerolog.Logger) (*Manager, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Manager{
		client:     client,
		bucket:     bucket,
		stagingDir: stagingDir,
		log:        log,
	}, nil
}

// Close releases the underlying client.
func (m *Manager) Close() error {
	return m.client.Close()
}

// StagingDir is the directory Fetch writes into.
func (m *Manager) StagingDir() string {
	return m.stagingDir
}

// Fetch streams the named object to its deterministic staging path,
// overwriting any previous copy. The destination directory is created if
// absent.
func (m *Manager) Fetch(ctx context.Context, remoteKey string) (string, error) {
	dest := m.LocalPathFor(remoteKey)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}

	m.log.Info().Str("key", remoteKey).Str("dest", dest).Msg("downloading media asset")

	r, err := m.client.Bucket(m.bucket).Object(remoteKey).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, remoteKey)
		}
		return "", fmt.Errorf("open remote object %s: %w", remoteKey, err)
	}
	defer r.Close()

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		return "", fmt.Errorf("transfer %s: %w", remoteKey, err)
	}

	m.log.Info().Str("key", remoteKey).Int64("bytes", n).Msg("download complete")
	return dest, nil
}

// List returns object names with a known video extension, in the store's
// native listing order.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	var names []string
	it := m.client.Bucket(m.bucket).Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list bucket %s: %w", m.bucket, err)
		}
		if IsVideoName(attrs.Name) {
			names = append(names, attrs.Name)
		}
	}
	return names, nil
}

// Metadata returns size, content type, and update time for one object.
func (m *Manager) Metadata(ctx context.Context, remoteKey string) (*models.VideoMetadata, error) {
	attrs, err := m.client.Bucket(m.bucket).Object(remoteKey).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, remoteKey)
		}
		return nil, fmt.Errorf("stat remote object %s: %w", remoteKey, err)
	}
	return &models.VideoMetadata{
		Name:        remoteKey,
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Updated:     attrs.Updated,
	}, nil
}

// LocalPathFor maps a remote key to its staging destination. Keys may use
// slash-separated prefixes; only the base name lands in staging so the
// serving URL stays flat.
func (m *Manager) LocalPathFor(remoteKey string) string {
	return filepath.Join(m.stagingDir, path.Base(remoteKey))
}

// IsVideoName reports whether the name carries a known video extension.
func IsVideoName(name string) bool {
	return videoExtensions[strings.ToLower(path.Ext(name))]
}
