// Package profile persists browser user-data directories between sessions,
// so a login performed in one session can be reused by the next.
package profile

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/allanbts17/zoom-meeting-bot/pkg/models"
)

// ErrNotFound means no profile with the given ID exists.
var ErrNotFound = errors.New("profile not found")

// Store keeps profiles as tar.gz archives under one directory.
type Store struct {
	profiles sync.Map // id -> *models.Profile
	dir      string
}

// NewStore creates the store directory if needed and indexes any archives
// already present from a previous run.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create profile directory: %w", err)
	}

	s := &Store{dir: dir}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan profile directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".tar.gz") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".tar.gz")
		info, err := e.Info()
		if err != nil {
			continue
		}
		s.profiles.Store(id, &models.Profile{
			ID:        id,
			CreatedAt: info.ModTime(),
			UpdatedAt: info.ModTime(),
			DataPath:  filepath.Join(dir, e.Name()),
		})
	}
	return s, nil
}

// Create registers a new empty profile. The name is a free-form operator
// label and may be empty.
func (s *Store) Create(name string) *models.Profile {
	p := &models.Profile{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.profiles.Store(p.ID, p)
	return p
}

// Get returns a profile by ID.
func (s *Store) Get(id string) (*models.Profile, error) {
	v, ok := s.profiles.Load(id)
	if !ok {
		return nil, ErrNotFound
	}
	return v.(*models.Profile), nil
}

// Delete removes a profile and its archive.
func (s *Store) Delete(id string) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	if p.DataPath != "" {
		if err := os.Remove(p.DataPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete profile data: %w", err)
		}
	}
	s.profiles.Delete(id)
	return nil
}

// Materialize extracts the profile into a fresh user-data directory and
// returns its path. A profile without saved data yields an empty directory.
func (s *Store) Materialize(id string) (string, error) {
	p, err := s.Get(id)
	if err != nil {
		return "", err
	}

	target := filepath.Join(os.TempDir(), "zoom-meeting-bot", "userdata", id)
	if err := os.RemoveAll(target); err != nil {
		return "", fmt.Errorf("reset user-data directory: %w", err)
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("create user-data directory: %w", err)
	}

	if p.DataPath == "" {
		return target, nil
	}
	if err := extract(p.DataPath, target); err != nil {
		return "", fmt.Errorf("extract profile %s: %w", id, err)
	}
	return target, nil
}

// Save archives the user-data directory back into the profile.
func (s *Store) Save(id, userDataDir string) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}

	archive := filepath.Join(s.dir, id+".tar.gz")
	if err := compress(userDataDir, archive); err != nil {
		return fmt.Errorf("archive profile %s: %w", id, err)
	}

	p.DataPath = archive
	p.UpdatedAt = time.Now()
	s.profiles.Store(id, p)
	return nil
}

func compress(source, target string) error {
	f, err := os.Create(target)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	return filepath.Walk(source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, info.Name())
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		header.Name = rel

		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
}

func extract(source, target string) error {
	f, err := os.Open(source)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		// Entries must stay inside the target directory.
		dest := filepath.Join(target, filepath.Clean(header.Name))
		if !strings.HasPrefix(dest, filepath.Clean(target)+string(os.PathSeparator)) && dest != filepath.Clean(target) {
			return fmt.Errorf("archive entry escapes target: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return err
			}
			out, err := os.Create(dest)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
	return nil
}
