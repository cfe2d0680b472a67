package profile

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGetDelete(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	p := s.Create("work account")
	require.NotEmpty(t, p.ID)

	got, err := s.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "work account", got.Name)

	require.NoError(t, s.Delete(p.ID))
	_, err = s.Get(p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetUnknown(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete("nope"), ErrNotFound)
}

func TestSaveMaterializeRoundtrip(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	p := s.Create("")

	// Simulate a browser user-data directory with nested state.
	userData := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(userData, "Default"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(userData, "Default", "Cookies"), []byte("cookie-db"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(userData, "Local State"), []byte(`{"profile":{}}`), 0o644))

	require.NoError(t, s.Save(p.ID, userData))

	got, err := s.Get(p.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, got.DataPath)

	restored, err := s.Materialize(p.ID)
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(restored) })

	data, err := os.ReadFile(filepath.Join(restored, "Default", "Cookies"))
	require.NoError(t, err)
	assert.Equal(t, "cookie-db", string(data))

	data, err = os.ReadFile(filepath.Join(restored, "Local State"))
	require.NoError(t, err)
	assert.Equal(t, `{"profile":{}}`, string(data))
}

func TestMaterializeEmptyProfile(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	p := s.Create("")

	dir, err := s.Materialize(p.ID)
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewStoreIndexesExistingArchives(t *testing.T) {
	dir := t.TempDir()

	s, err := NewStore(dir)
	require.NoError(t, err)
	p := s.Create("")
	userData := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(userData, "state"), []byte("x"), 0o644))
	require.NoError(t, s.Save(p.ID, userData))

	// A new store over the same directory sees the archived profile.
	reopened, err := NewStore(dir)
	require.NoError(t, err)
	got, err := reopened.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, p.ID+".tar.gz"), got.DataPath)
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)
	p := s.Create("")

	require.NoError(t, s.Save(p.ID, t.TempDir()))

	// Replace the saved archive with one whose entry climbs out of the
	// target.
	archive := filepath.Join(dir, p.ID+".tar.gz")
	f, err := os.Create(archive)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "../escape.txt",
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     4,
	}))
	_, err = tw.Write([]byte("boom"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	_, err = s.Materialize(p.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes target")
}
