package assets

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "products"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "products", "shoe.jpg"), []byte("jpeg-bytes"), 0o600))
	store, err := NewStore(dir)
	require.NoError(t, err)
	return store, dir
}

func TestNewStoreRequiresExistingDirectory(t *testing.T) {
	_, err := NewStore("")
	require.Error(t, err)

	_, err = NewStore(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = NewStore(file)
	require.Error(t, err)
}

func TestStoreResolveRejectsTraversal(t *testing.T) {
	store, _ := newTestStore(t)

	for _, path := range []string{
		"../etc/passwd",
		"products/../../escape.jpg",
		"/etc/passwd",
		"",
		".",
	} {
		_, err := store.Resolve(path)
		require.Error(t, err, "expected %q to be rejected", path)
	}
}

func TestStoreExistsAndSize(t *testing.T) {
	store, _ := newTestStore(t)

	require.True(t, store.Exists("products/shoe.jpg"))
	require.False(t, store.Exists("products/missing.jpg"))
	require.False(t, store.Exists("products"), "directories are not assets")

	size, err := store.Size("products/shoe.jpg")
	require.NoError(t, err)
	require.Equal(t, int64(len("jpeg-bytes")), size)
}

func TestStoreOpenAndReadFile(t *testing.T) {
	store, _ := newTestStore(t)

	rc, err := store.Open("products/shoe.jpg")
	require.NoError(t, err)
	streamed, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, []byte("jpeg-bytes"), streamed)

	read, err := store.ReadFile("products/shoe.jpg")
	require.NoError(t, err)
	require.Equal(t, streamed, read)

	_, err = store.ReadFile("products/missing.jpg")
	require.Error(t, err)
}

func TestStoreSymlinkEscapeRejected(t *testing.T) {
	store, dir := newTestStore(t)

	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.jpg"), []byte("secret"), 0o600))
	link := filepath.Join(dir, "products", "link.jpg")
	if err := os.Symlink(filepath.Join(outside, "secret.jpg"), link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := store.Resolve("products/link.jpg")
	require.Error(t, err)
	require.False(t, store.Exists("products/link.jpg"))
}
