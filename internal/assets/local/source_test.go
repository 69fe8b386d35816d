package local_test

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/empire-server/internal/assets/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		src, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, src)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("NonexistentBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{BaseDir: filepath.Join(t.TempDir(), "dist")})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "index.html")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.css"), []byte("body{}"), 0o600))

	src, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	require.Equal(t, dir, src.Dir())

	obj, err := src.Open(context.Background(), "/assets/app.css")
	require.NoError(t, err)
	body, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	require.NoError(t, obj.Body.Close())
	assert.Equal(t, "body{}", string(body))
	assert.Equal(t, int64(6), obj.Size)

	_, err = src.Open(context.Background(), "assets")
	assert.ErrorIs(t, err, fs.ErrNotExist, "directories are not served")

	_, err = src.Open(context.Background(), "missing.js")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = src.Open(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, fs.ErrNotExist, "path traversal stays inside the base dir")
}
