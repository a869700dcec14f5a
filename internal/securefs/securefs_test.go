package securefs

import (
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupSecureFS creates a temporary directory and SecureFS instance for testing
func setupSecureFS(t *testing.T) (sfs *SecureFS, tempDir string) {
	t.Helper()

	tempDir = t.TempDir()
	sfs, err := New(tempDir)
	require.NoError(t, err, "Failed to create SecureFS")
	t.Cleanup(func() { _ = sfs.Close() })

	return sfs, tempDir
}

func TestValidateRelativePath(t *testing.T) {
	t.Parallel()
	sfs, _ := setupSecureFS(t)

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{"simple", "temuan/a.jpg", filepath.Join("temuan", "a.jpg"), nil},
		{"dot segments", "temuan/./x/../a.jpg", filepath.Join("temuan", "a.jpg"), nil},
		{"parent", "../etc/passwd", "", ErrPathTraversal},
		{"nested parent", "temuan/../../secret", "", ErrPathTraversal},
		{"absolute", "/etc/passwd", "", ErrInvalidPath},
		{"empty", "", "", ErrInvalidPath},
		{"nul", "a\x00b", "", ErrInvalidPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sfs.ValidateRelativePath(tt.in)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateExclusiveRefusesOverwrite(t *testing.T) {
	t.Parallel()
	sfs, tempDir := setupSecureFS(t)

	require.NoError(t, sfs.MkdirAll("temuan", 0o750))

	f, err := sfs.CreateExclusive("temuan/photo.jpg", 0o640)
	require.NoError(t, err)
	_, err = f.WriteString("first")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = sfs.CreateExclusive("temuan/photo.jpg", 0o640)
	require.ErrorIs(t, err, fs.ErrExist)

	data, err := os.ReadFile(filepath.Join(tempDir, "temuan", "photo.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	exists, err := sfs.Exists("temuan/photo.jpg")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, sfs.Remove("temuan/photo.jpg"))
	exists, err = sfs.Exists("temuan/photo.jpg")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSymlinkEscapeIsBlocked(t *testing.T) {
	t.Parallel()
	sfs, tempDir := setupSecureFS(t)

	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("secret"), 0o600))
	if err := os.Symlink(outside, filepath.Join(tempDir, "link")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	_, err := sfs.StatRel("link/secret.txt")
	require.Error(t, err)

	_, err = sfs.CreateExclusive("link/new.txt", 0o600)
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(outside, "new.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestServeRelativeFile(t *testing.T) {
	t.Parallel()
	sfs, tempDir := setupSecureFS(t)

	require.NoError(t, os.MkdirAll(filepath.Join(tempDir, "temuan"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "temuan", "a.png"), []byte("png"), 0o600))

	e := echo.New()
	serve := func(rel string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/uploads/"+rel, http.NoBody)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := sfs.ServeRelativeFile(c, rel); err != nil {
			e.HTTPErrorHandler(err, c)
		}
		return rec
	}

	rec := serve("temuan/a.png")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "png", string(body))

	assert.Equal(t, http.StatusNotFound, serve("temuan/missing.png").Code)
	assert.Equal(t, http.StatusBadRequest, serve("../outside.txt").Code)
	assert.Equal(t, http.StatusForbidden, serve("temuan").Code)
}
