package attachments

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitesafe/hsetrack/internal/errors"
)

var fixedNow = time.UnixMilli(1767225600000)

func newTestStore(t *testing.T, cfg StoreConfig) (*Store, string) {
	t.Helper()
	if cfg.Root == "" {
		cfg.Root = t.TempDir()
	}
	s, err := NewStore(cfg)
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	t.Cleanup(func() { _ = s.Close() })
	return s, cfg.Root
}

func storedFiles(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(root, FindingDir))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSplitName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		wantBase string
		wantExt  string
	}{
		{"site photo 1.jpg", "site_photo_1", ".jpg"},
		{"a\t b   c.JPG", "a_b_c", ".JPG"},
		{`C:\Users\hse\tangga rusak.png`, "tangga_rusak", ".png"},
		{"../../etc/passwd", "passwd", ""},
		{"", "file", ""},
		{"..", "file", ""},
		{"report.tar.gz", "report.tar", ".gz"},
		{"weird.ex e", "weird", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			base, ext := splitName(tt.in)
			assert.Equal(t, tt.wantBase, base)
			assert.Equal(t, tt.wantExt, ext)
		})
	}
}

func TestSaveFileNamesAndReference(t *testing.T) {
	t.Parallel()
	s, root := newTestStore(t, StoreConfig{})

	ref, err := s.SaveFile(context.Background(), strings.NewReader("jpeg bytes"), "site photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/temuan/site_photo-1767225600000.jpg", ref)

	data, err := os.ReadFile(filepath.Join(root, FindingDir, "site_photo-1767225600000.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))
}

func TestSaveFileSameNameSameMillisecond(t *testing.T) {
	t.Parallel()
	s, root := newTestStore(t, StoreConfig{URLPrefix: "/files/"})
	ctx := context.Background()

	first, err := s.SaveFile(ctx, strings.NewReader("one"), "x.png")
	require.NoError(t, err)
	second, err := s.SaveFile(ctx, strings.NewReader("two"), "x.png")
	require.NoError(t, err)

	assert.Equal(t, "/files/temuan/x-1767225600000.png", first)
	assert.Equal(t, "/files/temuan/x-1767225600000-1.png", second)
	assert.ElementsMatch(t, []string{"x-1767225600000.png", "x-1767225600000-1.png"}, storedFiles(t, root))
}

func TestSaveFileTooLargeLeavesNothing(t *testing.T) {
	t.Parallel()
	s, root := newTestStore(t, StoreConfig{MaxFileSize: 4})

	_, err := s.SaveFile(context.Background(), strings.NewReader("12345"), "big.bin")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrFileTooLarge)
	assert.True(t, errors.IsCategory(err, errors.CategoryLimit))
	assert.Empty(t, storedFiles(t, root))

	_, err = s.SaveFile(context.Background(), strings.NewReader("1234"), "ok.bin")
	require.NoError(t, err, "exactly the limit is allowed")
}

func TestSaveFileRefusesWhenDiskLow(t *testing.T) {
	t.Parallel()
	s, root := newTestStore(t, StoreConfig{MinFreeMB: 10})
	s.freeSpace = func(string) (uint64, error) { return 5 * bytesPerMB, nil }

	_, err := s.SaveFile(context.Background(), strings.NewReader("x"), "a.jpg")
	require.Error(t, err)
	assert.True(t, errors.IsStorage(err))
	assert.Empty(t, storedFiles(t, root))

	s.freeSpace = func(string) (uint64, error) { return 0, errors.NewStd("statfs failed") }
	_, err = s.SaveFile(context.Background(), strings.NewReader("x"), "a.jpg")
	assert.NoError(t, err, "unknown free space does not block")
}

func TestSaveFileCanceledContext(t *testing.T) {
	t.Parallel()
	s, root := newTestStore(t, StoreConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.SaveFile(ctx, strings.NewReader("x"), "a.jpg")
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, errors.IsStorage(err))
	assert.Empty(t, storedFiles(t, root))
}

func TestDelete(t *testing.T) {
	t.Parallel()
	s, root := newTestStore(t, StoreConfig{})

	ref, err := s.SaveFile(context.Background(), strings.NewReader("x"), "a.jpg")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ref))
	assert.Empty(t, storedFiles(t, root))

	assert.NoError(t, s.Delete(ref), "deleting twice is fine")
	assert.True(t, errors.IsValidation(s.Delete("/elsewhere/a.jpg")))
	assert.Error(t, s.Delete("/uploads/../../etc/passwd"))
}
