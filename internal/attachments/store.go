// Package attachments stores finding evidence files and records their
// references against the owning finding.
package attachments

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/sitesafe/hsetrack/internal/errors"
	"github.com/sitesafe/hsetrack/internal/logger"
	"github.com/sitesafe/hsetrack/internal/securefs"
)

// FindingDir is the directory below the upload root that holds evidence files.
const FindingDir = "temuan"

const (
	// maxNameAttempts bounds the disambiguator search for a free file name.
	maxNameAttempts = 100
	// maxBaseRunes truncates long original names.
	maxBaseRunes = 100
	bytesPerMB   = 1024 * 1024
)

// ErrFileTooLarge is returned when a stream exceeds the per-file limit.
var ErrFileTooLarge = errors.NewStd("file exceeds maximum allowed size")

// GetLogger returns the attachments module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("attachments")
}

// StoreConfig configures a Store.
type StoreConfig struct {
	Root        string // upload root directory
	URLPrefix   string // public prefix of references, e.g. "/uploads"
	MaxFileSize int64  // bytes, 0 disables the limit
	MinFreeMB   uint64 // refuse writes below this much free space, 0 disables
}

// Store writes evidence files below <root>/temuan and returns references of
// the form <prefix>/temuan/<name>. It never inspects file contents.
type Store struct {
	fs           *securefs.SecureFS
	urlPrefix    string
	maxFileSize  int64
	minFreeBytes uint64

	now       func() time.Time
	freeSpace func(path string) (uint64, error)
}

// NewStore opens the upload root and creates the finding directory.
func NewStore(cfg StoreConfig) (*Store, error) {
	sfs, err := securefs.New(cfg.Root)
	if err != nil {
		return nil, errors.New(err).
			Component("attachments").
			Category(errors.CategoryFileIO).
			Context("operation", "open_upload_root").
			Context("root", cfg.Root).
			Build()
	}
	if err := sfs.MkdirAll(FindingDir, 0o750); err != nil {
		_ = sfs.Close()
		return nil, errors.New(err).
			Component("attachments").
			Category(errors.CategoryFileIO).
			Context("operation", "create_finding_dir").
			Build()
	}

	prefix := strings.TrimSuffix(cfg.URLPrefix, "/")
	if prefix == "" {
		prefix = "/uploads"
	}

	return &Store{
		fs:           sfs,
		urlPrefix:    prefix,
		maxFileSize:  cfg.MaxFileSize,
		minFreeBytes: cfg.MinFreeMB * bytesPerMB,
		now:          time.Now,
		freeSpace:    diskFree,
	}, nil
}

func diskFree(p string) (uint64, error) {
	usage, err := disk.Usage(p)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// FS exposes the sandbox for serving stored files.
func (s *Store) FS() *securefs.SecureFS {
	return s.fs
}

// URLPrefix returns the public prefix of stored references.
func (s *Store) URLPrefix() string {
	return s.urlPrefix
}

// Close releases the upload root.
func (s *Store) Close() error {
	return s.fs.Close()
}

// SaveFile writes r under a collision-free name derived from suggestedName
// and returns the stored reference. A partially written file is removed
// before returning an error.
func (s *Store) SaveFile(ctx context.Context, r io.Reader, suggestedName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", storeError(err, "save_file", suggestedName)
	}
	if err := s.checkFreeSpace(); err != nil {
		return "", err
	}

	f, name, err := s.createUnique(suggestedName)
	if err != nil {
		return "", storeError(err, "create_file", suggestedName)
	}
	relPath := path.Join(FindingDir, name)

	written, copyErr := s.copyLimited(ctx, f, r)
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		if rmErr := s.fs.Remove(relPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			GetLogger().Warn("failed to remove partial file",
				logger.String("path", relPath),
				logger.Error(rmErr))
		}
		if errors.Is(copyErr, ErrFileTooLarge) {
			return "", errors.New(copyErr).
				Component("attachments").
				Category(errors.CategoryLimit).
				Context("operation", "save_file").
				Context("max_bytes", s.maxFileSize).
				Build()
		}
		return "", storeError(copyErr, "write_file", suggestedName)
	}

	GetLogger().Debug("stored evidence file",
		logger.String("name", name),
		logger.Int64("bytes", written))

	return s.urlPrefix + "/" + relPath, nil
}

// Delete removes a stored file by its reference. Missing files are ignored.
func (s *Store) Delete(ref string) error {
	rel, ok := strings.CutPrefix(ref, s.urlPrefix+"/")
	if !ok {
		return errors.ValidationError("reference is outside the upload prefix")
	}
	if err := s.fs.Remove(rel); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storeError(err, "delete_file", ref)
	}
	return nil
}

// createUnique opens a new file named <base>-<millis><ext>, adding -1, -2 ...
// when another upload already took the name.
func (s *Store) createUnique(suggestedName string) (*os.File, string, error) {
	base, ext := splitName(suggestedName)
	stamp := strconv.FormatInt(s.now().UnixMilli(), 10)

	for attempt := range maxNameAttempts {
		name := base + "-" + stamp + ext
		if attempt > 0 {
			name = base + "-" + stamp + "-" + strconv.Itoa(attempt) + ext
		}
		f, err := s.fs.CreateExclusive(path.Join(FindingDir, name), 0o640)
		if err == nil {
			return f, name, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("no free file name for %q after %d attempts", suggestedName, maxNameAttempts)
}

func (s *Store) copyLimited(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	src = &ctxReader{ctx: ctx, r: src}
	if s.maxFileSize <= 0 {
		return io.Copy(dst, src)
	}
	n, err := io.Copy(dst, io.LimitReader(src, s.maxFileSize+1))
	if err != nil {
		return n, err
	}
	if n > s.maxFileSize {
		return n, ErrFileTooLarge
	}
	return n, nil
}

func (s *Store) checkFreeSpace() error {
	if s.minFreeBytes == 0 {
		return nil
	}
	free, err := s.freeSpace(s.fs.BaseDir())
	if err != nil {
		// unknown free space should not block uploads
		GetLogger().Warn("failed to check free disk space", logger.Error(err))
		return nil
	}
	if free < s.minFreeBytes {
		return errors.Newf("insufficient disk space: %d bytes free, %d required", free, s.minFreeBytes).
			Component("attachments").
			Category(errors.CategoryStorage).
			Priority(errors.PriorityHigh).
			Context("operation", "check_free_space").
			Build()
	}
	return nil
}

// splitName derives the stored base name and extension from an uploaded
// file name: directories are dropped and whitespace runs become "_".
func splitName(original string) (base, ext string) {
	original = strings.ReplaceAll(original, "\\", "/")
	name := path.Base(original)
	if name == "." || name == "/" || name == ".." {
		name = ""
	}

	ext = filepath.Ext(name)
	if !validExt(ext) {
		ext = ""
	}
	base = strings.TrimSuffix(name, filepath.Ext(name))

	var b strings.Builder
	inSpace := false
	count := 0
	for _, r := range base {
		if count >= maxBaseRunes {
			break
		}
		switch {
		case unicode.IsSpace(r):
			if !inSpace {
				b.WriteByte('_')
				count++
			}
			inSpace = true
			continue
		case r == 0 || unicode.IsControl(r):
			continue
		}
		inSpace = false
		b.WriteRune(r)
		count++
	}
	base = b.String()
	if base == "" || strings.Trim(base, ".") == "" {
		base = "file"
	}
	return base, ext
}

func validExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 10 {
		return false
	}
	for _, r := range ext[1:] {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func storeError(err error, operation, name string) error {
	return errors.New(err).
		Component("attachments").
		Category(errors.CategoryStorage).
		Context("operation", operation).
		Context("file_name", name).
		Build()
}

// ctxReader stops a copy once the request context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
