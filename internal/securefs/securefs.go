package securefs

import (
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sitesafe/hsetrack/internal/errors"
	"github.com/sitesafe/hsetrack/internal/logger"
)

// GetLogger returns the securefs package logger scoped to the securefs module.
func GetLogger() logger.Logger {
	return logger.Global().Module("securefs")
}

// SecureFS provides filesystem operations confined to one base directory
// using os.Root. Every path argument is relative to that directory.
//
// os.Root rejects traversal through "..", absolute paths and symlinks that
// resolve outside the root at the OS level; ValidateRelativePath rejects the
// obvious cases early with a typed error.
type SecureFS struct {
	baseDir string   // absolute base directory
	root    *os.Root // sandboxed filesystem root
}

// New creates a secure filesystem rooted at baseDir, creating the directory
// if needed.
func New(baseDir string) (*SecureFS, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}

	// Only owner can write, others can read/execute for serving files
	if err := os.MkdirAll(absPath, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem sandbox: %w", err)
	}

	return &SecureFS{
		baseDir: absPath,
		root:    root,
	}, nil
}

// BaseDir returns the absolute base directory path of the secure filesystem.
func (sfs *SecureFS) BaseDir() string {
	return sfs.baseDir
}

// ValidateRelativePath returns the cleaned form of relPath or an error if it
// is absolute or climbs above the base directory.
func (sfs *SecureFS) ValidateRelativePath(relPath string) (string, error) {
	if relPath == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.ContainsRune(relPath, 0) {
		return "", fmt.Errorf("%w: path contains NUL byte", ErrInvalidPath)
	}

	// URL paths always use forward slashes
	cleanedPath := filepath.Clean(filepath.FromSlash(relPath))

	if filepath.IsAbs(cleanedPath) || filepath.VolumeName(cleanedPath) != "" {
		return "", fmt.Errorf("%w: path must be relative, got '%s'", ErrInvalidPath, relPath)
	}
	if !filepath.IsLocal(cleanedPath) {
		return "", fmt.Errorf("%w: '%s' (cleaned from '%s')", ErrPathTraversal, cleanedPath, relPath)
	}
	return cleanedPath, nil
}

// MkdirAll creates a directory and all missing parents inside the sandbox.
func (sfs *SecureFS) MkdirAll(relPath string, perm os.FileMode) error {
	validated, err := sfs.ValidateRelativePath(relPath)
	if err != nil {
		return err
	}
	if validated == "." {
		return nil
	}

	currentPath := ""
	for component := range strings.SplitSeq(validated, string(filepath.Separator)) {
		currentPath = filepath.Join(currentPath, component)
		if err := sfs.root.Mkdir(currentPath, perm); err != nil && !os.IsExist(err) {
			return fmt.Errorf("failed to create directory component %s: %w", currentPath, err)
		}
	}
	return nil
}

// CreateExclusive creates a new file for writing. It fails with an error
// matching fs.ErrExist if the name is already taken, so concurrent writers
// can never overwrite each other.
func (sfs *SecureFS) CreateExclusive(relPath string, perm os.FileMode) (*os.File, error) {
	validated, err := sfs.ValidateRelativePath(relPath)
	if err != nil {
		return nil, err
	}
	return sfs.root.OpenFile(validated, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
}

// Remove removes a file inside the sandbox.
func (sfs *SecureFS) Remove(relPath string) error {
	validated, err := sfs.ValidateRelativePath(relPath)
	if err != nil {
		return err
	}
	return sfs.root.Remove(validated)
}

// StatRel returns file info for a path relative to the base directory.
func (sfs *SecureFS) StatRel(relPath string) (fs.FileInfo, error) {
	validated, err := sfs.ValidateRelativePath(relPath)
	if err != nil {
		return nil, err
	}
	return sfs.root.Stat(validated)
}

// Exists reports whether relPath exists. Validation errors are returned, not
// folded into false.
func (sfs *SecureFS) Exists(relPath string) (bool, error) {
	_, err := sfs.StatRel(relPath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// mapOpenErrorToHTTP converts file open errors to appropriate HTTP errors
func mapOpenErrorToHTTP(err error, effectivePath string) *echo.HTTPError {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return echo.NewHTTPError(http.StatusNotFound, "File not found")
	case errors.Is(err, fs.ErrPermission):
		return echo.NewHTTPError(http.StatusForbidden, "Access denied")
	case errors.Is(err, ErrPathTraversal) || errors.Is(err, ErrInvalidPath):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid file path").SetInternal(err)
	case errors.Is(err, ErrNotRegularFile):
		return echo.NewHTTPError(http.StatusForbidden, "Not a regular file")
	default:
		// os.Root reports escapes with a plain error, not a sentinel
		if strings.Contains(err.Error(), "path escapes from parent") {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid file path").SetInternal(err)
		}
		GetLogger().Error("unhandled error serving file",
			logger.String("path", effectivePath),
			logger.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Error serving file").SetInternal(err)
	}
}

// getContentType determines the content type for a file, using extension-based detection
func getContentType(path string) string {
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		return "application/octet-stream"
	}
	return contentType
}

// ServeRelativeFile serves a regular file below the base directory. It is
// the secure alternative to echo.Context.File for user-supplied paths.
func (sfs *SecureFS) ServeRelativeFile(c echo.Context, relPath string) error {
	validated, err := sfs.ValidateRelativePath(relPath)
	if err != nil {
		return mapOpenErrorToHTTP(err, relPath)
	}

	f, err := sfs.root.Open(validated)
	if err != nil {
		return mapOpenErrorToHTTP(err, validated)
	}
	defer func() {
		if err := f.Close(); err != nil {
			GetLogger().Warn("failed to close file", logger.Error(err))
		}
	}()

	stat, err := f.Stat()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get file info").SetInternal(err)
	}
	if !stat.Mode().IsRegular() {
		return mapOpenErrorToHTTP(ErrNotRegularFile, validated)
	}

	// Only set content type if not already set by the caller
	if c.Response().Header().Get(echo.HeaderContentType) == "" {
		c.Response().Header().Set(echo.HeaderContentType, getContentType(validated))
	}

	http.ServeContent(c.Response(), c.Request(), filepath.Base(validated), stat.ModTime(), f)
	return nil
}

// Close closes the underlying Root
func (sfs *SecureFS) Close() error {
	if sfs.root != nil {
		return sfs.root.Close()
	}
	return nil
}
