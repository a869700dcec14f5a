package attachments

import (
	"cmp"
	"context"
	"io"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sitesafe/hsetrack/internal/datastore/entities"
	"github.com/sitesafe/hsetrack/internal/errors"
	"github.com/sitesafe/hsetrack/internal/logger"
	"github.com/sitesafe/hsetrack/internal/observability/metrics"
)

// Upload limits per call.
const (
	MinFilesPerUpload = 1
	MaxFilesPerUpload = 10
	DefaultWorkers    = 4
)

// FindingStore is the part of the finding repository the uploader needs.
type FindingStore interface {
	Exists(ctx context.Context, id uint) (bool, error)
	AddAttachment(ctx context.Context, a *entities.Attachment) error
	ListAttachments(ctx context.Context, findingID uint) ([]entities.Attachment, error)
}

// FileStore persists file bytes and returns a stable reference.
type FileStore interface {
	SaveFile(ctx context.Context, r io.Reader, suggestedName string) (string, error)
	Delete(ref string) error
}

// FileUpload is one file of a multi-file upload. Size is informational and
// may be zero when unknown.
type FileUpload struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// Uploader attaches evidence files to existing findings.
type Uploader struct {
	repo    FindingStore
	files   FileStore
	workers int
	metrics *metrics.FindingMetrics
	log     logger.Logger
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithWorkers bounds how many files of one upload are written at once.
func WithWorkers(n int) Option {
	return func(u *Uploader) {
		if n > 0 {
			u.workers = n
		}
	}
}

// WithMetrics records per-file outcomes.
func WithMetrics(m *metrics.FindingMetrics) Option {
	return func(u *Uploader) {
		u.metrics = m
	}
}

// NewUploader creates an Uploader.
func NewUploader(repo FindingStore, files FileStore, opts ...Option) *Uploader {
	u := &Uploader{
		repo:    repo,
		files:   files,
		workers: DefaultWorkers,
		log:     GetLogger(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

type fileResult struct {
	attachment entities.Attachment
	err        error
}

// Attach stores uploads for findingID and records one attachment per stored
// file. Files are processed independently: a failed file is logged and
// skipped while the others are kept. The returned slice, ordered by ID, lists
// exactly the attachments that were recorded. If no file could be stored the
// call fails with a storage error, or with the limit or validation category
// when every file failed for that same reason.
func (u *Uploader) Attach(ctx context.Context, findingID uint, uploads []FileUpload) ([]entities.Attachment, error) {
	start := time.Now()

	if len(uploads) < MinFilesPerUpload || len(uploads) > MaxFilesPerUpload {
		err := errors.Newf("between %d and %d files are required per upload, got %d",
			MinFilesPerUpload, MaxFilesPerUpload, len(uploads)).
			Component("attachments").
			Category(errors.CategoryValidation).
			Context("finding_id", findingID).
			Context("file_count", len(uploads)).
			Build()
		u.observe(start, err)
		return nil, err
	}

	exists, err := u.repo.Exists(ctx, findingID)
	if err != nil {
		u.observe(start, err)
		return nil, err
	}
	if !exists {
		err := errors.Newf("finding %d not found", findingID).
			Component("attachments").
			Category(errors.CategoryNotFound).
			Context("operation", "attach").
			Context("finding_id", findingID).
			Build()
		u.observe(start, err)
		return nil, err
	}

	results := make([]fileResult, len(uploads))
	var g errgroup.Group
	g.SetLimit(u.workers)
	for i, up := range uploads {
		g.Go(func() error {
			results[i] = u.storeOne(ctx, findingID, up)
			// per-file failures never abort the batch
			return nil
		})
	}
	_ = g.Wait()

	stored := make([]entities.Attachment, 0, len(uploads))
	var failures []error
	for i, res := range results {
		if res.err != nil {
			u.log.Warn("evidence file skipped",
				logger.Int64("finding_id", int64(findingID)),
				logger.String("file_name", uploads[i].Filename),
				logger.Error(res.err))
			failures = append(failures, res.err)
			continue
		}
		stored = append(stored, res.attachment)
	}

	if len(stored) == 0 {
		err := errors.New(errors.Join(failures...)).
			Component("attachments").
			Category(batchCategory(failures)).
			Context("operation", "attach").
			Context("finding_id", findingID).
			Context("failed", len(failures)).
			Build()
		u.observe(start, err)
		return nil, err
	}

	slices.SortFunc(stored, func(a, b entities.Attachment) int {
		return cmp.Compare(a.ID, b.ID)
	})

	u.log.Info("evidence files attached",
		logger.Int64("finding_id", int64(findingID)),
		logger.Int("stored", len(stored)),
		logger.Int("failed", len(failures)))
	u.observe(start, nil)
	return stored, nil
}

// batchCategory classifies a batch in which every file failed: limit or
// validation when all failures share it, storage otherwise.
func batchCategory(failures []error) errors.ErrorCategory {
	if len(failures) == 0 {
		return errors.CategoryStorage
	}
	first := errors.CategoryOf(failures[0])
	if first != errors.CategoryLimit && first != errors.CategoryValidation {
		return errors.CategoryStorage
	}
	for _, err := range failures[1:] {
		if errors.CategoryOf(err) != first {
			return errors.CategoryStorage
		}
	}
	return first
}

// storeOne writes a single file and records it. When the record cannot be
// written the file is removed again so no orphan bytes remain.
func (u *Uploader) storeOne(ctx context.Context, findingID uint, up FileUpload) fileResult {
	if up.Open == nil {
		return u.fail(errors.ValidationError("upload has no content"))
	}
	rc, err := up.Open()
	if err != nil {
		return u.fail(err)
	}
	defer func() { _ = rc.Close() }()

	counter := &countingReader{r: rc}
	ref, err := u.files.SaveFile(ctx, counter, up.Filename)
	if err != nil {
		return u.fail(err)
	}

	a := entities.Attachment{FindingID: findingID, FilePath: ref}
	if err := u.repo.AddAttachment(ctx, &a); err != nil {
		if rmErr := u.files.Delete(ref); rmErr != nil {
			u.log.Warn("failed to remove unrecorded file",
				logger.String("reference", ref),
				logger.Error(rmErr))
		}
		return u.fail(err)
	}

	u.metrics.RecordAttachment(metrics.StatusSuccess, counter.n)
	return fileResult{attachment: a}
}

func (u *Uploader) fail(err error) fileResult {
	u.metrics.RecordAttachment(metrics.StatusError, 0)
	return fileResult{err: err}
}

// ListAttachments returns the attachments of a finding in insertion order.
func (u *Uploader) ListAttachments(ctx context.Context, findingID uint) ([]entities.Attachment, error) {
	return u.repo.ListAttachments(ctx, findingID)
}

func (u *Uploader) observe(start time.Time, err error) {
	u.metrics.RecordDuration(metrics.OpAttachmentWrite, time.Since(start).Seconds())
	if err != nil {
		u.metrics.RecordOperation(metrics.OpAttachmentWrite, metrics.StatusError)
		u.metrics.RecordError(metrics.OpAttachmentWrite, string(errors.CategoryOf(err)))
		return
	}
	u.metrics.RecordOperation(metrics.OpAttachmentWrite, metrics.StatusSuccess)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
