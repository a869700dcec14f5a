package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sitesafe/hsetrack/internal/datastore/entities"
	"github.com/sitesafe/hsetrack/internal/errors"
	"github.com/sitesafe/hsetrack/internal/observability/metrics"
)

// FindingRepository is the durable store for findings and their attachment
// references.
type FindingRepository interface {
	// Create persists f with status Open and verification unverified,
	// whatever the caller set, and fills in the generated ID.
	Create(ctx context.Context, f *entities.Finding) error
	// List returns findings newest first (occurred_at DESC, id DESC).
	List(ctx context.Context, filter ListFilter) ([]entities.Finding, error)
	// ListVerified returns only verified findings in List order.
	ListVerified(ctx context.Context) ([]entities.Finding, error)
	// GetByID returns ErrFindingNotFound (category not-found) when absent.
	GetByID(ctx context.Context, id uint) (*entities.Finding, error)
	// Exists reports whether a finding row exists.
	Exists(ctx context.Context, id uint) (bool, error)
	// Decide moves an unverified finding to a terminal verification state.
	// Only one Decide per finding can ever succeed; later calls get
	// ErrAlreadyDecided (category conflict).
	Decide(ctx context.Context, id uint, d Decision) (*entities.Finding, error)
	// SetStatus changes remediation status only.
	SetStatus(ctx context.Context, id uint, status entities.FindingStatus) (*entities.Finding, error)
	// AddAttachment records a stored evidence file for an existing finding.
	AddAttachment(ctx context.Context, a *entities.Attachment) error
	// ListAttachments returns a finding's attachments in insertion order.
	ListAttachments(ctx context.Context, findingID uint) ([]entities.Attachment, error)
}

// ListFilter narrows List. Zero values mean no restriction.
type ListFilter struct {
	Status             entities.FindingStatus
	VerificationStatus entities.VerificationStatus
	HazardCategory     string
	Limit              int
	Offset             int
}

// Decision is the verification outcome written by Decide.
type Decision struct {
	Status     entities.VerificationStatus
	Comment    string
	VerifiedBy string
	VerifiedAt time.Time
}

// findingRepository implements FindingRepository.
type findingRepository struct {
	db       *gorm.DB
	recorder metrics.Recorder
}

// NewFindingRepository creates a FindingRepository on db. A nil recorder
// disables metrics.
func NewFindingRepository(db *gorm.DB, recorder metrics.Recorder) FindingRepository {
	if recorder == nil {
		recorder = metrics.NewNoOpRecorder()
	}
	return &findingRepository{db: db, recorder: recorder}
}

// observe records the outcome of one repository call.
func (r *findingRepository) observe(operation string, start time.Time, err error) {
	r.recorder.RecordDuration(operation, time.Since(start).Seconds())
	switch {
	case err == nil:
		r.recorder.RecordOperation(operation, metrics.StatusSuccess)
	case errors.IsConflict(err):
		r.recorder.RecordOperation(operation, metrics.StatusConflict)
	default:
		r.recorder.RecordOperation(operation, metrics.StatusError)
		r.recorder.RecordError(operation, string(errors.CategoryOf(err)))
	}
}

// ============================================================================
// Findings
// ============================================================================

func (r *findingRepository) Create(ctx context.Context, f *entities.Finding) (err error) {
	defer func(start time.Time) { r.observe(metrics.OpFindingCreate, start, err) }(time.Now())

	if f == nil {
		return validationError("finding must not be nil", "finding", nil)
	}
	if f.ID != 0 {
		return validationError("finding id is assigned by the store", "id", f.ID)
	}

	f.Status = entities.StatusOpen
	f.VerificationStatus = entities.VerificationUnverified
	f.VerificationComment = nil
	f.VerifiedBy = nil
	f.VerifiedAt = nil

	if err := r.db.WithContext(ctx).Create(f).Error; err != nil {
		return storageError(err, "create_finding")
	}
	return nil
}

func (r *findingRepository) List(ctx context.Context, filter ListFilter) (result []entities.Finding, err error) {
	defer func(start time.Time) { r.observe(metrics.OpFindingList, start, err) }(time.Now())

	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, validationError("limit and offset must not be negative", "limit", filter.Limit)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, validationError("unknown status", "status", filter.Status)
	}
	if filter.VerificationStatus != "" && !filter.VerificationStatus.Valid() {
		return nil, validationError("unknown verification status", "verification_status", filter.VerificationStatus)
	}

	query := r.db.WithContext(ctx).Model(&entities.Finding{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.VerificationStatus != "" {
		query = query.Where("verification_status = ?", filter.VerificationStatus)
	}
	if filter.HazardCategory != "" {
		query = query.Where("hazard_category = ?", filter.HazardCategory)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	if err := query.Order("occurred_at DESC").Order("id DESC").Find(&result).Error; err != nil {
		return nil, storageError(err, "list_findings")
	}
	return result, nil
}

func (r *findingRepository) ListVerified(ctx context.Context) ([]entities.Finding, error) {
	return r.List(ctx, ListFilter{VerificationStatus: entities.VerificationVerified})
}

func (r *findingRepository) GetByID(ctx context.Context, id uint) (f *entities.Finding, err error) {
	defer func(start time.Time) { r.observe(metrics.OpFindingGet, start, err) }(time.Now())
	return r.get(ctx, id)
}

func (r *findingRepository) get(ctx context.Context, id uint) (*entities.Finding, error) {
	var f entities.Finding
	if err := r.db.WithContext(ctx).First(&f, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("get_finding", id)
		}
		return nil, storageError(err, "get_finding", "finding_id", id)
	}
	return &f, nil
}

func (r *findingRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&entities.Finding{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, storageError(err, "finding_exists", "finding_id", id)
	}
	return count > 0, nil
}

// Decide applies d with a single conditional UPDATE on
// verification_status = 'unverified'. All four verification columns change
// in that one statement.
func (r *findingRepository) Decide(ctx context.Context, id uint, d Decision) (f *entities.Finding, err error) {
	defer func(start time.Time) { r.observe(metrics.OpFindingDecide, start, err) }(time.Now())

	if !d.Status.IsDecision() {
		return nil, validationError("decision must be verified or rejected", "decision", d.Status)
	}
	if d.VerifiedBy == "" {
		return nil, validationError("verifier id is required", "verified_by", d.VerifiedBy)
	}
	if d.VerifiedAt.IsZero() {
		d.VerifiedAt = time.Now()
	}

	result := r.db.WithContext(ctx).Model(&entities.Finding{}).
		Where("id = ? AND verification_status = ?", id, entities.VerificationUnverified).
		Updates(map[string]any{
			"verification_status":  d.Status,
			"verification_comment": d.Comment,
			"verified_by":          d.VerifiedBy,
			"verified_at":          d.VerifiedAt.UTC(),
		})
	if result.Error != nil {
		return nil, storageError(result.Error, "decide_finding", "finding_id", id)
	}

	if result.RowsAffected == 0 {
		// missing row or already decided
		exists, err := r.Exists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, notFoundError("decide_finding", id)
		}
		return nil, conflictError(id)
	}

	return r.get(ctx, id)
}

func (r *findingRepository) SetStatus(ctx context.Context, id uint, status entities.FindingStatus) (f *entities.Finding, err error) {
	defer func(start time.Time) { r.observe(metrics.OpFindingStatus, start, err) }(time.Now())

	if !status.Valid() {
		return nil, validationError("status must be Open or Closed", "status", status)
	}

	result := r.db.WithContext(ctx).Model(&entities.Finding{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return nil, storageError(result.Error, "set_status", "finding_id", id)
	}
	// MySQL reports changed rows, so a no-op update also lands here
	if result.RowsAffected == 0 {
		exists, err := r.Exists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, notFoundError("set_status", id)
		}
	}
	return r.get(ctx, id)
}

// ============================================================================
// Attachments
// ============================================================================

func (r *findingRepository) AddAttachment(ctx context.Context, a *entities.Attachment) (err error) {
	defer func(start time.Time) { r.observe(metrics.OpAttachmentAdd, start, err) }(time.Now())

	if a == nil || a.FilePath == "" {
		return validationError("attachment file path is required", "file_path", "")
	}
	if a.ID != 0 {
		return validationError("attachment id is assigned by the store", "id", a.ID)
	}

	if err := r.db.WithContext(ctx).Omit("Finding").Create(a).Error; err != nil {
		if errors.Is(classifyDriverError(err), ErrForeignKey) {
			return notFoundError("add_attachment", a.FindingID)
		}
		return storageError(err, "add_attachment", "finding_id", a.FindingID)
	}
	return nil
}

func (r *findingRepository) ListAttachments(ctx context.Context, findingID uint) (result []entities.Attachment, err error) {
	defer func(start time.Time) { r.observe(metrics.OpAttachmentList, start, err) }(time.Now())

	exists, err := r.Exists(ctx, findingID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, notFoundError("list_attachments", findingID)
	}

	if err := r.db.WithContext(ctx).
		Where("finding_id = ?", findingID).
		Order("id ASC").
		Find(&result).Error; err != nil {
		return nil, storageError(err, "list_attachments", "finding_id", findingID)
	}
	return result, nil
}
