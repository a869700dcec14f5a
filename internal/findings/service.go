// Package findings validates and records workplace-safety findings and
// exposes the read paths used by the API and CLI.
package findings

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/sitesafe/hsetrack/internal/access"
	"github.com/sitesafe/hsetrack/internal/datastore"
	"github.com/sitesafe/hsetrack/internal/datastore/entities"
	"github.com/sitesafe/hsetrack/internal/errors"
	"github.com/sitesafe/hsetrack/internal/logger"
	"github.com/sitesafe/hsetrack/internal/observability/metrics"
)

// CreateInput carries the caller-supplied fields of a new finding. Dates are
// YYYY-MM-DD; RFC 3339 timestamps are accepted and truncated to the date.
type CreateInput struct {
	OccurredAt        string
	Location          string
	Source            string
	Description       string
	HazardCategory    string
	RiskLevel         string
	RemediationAction string
	ResponsibleParty  string
	DueDate           string
}

// field length limits in runes, matching the column sizes
var maxLengths = map[string]int{
	"location":           255,
	"source":             100,
	"hazard_category":    100,
	"risk_level":         50,
	"responsible_party":  255,
	"description":        10000,
	"remediation_action": 10000,
}

// Service is the finding lifecycle entry point outside verification and
// attachments.
type Service struct {
	repo     datastore.FindingRepository
	metrics  *metrics.FindingMetrics
	onChange func()
	log      logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records created findings by category.
func WithMetrics(m *metrics.FindingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithOnChange registers a callback run after every successful write.
func WithOnChange(fn func()) Option {
	return func(s *Service) { s.onChange = fn }
}

// NewService creates a Service on repo.
func NewService(repo datastore.FindingRepository, opts ...Option) *Service {
	s := &Service{repo: repo, log: GetLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetLogger returns the findings module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("findings")
}

// Create validates in and stores a new finding in state Open/unverified.
// All field problems are reported together in one validation error.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entities.Finding, error) {
	f, err := in.toEntity()
	if err != nil {
		s.metrics.RecordOperation(metrics.OpFindingCreate, metrics.StatusError)
		s.metrics.RecordError(metrics.OpFindingCreate, string(errors.CategoryValidation))
		return nil, err
	}

	if err := s.repo.Create(ctx, f); err != nil {
		s.metrics.RecordOperation(metrics.OpFindingCreate, metrics.StatusError)
		s.metrics.RecordError(metrics.OpFindingCreate, string(errors.CategoryOf(err)))
		return nil, err
	}

	s.metrics.RecordOperation(metrics.OpFindingCreate, metrics.StatusSuccess)
	s.metrics.RecordFindingCreated(f.HazardCategory)
	s.log.Info("finding recorded",
		logger.Int64("finding_id", int64(f.ID)),
		logger.String("category", f.HazardCategory),
		logger.String("risk_level", f.RiskLevel))
	s.changed()
	return f, nil
}

// List returns findings newest first.
func (s *Service) List(ctx context.Context, filter datastore.ListFilter) ([]entities.Finding, error) {
	return s.repo.List(ctx, filter)
}

// ListVerified returns only verified findings, newest first.
func (s *Service) ListVerified(ctx context.Context) ([]entities.Finding, error) {
	return s.repo.ListVerified(ctx)
}

// Get returns one finding.
func (s *Service) Get(ctx context.Context, id uint) (*entities.Finding, error) {
	return s.repo.GetByID(ctx, id)
}

// SetStatus closes or reopens remediation on a finding. Verification state
// is not affected.
func (s *Service) SetStatus(ctx context.Context, id uint, actor access.Actor, status entities.FindingStatus) (*entities.Finding, error) {
	if err := access.Authorize(actor, access.ActionSetStatus); err != nil {
		return nil, err
	}
	f, err := s.repo.SetStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.log.Info("finding status changed",
		logger.Int64("finding_id", int64(id)),
		logger.String("status", string(status)),
		logger.String("actor_id", actor.ID))
	s.changed()
	return f, nil
}

func (s *Service) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// fieldErrors collects per-field validation messages.
type fieldErrors struct {
	fields   []string
	messages []string
}

func (fe *fieldErrors) add(field, msg string) {
	fe.fields = append(fe.fields, field)
	fe.messages = append(fe.messages, field+": "+msg)
}

func (fe *fieldErrors) err() error {
	if len(fe.fields) == 0 {
		return nil
	}
	return errors.Newf("invalid finding: %s", strings.Join(fe.messages, "; ")).
		Component("findings").
		Category(errors.CategoryValidation).
		Context("fields", strings.Join(fe.fields, ",")).
		Build()
}

func (in CreateInput) toEntity() (*entities.Finding, error) {
	var fe fieldErrors

	text := func(field, value string) string {
		v := norm.NFC.String(strings.TrimSpace(value))
		switch {
		case v == "":
			fe.add(field, "is required")
		case utf8.RuneCountInString(v) > maxLengths[field]:
			fe.add(field, "is too long")
		}
		return v
	}
	date := func(field, value string) time.Time {
		v := strings.TrimSpace(value)
		if v == "" {
			fe.add(field, "is required")
			return time.Time{}
		}
		d, err := ParseDate(v)
		if err != nil {
			fe.add(field, "must be a date in YYYY-MM-DD format")
		}
		return d
	}

	f := &entities.Finding{
		OccurredAt:        date("occurred_at", in.OccurredAt),
		Location:          text("location", in.Location),
		Source:            text("source", in.Source),
		Description:       text("description", in.Description),
		HazardCategory:    text("hazard_category", in.HazardCategory),
		RiskLevel:         text("risk_level", in.RiskLevel),
		RemediationAction: text("remediation_action", in.RemediationAction),
		ResponsibleParty:  text("responsible_party", in.ResponsibleParty),
		DueDate:           date("due_date", in.DueDate),
	}
	if err := fe.err(); err != nil {
		return nil, err
	}
	return f, nil
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns the
// calendar date at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		return d, nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}
