// Package verification applies the admin-only verification decision to
// findings. The first decision on a finding is final.
package verification

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

// MaxCommentLength bounds the verification comment in runes.
const MaxCommentLength = 2000

// Store is the conditional update the engine relies on.
type Store interface {
	Decide(ctx context.Context, id uint, d datastore.Decision) (*entities.Finding, error)
}

// Engine performs verification transitions.
type Engine struct {
	store    Store
	now      func() time.Time
	metrics  *metrics.FindingMetrics
	onChange func()
	log      logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the verification timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics records decision outcomes.
func WithMetrics(m *metrics.FindingMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithOnChange registers a callback run after every successful decision.
func WithOnChange(fn func()) Option {
	return func(e *Engine) { e.onChange = fn }
}

// NewEngine creates an Engine on store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		now:   time.Now,
		log:   GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetLogger returns the verification module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("verification")
}

// Verify records actor's decision on an unverified finding and returns the
// updated finding. Checks run in order: role (authorization), decision value
// (validation), existence (not-found), current state (conflict). Remediation
// status is never touched.
func (e *Engine) Verify(ctx context.Context, findingID uint, actor access.Actor, decision entities.VerificationStatus, comment string) (f *entities.Finding, err error) {
	defer func(start time.Time) { e.observe(start, decision, err) }(time.Now())
	log := e.log.WithContext(ctx)

	if err := access.Authorize(actor, access.ActionVerify); err != nil {
		log.Warn("verification denied",
			logger.Int64("finding_id", int64(findingID)),
			logger.String("actor_id", actor.ID),
			logger.String("role", string(actor.Role)))
		return nil, err
	}
	if !decision.IsDecision() {
		return nil, errors.Newf("decision must be %q or %q", entities.VerificationVerified, entities.VerificationRejected).
			Component("verification").
			Category(errors.CategoryValidation).
			Context("field", "verification_status").
			Context("value", string(decision)).
			Build()
	}
	comment = norm.NFC.String(strings.TrimSpace(comment))
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		return nil, errors.Newf("comment exceeds %d characters", MaxCommentLength).
			Component("verification").
			Category(errors.CategoryValidation).
			Context("field", "verification_comment").
			Build()
	}

	f, err = e.store.Decide(ctx, findingID, datastore.Decision{
		Status:     decision,
		Comment:    comment,
		VerifiedBy: actor.ID,
		VerifiedAt: e.now().UTC(),
	})
	if err != nil {
		if errors.IsConflict(err) {
			log.Info("finding already decided",
				logger.Int64("finding_id", int64(findingID)),
				logger.String("actor_id", actor.ID))
		}
		return nil, err
	}

	log.Info("finding verification decided",
		logger.Int64("finding_id", int64(findingID)),
		logger.String("decision", string(decision)),
		logger.String("actor_id", actor.ID))
	if e.onChange != nil {
		e.onChange()
	}
	return f, nil
}

func (e *Engine) observe(start time.Time, decision entities.VerificationStatus, err error) {
	e.metrics.RecordDuration(metrics.OpFindingDecide, time.Since(start).Seconds())

	switch {
	case err == nil:
		e.metrics.RecordOperation(metrics.OpFindingDecide, metrics.StatusSuccess)
		e.metrics.RecordVerificationDecision(string(decision))
	case errors.IsConflict(err):
		e.metrics.RecordOperation(metrics.OpFindingDecide, metrics.StatusConflict)
		e.metrics.RecordVerificationDecision("conflict")
	case errors.IsAuthorization(err):
		e.metrics.RecordOperation(metrics.OpFindingDecide, metrics.StatusDenied)
		e.metrics.RecordVerificationDecision("denied")
	default:
		e.metrics.RecordOperation(metrics.OpFindingDecide, metrics.StatusError)
		e.metrics.RecordError(metrics.OpFindingDecide, string(errors.CategoryOf(err)))
	}
}
