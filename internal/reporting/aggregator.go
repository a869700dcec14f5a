// Package reporting derives dashboard summaries from stored findings.
// Open/closed counts cover every finding; trend breakdowns cover verified
// findings only.
package reporting

import (
	"context"
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/sitesafe/hsetrack/internal/datastore"
	"github.com/sitesafe/hsetrack/internal/datastore/entities"
	"github.com/sitesafe/hsetrack/internal/errors"
	"github.com/sitesafe/hsetrack/internal/logger"
	"github.com/sitesafe/hsetrack/internal/observability/metrics"
)

const summaryKey = "summary"

// Source is the read side of the finding repository.
type Source interface {
	List(ctx context.Context, filter datastore.ListFilter) ([]entities.Finding, error)
	ListVerified(ctx context.Context) ([]entities.Finding, error)
}

// Summary is the dashboard rollup.
type Summary struct {
	OpenCount        int
	ClosedCount      int
	TrendByCategory  map[string]int // verified only
	TrendByRiskLevel map[string]int // verified only
	GeneratedAt      time.Time
}

func (s Summary) clone() Summary {
	s.TrendByCategory = maps.Clone(s.TrendByCategory)
	s.TrendByRiskLevel = maps.Clone(s.TrendByRiskLevel)
	return s
}

// Aggregator computes summaries, optionally caching the last result until
// Invalidate is called or the TTL passes.
type Aggregator struct {
	src     Source
	cache   *cache.Cache
	group   singleflight.Group
	mu      sync.Mutex // guards gen and cache writes
	gen     uint64
	metrics *metrics.FindingMetrics
	now     func() time.Time
}

// NewAggregator creates an Aggregator. ttl <= 0 disables caching; m may be nil.
func NewAggregator(src Source, ttl time.Duration, m *metrics.FindingMetrics) *Aggregator {
	a := &Aggregator{src: src, metrics: m, now: time.Now}
	if ttl > 0 {
		a.cache = cache.New(ttl, 2*ttl)
	}
	return a
}

// GetLogger returns the reporting module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("reporting")
}

// Invalidate drops the cached summary. Writers call it after every change.
func (a *Aggregator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gen++
	if a.cache != nil {
		a.cache.Delete(summaryKey)
	}
}

func (a *Aggregator) generation() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gen
}

// store caches s only if no invalidation happened since gen was read.
func (a *Aggregator) store(gen uint64, s Summary) {
	if a.cache == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen == gen {
		a.cache.SetDefault(summaryKey, s)
	}
}

// Summarize returns the current summary. Concurrent callers share one
// computation.
func (a *Aggregator) Summarize(ctx context.Context) (Summary, error) {
	if a.cache != nil {
		if v, ok := a.cache.Get(summaryKey); ok {
			a.metrics.RecordSummaryCache(true)
			return v.(Summary).clone(), nil
		}
		a.metrics.RecordSummaryCache(false)
	}

	start := time.Now()
	// callers arriving after an invalidation never join an older computation
	gen := a.generation()
	v, err, _ := a.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		// joiners share this computation
		s, err := a.compute(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		a.store(gen, s)
		return s, nil
	})
	a.metrics.RecordDuration(metrics.OpSummary, time.Since(start).Seconds())
	if err != nil {
		a.metrics.RecordOperation(metrics.OpSummary, metrics.StatusError)
		a.metrics.RecordError(metrics.OpSummary, string(errors.CategoryOf(err)))
		GetLogger().Error("failed to compute summary", logger.Error(err))
		return Summary{}, err
	}
	a.metrics.RecordOperation(metrics.OpSummary, metrics.StatusSuccess)
	return v.(Summary).clone(), nil
}

func (a *Aggregator) compute(ctx context.Context) (Summary, error) {
	all, err := a.src.List(ctx, datastore.ListFilter{})
	if err != nil {
		return Summary{}, err
	}
	verified, err := a.src.ListVerified(ctx)
	if err != nil {
		return Summary{}, err
	}
	s := Fold(all, verified)
	s.GeneratedAt = a.now().UTC()
	return s, nil
}

// Fold counts remediation status over all and groups verified by category
// and risk level. Rows in verified that are not actually verified are
// skipped.
func Fold(all, verified []entities.Finding) Summary {
	s := Summary{
		TrendByCategory:  make(map[string]int),
		TrendByRiskLevel: make(map[string]int),
	}
	for i := range all {
		switch all[i].Status {
		case entities.StatusOpen:
			s.OpenCount++
		case entities.StatusClosed:
			s.ClosedCount++
		}
	}
	for i := range verified {
		if !verified[i].IsVerified() {
			continue
		}
		s.TrendByCategory[verified[i].HazardCategory]++
		s.TrendByRiskLevel[verified[i].RiskLevel]++
	}
	return s
}
