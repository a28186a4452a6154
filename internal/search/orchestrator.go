// Package search runs adaptive prospecting searches against the places API.
//
// The aggregate endpoint refuses to list more than 100 places per request.
// When it does, the Orchestrator bisects the request's rating range and
// searches both halves, level by level, until every partition fits or can no
// longer be split. Partial results are merged in ascending rating order.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/colthorp/prospect/internal/api"
	"github.com/colthorp/prospect/internal/core"
	"github.com/colthorp/prospect/internal/detect"
	"github.com/colthorp/prospect/internal/model"
	"github.com/colthorp/prospect/internal/store"
)

// Metrics receives orchestrator events.
type Metrics interface {
	RangeSplit()
	BranchFailed()
	SearchCompleted(shape string, d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RangeSplit()                            {}
func (noopMetrics) BranchFailed()                          {}
func (noopMetrics) SearchCompleted(string, time.Duration) {}

// Config tunes the orchestrator. Zero fields take the package defaults.
type Config struct {
	MaxDepth       int
	MinRangeWidth  float64
	ResultCap      int
	EnrichWorkers  int
	SearchTimeout  time.Duration
	DetailTimeout  time.Duration
	PlaceTTL       time.Duration
	TargetPlatform string
}

func (c Config) withDefaults() Config {
	if c.MaxDepth <= 0 {
		c.MaxDepth = core.MaxSplitDepth
	}
	if c.MinRangeWidth <= 0 {
		c.MinRangeWidth = core.MinSplittableWidth
	}
	if c.ResultCap <= 0 {
		c.ResultCap = core.ResultCap
	}
	if c.EnrichWorkers <= 0 {
		c.EnrichWorkers = core.DefaultEnrichWorkers
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = core.SearchTimeout
	}
	if c.DetailTimeout <= 0 {
		c.DetailTimeout = core.DetailTimeout
	}
	if c.PlaceTTL <= 0 {
		c.PlaceTTL = core.DefaultPlaceTTL
	}
	if c.TargetPlatform == "" {
		c.TargetPlatform = core.DefaultTargetPlatform
	}
	return c
}

// Orchestrator executes Queries.
type Orchestrator struct {
	places   api.Places
	detector detect.TechDetector
	details  store.Store
	cfg      Config
	metrics  Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig overrides the defaults.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithPlaceCache caches place details in the place_cache table of s.
func WithPlaceCache(s store.Store) Option {
	return func(o *Orchestrator) { o.details = s }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock sets the time source used for place-cache expiry.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an Orchestrator over places, using detector to
// profile websites.
func NewOrchestrator(places api.Places, detector detect.TechDetector, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		places:   places,
		detector: detector,
		metrics:  noopMetrics{},
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.cfg = o.cfg.withDefaults()
	return o
}

type searchIDKey struct{}

// WithSearchID tags ctx with the search ID used in log lines.
func WithSearchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, searchIDKey{}, id)
}

// SearchID returns the search ID carried by ctx, if any.
func SearchID(ctx context.Context) string {
	id, _ := ctx.Value(searchIDKey{}).(string)
	return id
}

// rangeTask is one rating partition awaiting a request. Lo and Hi are
// inclusive bounds in tenths of a star, the granularity ratings are reported
// in, so the two halves of a split never share a rating.
type rangeTask struct {
	Lo, Hi int
	Depth  int
}

// newRangeTask snaps [min, max] inward to whole tenths. The task is empty
// when no tenth lies within the bounds.
func newRangeTask(min, max float64) rangeTask {
	return rangeTask{
		Lo: int(math.Ceil(min*10 - 1e-9)),
		Hi: int(math.Floor(max*10 + 1e-9)),
	}
}

func (t rangeTask) empty() bool {
	return t.Lo > t.Hi
}

func (t rangeTask) rating() api.RatingRange {
	return api.RatingRange{Min: float64(t.Lo) / 10, Max: float64(t.Hi) / 10}
}

// width is the span of ratings the task covers, counting its last tenth.
func (t rangeTask) width() float64 {
	return float64(t.Hi-t.Lo+1) / 10
}

func (t rangeTask) split() (rangeTask, rangeTask) {
	mid := t.Lo + (t.Hi-t.Lo)/2
	return rangeTask{Lo: t.Lo, Hi: mid, Depth: t.Depth + 1},
		rangeTask{Lo: mid + 1, Hi: t.Hi, Depth: t.Depth + 1}
}

type outcome struct {
	task   rangeTask
	result *model.AggregateResult
	err    error
}

// Search validates q, resolves its location and runs the adaptive search.
func (o *Orchestrator) Search(ctx context.Context, q Query) (*model.AggregateResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if SearchID(ctx) == "" {
		ctx = WithSearchID(ctx, uuid.NewString())
	}
	log := o.logger.With(zap.String("search_id", SearchID(ctx)))
	start := time.Now()

	lat, lng, err := o.resolve(ctx, q.Location)
	if err != nil {
		return nil, fmt.Errorf("resolve location %q: %w", q.Location, err)
	}

	base := api.AggregateRequest{
		Location:      api.Circle{Lat: lat, Lng: lng, RadiusMeters: core.KmToMeters(q.RadiusKm)},
		IncludedTypes: q.Types,
		PriceLevels:   q.PriceLevels,
		Shape:         q.Shape,
	}

	result, err := o.run(ctx, log, base, newRangeTask(q.MinRating, q.MaxRating))
	if err != nil {
		log.Warn("search failed", zap.Error(err))
		return nil, err
	}

	o.metrics.SearchCompleted(string(q.Shape), time.Since(start))
	log.Info("search completed",
		zap.String("shape", string(q.Shape)),
		zap.Int("total", result.TotalCount),
		zap.Int("places", len(result.Places)),
		zap.Int("failed_branches", result.FailedBranches),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

func (o *Orchestrator) resolve(ctx context.Context, location string) (float64, float64, error) {
	if lat, lng, ok := core.ParseLatLng(location); ok {
		return lat, lng, nil
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.DetailTimeout)
	defer cancel()
	return o.places.Geocode(ctx, location)
}

// run processes the work list breadth first. Every task of a level runs
// concurrently; capacity-exceeded tasks that can still be split contribute
// two tasks to the next level. At most 2^MaxDepth leaf requests are made.
//
// A failed root is returned as an error. Failed partitions below the root
// contribute nothing and are counted in FailedBranches, even when no
// partition succeeded.
func (o *Orchestrator) run(ctx context.Context, log *zap.Logger, base api.AggregateRequest, root rangeTask) (*model.AggregateResult, error) {
	var leaves, failed []outcome

	level := []rangeTask{root}
	if root.empty() {
		log.Debug("rating bounds contain no whole tenth, nothing to search")
		level = nil
	}
	for len(level) > 0 {
		outcomes := make([]outcome, len(level))
		var wg sync.WaitGroup
		for i, t := range level {
			wg.Go(func() {
				res, err := o.leaf(ctx, base, t)
				outcomes[i] = outcome{task: t, result: res, err: err}
			})
		}
		wg.Wait()

		var next []rangeTask
		for _, oc := range outcomes {
			switch {
			case oc.err == nil:
				leaves = append(leaves, oc)
			case errors.Is(oc.err, api.ErrCapacityExceeded) && o.splittable(oc.task):
				lo, hi := oc.task.split()
				o.metrics.RangeSplit()
				log.Debug("capacity exceeded, splitting range",
					zap.Float64("min", oc.task.rating().Min),
					zap.Float64("max", oc.task.rating().Max),
					zap.Int("depth", oc.task.Depth))
				next = append(next, lo, hi)
			default:
				if oc.task.Depth == 0 {
					return nil, oc.err
				}
				failed = append(failed, oc)
			}
		}
		level = next
	}

	for _, f := range failed {
		o.metrics.BranchFailed()
		log.Warn("range partition failed, continuing without it",
			zap.Float64("min", f.task.rating().Min),
			zap.Float64("max", f.task.rating().Max),
			zap.Int("depth", f.task.Depth),
			zap.Error(f.err))
	}

	sort.SliceStable(leaves, func(i, j int) bool { return leaves[i].task.Lo < leaves[j].task.Lo })

	merged := &model.AggregateResult{
		Shape:               base.Shape,
		BreakdownByCategory: map[string]int{},
		FailedBranches:      len(failed),
		Partial:             len(failed) > 0,
	}
	for _, l := range leaves {
		merged = Merge(merged, l.result, o.cfg.ResultCap)
	}
	if base.Shape != model.ShapePlaces {
		merged.Places = nil
		merged.FitStatistics = nil
		return merged, nil
	}

	// The places breakdown describes the returned list.
	merged.BreakdownByCategory = map[string]int{}
	for _, p := range merged.Places {
		merged.BreakdownByCategory[p.Category()]++
	}
	merged.FitStatistics = model.ComputeFitStatistics(merged.Places)
	return merged, nil
}

func (o *Orchestrator) splittable(t rangeTask) bool {
	return t.Depth < o.cfg.MaxDepth && t.Hi > t.Lo && t.width() > o.cfg.MinRangeWidth
}

// leaf issues one aggregate request for t and, for the places shape,
// enriches the listed places.
func (o *Orchestrator) leaf(ctx context.Context, base api.AggregateRequest, t rangeTask) (*model.AggregateResult, error) {
	req := base
	req.Rating = t.rating()

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.SearchTimeout)
	resp, err := o.places.Aggregate(callCtx, req)
	cancel()
	if err != nil {
		return nil, err
	}

	result := &model.AggregateResult{
		Shape:               base.Shape,
		TotalCount:          resp.TotalCount,
		BreakdownByCategory: resp.Breakdown,
	}
	if result.BreakdownByCategory == nil {
		result.BreakdownByCategory = map[string]int{}
	}
	if base.Shape != model.ShapePlaces {
		return result, nil
	}

	ids := resp.PlaceIDs
	if len(ids) > o.cfg.ResultCap {
		ids = ids[:o.cfg.ResultCap]
	}
	result.Places = o.enrich(ctx, ids)
	result.FitStatistics = model.ComputeFitStatistics(result.Places)
	return result, nil
}
