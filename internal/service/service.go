// Package service ties authentication, caching and the search orchestrator
// into the operations exposed by the CLI and MCP surfaces.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/colthorp/prospect/internal/auth"
	"github.com/colthorp/prospect/internal/cache"
	"github.com/colthorp/prospect/internal/core"
	"github.com/colthorp/prospect/internal/model"
	"github.com/colthorp/prospect/internal/search"
	"github.com/colthorp/prospect/internal/store"
)

// Source says where a search result came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceShared   Source = "shared"
	SourceUpstream Source = "upstream"
)

// Searcher runs an uncached search.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (*model.AggregateResult, error)
}

// Response is the answer to one authenticated search.
type Response struct {
	SearchID string                 `json:"searchId"`
	UserID   string                 `json:"userId"`
	CacheKey string                 `json:"cacheKey"`
	Source   Source                 `json:"source"`
	Result   *model.AggregateResult `json:"result"`
}

// Prospector serves searches from the cache tiers, the shared search cache
// table and finally the upstream orchestrator, in that order.
type Prospector struct {
	verifier  auth.Verifier
	cache     *cache.Cache[model.AggregateResult]
	searcher  Searcher
	shared    store.Store
	searchTTL time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Prospector.
type Option func(*Prospector)

// WithSharedCache consults and fills the search_cache table of s.
func WithSharedCache(s store.Store) Option {
	return func(p *Prospector) { p.shared = s }
}

// WithSearchTTL sets how long results stay cached.
func WithSearchTTL(ttl time.Duration) Option {
	return func(p *Prospector) { p.searchTTL = ttl }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Prospector) { p.logger = l }
}

// WithClock sets the time source for shared cache expiry.
func WithClock(now func() time.Time) Option {
	return func(p *Prospector) { p.now = now }
}

// New creates a Prospector.
func New(verifier auth.Verifier, c *cache.Cache[model.AggregateResult], searcher Searcher, opts ...Option) *Prospector {
	p := &Prospector{
		verifier:  verifier,
		cache:     c,
		searcher:  searcher,
		searchTTL: core.DefaultCacheTTL,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Search authenticates token and answers q.
//
// Degraded results (some partitions failed) are returned but never cached,
// so a later search gets another chance at the full answer.
func (p *Prospector) Search(ctx context.Context, token string, q search.Query) (*Response, error) {
	userID, err := p.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	resp := &Response{
		SearchID: uuid.NewString(),
		UserID:   userID,
		CacheKey: q.CacheKey(),
	}
	log := p.logger.With(zap.String("search_id", resp.SearchID), zap.String("user_id", userID))

	if v, ok := p.cache.Get(ctx, resp.CacheKey); ok {
		log.Debug("search served from cache", zap.String("key", resp.CacheKey))
		resp.Source, resp.Result = SourceCache, &v
		return resp, nil
	}

	if res, ok := p.readShared(ctx, log, resp.CacheKey); ok {
		resp.Source, resp.Result = SourceShared, res
		return resp, nil
	}

	res, err := p.searcher.Search(search.WithSearchID(ctx, resp.SearchID), q)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	resp.Source, resp.Result = SourceUpstream, res

	if !res.Partial {
		p.cache.Set(ctx, resp.CacheKey, *res, p.searchTTL)
		p.writeShared(ctx, log, resp.CacheKey, q, res)
	}
	return resp, nil
}

func (p *Prospector) readShared(ctx context.Context, log *zap.Logger, key string) (*model.AggregateResult, bool) {
	if p.shared == nil {
		return nil, false
	}
	row, err := p.shared.Get(ctx, store.TableSearchCache, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn("shared search cache read failed", zap.Error(err))
		}
		return nil, false
	}
	now := p.now()
	if row.Expired(now) {
		return nil, false
	}
	var res model.AggregateResult
	if err := json.Unmarshal(row.Payload, &res); err != nil {
		log.Warn("shared search cache row unreadable", zap.Error(err))
		return nil, false
	}
	p.cache.Set(ctx, key, res, row.ExpiresAt.Sub(now))
	log.Debug("search served from shared cache", zap.String("key", key))
	return &res, true
}

func (p *Prospector) writeShared(ctx context.Context, log *zap.Logger, key string, q search.Query, res *model.AggregateResult) {
	if p.shared == nil {
		return
	}
	params, err := json.Marshal(q)
	if err != nil {
		log.Warn("encode query params", zap.Error(err))
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		log.Warn("encode search result", zap.Error(err))
		return
	}
	row := store.Row{Key: key, Params: params, Payload: payload, ExpiresAt: p.now().Add(p.searchTTL)}
	if err := p.shared.Upsert(ctx, store.TableSearchCache, row); err != nil {
		log.Warn("shared search cache write failed", zap.Error(err))
	}
}

// Stats returns cache statistics.
func (p *Prospector) Stats(ctx context.Context) cache.Stats {
	return p.cache.Stats(ctx)
}

// ClearCache empties the local cache tiers. The shared table is left alone.
func (p *Prospector) ClearCache(ctx context.Context) error {
	return p.cache.Clear(ctx)
}

// Invalidate removes key from the local tiers and the shared table.
func (p *Prospector) Invalidate(ctx context.Context, key string) error {
	if err := p.cache.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete cached search: %w", err)
	}
	if p.shared != nil {
		if err := p.shared.Delete(ctx, store.TableSearchCache, key); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("delete shared search: %w", err)
		}
	}
	return nil
}

// Close flushes pending cache writes.
func (p *Prospector) Close() error {
	return p.cache.Close()
}
