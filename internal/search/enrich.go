package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/colthorp/prospect/internal/detect"
	"github.com/colthorp/prospect/internal/model"
	"github.com/colthorp/prospect/internal/scoring"
	"github.com/colthorp/prospect/internal/store"
)

// enrich fetches, profiles and scores ids with at most EnrichWorkers in
// flight. Places whose details cannot be fetched are dropped, as are places
// scoring zero. The result is ranked.
func (o *Orchestrator) enrich(ctx context.Context, ids []string) []model.EnrichedPlace {
	log := o.logger.With(zap.String("search_id", SearchID(ctx)))
	slots := make([]*model.EnrichedPlace, len(ids))

	var g errgroup.Group
	g.SetLimit(o.cfg.EnrichWorkers)
	for i, id := range ids {
		g.Go(func() error {
			p, err := o.placeDetail(ctx, id)
			if err != nil {
				log.Warn("place detail failed", zap.String("place_id", id), zap.Error(err))
				return nil
			}
			ep := o.profile(ctx, *p)
			slots[i] = &ep
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.EnrichedPlace, 0, len(ids))
	for _, ep := range slots {
		if ep != nil && ep.Fit.Score > 0 {
			out = append(out, *ep)
		}
	}
	Rank(out)
	return out
}

// profile runs tech and chain detection on p and scores the result.
func (o *Orchestrator) profile(ctx context.Context, p model.Place) (ep model.EnrichedPlace) {
	ep = model.EnrichedPlace{Place: p}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("enrichment panicked", zap.String("place_id", p.ID), zap.Any("panic", r))
			ep.Tech = detect.UnknownProfile()
			ep.Chain = model.ChainMatch{Reason: "detection failed"}
			ep.Fit = scoring.Score(scoring.NewInput(ep, o.cfg.TargetPlatform))
		}
	}()

	ep.Tech = o.detector.Detect(ctx, p.Website)
	ep.Chain = detect.DetectChain(p.Name, p.Website)
	ep.Fit = scoring.Score(scoring.NewInput(ep, o.cfg.TargetPlatform))
	return ep
}

// placeDetail returns the details for id, served from the place cache when a
// live row exists. Cache failures only cost a fetch.
func (o *Orchestrator) placeDetail(ctx context.Context, id string) (*model.Place, error) {
	if o.details != nil {
		row, err := o.details.Get(ctx, store.TablePlaceCache, id)
		switch {
		case err == nil && !row.Expired(o.now()):
			var p model.Place
			if jerr := json.Unmarshal(row.Payload, &p); jerr == nil {
				return &p, nil
			}
		case err != nil && !errors.Is(err, store.ErrNotFound):
			o.logger.Debug("place cache read failed", zap.String("place_id", id), zap.Error(err))
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.DetailTimeout)
	defer cancel()
	p, err := o.places.PlaceDetail(callCtx, id)
	if err != nil {
		return nil, fmt.Errorf("place %s: %w", id, err)
	}

	if o.details != nil {
		if payload, err := json.Marshal(p); err == nil {
			row := store.Row{Key: id, Payload: payload, ExpiresAt: o.now().Add(o.cfg.PlaceTTL)}
			if err := o.details.Upsert(ctx, store.TablePlaceCache, row); err != nil {
				o.logger.Debug("place cache write failed", zap.String("place_id", id), zap.Error(err))
			}
		}
	}
	return p, nil
}
