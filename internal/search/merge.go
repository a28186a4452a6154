package search

import (
	"sort"

	"github.com/colthorp/prospect/internal/model"
)

// Merge combines two partial results from disjoint rating partitions.
//
// Counts and per-category breakdowns are summed. Places are deduplicated by
// ID (the first occurrence wins), ranked by descending fit score and cut to
// limit; fit statistics are recomputed from the merged list. A limit <= 0
// keeps every place. Neither input is modified.
func Merge(a, b *model.AggregateResult, limit int) *model.AggregateResult {
	if a == nil {
		a = &model.AggregateResult{}
	}
	if b == nil {
		b = &model.AggregateResult{}
	}

	out := &model.AggregateResult{
		Shape:               a.Shape,
		TotalCount:          a.TotalCount + b.TotalCount,
		BreakdownByCategory: make(map[string]int, len(a.BreakdownByCategory)+len(b.BreakdownByCategory)),
		FailedBranches:      a.FailedBranches + b.FailedBranches,
	}
	if out.Shape == "" {
		out.Shape = b.Shape
	}
	out.Partial = a.Partial || b.Partial || out.FailedBranches > 0

	for k, v := range a.BreakdownByCategory {
		out.BreakdownByCategory[k] += v
	}
	for k, v := range b.BreakdownByCategory {
		out.BreakdownByCategory[k] += v
	}

	if out.Shape != model.ShapePlaces {
		return out
	}

	seen := make(map[string]bool, len(a.Places)+len(b.Places))
	places := make([]model.EnrichedPlace, 0, len(a.Places)+len(b.Places))
	for _, list := range [][]model.EnrichedPlace{a.Places, b.Places} {
		for _, p := range list {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			places = append(places, p)
		}
	}
	Rank(places)
	if limit > 0 && len(places) > limit {
		places = places[:limit]
	}

	out.Places = places
	out.FitStatistics = model.ComputeFitStatistics(places)
	return out
}

// Rank sorts places by descending fit score, then name, then ID.
func Rank(places []model.EnrichedPlace) {
	sort.SliceStable(places, func(i, j int) bool {
		pi, pj := places[i], places[j]
		if pi.Fit.Score != pj.Fit.Score {
			return pi.Fit.Score > pj.Fit.Score
		}
		if pi.Name != pj.Name {
			return pi.Name < pj.Name
		}
		return pi.ID < pj.ID
	})
}

// Overlap returns the IDs present in both results' place lists.
func Overlap(a, b *model.AggregateResult) []string {
	if a == nil || b == nil {
		return nil
	}
	inA := make(map[string]bool, len(a.Places))
	for _, p := range a.Places {
		inA[p.ID] = true
	}
	var out []string
	for _, p := range b.Places {
		if inA[p.ID] {
			out = append(out, p.ID)
			delete(inA, p.ID)
		}
	}
	return out
}
