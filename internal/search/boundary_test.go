package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colthorp/prospect/internal/api"
	"github.com/colthorp/prospect/internal/model"
)

// insightsServer answers computeInsights and place detail requests over a
// fixed set of places. Its rating filter includes both ends and it refuses
// to list more than ceiling places, like the live endpoint.
type insightsServer struct {
	ceiling int
	places  []model.Place

	mu     sync.Mutex
	ranges []api.RatingRange
}

type insightsBody struct {
	Insights []string `json:"insights"`
	Filter   struct {
		TypeFilter *struct {
			IncludedTypes []string `json:"includedTypes"`
		} `json:"typeFilter"`
		RatingFilter *struct {
			MinRating float64 `json:"minRating"`
			MaxRating float64 `json:"maxRating"`
		} `json:"ratingFilter"`
	} `json:"filter"`
}

func (s *insightsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if id, ok := strings.CutPrefix(r.URL.Path, "/v1/places/"); ok {
		s.detail(w, id)
		return
	}

	var body insightsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rf := body.Filter.RatingFilter
	if rf == nil {
		http.Error(w, "missing rating filter", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.ranges = append(s.ranges, api.RatingRange{Min: rf.MinRating, Max: rf.MaxRating})
	s.mu.Unlock()

	var types []string
	if body.Filter.TypeFilter != nil {
		types = body.Filter.TypeFilter.IncludedTypes
	}
	var matched []model.Place
	for _, p := range s.places {
		if p.Rating < rf.MinRating || p.Rating > rf.MaxRating {
			continue
		}
		if len(types) > 0 && !slices.ContainsFunc(p.Types, func(t string) bool { return slices.Contains(types, t) }) {
			continue
		}
		matched = append(matched, p)
	}

	if len(body.Insights) == 1 && body.Insights[0] == "INSIGHT_COUNT" {
		_, _ = fmt.Fprintf(w, `{"count":%q}`, strconv.Itoa(len(matched)))
		return
	}
	if len(matched) > s.ceiling {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Too many places.","status":"RESOURCE_EXHAUSTED"}}`))
		return
	}
	var out struct {
		PlaceInsights []struct {
			Place string `json:"place"`
		} `json:"placeInsights"`
	}
	for _, p := range matched {
		out.PlaceInsights = append(out.PlaceInsights, struct {
			Place string `json:"place"`
		}{Place: "places/" + p.ID})
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (s *insightsServer) detail(w http.ResponseWriter, id string) {
	for _, p := range s.places {
		if p.ID != id {
			continue
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":              p.ID,
			"displayName":     map[string]string{"text": p.Name},
			"types":           p.Types,
			"primaryType":     p.PrimaryType,
			"rating":          p.Rating,
			"userRatingCount": p.ReviewCount,
			"websiteUri":      p.Website,
		})
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (s *insightsServer) requested() []api.RatingRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.RatingRange(nil), s.ranges...)
}

// twoRatingPlaces returns n restaurants rated a and n rated b.
func twoRatingPlaces(n int, a, b float64) []model.Place {
	var out []model.Place
	for i, rating := range []float64{a, b} {
		for j := 0; j < n; j++ {
			out = append(out, model.Place{
				ID:          fmt.Sprintf("p%d-%03d", i, j),
				Name:        fmt.Sprintf("Kitchen %d-%03d", i, j),
				Types:       []string{"restaurant"},
				PrimaryType: "restaurant",
				Rating:      rating,
				ReviewCount: 50 + j,
				Website:     fmt.Sprintf("https://kitchen%d-%03d.example", i, j),
			})
		}
	}
	return out
}

func newInsightsClient(t *testing.T, upstream *insightsServer) *api.Client {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)
	return api.NewClient(api.ClientConfig{
		APIKey:          "test-key",
		PlacesBaseURL:   srv.URL + "/v1",
		InsightsBaseURL: srv.URL + "/insights",
		GeocodeBaseURL:  srv.URL + "/geocode",
		MaxRetries:      1,
		RetryBase:       time.Millisecond,
	})
}

func boundaryQuery(shape model.Shape) Query {
	q := DefaultQuery("35.2271,-80.8431")
	q.Types = []string{"restaurant"}
	q.MinRating = 3.8
	q.MaxRating = 4.8
	q.Shape = shape
	return q
}

func TestSearchInclusiveUpstreamCountsEachPlaceOnce(t *testing.T) {
	upstream := &insightsServer{ceiling: 100, places: twoRatingPlaces(60, 4.0, 4.3)}
	o := NewOrchestrator(newInsightsClient(t, upstream), &stubDetector{}, WithConfig(Config{ResultCap: 500}))

	res, err := o.Search(context.Background(), boundaryQuery(model.ShapePlaces))
	require.NoError(t, err)

	assert.Equal(t, 120, res.TotalCount)
	assert.Len(t, res.Places, 120)
	assert.Len(t, ids(res.Places), 120)
	assert.Equal(t, map[string]int{"restaurant": 120}, res.BreakdownByCategory)
	assert.False(t, res.Partial)

	// [3.8,4.8] and [3.8,4.3] are too big; the leaves share no tenth.
	assert.ElementsMatch(t, []api.RatingRange{
		{Min: 3.8, Max: 4.8},
		{Min: 3.8, Max: 4.3}, {Min: 4.4, Max: 4.8},
		{Min: 3.8, Max: 4.0}, {Min: 4.1, Max: 4.3},
	}, upstream.requested())
}

func TestSearchInclusiveUpstreamCountShape(t *testing.T) {
	upstream := &insightsServer{ceiling: 100, places: twoRatingPlaces(60, 4.0, 4.3)}
	o := NewOrchestrator(newInsightsClient(t, upstream), &stubDetector{})

	res, err := o.Search(context.Background(), boundaryQuery(model.ShapeCount))
	require.NoError(t, err)

	assert.Equal(t, 120, res.TotalCount)
	assert.Equal(t, map[string]int{"restaurant": 120}, res.BreakdownByCategory)
	assert.Equal(t, []api.RatingRange{{Min: 3.8, Max: 4.8}}, upstream.requested())
}

func TestSearchSplitCountsBoundaryRatingOnce(t *testing.T) {
	places := api.NewInMemoryPlaces()
	places.Seed(twoRatingPlaces(60, 4.0, 4.3)...)
	// Count requests never exceed capacity upstream; force the same splits
	// a listing would take so the merge sees a place rated on a split point.
	places.AggregateHook = func(req api.AggregateRequest) error {
		if req.Rating.Contains(4.0) && req.Rating.Contains(4.3) {
			return api.CapacityExceededError()
		}
		return nil
	}

	res, err := NewOrchestrator(places, &stubDetector{}).Search(context.Background(), boundaryQuery(model.ShapeCount))
	require.NoError(t, err)

	assert.Len(t, places.Requests("aggregate"), 5)
	assert.Equal(t, 120, res.TotalCount)
	assert.Equal(t, map[string]int{"restaurant": 120}, res.BreakdownByCategory)
}

func TestSearchIncludesMaxRating(t *testing.T) {
	places := api.NewInMemoryPlaces()
	places.Seed(
		model.Place{ID: "top", Name: "Top", Types: []string{"restaurant"}, Website: "https://top.example", Rating: 4.8},
		model.Place{ID: "over", Name: "Over", Types: []string{"restaurant"}, Website: "https://over.example", Rating: 4.9},
		model.Place{ID: "floor", Name: "Floor", Types: []string{"restaurant"}, Website: "https://floor.example", Rating: 3.8},
	)

	res, err := NewOrchestrator(places, &stubDetector{}).Search(context.Background(), boundaryQuery(model.ShapePlaces))
	require.NoError(t, err)

	assert.Equal(t, 2, res.TotalCount)
	assert.Equal(t, map[string]bool{"top": true, "floor": true}, ids(res.Places))
}

func TestSearchIncludesMaxRatingAfterSplit(t *testing.T) {
	places := api.NewInMemoryPlaces()
	seedSpread(places, 150)
	places.Seed(model.Place{ID: "perfect", Name: "Perfect", Types: []string{"restaurant"}, Website: "https://perfect.example", Rating: 5.0})

	res, err := NewOrchestrator(places, &stubDetector{}, WithConfig(Config{ResultCap: 500})).
		Search(context.Background(), placesQuery())
	require.NoError(t, err)

	assert.Equal(t, 151, res.TotalCount)
	assert.True(t, ids(res.Places)["perfect"])
}

func TestRangeTaskSplitIsDisjoint(t *testing.T) {
	cases := []struct {
		min, max float64
		lo, hi   api.RatingRange
	}{
		{0, 5, api.RatingRange{Min: 0, Max: 2.5}, api.RatingRange{Min: 2.6, Max: 5}},
		{3.8, 4.8, api.RatingRange{Min: 3.8, Max: 4.3}, api.RatingRange{Min: 4.4, Max: 4.8}},
		{4.0, 4.1, api.RatingRange{Min: 4.0, Max: 4.0}, api.RatingRange{Min: 4.1, Max: 4.1}},
		{3.75, 4.25, api.RatingRange{Min: 3.8, Max: 4.0}, api.RatingRange{Min: 4.1, Max: 4.2}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%.2f-%.2f", tc.min, tc.max), func(t *testing.T) {
			lo, hi := newRangeTask(tc.min, tc.max).split()
			assert.Equal(t, tc.lo, lo.rating())
			assert.Equal(t, tc.hi, hi.rating())
			assert.Equal(t, lo.Hi+1, hi.Lo)
		})
	}
}

func TestSearchEmptyRatingWindow(t *testing.T) {
	places := api.NewInMemoryPlaces()
	seedSpread(places, 20)
	q := placesQuery()
	q.MinRating = 4.21
	q.MaxRating = 4.29

	res, err := NewOrchestrator(places, &stubDetector{}).Search(context.Background(), q)
	require.NoError(t, err)

	assert.Zero(t, res.TotalCount)
	assert.False(t, res.Partial)
	assert.Empty(t, places.Requests("aggregate"))
}
