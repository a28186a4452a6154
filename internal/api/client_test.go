package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colthorp/prospect/internal/model"
)

func newTestClient(srv *httptest.Server, mutate ...func(*ClientConfig)) *Client {
	cfg := ClientConfig{
		APIKey:          "test-key",
		PlacesBaseURL:   srv.URL + "/v1",
		InsightsBaseURL: srv.URL + "/insights",
		GeocodeBaseURL:  srv.URL + "/geocode",
		RetryBase:       time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return NewClient(cfg)
}

var testRequest = AggregateRequest{
	Location:      Circle{Lat: 35.2271, Lng: -80.8431, RadiusMeters: 5000},
	IncludedTypes: []string{"restaurant"},
	Rating:        RatingRange{Min: 3.8, Max: 4.8},
	Shape:         model.ShapePlaces,
}

func TestCapacityExceededIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"too big","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Aggregate(context.Background(), testRequest)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, int32(1), calls.Load())

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusBadRequest, ue.Status)
	assert.False(t, ue.Temporary())
}

func TestCapacityExceededByMessage(t *testing.T) {
	err := &UpstreamError{Status: 400, Body: `{"error":{"code":400,"message":"Too many places to list.","status":"INVALID_ARGUMENT"}}`}
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	plain := &UpstreamError{Status: 400, Body: `{"error":{"message":"bad radius","status":"INVALID_ARGUMENT"}}`}
	assert.NotErrorIs(t, plain, ErrCapacityExceeded)

	rateLimited := &UpstreamError{Status: 429, Body: `{"error":{"status":"RESOURCE_EXHAUSTED"}}`}
	assert.NotErrorIs(t, rateLimited, ErrCapacityExceeded, "429 quota errors are transient, not capacity")
	assert.True(t, rateLimited.Temporary())
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"placeInsights":[{"place":"places/p1"},{"place":"places/p2"}]}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv).Aggregate(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, resp.PlaceIDs)
	assert.Equal(t, 2, resp.TotalCount)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`slow down`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Aggregate(context.Background(), testRequest)
	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusTooManyRequests, ue.Status)
	assert.Equal(t, "slow down", ue.Body)
	assert.Equal(t, int32(3), calls.Load())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv, func(cfg *ClientConfig) {
		cfg.MaxRetries = 1
		cfg.BreakerFailures = 2
		cfg.BreakerTimeout = time.Hour
	})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := c.Aggregate(ctx, testRequest)
		require.Error(t, err)
	}

	_, err := c.Aggregate(ctx, testRequest)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "open", c.BreakerState())
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv, func(cfg *ClientConfig) { cfg.BreakerFailures = 1 })
	for i := 0; i < 3; i++ {
		_, err := c.Aggregate(context.Background(), testRequest)
		assert.ErrorIs(t, err, ErrCapacityExceeded)
	}
	assert.Equal(t, "closed", c.BreakerState())
}

func TestAggregateCountBreakdown(t *testing.T) {
	counts := map[string]string{"": "12", "restaurant": "9", "cafe": "5"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))
		var body insightsRequest
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &body))
		assert.Equal(t, []string{"INSIGHT_COUNT"}, body.Insights)
		assert.Equal(t, 3.8, body.Filter.RatingFilter.MinRating)

		key := ""
		if len(body.Filter.TypeFilter.IncludedTypes) == 1 {
			key = body.Filter.TypeFilter.IncludedTypes[0]
		}
		_, _ = w.Write([]byte(`{"count":"` + counts[key] + `"}`))
	}))
	defer srv.Close()

	req := testRequest
	req.Shape = model.ShapeCount
	req.IncludedTypes = []string{"restaurant", "cafe"}

	resp, err := newTestClient(srv).Aggregate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 12, resp.TotalCount)
	assert.Equal(t, map[string]int{"restaurant": 9, "cafe": 5}, resp.Breakdown)
}

func TestPlaceDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/places/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.Equal(t, "/v1/places/p1", r.URL.Path)
		assert.Contains(t, r.Header.Get("X-Goog-FieldMask"), "websiteUri")
		_, _ = w.Write([]byte(`{
			"id": "p1",
			"displayName": {"text": "Leah & Louise"},
			"types": ["restaurant", "food"],
			"primaryType": "southern_restaurant",
			"rating": 4.6,
			"userRatingCount": 812,
			"priceLevel": "PRICE_LEVEL_MODERATE",
			"location": {"latitude": 35.24, "longitude": -80.82},
			"websiteUri": "https://leahandlouise.com"
		}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	p, err := c.PlaceDetail(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Leah & Louise", p.Name)
	assert.Equal(t, 812, p.ReviewCount)
	assert.Equal(t, "southern_restaurant", p.Category())
	assert.Equal(t, "https://leahandlouise.com", p.Website)

	_, err = c.PlaceDetail(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("address") == "00000" {
			_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"OK","results":[{"geometry":{"location":{"lat":35.22,"lng":-80.84}}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	lat, lng, err := c.Geocode(context.Background(), "28202")
	require.NoError(t, err)
	assert.Equal(t, 35.22, lat)
	assert.Equal(t, -80.84, lng)

	_, _, err = c.Geocode(context.Background(), "00000")
	assert.ErrorIs(t, err, ErrNotFound)
}

type recordingObserver struct {
	statuses []int
}

func (r *recordingObserver) ObserveRequest(endpoint string, status int, d time.Duration) {
	r.statuses = append(r.statuses, status)
}

func TestObserverSeesEveryAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"count":"1"}`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	req := testRequest
	req.Shape = model.ShapeCount
	_, err := newTestClient(srv, func(cfg *ClientConfig) { cfg.Observer = obs }).Aggregate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int{502, 502, 200}, obs.statuses)
}
