package api

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/colthorp/prospect/internal/core"
	"github.com/colthorp/prospect/internal/model"
)

// InMemoryPlaces is a lightweight simulation of the places APIs for tests.
//
// Aggregate filters seeded places by type, price level and rating; the
// rating range is inclusive at both ends, like the real rating filter.
// A places-shape request matching more than Ceiling places fails with a
// RESOURCE_EXHAUSTED error, as the real endpoint does. Location is ignored.
type InMemoryPlaces struct {
	Ceiling int

	// AggregateHook, when set, runs before every Aggregate call; a non-nil
	// error is returned as the call's result.
	AggregateHook func(req AggregateRequest) error
	// DetailHook does the same for PlaceDetail.
	DetailHook func(id string) error

	Locations map[string][2]float64

	mu         sync.Mutex
	places     []model.Place
	RequestLog []RequestLogEntry
}

// RequestLogEntry records a request made to the fake.
type RequestLogEntry struct {
	Endpoint string
	Request  AggregateRequest
	PlaceID  string
	Location string
}

var _ Places = (*InMemoryPlaces)(nil)

// NewInMemoryPlaces creates an empty fake with the real 100-place ceiling.
func NewInMemoryPlaces() *InMemoryPlaces {
	return &InMemoryPlaces{
		Ceiling:   core.UpstreamItemCeiling,
		Locations: map[string][2]float64{},
	}
}

// Seed adds places.
func (m *InMemoryPlaces) Seed(places ...model.Place) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.places = append(m.places, places...)
}

// RequestsMade returns the number of requests made to this fake.
func (m *InMemoryPlaces) RequestsMade() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.RequestLog)
}

// Requests returns a copy of the request log filtered by endpoint ("" for all).
func (m *InMemoryPlaces) Requests(endpoint string) []RequestLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RequestLogEntry
	for _, r := range m.RequestLog {
		if endpoint == "" || r.Endpoint == endpoint {
			out = append(out, r)
		}
	}
	return out
}

// Reset clears seeded places and recorded requests.
func (m *InMemoryPlaces) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.places = nil
	m.RequestLog = nil
}

func (m *InMemoryPlaces) matches(p model.Place, req AggregateRequest, types []string) bool {
	if len(types) > 0 && !slices.ContainsFunc(p.Types, func(t string) bool { return slices.Contains(types, t) }) {
		return false
	}
	if len(req.PriceLevels) > 0 && !slices.Contains(req.PriceLevels, p.PriceLevel) {
		return false
	}
	return req.Rating.Contains(p.Rating)
}

func (m *InMemoryPlaces) filter(req AggregateRequest, types []string) []model.Place {
	var out []model.Place
	for _, p := range m.places {
		if m.matches(p, req, types) {
			out = append(out, p)
		}
	}
	return out
}

func (m *InMemoryPlaces) Aggregate(ctx context.Context, req AggregateRequest) (*AggregateResponse, error) {
	m.mu.Lock()
	m.RequestLog = append(m.RequestLog, RequestLogEntry{Endpoint: "aggregate", Request: req})
	hook := m.AggregateHook
	m.mu.Unlock()

	if hook != nil {
		if err := hook(req); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	matched := m.filter(req, req.IncludedTypes)
	resp := &AggregateResponse{TotalCount: len(matched), Breakdown: map[string]int{}}

	switch req.Shape {
	case model.ShapePlaces:
		if len(matched) > m.Ceiling {
			return nil, CapacityExceededError()
		}
		for _, p := range matched {
			resp.PlaceIDs = append(resp.PlaceIDs, p.ID)
		}
	default:
		switch len(req.IncludedTypes) {
		case 0:
			resp.Breakdown["all"] = len(matched)
		case 1:
			resp.Breakdown[req.IncludedTypes[0]] = len(matched)
		default:
			for _, t := range req.IncludedTypes {
				resp.Breakdown[t] = len(m.filter(req, []string{t}))
			}
		}
	}
	return resp, nil
}

func (m *InMemoryPlaces) PlaceDetail(ctx context.Context, id string) (*model.Place, error) {
	m.mu.Lock()
	m.RequestLog = append(m.RequestLog, RequestLogEntry{Endpoint: "detail", PlaceID: id})
	hook := m.DetailHook
	m.mu.Unlock()

	if hook != nil {
		if err := hook(id); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.places {
		if p.ID == id {
			c := p
			c.Types = slices.Clone(p.Types)
			return &c, nil
		}
	}
	return nil, &UpstreamError{Status: http.StatusNotFound, Body: fmt.Sprintf(`{"error":{"code":404,"message":"place %s not found","status":"NOT_FOUND"}}`, id)}
}

// Geocode returns the coordinates registered in Locations, or downtown
// Charlotte for anything else.
func (m *InMemoryPlaces) Geocode(ctx context.Context, location string) (float64, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestLog = append(m.RequestLog, RequestLogEntry{Endpoint: "geocode", Location: location})
	if ll, ok := m.Locations[location]; ok {
		return ll[0], ll[1], nil
	}
	return 35.2271, -80.8431, nil
}

// CapacityExceededError returns the error the aggregate endpoint produces
// when too many places match a listing request.
func CapacityExceededError() error {
	return &UpstreamError{
		Status: http.StatusBadRequest,
		Body:   `{"error":{"code":400,"message":"Too many places match the filter. Narrow the request.","status":"RESOURCE_EXHAUSTED"}}`,
	}
}
