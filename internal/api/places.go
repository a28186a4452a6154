package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/colthorp/prospect/internal/model"
)

const placeFieldMask = "id,displayName,types,primaryType,rating,userRatingCount,priceLevel," +
	"formattedAddress,location,businessStatus,websiteUri,nationalPhoneNumber"

var _ Places = (*Client)(nil)

// Aggregate runs a computeInsights query.
//
// The count shape issues one request for the total and, when several types
// are included, one more per type for the breakdown. Per-type counts may
// overlap since a place can carry several types. The places shape issues a
// single listing request and leaves Breakdown empty.
func (c *Client) Aggregate(ctx context.Context, req AggregateRequest) (*AggregateResponse, error) {
	switch req.Shape {
	case model.ShapePlaces:
		out, err := c.computeInsights(ctx, req, req.IncludedTypes, "INSIGHT_PLACES")
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(out.PlaceInsights))
		for _, p := range out.PlaceInsights {
			ids = append(ids, strings.TrimPrefix(p.Place, "places/"))
		}
		return &AggregateResponse{TotalCount: len(ids), Breakdown: map[string]int{}, PlaceIDs: ids}, nil

	case model.ShapeCount:
		total, err := c.count(ctx, req, req.IncludedTypes)
		if err != nil {
			return nil, err
		}
		resp := &AggregateResponse{TotalCount: total, Breakdown: map[string]int{}}
		switch len(req.IncludedTypes) {
		case 0:
			resp.Breakdown["all"] = total
		case 1:
			resp.Breakdown[req.IncludedTypes[0]] = total
		default:
			for _, t := range req.IncludedTypes {
				n, err := c.count(ctx, req, []string{t})
				if err != nil {
					return nil, fmt.Errorf("count %s: %w", t, err)
				}
				resp.Breakdown[t] = n
			}
		}
		return resp, nil
	}
	return nil, fmt.Errorf("unknown result shape %q", req.Shape)
}

func (c *Client) count(ctx context.Context, req AggregateRequest, types []string) (int, error) {
	out, err := c.computeInsights(ctx, req, types, "INSIGHT_COUNT")
	if err != nil {
		return 0, err
	}
	if out.Count == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(out.Count)
	if err != nil {
		return 0, fmt.Errorf("invalid count %q: %w", out.Count, err)
	}
	return n, nil
}

func (c *Client) computeInsights(ctx context.Context, req AggregateRequest, types []string, insight string) (*insightsResponse, error) {
	body := insightsRequest{Insights: []string{insight}}
	f := &body.Filter
	f.LocationFilter.Circle.LatLng = latLng{Latitude: req.Location.Lat, Longitude: req.Location.Lng}
	f.LocationFilter.Circle.Radius = req.Location.RadiusMeters
	if len(types) > 0 {
		f.TypeFilter = &typeFilter{IncludedTypes: types}
	}
	f.OperatingStatus = []string{"OPERATING_STATUS_OPERATIONAL"}
	f.PriceLevels = req.PriceLevels
	f.RatingFilter = &ratingFilter{MinRating: req.Rating.Min, MaxRating: req.Rating.Max}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode insights request: %w", err)
	}

	data, err := c.do(ctx, request{
		endpoint: "aggregate",
		method:   http.MethodPost,
		url:      c.cfg.InsightsBaseURL + ":computeInsights",
		body:     payload,
		headers:  map[string]string{"X-Goog-Api-Key": c.cfg.APIKey},
	})
	if err != nil {
		return nil, err
	}

	var out insightsResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse insights response: %w", err)
	}
	return &out, nil
}

// PlaceDetail fetches the details of one place.
func (c *Client) PlaceDetail(ctx context.Context, id string) (*model.Place, error) {
	data, err := c.do(ctx, request{
		endpoint: "detail",
		method:   http.MethodGet,
		url:      c.cfg.PlacesBaseURL + "/places/" + url.PathEscape(id),
		headers: map[string]string{
			"X-Goog-Api-Key":   c.cfg.APIKey,
			"X-Goog-FieldMask": placeFieldMask,
		},
	})
	if err != nil {
		return nil, err
	}

	var p placeResponse
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse place %s: %w", id, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	return p.toPlace(), nil
}

// Geocode resolves location (a ZIP code or free-form address) to coordinates.
func (c *Client) Geocode(ctx context.Context, location string) (float64, float64, error) {
	q := url.Values{}
	q.Set("address", location)
	q.Set("components", "country:US")
	q.Set("key", c.cfg.APIKey)

	data, err := c.do(ctx, request{
		endpoint: "geocode",
		method:   http.MethodGet,
		url:      c.cfg.GeocodeBaseURL + "?" + q.Encode(),
	})
	if err != nil {
		return 0, 0, err
	}

	var out geocodeResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, 0, fmt.Errorf("failed to parse geocode response: %w", err)
	}
	switch out.Status {
	case "OK":
		if len(out.Results) == 0 {
			return 0, 0, fmt.Errorf("geocode %q: %w", location, ErrNotFound)
		}
		loc := out.Results[0].Geometry.Location
		return loc.Lat, loc.Lng, nil
	case "ZERO_RESULTS":
		return 0, 0, fmt.Errorf("geocode %q: %w", location, ErrNotFound)
	default:
		return 0, 0, fmt.Errorf("geocode %q: %s %s", location, out.Status, out.ErrorMessage)
	}
}
