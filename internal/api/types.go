// Package api provides the HTTP client and types for the places, area
// insights and geocoding APIs.
package api

import (
	"context"

	"github.com/colthorp/prospect/internal/model"
)

// Circle is a search area.
type Circle struct {
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	RadiusMeters float64 `json:"radiusMeters"`
}

// RatingRange bounds the average user rating. Both ends are inclusive, as
// in the upstream rating filter. Ratings are reported to one decimal, so
// disjoint partitions must not share a tenth: [3.8, 4.3] and [4.4, 4.8], not
// [3.8, 4.3] and [4.3, 4.8].
type RatingRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ratingTolerance absorbs float noise in ratings such as 3.0 + 0.3.
const ratingTolerance = 1e-9

// Contains reports whether rating falls within r, ends included.
func (r RatingRange) Contains(rating float64) bool {
	return rating >= r.Min-ratingTolerance && rating <= r.Max+ratingTolerance
}

// AggregateRequest is one aggregate (area insights) query.
type AggregateRequest struct {
	Location      Circle
	IncludedTypes []string
	PriceLevels   []string
	Rating        RatingRange
	Shape         model.Shape
}

// AggregateResponse holds the answer to an AggregateRequest. PlaceIDs is only
// set for the places shape.
type AggregateResponse struct {
	TotalCount int
	Breakdown  map[string]int
	PlaceIDs   []string
}

// Places is the upstream surface the search orchestrator consumes.
type Places interface {
	// Aggregate counts or lists places. Returns an error wrapping
	// ErrCapacityExceeded when too many places match to list.
	Aggregate(ctx context.Context, req AggregateRequest) (*AggregateResponse, error)

	// PlaceDetail fetches one place. Returns ErrNotFound for unknown IDs.
	PlaceDetail(ctx context.Context, id string) (*model.Place, error)

	// Geocode resolves a ZIP code or address to coordinates.
	Geocode(ctx context.Context, location string) (lat, lng float64, err error)
}

// Wire types for the area insights computeInsights endpoint.

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type insightsRequest struct {
	Insights []string       `json:"insights"`
	Filter   insightsFilter `json:"filter"`
}

type insightsFilter struct {
	LocationFilter struct {
		Circle struct {
			LatLng latLng  `json:"latLng"`
			Radius float64 `json:"radius"`
		} `json:"circle"`
	} `json:"locationFilter"`
	TypeFilter      *typeFilter   `json:"typeFilter,omitempty"`
	OperatingStatus []string      `json:"operatingStatus,omitempty"`
	PriceLevels     []string      `json:"priceLevels,omitempty"`
	RatingFilter    *ratingFilter `json:"ratingFilter,omitempty"`
}

type typeFilter struct {
	IncludedTypes []string `json:"includedTypes"`
}

type ratingFilter struct {
	MinRating float64 `json:"minRating"`
	MaxRating float64 `json:"maxRating"`
}

type insightsResponse struct {
	Count         string `json:"count"`
	PlaceInsights []struct {
		Place string `json:"place"`
	} `json:"placeInsights"`
}

// Wire type for the place details endpoint.
type placeResponse struct {
	ID          string `json:"id"`
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
	Types               []string `json:"types"`
	PrimaryType         string   `json:"primaryType"`
	Rating              float64  `json:"rating"`
	UserRatingCount     int      `json:"userRatingCount"`
	PriceLevel          string   `json:"priceLevel"`
	FormattedAddress    string   `json:"formattedAddress"`
	Location            latLng   `json:"location"`
	BusinessStatus      string   `json:"businessStatus"`
	WebsiteURI          string   `json:"websiteUri"`
	NationalPhoneNumber string   `json:"nationalPhoneNumber"`
}

func (p placeResponse) toPlace() *model.Place {
	return &model.Place{
		ID:             p.ID,
		Name:           p.DisplayName.Text,
		Types:          p.Types,
		PrimaryType:    p.PrimaryType,
		Rating:         p.Rating,
		ReviewCount:    p.UserRatingCount,
		PriceLevel:     p.PriceLevel,
		Address:        p.FormattedAddress,
		Lat:            p.Location.Latitude,
		Lng:            p.Location.Longitude,
		BusinessStatus: p.BusinessStatus,
		Website:        p.WebsiteURI,
		Phone:          p.NationalPhoneNumber,
	}
}

// Wire type for the geocoding endpoint.
type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}
