package search

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/colthorp/prospect/internal/cache"
	"github.com/colthorp/prospect/internal/core"
	"github.com/colthorp/prospect/internal/model"
)

// Query is one logical prospecting search.
type Query struct {
	// Location is a ZIP code, an address or "lat,lng".
	Location    string      `json:"location" validate:"required"`
	RadiusKm    float64     `json:"radiusKm" validate:"gt=0,lte=50"`
	Types       []string    `json:"types,omitempty" validate:"omitempty,dive,required"`
	PriceLevels []string    `json:"priceLevels,omitempty" validate:"omitempty,dive,oneof=PRICE_LEVEL_FREE PRICE_LEVEL_INEXPENSIVE PRICE_LEVEL_MODERATE PRICE_LEVEL_EXPENSIVE PRICE_LEVEL_VERY_EXPENSIVE"`
	MinRating   float64     `json:"minRating" validate:"gte=0,lte=5"`
	MaxRating   float64     `json:"maxRating" validate:"gte=0,lte=5,gtefield=MinRating"`
	Shape       model.Shape `json:"shape" validate:"oneof=count places"`
}

// DefaultQuery returns a places-shape query over the full rating range.
func DefaultQuery(location string) Query {
	return Query{
		Location:  location,
		RadiusKm:  core.DefaultRadiusKm,
		MinRating: core.DefaultMinRating,
		MaxRating: core.DefaultMaxRating,
		Shape:     model.ShapePlaces,
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func queryValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks field ranges and reports every violation.
func (q Query) Validate() error {
	err := queryValidator().Struct(q)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid query: %s", strings.Join(msgs, "; "))
}

// keySource is the part of a Query that identifies its results.
type keySource struct {
	Location  string      `json:"location"`
	RadiusKm  float64     `json:"radiusKm"`
	Filters   keyFilters  `json:"filters"`
	MinRating float64     `json:"minRating"`
	MaxRating float64     `json:"maxRating"`
	Shape     model.Shape `json:"shape"`
}

type keyFilters struct {
	Types       []string `json:"types"`
	PriceLevels []string `json:"priceLevels"`
}

// CacheKey returns the deterministic cache key for q. Filter order and
// surrounding whitespace or case in Location do not change the key.
func (q Query) CacheKey() string {
	types := q.Types
	if types == nil {
		types = []string{}
	}
	prices := q.PriceLevels
	if prices == nil {
		prices = []string{}
	}
	return cache.MustBuildKey(keySource{
		Location:  strings.ToLower(strings.TrimSpace(q.Location)),
		RadiusKm:  q.RadiusKm,
		Filters:   keyFilters{Types: types, PriceLevels: prices},
		MinRating: q.MinRating,
		MaxRating: q.MaxRating,
		Shape:     q.Shape,
	})
}
