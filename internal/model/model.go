// Package model holds the prospecting domain types shared by the detection,
// scoring and search packages.
package model

// Shape selects what an aggregate search returns.
type Shape string

const (
	// ShapeCount returns the total count and category breakdown only.
	ShapeCount Shape = "count"
	// ShapePlaces returns full, enriched place listings.
	ShapePlaces Shape = "places"
)

// Valid reports whether s is a known shape.
func (s Shape) Valid() bool {
	return s == ShapeCount || s == ShapePlaces
}

// Place is the base record returned by the places detail endpoint.
type Place struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Types          []string `json:"types,omitempty"`
	PrimaryType    string   `json:"primaryType,omitempty"`
	Rating         float64  `json:"rating"`
	ReviewCount    int      `json:"reviewCount"`
	PriceLevel     string   `json:"priceLevel,omitempty"`
	Address        string   `json:"address,omitempty"`
	Lat            float64  `json:"lat"`
	Lng            float64  `json:"lng"`
	BusinessStatus string   `json:"businessStatus,omitempty"`
	Website        string   `json:"website,omitempty"`
	Phone          string   `json:"phone,omitempty"`
}

// Category returns the place's primary category, falling back to the first
// listed type.
func (p Place) Category() string {
	if p.PrimaryType != "" {
		return p.PrimaryType
	}
	if len(p.Types) > 0 {
		return p.Types[0]
	}
	return "unknown"
}

// TechStackProfile describes what was detected on a place's website.
type TechStackProfile struct {
	WebsitePlatform       string   `json:"websitePlatform"`
	OrderingSystems       []string `json:"orderingSystems"`
	ReservationSystems    []string `json:"reservationSystems"`
	DeliveryPlatforms     []string `json:"deliveryPlatforms"`
	LoyaltySystems        []string `json:"loyaltySystems"`
	POSSystems            []string `json:"posSystems"`
	OtherScripts          []string `json:"otherScripts"`
	Confidence            int      `json:"confidence"`
	HasFirstPartyOrdering bool     `json:"hasFirstPartyOrdering"`
}

// HasOrdering reports whether any ordering channel, first or third party, was found.
func (t TechStackProfile) HasOrdering() bool {
	return t.HasFirstPartyOrdering || len(t.OrderingSystems) > 0 || len(t.DeliveryPlatforms) > 0
}

// ChainMatch is the outcome of chain detection for one place.
type ChainMatch struct {
	IsChain    bool   `json:"isChain"`
	ChainName  string `json:"chainName,omitempty"`
	Confidence int    `json:"confidence"`
	Reason     string `json:"reason"`
}

// FitAnalysis is the explainable 0-100 suitability score.
type FitAnalysis struct {
	Score         int      `json:"score"`
	Reason        string   `json:"reason"`
	IsIndependent bool     `json:"isIndependent"`
	Reasons       []string `json:"reasons,omitempty"`
}

// EnrichedPlace is a place plus everything learned about it during a search.
type EnrichedPlace struct {
	Place
	Tech  TechStackProfile `json:"techStack"`
	Chain ChainMatch       `json:"chain"`
	Fit   FitAnalysis      `json:"fit"`
}

// FitStatistics summarises the scores of a result list.
type FitStatistics struct {
	HighFitCount int     `json:"highFitCount"`
	AverageScore float64 `json:"averageScore"`
}

// AggregateResult is the output of one logical search.
//
// FailedBranches counts range partitions that could not be fetched and were
// substituted with empty partials; Partial is true when that number is
// non-zero, so callers can tell "no matches" from "upstream unavailable".
type AggregateResult struct {
	Shape               Shape           `json:"shape"`
	TotalCount          int             `json:"totalCount"`
	BreakdownByCategory map[string]int  `json:"breakdownByCategory"`
	Places              []EnrichedPlace `json:"places,omitempty"`
	FitStatistics       *FitStatistics  `json:"fitStatistics,omitempty"`
	FailedBranches      int             `json:"failedBranches,omitempty"`
	Partial             bool            `json:"partial,omitempty"`
}

// HighFitThreshold is the score at or above which a place counts as a high fit.
const HighFitThreshold = 80

// ComputeFitStatistics derives statistics from places.
func ComputeFitStatistics(places []EnrichedPlace) *FitStatistics {
	stats := &FitStatistics{}
	if len(places) == 0 {
		return stats
	}
	total := 0
	for _, p := range places {
		total += p.Fit.Score
		if p.Fit.Score >= HighFitThreshold {
			stats.HighFitCount++
		}
	}
	stats.AverageScore = float64(total) / float64(len(places))
	return stats
}
