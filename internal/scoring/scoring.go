// Package scoring rates how good a sales prospect a restaurant is.
//
// Score is a pure function: everything it looks at is carried by Input, so
// results depend only on the detection outcomes passed in.
package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/colthorp/prospect/internal/core"
	"github.com/colthorp/prospect/internal/model"
)

// Points awarded (or deducted) per signal.
const (
	PointsIndependent     = 20
	PointsPriceBand       = 10
	PointsHealthyRating   = 10
	PointsReviewVolume    = 10
	PointsCommissionBleed = 35
	PointsNoOrdering      = 15
	PointsLegacyWebsite   = 10
	PenaltyLowConfidence  = -10
)

// Thresholds used by Score.
const (
	MinHealthyRating    = 4.0
	MaxHealthyRating    = 4.7
	MinReviewCount      = 100
	LowConfidenceCutoff = 40
	maxListedReasons    = 3
)

// LegacyPlatforms are website builders that mark a dated web presence.
var LegacyPlatforms = []string{"Weebly", "GoDaddy", "Joomla", "Wix"}

// Input carries everything Score needs about one place.
type Input struct {
	Independent    bool
	PriceLevel     string
	Rating         float64
	ReviewCount    int
	Tech           model.TechStackProfile
	TargetPlatform string
}

// NewInput collects the scoring inputs for an enriched place.
func NewInput(p model.EnrichedPlace, targetPlatform string) Input {
	return Input{
		Independent:    !p.Chain.IsChain,
		PriceLevel:     p.PriceLevel,
		Rating:         p.Rating,
		ReviewCount:    p.ReviewCount,
		Tech:           p.Tech,
		TargetPlatform: targetPlatform,
	}
}

type signal struct {
	points int
	reason string
}

// Score computes the fit analysis for in.
func Score(in Input) model.FitAnalysis {
	if !in.Independent {
		return model.FitAnalysis{Score: 0, Reason: "chain", IsIndependent: false}
	}
	if isCustomer(in.Tech, in.TargetPlatform) {
		return model.FitAnalysis{Score: 0, Reason: "already a customer", IsIndependent: true}
	}

	signals := []signal{{PointsIndependent, "independent restaurant"}}

	if tier := core.PriceTier(in.PriceLevel); tier == 2 || tier == 3 {
		signals = append(signals, signal{PointsPriceBand, "price tier in target band"})
	}
	if in.Rating >= MinHealthyRating && in.Rating <= MaxHealthyRating {
		signals = append(signals, signal{PointsHealthyRating, fmt.Sprintf("healthy rating (%.1f)", in.Rating)})
	}
	if in.ReviewCount >= MinReviewCount {
		signals = append(signals, signal{PointsReviewVolume, fmt.Sprintf("%d reviews", in.ReviewCount)})
	}

	switch {
	case len(in.Tech.DeliveryPlatforms) > 0 && !in.Tech.HasFirstPartyOrdering:
		signals = append(signals, signal{PointsCommissionBleed,
			"paying delivery commissions (" + strings.Join(in.Tech.DeliveryPlatforms, ", ") + ") without first-party ordering"})
	case !in.Tech.HasOrdering():
		signals = append(signals, signal{PointsNoOrdering, "no online ordering"})
	}

	if isLegacy(in.Tech.WebsitePlatform) {
		signals = append(signals, signal{PointsLegacyWebsite, "outdated website (" + in.Tech.WebsitePlatform + ")"})
	}
	if in.Tech.Confidence < LowConfidenceCutoff {
		signals = append(signals, signal{PenaltyLowConfidence, "low detection confidence"})
	}

	total := 0
	for _, s := range signals {
		total += s.points
	}
	total = max(0, min(100, total))

	// Stable by value so equal-point reasons keep their evaluation order.
	sort.SliceStable(signals, func(i, j int) bool { return signals[i].points > signals[j].points })
	reasons := make([]string, len(signals))
	for i, s := range signals {
		reasons[i] = s.reason
	}

	return model.FitAnalysis{
		Score:         total,
		Reason:        summarize(reasons),
		IsIndependent: true,
		Reasons:       reasons,
	}
}

func summarize(reasons []string) string {
	if len(reasons) <= maxListedReasons {
		return strings.Join(reasons, "; ")
	}
	return fmt.Sprintf("%s +%d more", strings.Join(reasons[:maxListedReasons], "; "), len(reasons)-maxListedReasons)
}

func isCustomer(t model.TechStackProfile, target string) bool {
	if target == "" {
		return false
	}
	if strings.EqualFold(t.WebsitePlatform, target) {
		return true
	}
	for _, s := range t.OrderingSystems {
		if strings.EqualFold(s, target) {
			return true
		}
	}
	return false
}

func isLegacy(platform string) bool {
	for _, p := range LegacyPlatforms {
		if strings.EqualFold(p, platform) {
			return true
		}
	}
	return false
}
