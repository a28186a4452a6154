// Package detect identifies restaurant website technology and chain
// membership.
//
// Both detectors are table driven: DefaultSignatures and DefaultChains are
// plain data evaluated by pure matching functions, so the tables can be
// extended and tested without touching the engine. Only Detector performs
// I/O, to fetch the page that Match then inspects.
package detect

import (
	"net/url"
	"strings"

	"github.com/colthorp/prospect/internal/model"
)

// Tag is one parsed HTML element with lowercased attribute values.
type Tag struct {
	Element string
	Attrs   map[string]string
}

// Page is everything the engine needs to know about a fetched website.
type Page struct {
	URL   string
	HTML  string   // raw markup
	Links []string // absolute URLs from src, href and action attributes
	Tags  []Tag
}

// Detection is one signature found on a page.
type Detection struct {
	Name       string
	Category   Category
	FirstParty bool
	Evidence   string
}

// Match evaluates sigs against page and returns the detections in table
// order, at most one per signature.
func Match(sigs []TechSignature, page Page) []Detection {
	content := strings.ToLower(page.HTML)

	urls := make([]*url.URL, 0, len(page.Links)+1)
	for _, raw := range append([]string{page.URL}, page.Links...) {
		if u, err := url.Parse(strings.TrimSpace(raw)); err == nil && u.Host != "" {
			urls = append(urls, u)
		}
	}

	var out []Detection
	for _, sig := range sigs {
		if evidence, ok := matchSignature(sig.Matchers, content, urls, page.Tags); ok {
			out = append(out, Detection{
				Name:       sig.Name,
				Category:   sig.Category,
				FirstParty: sig.FirstParty,
				Evidence:   evidence,
			})
		}
	}
	return out
}

func matchSignature(m Matchers, content string, urls []*url.URL, tags []Tag) (string, bool) {
	for _, d := range m.Domains {
		for _, u := range urls {
			if domainMatches(u, d) {
				return "domain:" + d, true
			}
		}
	}
	for _, c := range m.Content {
		if strings.Contains(content, strings.ToLower(c)) {
			return "content:" + c, true
		}
	}
	for _, tm := range m.Tags {
		for _, t := range tags {
			if t.Element != tm.Element {
				continue
			}
			if v, ok := t.Attrs[tm.Attr]; ok && strings.Contains(v, strings.ToLower(tm.Contains)) {
				return "tag:" + tm.Element + "[" + tm.Attr + "]", true
			}
		}
	}
	return "", false
}

// domainMatches reports whether u is on pattern's host (or a subdomain of it)
// and, when pattern has a path, under that path.
func domainMatches(u *url.URL, pattern string) bool {
	host, path, _ := strings.Cut(strings.ToLower(pattern), "/")
	h := strings.ToLower(u.Hostname())
	if h != host && !strings.HasSuffix(h, "."+host) {
		return false
	}
	return path == "" || strings.HasPrefix(strings.ToLower(u.Path), "/"+path)
}

// Profile summarises detections into a TechStackProfile.
//
// Confidence starts at 40 for a fetched page, gains 15 per detection and 10
// for an identified website platform, and is capped at 95.
func Profile(dets []Detection) model.TechStackProfile {
	p := model.TechStackProfile{
		WebsitePlatform:    "custom",
		OrderingSystems:    []string{},
		ReservationSystems: []string{},
		DeliveryPlatforms:  []string{},
		LoyaltySystems:     []string{},
		POSSystems:         []string{},
		OtherScripts:       []string{},
	}

	confidence := 40
	platformFound := false
	for _, d := range dets {
		confidence += 15
		switch d.Category {
		case CategoryWebsite:
			if !platformFound {
				p.WebsitePlatform = d.Name
				platformFound = true
				confidence += 10
			}
			if d.FirstParty {
				p.HasFirstPartyOrdering = true
			}
		case CategoryOrdering:
			p.OrderingSystems = append(p.OrderingSystems, d.Name)
			if d.FirstParty {
				p.HasFirstPartyOrdering = true
			}
		case CategoryReservation:
			p.ReservationSystems = append(p.ReservationSystems, d.Name)
		case CategoryDelivery:
			p.DeliveryPlatforms = append(p.DeliveryPlatforms, d.Name)
		case CategoryLoyalty:
			p.LoyaltySystems = append(p.LoyaltySystems, d.Name)
		case CategoryPOS:
			p.POSSystems = append(p.POSSystems, d.Name)
		default:
			p.OtherScripts = append(p.OtherScripts, d.Name)
		}
	}
	p.Confidence = min(confidence, 95)
	return p
}

// UnknownProfile is returned when a website could not be fetched.
func UnknownProfile() model.TechStackProfile {
	p := Profile(nil)
	p.WebsitePlatform = "unknown"
	p.Confidence = 10
	return p
}

// NoWebsiteProfile is returned for places that list no website.
func NoWebsiteProfile() model.TechStackProfile {
	p := Profile(nil)
	p.WebsitePlatform = "none"
	p.Confidence = 60
	return p
}
