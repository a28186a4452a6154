package core

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// ProgressPrint writes msg to stderr unless quiet is true.
func ProgressPrint(msg string, quiet bool) {
	if !quiet {
		fmt.Fprintln(os.Stderr, msg)
	}
}

// GetAPIKey returns the places API key from the environment.
func GetAPIKey() (string, error) {
	key := os.Getenv(APIKeyEnvVar)
	if key == "" {
		return "", fmt.Errorf("missing %s", APIKeyEnvVar)
	}
	return key, nil
}

var (
	zipRegex    = regexp.MustCompile(`^(\d{5})(?:-\d{4})?$`)
	latLngRegex = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*$`)
)

// ParseZIP validates a US ZIP or ZIP+4 code and returns the five-digit form.
func ParseZIP(s string) (string, error) {
	m := zipRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", fmt.Errorf("invalid ZIP code '%s' (expected 12345 or 12345-6789)", s)
	}
	return m[1], nil
}

// ParseLatLng parses a "lat,lng" pair. ok is false when s is not of that form
// or the coordinates are out of range.
func ParseLatLng(s string) (lat, lng float64, ok bool) {
	m := latLngRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	lat, _ = strconv.ParseFloat(m[1], 64)
	lng, _ = strconv.ParseFloat(m[2], 64)
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, false
	}
	return lat, lng, true
}

// ParseList splits a comma separated flag value, trimming blanks and
// lowercasing each element.
func ParseList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Price levels as the places API names them, cheapest first.
var priceLevels = []string{
	"PRICE_LEVEL_FREE",
	"PRICE_LEVEL_INEXPENSIVE",
	"PRICE_LEVEL_MODERATE",
	"PRICE_LEVEL_EXPENSIVE",
	"PRICE_LEVEL_VERY_EXPENSIVE",
}

// ParsePriceLevels converts a spec such as "$$", "$$-$$$" or "2,3" into API
// price level names.
func ParsePriceLevels(spec string) ([]string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}

	tier := func(s string) (int, error) {
		s = strings.TrimSpace(s)
		if s != "" && strings.Trim(s, "$") == "" {
			if len(s) > 4 {
				return 0, fmt.Errorf("price tier '%s' out of range ($-$$$$)", s)
			}
			return len(s), nil
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 || n > 4 {
			return 0, fmt.Errorf("invalid price tier '%s' (expected $-$$$$ or 0-4)", s)
		}
		return n, nil
	}

	var tiers []int
	if lo, hi, found := strings.Cut(spec, "-"); found {
		a, err := tier(lo)
		if err != nil {
			return nil, err
		}
		b, err := tier(hi)
		if err != nil {
			return nil, err
		}
		if a > b {
			a, b = b, a
		}
		for i := a; i <= b; i++ {
			tiers = append(tiers, i)
		}
	} else {
		for _, part := range strings.Split(spec, ",") {
			n, err := tier(part)
			if err != nil {
				return nil, err
			}
			tiers = append(tiers, n)
		}
	}

	out := make([]string, 0, len(tiers))
	seen := make(map[int]bool)
	for _, n := range tiers {
		if !seen[n] {
			seen[n] = true
			out = append(out, priceLevels[n])
		}
	}
	return out, nil
}

// PriceTier returns the numeric tier (0-4) of an API price level, or -1 when
// the level is unknown or empty.
func PriceTier(level string) int {
	for i, l := range priceLevels {
		if l == level {
			return i
		}
	}
	return -1
}

// KmToMeters converts kilometres to metres.
func KmToMeters(km float64) float64 {
	return km * 1000
}

// NormalizeDomain reduces a URL or bare host to its lowercase host without a
// leading "www.". Returns "" when nothing usable is present.
func NormalizeDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
