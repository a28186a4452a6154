package detect

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/colthorp/prospect/internal/core"
	"github.com/colthorp/prospect/internal/model"
)

// ChainEntry is one known multi-location brand.
type ChainEntry struct {
	Name    string
	Aliases []string
	Domains []string
}

// DefaultChains is the registry of brands treated as chains.
var DefaultChains = []ChainEntry{
	{Name: "McDonald's", Aliases: []string{"mcdonalds"}, Domains: []string{"mcdonalds.com"}},
	{Name: "Burger King", Domains: []string{"bk.com", "burgerking.com"}},
	{Name: "Wendy's", Aliases: []string{"wendys"}, Domains: []string{"wendys.com"}},
	{Name: "Subway", Domains: []string{"subway.com"}},
	{Name: "Starbucks", Domains: []string{"starbucks.com"}},
	{Name: "Chick-fil-A", Aliases: []string{"chick fil a", "chickfila"}, Domains: []string{"chick-fil-a.com"}},
	{Name: "Taco Bell", Domains: []string{"tacobell.com"}},
	{Name: "Chipotle", Aliases: []string{"chipotle mexican grill"}, Domains: []string{"chipotle.com"}},
	{Name: "Panera Bread", Aliases: []string{"panera"}, Domains: []string{"panerabread.com"}},
	{Name: "Domino's", Aliases: []string{"dominos", "domino's pizza"}, Domains: []string{"dominos.com"}},
	{Name: "Pizza Hut", Domains: []string{"pizzahut.com"}},
	{Name: "Papa John's", Aliases: []string{"papa johns"}, Domains: []string{"papajohns.com"}},
	{Name: "Little Caesars", Domains: []string{"littlecaesars.com"}},
	{Name: "KFC", Aliases: []string{"kentucky fried chicken"}, Domains: []string{"kfc.com"}},
	{Name: "Popeyes", Aliases: []string{"popeyes louisiana kitchen"}, Domains: []string{"popeyes.com"}},
	{Name: "Dunkin'", Aliases: []string{"dunkin", "dunkin donuts"}, Domains: []string{"dunkindonuts.com", "dunkin.com"}},
	{Name: "Sonic Drive-In", Aliases: []string{"sonic"}, Domains: []string{"sonicdrivein.com"}},
	{Name: "Arby's", Aliases: []string{"arbys"}, Domains: []string{"arbys.com"}},
	{Name: "Jimmy John's", Aliases: []string{"jimmy johns"}, Domains: []string{"jimmyjohns.com"}},
	{Name: "Five Guys", Domains: []string{"fiveguys.com"}},
	{Name: "Panda Express", Domains: []string{"pandaexpress.com"}},
	{Name: "Olive Garden", Domains: []string{"olivegarden.com"}},
	{Name: "Applebee's", Aliases: []string{"applebees", "applebee's grill + bar"}, Domains: []string{"applebees.com"}},
	{Name: "Chili's", Aliases: []string{"chilis", "chili's grill & bar"}, Domains: []string{"chilis.com"}},
	{Name: "Buffalo Wild Wings", Aliases: []string{"bww"}, Domains: []string{"buffalowildwings.com"}},
	{Name: "Outback Steakhouse", Aliases: []string{"outback"}, Domains: []string{"outback.com"}},
	{Name: "Texas Roadhouse", Domains: []string{"texasroadhouse.com"}},
	{Name: "Cracker Barrel", Aliases: []string{"cracker barrel old country store"}, Domains: []string{"crackerbarrel.com"}},
	{Name: "IHOP", Domains: []string{"ihop.com"}},
	{Name: "Denny's", Aliases: []string{"dennys"}, Domains: []string{"dennys.com"}},
	{Name: "Waffle House", Domains: []string{"wafflehouse.com"}},
	{Name: "Bojangles", Aliases: []string{"bojangles'"}, Domains: []string{"bojangles.com"}},
	{Name: "Cook Out", Aliases: []string{"cookout"}, Domains: []string{"cookout.com"}},
	{Name: "Zaxby's", Aliases: []string{"zaxbys"}, Domains: []string{"zaxbys.com"}},
	{Name: "Jersey Mike's", Aliases: []string{"jersey mikes", "jersey mike's subs"}, Domains: []string{"jerseymikes.com"}},
	{Name: "Firehouse Subs", Domains: []string{"firehousesubs.com"}},
	{Name: "Wingstop", Domains: []string{"wingstop.com"}},
	{Name: "Raising Cane's", Aliases: []string{"raising canes", "raising cane's chicken fingers"}, Domains: []string{"raisingcanes.com"}},
	{Name: "Culver's", Aliases: []string{"culvers"}, Domains: []string{"culvers.com"}},
	{Name: "Shake Shack", Domains: []string{"shakeshack.com"}},
	{Name: "Qdoba", Aliases: []string{"qdoba mexican eats"}, Domains: []string{"qdoba.com"}},
	{Name: "Moe's Southwest Grill", Aliases: []string{"moes", "moe's"}, Domains: []string{"moes.com"}},
	{Name: "Red Lobster", Domains: []string{"redlobster.com"}},
	{Name: "The Cheesecake Factory", Aliases: []string{"cheesecake factory"}, Domains: []string{"thecheesecakefactory.com"}},
	{Name: "P.F. Chang's", Aliases: []string{"pf changs", "p f changs"}, Domains: []string{"pfchangs.com"}},
	{Name: "Hooters", Domains: []string{"hooters.com"}},
	{Name: "Jack in the Box", Domains: []string{"jackinthebox.com"}},
	{Name: "Dairy Queen", Aliases: []string{"dq", "dq grill & chill"}, Domains: []string{"dairyqueen.com"}},
	{Name: "Hardee's", Aliases: []string{"hardees"}, Domains: []string{"hardees.com"}},
	{Name: "Krispy Kreme", Domains: []string{"krispykreme.com"}},
}

var storeNumber = regexp.MustCompile(`#\s*\d+`)

// DetectChain classifies a place by name and optional website against
// DefaultChains.
func DetectChain(name, website string) model.ChainMatch {
	return MatchChain(DefaultChains, name, website)
}

// MatchChain classifies a place against registry. Website domains are the
// strongest signal, followed by an exact name or alias match and then a name
// that starts with a registered brand. A store number in the name marks an
// unknown chain.
func MatchChain(registry []ChainEntry, name, website string) model.ChainMatch {
	if host := core.NormalizeDomain(website); host != "" {
		for _, c := range registry {
			for _, d := range c.Domains {
				if host == d || strings.HasSuffix(host, "."+d) {
					return model.ChainMatch{IsChain: true, ChainName: c.Name, Confidence: 95, Reason: "website domain " + d}
				}
			}
		}
	}

	norm := normalizeName(name)
	if norm != "" {
		for _, c := range registry {
			for _, n := range c.names() {
				if norm == n {
					return model.ChainMatch{IsChain: true, ChainName: c.Name, Confidence: 90, Reason: "name matches " + c.Name}
				}
			}
		}
		for _, c := range registry {
			for _, n := range c.names() {
				if strings.HasPrefix(norm, n+" ") {
					return model.ChainMatch{IsChain: true, ChainName: c.Name, Confidence: 75, Reason: "name starts with " + c.Name}
				}
			}
		}
	}

	if storeNumber.MatchString(name) {
		return model.ChainMatch{IsChain: true, Confidence: 50, Reason: "store number in name"}
	}
	return model.ChainMatch{IsChain: false, Confidence: 70, Reason: "no chain match"}
}

func (c ChainEntry) names() []string {
	out := make([]string, 0, len(c.Aliases)+1)
	out = append(out, normalizeName(c.Name))
	for _, a := range c.Aliases {
		out = append(out, normalizeName(a))
	}
	return out
}

// normalizeName lowercases s, drops apostrophes and collapses every other
// run of non-alphanumerics to a single space.
func normalizeName(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '\'' || r == '’':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}
