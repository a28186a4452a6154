package detect

// Category groups what a signature identifies.
type Category string

const (
	CategoryWebsite     Category = "website"
	CategoryOrdering    Category = "ordering"
	CategoryReservation Category = "reservation"
	CategoryDelivery    Category = "delivery"
	CategoryLoyalty     Category = "loyalty"
	CategoryPOS         Category = "pos"
	CategoryOther       Category = "other"
)

// TagMatcher matches an element attribute containing a substring, e.g.
// meta[generator] containing "wordpress".
type TagMatcher struct {
	Element  string
	Attr     string
	Contains string
}

// Matchers lists the ways a signature can be recognised. Any single match
// is enough.
type Matchers struct {
	// Domains match the page host or the host of any linked resource,
	// including subdomains.
	Domains []string
	// Content matches case-insensitive substrings of the raw HTML.
	Content []string
	// Tags match element attributes.
	Tags []TagMatcher
}

// TechSignature identifies one product found on restaurant websites.
type TechSignature struct {
	Name       string
	Category   Category
	FirstParty bool // ordering that the restaurant owns, not a marketplace
	Matchers   Matchers
}

// DefaultSignatures is the built-in signature table.
var DefaultSignatures = []TechSignature{
	// Website platforms
	{Name: "WordPress", Category: CategoryWebsite, Matchers: Matchers{
		Content: []string{"/wp-content/", "/wp-includes/"},
		Tags:    []TagMatcher{{Element: "meta", Attr: "content", Contains: "wordpress"}},
	}},
	{Name: "Wix", Category: CategoryWebsite, Matchers: Matchers{
		Domains: []string{"wixsite.com", "wixstatic.com", "parastorage.com"},
		Tags:    []TagMatcher{{Element: "meta", Attr: "content", Contains: "wix.com website builder"}},
	}},
	{Name: "Squarespace", Category: CategoryWebsite, Matchers: Matchers{
		Domains: []string{"squarespace.com", "sqspcdn.com"},
		Content: []string{"static.squarespace.com"},
	}},
	{Name: "Shopify", Category: CategoryWebsite, Matchers: Matchers{
		Domains: []string{"myshopify.com", "cdn.shopify.com"},
	}},
	{Name: "Weebly", Category: CategoryWebsite, Matchers: Matchers{
		Domains: []string{"weebly.com", "editmysite.com"},
	}},
	{Name: "GoDaddy", Category: CategoryWebsite, Matchers: Matchers{
		Domains: []string{"img1.wsimg.com", "godaddysites.com"},
		Tags:    []TagMatcher{{Element: "meta", Attr: "content", Contains: "go daddy website builder"}},
	}},
	{Name: "Joomla", Category: CategoryWebsite, Matchers: Matchers{
		Tags: []TagMatcher{{Element: "meta", Attr: "content", Contains: "joomla"}},
	}},
	{Name: "BentoBox", Category: CategoryWebsite, Matchers: Matchers{
		Domains: []string{"getbento.com", "bentobox.com"},
	}},
	{Name: "Popmenu", Category: CategoryWebsite, Matchers: Matchers{
		Domains: []string{"popmenu.com", "popmenucloud.com"},
	}},
	{Name: "Owner.com", Category: CategoryWebsite, FirstParty: true, Matchers: Matchers{
		Domains: []string{"owner.com", "ordersave.com"},
		Content: []string{"powered by owner"},
	}},

	// First-party ordering
	{Name: "Toast Online Ordering", Category: CategoryOrdering, FirstParty: true, Matchers: Matchers{
		Domains: []string{"order.toasttab.com", "toasttab.com"},
	}},
	{Name: "Square Online", Category: CategoryOrdering, FirstParty: true, Matchers: Matchers{
		Domains: []string{"square.site", "squareup.com"},
	}},
	{Name: "ChowNow", Category: CategoryOrdering, FirstParty: true, Matchers: Matchers{
		Domains: []string{"chownow.com", "ordering.chownow.com"},
	}},
	{Name: "Olo", Category: CategoryOrdering, FirstParty: true, Matchers: Matchers{
		Domains: []string{"olo.com", "olocdn.net"},
	}},
	{Name: "Menufy", Category: CategoryOrdering, FirstParty: true, Matchers: Matchers{
		Domains: []string{"menufy.com"},
	}},
	{Name: "BeyondMenu", Category: CategoryOrdering, FirstParty: true, Matchers: Matchers{
		Domains: []string{"beyondmenu.com"},
	}},
	{Name: "Clover Online Ordering", Category: CategoryOrdering, FirstParty: true, Matchers: Matchers{
		Domains: []string{"clover.com/online-ordering"},
		Content: []string{"clover.com/online-ordering"},
	}},

	// Third-party delivery marketplaces
	{Name: "DoorDash", Category: CategoryDelivery, Matchers: Matchers{
		Domains: []string{"doordash.com"},
	}},
	{Name: "Uber Eats", Category: CategoryDelivery, Matchers: Matchers{
		Domains: []string{"ubereats.com"},
	}},
	{Name: "Grubhub", Category: CategoryDelivery, Matchers: Matchers{
		Domains: []string{"grubhub.com", "seamless.com"},
	}},
	{Name: "Postmates", Category: CategoryDelivery, Matchers: Matchers{
		Domains: []string{"postmates.com"},
	}},
	{Name: "Slice", Category: CategoryDelivery, Matchers: Matchers{
		Domains: []string{"slicelife.com"},
	}},

	// Reservations
	{Name: "OpenTable", Category: CategoryReservation, Matchers: Matchers{
		Domains: []string{"opentable.com"},
	}},
	{Name: "Resy", Category: CategoryReservation, Matchers: Matchers{
		Domains: []string{"resy.com"},
	}},
	{Name: "Tock", Category: CategoryReservation, Matchers: Matchers{
		Domains: []string{"exploretock.com"},
	}},
	{Name: "Yelp Reservations", Category: CategoryReservation, Matchers: Matchers{
		Domains: []string{"yelp.com/reservations"},
		Content: []string{"yelp.com/reservations"},
	}},

	// Loyalty
	{Name: "Thanx", Category: CategoryLoyalty, Matchers: Matchers{
		Domains: []string{"thanx.com"},
	}},
	{Name: "Punchh", Category: CategoryLoyalty, Matchers: Matchers{
		Domains: []string{"punchh.com"},
	}},
	{Name: "Spendgo", Category: CategoryLoyalty, Matchers: Matchers{
		Domains: []string{"spendgo.com"},
	}},

	// Point of sale
	{Name: "Toast POS", Category: CategoryPOS, Matchers: Matchers{
		Content: []string{"toasttab"},
	}},
	{Name: "Square POS", Category: CategoryPOS, Matchers: Matchers{
		Content: []string{"squareup.com", "square.site"},
	}},
	{Name: "Clover POS", Category: CategoryPOS, Matchers: Matchers{
		Domains: []string{"clover.com"},
	}},

	// Other scripts
	{Name: "Google Analytics", Category: CategoryOther, Matchers: Matchers{
		Domains: []string{"google-analytics.com", "googletagmanager.com"},
	}},
	{Name: "Meta Pixel", Category: CategoryOther, Matchers: Matchers{
		Domains: []string{"connect.facebook.net"},
	}},
	{Name: "jQuery", Category: CategoryOther, Matchers: Matchers{
		Content: []string{"jquery.min.js", "jquery.js"},
	}},
}
