package detect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/colthorp/prospect/internal/core"
	"github.com/colthorp/prospect/internal/model"
)

// TechDetector produces a tech profile for a website. Implementations never
// fail; an unreachable site yields a low-confidence profile.
type TechDetector interface {
	Detect(ctx context.Context, website string) model.TechStackProfile
}

// Detector fetches a website's home page and matches it against signatures.
type Detector struct {
	client     *http.Client
	timeout    time.Duration
	maxBytes   int64
	signatures []TechSignature
	logger     *zap.Logger
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithHTTPClient sets the HTTP client used for fetches.
func WithHTTPClient(c *http.Client) DetectorOption {
	return func(d *Detector) { d.client = c }
}

// WithTimeout sets the per-site fetch timeout.
func WithTimeout(t time.Duration) DetectorOption {
	return func(d *Detector) { d.timeout = t }
}

// WithSignatures replaces the signature table.
func WithSignatures(sigs []TechSignature) DetectorOption {
	return func(d *Detector) { d.signatures = sigs }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) DetectorOption {
	return func(d *Detector) { d.logger = l }
}

// NewDetector creates a Detector with a 5 second timeout and the default
// signature table.
func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{
		client:     &http.Client{},
		timeout:    core.CrawlTimeout,
		maxBytes:   2 << 20,
		signatures: DefaultSignatures,
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect fetches website and returns its profile.
func (d *Detector) Detect(ctx context.Context, website string) model.TechStackProfile {
	if strings.TrimSpace(website) == "" {
		return NoWebsiteProfile()
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	page, err := d.fetch(ctx, website)
	if err != nil {
		d.logger.Debug("website fetch failed", zap.String("url", website), zap.Error(err))
		return UnknownProfile()
	}
	return Profile(Match(d.signatures, page))
}

func (d *Detector) fetch(ctx context.Context, website string) (Page, error) {
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, website, nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("User-Agent", core.DefaultUserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := d.client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Page{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	// The final URL after redirects decides the platform for hosted sites.
	final := website
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return ParsePage(final, io.LimitReader(resp.Body, d.maxBytes))
}

// ParsePage tokenizes HTML from r, collecting element attributes and
// resolving every linked URL against base.
func ParsePage(base string, r io.Reader) (Page, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return Page{}, fmt.Errorf("parse base url: %w", err)
	}

	var raw strings.Builder
	z := html.NewTokenizer(io.TeeReader(r, &raw))
	page := Page{URL: base}

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				break
			}
			return Page{}, z.Err()
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}

		tok := z.Token()
		tag := Tag{Element: tok.Data, Attrs: make(map[string]string, len(tok.Attr))}
		for _, a := range tok.Attr {
			key := strings.ToLower(a.Key)
			tag.Attrs[key] = strings.ToLower(a.Val)
			switch key {
			case "src", "href", "action", "data-src":
				if ref, err := baseURL.Parse(strings.TrimSpace(a.Val)); err == nil && ref.Host != "" {
					page.Links = append(page.Links, ref.String())
				}
			}
		}
		page.Tags = append(page.Tags, tag)
	}

	page.HTML = raw.String()
	return page, nil
}
