package avature

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/project-tktt/avature-crawler/internal/dedup"
	"github.com/project-tktt/avature-crawler/internal/domain"
	"github.com/project-tktt/avature-crawler/internal/fetch"
)

// Fetcher is the page-fetch capability the crawler runs on: one GET with
// proxy rotation, health reporting and bounded retries behind it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// EmitFunc receives each JobRecord whose id the crawler claimed. The
// record's ownership transfers to the callee.
type EmitFunc func(ctx context.Context, rec *domain.JobRecord) error

// Options are the per-site crawl tunables. Zero values fall back to the
// conservative defaults.
type Options struct {
	// Requested page size; tenants may silently cap it
	PageSize int
	// Page size for the one-off endpoint probe
	ProbePageSize int
	// Hard stop against tenants with broken pagination
	MaxPages int
	// Consecutive all-duplicate pages before declaring completion
	MaxDuplicatePages int
	// Refetch budget for a malformed listing page before skipping past it
	MaxPageRetries int
	// Consecutive skipped pages before the site is declared failed
	MaxPageSkips int
}

func (o *Options) applyDefaults() {
	if o.PageSize <= 0 {
		o.PageSize = 50
	}
	if o.ProbePageSize <= 0 {
		o.ProbePageSize = 6
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 500
	}
	if o.MaxDuplicatePages <= 0 {
		o.MaxDuplicatePages = 2
	}
	if o.MaxPageRetries <= 0 {
		o.MaxPageRetries = 3
	}
	if o.MaxPageSkips <= 0 {
		o.MaxPageSkips = 3
	}
}

// Result is the terminal outcome of one site crawl.
type Result struct {
	Progress   domain.SiteProgress
	Endpoint   domain.ListingEndpointKind
	Emitted    int
	Duplicates int
	Skipped    int
}

// Crawler paginates one tenant site end to end: endpoint detection once,
// then fetch-extract-emit per page until termination. A Crawler is used by
// a single goroutine; concurrency is across sites, never within one.
type Crawler struct {
	target    domain.SiteTarget
	fetcher   Fetcher
	registry  dedup.Registry
	opts      Options
	company   string
	subdomain string
}

// NewCrawler creates a crawler for one site target.
func NewCrawler(target domain.SiteTarget, fetcher Fetcher, registry dedup.Registry, opts Options) *Crawler {
	opts.applyDefaults()
	company := CompanyFromRoot(target.RootURL)
	return &Crawler{
		target:    target,
		fetcher:   fetcher,
		registry:  registry,
		opts:      opts,
		company:   company,
		subdomain: strings.ToLower(company),
	}
}

// DetectEndpoint probes the SearchJobs shape and then SearchResults with a
// minimal request. A shape is live when the probe returns a well-formed
// listing page, job cards or not; an error page or glitch moves on to the
// next shape. Unknown means neither shape answered validly.
func DetectEndpoint(ctx context.Context, fetcher Fetcher, siteRoot string, probePageSize int) domain.ListingEndpointKind {
	for _, kind := range []domain.ListingEndpointKind{domain.EndpointSearchJobs, domain.EndpointSearchResults} {
		url := SearchURL(domain.PageRequest{
			SiteRoot: siteRoot,
			Endpoint: kind,
			Offset:   0,
			PageSize: probePageSize,
		})
		body, err := fetcher.Fetch(ctx, url)
		if err != nil {
			continue
		}
		if _, err := ParseListing(body, siteRoot); err == nil {
			return kind
		}
	}
	return domain.EndpointUnknown
}

// Run crawls the site to completion or terminal failure and returns the
// single progress row for it. Already-emitted records survive any failure.
func (c *Crawler) Run(ctx context.Context, emit EmitFunc) Result {
	res := Result{Endpoint: domain.EndpointUnknown}

	res.Endpoint = DetectEndpoint(ctx, c.fetcher, c.target.RootURL, c.opts.ProbePageSize)
	if res.Endpoint == domain.EndpointUnknown {
		log.Printf("[%s] no live listing endpoint", c.subdomain)
		res.Progress = c.progressRow(domain.SiteFailed, 0, "no live listing endpoint")
		return res
	}
	if res.Endpoint != domain.EndpointSearchJobs {
		log.Printf("[%s] using listing endpoint %s", c.subdomain, res.Endpoint)
	}

	err := c.paginate(ctx, res.Endpoint, emit, &res)
	if err != nil {
		res.Progress = c.progressRow(domain.SiteFailed, res.Emitted, err.Error())
		return res
	}

	res.Progress = c.progressRow(domain.SiteCompleted, res.Emitted, "")
	return res
}

func (c *Crawler) paginate(ctx context.Context, endpoint domain.ListingEndpointKind, emit EmitFunc, res *Result) error {
	var (
		offset    int
		dupStreak int
		skipRun   int
		totalJobs int
		// lastStep is the effective page size the tenant actually
		// serves, learned from the first page; used when a broken
		// page has to be skipped blind.
		lastStep = c.opts.PageSize
		seen     = make(map[string]struct{})
	)

	for page := 1; page <= c.opts.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("crawl canceled: %w", err)
		}

		req := domain.PageRequest{
			SiteRoot: c.target.RootURL,
			Endpoint: endpoint,
			Offset:   offset,
			PageSize: c.opts.PageSize,
		}

		cards, body, err := c.fetchListing(ctx, req)
		if err != nil {
			if fetch.IsTransient(err) || ctx.Err() != nil {
				return fmt.Errorf("page %d: %w", page, err)
			}
			// Malformed beyond the retry budget, or a hard 4xx at this
			// offset: skip past it rather than stalling.
			skipRun++
			if skipRun >= c.opts.MaxPageSkips {
				return fmt.Errorf("page %d: %d consecutive unusable pages: %w", page, skipRun, err)
			}
			log.Printf("[%s] p%d unusable (%v), skipping offset %d", c.subdomain, page, err, offset)
			offset += lastStep
			continue
		}
		skipRun = 0

		raw := len(cards)
		if raw == 0 {
			// Structurally empty page: end of pagination.
			break
		}
		if page == 1 {
			totalJobs = ParseTotalJobs(body)
			lastStep = raw
		}

		newCards := cards[:0:0]
		for _, card := range cards {
			if _, dup := seen[card.JobID]; dup {
				continue
			}
			seen[card.JobID] = struct{}{}
			newCards = append(newCards, card)
		}

		if len(newCards) == 0 {
			// A boundary page can repeat ids transiently; only two such
			// pages in a row mean the tenant is cycling.
			dupStreak++
			if dupStreak >= c.opts.MaxDuplicatePages {
				break
			}
		} else {
			dupStreak = 0
		}

		for _, card := range newCards {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("crawl canceled: %w", err)
			}
			c.handleCard(ctx, card, emit, res)
		}

		log.Printf("[%s] p%d: %d cards, %d new, %d emitted so far", c.subdomain, page, raw, len(newCards), res.Emitted)

		// Offset advances by what the tenant actually returned, never by
		// the requested page size: tenants cap silently.
		offset += raw
		lastStep = raw

		if totalJobs > 0 && len(seen) >= totalJobs {
			break
		}
	}
	return nil
}

// fetchListing fetches and parses one listing page, refetching a malformed
// body up to the page retry budget.
func (c *Crawler) fetchListing(ctx context.Context, req domain.PageRequest) ([]Card, string, error) {
	url := SearchURL(req)

	var lastErr error
	for attempt := 0; attempt < c.opts.MaxPageRetries; attempt++ {
		body, err := c.fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, "", err
		}
		cards, err := ParseListing(body, c.target.RootURL)
		if err == nil {
			return cards, body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, "", lastErr
}

// handleCard enriches one new summary with its detail page, claims the id
// and emits. Failures here are local to the job: the site crawl goes on.
func (c *Crawler) handleCard(ctx context.Context, card Card, emit EmitFunc, res *Result) {
	rec, err := c.fetchRecord(ctx, card)
	if err != nil {
		log.Printf("[%s] detail fetch failed for %s: %v", c.subdomain, card.JobID, err)
		res.Skipped++
		return
	}

	claimed, err := c.registry.Claim(ctx, card.JobID)
	if err != nil {
		log.Printf("[%s] claim failed for %s: %v", c.subdomain, card.JobID, err)
		res.Skipped++
		return
	}
	if !claimed {
		res.Duplicates++
		return
	}

	if err := emit(ctx, rec); err != nil {
		log.Printf("[%s] emit failed for %s: %v", c.subdomain, card.JobID, err)
		res.Skipped++
		return
	}
	res.Emitted++
}

// fetchRecord builds the full JobRecord for one summary. Detail-page
// fields win; card fields back-fill whatever the detail page lacks.
func (c *Crawler) fetchRecord(ctx context.Context, card Card) (*domain.JobRecord, error) {
	body, err := c.fetcher.Fetch(ctx, card.DetailURL)
	if err != nil {
		return nil, err
	}
	scrapedAt := time.Now()

	detail, err := ParseDetail(body)
	if err != nil {
		// Unusable detail body; the card alone still makes a record.
		detail = Detail{}
	}

	applyURL := card.ApplyURL
	if detail.ApplyURL != "" {
		applyURL = AbsoluteURL(c.target.RootURL, detail.ApplyURL)
	}

	return &domain.JobRecord{
		JobID:          card.JobID,
		Title:          firstNonEmpty(card.Title, detail.Title),
		Description:    firstNonEmpty(detail.Description, card.Description),
		ApplicationURL: applyURL,
		Location:       firstNonEmpty(detail.Location, card.Location),
		DatePosted:     firstNonEmpty(detail.DatePosted, card.DatePosted),
		Company:        c.company,
		SourceURL:      card.DetailURL,
		ScrapedAt:      scrapedAt,
	}, nil
}

func (c *Crawler) progressRow(status domain.SiteStatus, count int, errMsg string) domain.SiteProgress {
	return domain.SiteProgress{
		SiteRoot: c.target.RootURL,
		Status:   status,
		JobCount: count,
		Error:    errMsg,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
