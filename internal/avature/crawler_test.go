package avature

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-tktt/avature-crawler/internal/dedup"
	"github.com/project-tktt/avature-crawler/internal/domain"
	"github.com/project-tktt/avature-crawler/internal/fetch"
)

// fakeSite serves a tenant with a fixed job inventory. It honours the real
// pagination contract: jobRecordsPerPage is capped at pageCap regardless of
// what the caller asks for.
type fakeSite struct {
	endpoint   domain.ListingEndpointKind
	ids        []string
	pageCap    int
	showTotal  bool
	failDetail map[string]bool

	mu      sync.Mutex
	offsets []int
}

func (s *fakeSite) Fetch(_ context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	if strings.Contains(u.Path, "/JobDetail/") {
		id := ExtractJobID(rawURL)
		if s.failDetail[id] {
			return "", &fetch.FetchError{URL: rawURL, Transient: true, Err: errors.New("proxy timeout")}
		}
		return detailHTML(id), nil
	}

	kind := domain.EndpointSearchJobs
	if strings.Contains(u.Path, "/SearchResults/") {
		kind = domain.EndpointSearchResults
	}
	if kind != s.endpoint {
		return "", &fetch.FetchError{URL: rawURL, Status: 404}
	}

	offset, _ := strconv.Atoi(u.Query().Get("jobOffset"))
	requested, _ := strconv.Atoi(u.Query().Get("jobRecordsPerPage"))
	s.mu.Lock()
	s.offsets = append(s.offsets, offset)
	s.mu.Unlock()

	count := min(requested, s.pageCap)
	end := min(offset+count, len(s.ids))
	var page []string
	if offset < len(s.ids) {
		page = s.ids[offset:end]
	}

	marker := "Search results"
	if s.showTotal {
		marker = fmt.Sprintf("Showing %d results", len(s.ids))
	}
	return listingHTML(page, marker), nil
}

// scriptedSite serves hand-written pages keyed by jobOffset: absent offsets
// are structurally empty, broken ones return an error page, transient ones
// fail the fetch outright.
type scriptedSite struct {
	endpoint     domain.ListingEndpointKind
	pages        map[int][]string
	broken       map[int]bool
	transient    map[int]bool
	brokenBeyond bool // every unscripted offset serves an error page
}

func (s *scriptedSite) Fetch(_ context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	if strings.Contains(u.Path, "/JobDetail/") {
		return detailHTML(ExtractJobID(rawURL)), nil
	}
	if !strings.Contains(u.Path, "/"+s.endpoint.String()+"/") {
		return "", &fetch.FetchError{URL: rawURL, Status: 404}
	}

	offset, _ := strconv.Atoi(u.Query().Get("jobOffset"))
	switch {
	case s.transient[offset]:
		return "", &fetch.FetchError{URL: rawURL, Status: 502, Transient: true}
	case s.broken[offset], s.brokenBeyond && s.pages[offset] == nil:
		return `<html><body><p>gateway error</p></body></html>`, nil
	}
	return listingHTML(s.pages[offset], "Search results"), nil
}

func listingHTML(ids []string, marker string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="searchResultsContainer">`)
	b.WriteString(marker)
	b.WriteString("</div>\n")
	for _, id := range ids {
		fmt.Fprintf(&b,
			`<article><h3><a href="/careers/JobDetail/Role-%s/%s">Role %s</a></h3>`+
				`<div>Charlotte , NC , USA , Ref #%s . Posted Jan-15-2026</div></article>`+"\n",
			id, id, id, id)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func detailHTML(id string) string {
	return fmt.Sprintf(`<html><body><h1>Role %s</h1>`+
		`<div class="jobDescription">A role working on reliability, tooling and developer experience across the platform organisation.</div>`+
		`<a href="/careers/ApplicationMethods?jobId=%s">Apply</a></body></html>`, id, id)
}

func makeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = strconv.Itoa(101 + i)
	}
	return ids
}

func collect(records *[]*domain.JobRecord) EmitFunc {
	return func(_ context.Context, rec *domain.JobRecord) error {
		*records = append(*records, rec)
		return nil
	}
}

func TestCrawlerOffsetAdvancesByServedCount(t *testing.T) {
	t.Parallel()

	// 25 jobs, tenant caps every page at 10 even though 50 is requested.
	site := &fakeSite{
		endpoint:  domain.EndpointSearchJobs,
		ids:       makeIDs(25),
		pageCap:   10,
		showTotal: true,
	}
	c := NewCrawler(domain.SiteTarget{RootURL: siteRoot}, site, dedup.NewMemoryRegistry(), Options{PageSize: 50})

	var records []*domain.JobRecord
	res := c.Run(context.Background(), collect(&records))

	assert.Equal(t, domain.EndpointSearchJobs, res.Endpoint)
	assert.Equal(t, domain.SiteCompleted, res.Progress.Status)
	assert.Equal(t, 25, res.Progress.JobCount)
	assert.Equal(t, 25, res.Emitted)
	require.Len(t, records, 25)

	// First offset is the detection probe; pagination then steps by the 10
	// cards actually served, never by the 50 requested.
	assert.Equal(t, []int{0, 0, 10, 20}, site.offsets)

	first := records[0]
	assert.Equal(t, "101", first.JobID)
	assert.Equal(t, "Role 101", first.Title)
	assert.Equal(t, "Ally", first.Company)
	assert.Equal(t, "Charlotte, NC, USA", first.Location)
	assert.Equal(t, "Jan-15-2026", first.DatePosted)
	assert.Contains(t, first.Description, "reliability, tooling")
	assert.Equal(t, "https://ally.avature.net/careers/ApplicationMethods?jobId=101", first.ApplicationURL)
	assert.Equal(t, "https://ally.avature.net/careers/JobDetail/Role-101/101", first.SourceURL)
	assert.False(t, first.ScrapedAt.IsZero())
}

func TestCrawlerStopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	// No total marker on the page: the crawler has to walk off the end.
	site := &fakeSite{
		endpoint: domain.EndpointSearchJobs,
		ids:      makeIDs(25),
		pageCap:  10,
	}
	c := NewCrawler(domain.SiteTarget{RootURL: siteRoot}, site, dedup.NewMemoryRegistry(), Options{PageSize: 50})

	var records []*domain.JobRecord
	res := c.Run(context.Background(), collect(&records))

	assert.Equal(t, domain.SiteCompleted, res.Progress.Status)
	assert.Equal(t, 25, res.Emitted)
	assert.Equal(t, []int{0, 0, 10, 20, 30}, site.offsets, "the empty page at 30 ends pagination")
}

func TestCrawlerFallsBackToSearchResults(t *testing.T) {
	t.Parallel()

	site := &fakeSite{
		endpoint: domain.EndpointSearchResults,
		ids:      makeIDs(3),
		pageCap:  10,
	}
	c := NewCrawler(domain.SiteTarget{RootURL: siteRoot}, site, dedup.NewMemoryRegistry(), Options{})

	var records []*domain.JobRecord
	res := c.Run(context.Background(), collect(&records))

	assert.Equal(t, domain.EndpointSearchResults, res.Endpoint)
	assert.Equal(t, domain.SiteCompleted, res.Progress.Status)
	assert.Equal(t, 3, res.Emitted)
}

func TestCrawlerFailsWhenNoEndpointAnswers(t *testing.T) {
	t.Parallel()

	site := &fakeSite{endpoint: domain.EndpointUnknown}
	c := NewCrawler(domain.SiteTarget{RootURL: siteRoot}, site, dedup.NewMemoryRegistry(), Options{})

	var records []*domain.JobRecord
	res := c.Run(context.Background(), collect(&records))

	assert.Equal(t, domain.EndpointUnknown, res.Endpoint)
	assert.Equal(t, domain.SiteFailed, res.Progress.Status)
	assert.Equal(t, "no live listing endpoint", res.Progress.Error)
	assert.Zero(t, res.Emitted)
	assert.Empty(t, records)
}

func TestCrawlerSingleDuplicatePageIsNotTerminal(t *testing.T) {
	t.Parallel()

	site := &scriptedSite{
		endpoint: domain.EndpointSearchJobs,
		pages: map[int][]string{
			0: {"101", "102"},
			2: {"101", "102"}, // boundary page repeats both ids
			4: {"103", "104"},
		},
	}
	c := NewCrawler(domain.SiteTarget{RootURL: siteRoot}, site, dedup.NewMemoryRegistry(), Options{PageSize: 2})

	var records []*domain.JobRecord
	res := c.Run(context.Background(), collect(&records))

	assert.Equal(t, domain.SiteCompleted, res.Progress.Status)
	assert.Equal(t, 4, res.Emitted, "crawl continues past one all-duplicate page")
}

func TestCrawlerTwoDuplicatePagesTerminate(t *testing.T) {
	t.Parallel()

	site := &scriptedSite{
		endpoint: domain.EndpointSearchJobs,
		pages: map[int][]string{
			0: {"101", "102"},
			2: {"101", "102"},
			4: {"101", "102"},
			6: {"103"}, // must never be reached
		},
	}
	c := NewCrawler(domain.SiteTarget{RootURL: siteRoot}, site, dedup.NewMemoryRegistry(), Options{PageSize: 2})

	var records []*domain.JobRecord
	res := c.Run(context.Background(), collect(&records))

	assert.Equal(t, domain.SiteCompleted, res.Progress.Status)
	assert.Equal(t, 2, res.Emitted, "a cycling tenant ends the crawl, not the run")
}

func TestCrawlerSkipsPastMalformedPage(t *testing.T) {
	t.Parallel()

	site := &scriptedSite{
		endpoint: domain.EndpointSearchJobs,
		pages: map[int][]string{
			0: {"101", "102"},
			4: {"103", "104"},
		},
		broken: map[int]bool{2: true},
	}
	c := NewCrawler(domain.SiteTarget{RootURL: siteRoot}, site, dedup.NewMemoryRegistry(), Options{PageSize: 2})

	var records []*domain.JobRecord
	res := c.Run(context.Background(), collect(&records))

	assert.Equal(t, domain.SiteCompleted, res.Progress.Status)
	assert.Equal(t, 4, res.Emitted, "offset 2 is skipped blind using the learned page size")
}

func TestCrawlerFailsAfterConsecutiveUnusablePages(t *testing.T) {
	t.Parallel()

	site := &scriptedSite{
		endpoint:     domain.EndpointSearchJobs,
		pages:        map[int][]string{0: {"101", "102"}},
		brokenBeyond: true,
	}
	c := NewCrawler(domain.SiteTarget{RootURL: siteRoot}, site, dedup.NewMemoryRegistry(), Options{PageSize: 2})

	var records []*domain.JobRecord
	res := c.Run(context.Background(), collect(&records))

	assert.Equal(t, domain.SiteFailed, res.Progress.Status)
	assert.Contains(t, res.Progress.Error, "consecutive unusable")
	assert.Equal(t, 2, res.Emitted, "records emitted before the failure survive")
	assert.Equal(t, 2, res.Progress.JobCount)
}

func TestCrawlerFailsOnTransientListingError(t *testing.T) {
	t.Parallel()

	site := &scriptedSite{
		endpoint:  domain.EndpointSearchJobs,
		pages:     map[int][]string{0: {"101", "102"}},
		transient: map[int]bool{2: true},
	}
	c := NewCrawler(domain.SiteTarget{RootURL: siteRoot}, site, dedup.NewMemoryRegistry(), Options{PageSize: 2})

	var records []*domain.JobRecord
	res := c.Run(context.Background(), collect(&records))

	assert.Equal(t, domain.SiteFailed, res.Progress.Status)
	assert.Equal(t, 2, res.Progress.JobCount)
	require.Len(t, records, 2)
}

func TestCrawlerCrossSiteDuplicatesDiscarded(t *testing.T) {
	t.Parallel()

	registry := dedup.NewMemoryRegistry()
	ids := makeIDs(5)

	first := NewCrawler(domain.SiteTarget{RootURL: siteRoot}, &fakeSite{
		endpoint: domain.EndpointSearchJobs,
		ids:      ids,
		pageCap:  10,
	}, registry, Options{})
	second := NewCrawler(domain.SiteTarget{RootURL: "https://broad.avature.net/careers"}, &fakeSite{
		endpoint: domain.EndpointSearchJobs,
		ids:      ids,
		pageCap:  10,
	}, registry, Options{})

	var records []*domain.JobRecord
	res1 := first.Run(context.Background(), collect(&records))
	res2 := second.Run(context.Background(), collect(&records))

	assert.Equal(t, 5, res1.Emitted)
	assert.Equal(t, domain.SiteCompleted, res2.Progress.Status, "an all-duplicate site still completes")
	assert.Zero(t, res2.Emitted)
	assert.Equal(t, 5, res2.Duplicates)
	assert.Len(t, records, 5)
}

func TestCrawlerDetailFailureSkipsJobOnly(t *testing.T) {
	t.Parallel()

	site := &fakeSite{
		endpoint:   domain.EndpointSearchJobs,
		ids:        makeIDs(5),
		pageCap:    10,
		failDetail: map[string]bool{"103": true},
	}
	c := NewCrawler(domain.SiteTarget{RootURL: siteRoot}, site, dedup.NewMemoryRegistry(), Options{})

	var records []*domain.JobRecord
	res := c.Run(context.Background(), collect(&records))

	assert.Equal(t, domain.SiteCompleted, res.Progress.Status)
	assert.Equal(t, 4, res.Emitted)
	assert.Equal(t, 1, res.Skipped)
	for _, rec := range records {
		assert.NotEqual(t, "103", rec.JobID)
	}
}

func TestCrawlerCancellationFailsWithPartialCount(t *testing.T) {
	t.Parallel()

	site := &fakeSite{
		endpoint: domain.EndpointSearchJobs,
		ids:      makeIDs(10),
		pageCap:  10,
	}
	c := NewCrawler(domain.SiteTarget{RootURL: siteRoot}, site, dedup.NewMemoryRegistry(), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	emitted := 0
	res := c.Run(ctx, func(_ context.Context, _ *domain.JobRecord) error {
		emitted++
		if emitted == 3 {
			cancel()
		}
		return nil
	})

	assert.Equal(t, domain.SiteFailed, res.Progress.Status)
	assert.Contains(t, res.Progress.Error, "canceled")
	assert.Equal(t, 3, res.Emitted)
	assert.Equal(t, 3, res.Progress.JobCount)
}
