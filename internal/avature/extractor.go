package avature

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/project-tktt/avature-crawler/internal/common/normalizer"
	"github.com/project-tktt/avature-crawler/internal/domain"
)

// ErrMalformed marks a listing body that is not a listing page at all
// (truncated response, error page, proxy junk). Callers retry it like a
// transient fetch failure. A well-formed page with zero job cards is NOT
// malformed; it is the end of pagination.
var ErrMalformed = errors.New("malformed listing page")

var (
	resultsRe   = regexp.MustCompile(`\d+\s*results?`)
	ofTotalRe   = regexp.MustCompile(`of\s+(\d+)`)
	bareTotalRe = regexp.MustCompile(`(\d+)\s*results?`)
)

// Card is one parsed listing entry: the job summary plus whatever optional
// fields the card itself carries. Card values back-fill a JobRecord when
// the detail page yields nothing better.
type Card struct {
	domain.JobSummary
	Location    string
	DatePosted  string
	Description string
	ApplyURL    string
}

// Detail holds the fields parsed from a job detail page. Any of them may
// be empty; missing optional fields are recorded as absent, not as errors.
type Detail struct {
	Title       string
	Description string
	Location    string
	DatePosted  string
	ApplyURL    string
}

// ParseListing extracts job cards from a listing page. Tenants render
// listings as server-generated markup with per-tenant variance, so every
// field goes through ordered fallbacks and a card that yields no job id is
// dropped rather than failing the page.
func ParseListing(html, siteRoot string) ([]Card, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, ErrMalformed
	}

	var cards []Card
	doc.Find("article").Each(func(_ int, article *goquery.Selection) {
		if card, ok := parseCard(article, siteRoot); ok {
			cards = append(cards, card)
		}
	})

	if len(cards) == 0 && !isListingPage(doc) {
		return nil, ErrMalformed
	}
	return cards, nil
}

func parseCard(article *goquery.Selection, siteRoot string) (Card, bool) {
	titleLink := article.Find("h3 a").First()
	if titleLink.Length() == 0 {
		return Card{}, false
	}

	title := normalizer.CleanText(titleLink.Text())
	href, _ := titleLink.Attr("href")
	detailURL := AbsoluteURL(siteRoot, href)

	// Job id: explicit attribute first, then either detail-URL shape.
	jobID, ok := article.Attr("data-job-id")
	if !ok || jobID == "" {
		jobID, _ = titleLink.Attr("data-job-id")
	}
	if jobID == "" {
		jobID = ExtractJobID(detailURL)
	}
	if jobID == "" {
		return Card{}, false
	}

	card := Card{
		JobSummary: domain.JobSummary{
			JobID:     jobID,
			Title:     title,
			DetailURL: detailURL,
		},
	}
	card.Location, card.DatePosted = parseCardInfo(article, title)
	card.Description = parseCardDescription(article)
	card.ApplyURL = parseApplyURL(article, siteRoot, jobID)
	return card, true
}

// parseCardInfo finds the info line ("Charlotte , NC , USA , Ref #21505 .
// Posted Jan-30-2026") among the card divs. The line sometimes repeats the
// title as a prefix, which is stripped before splitting.
func parseCardInfo(article *goquery.Selection, title string) (location, datePosted string) {
	article.Find("div").EachWithBreak(func(_ int, div *goquery.Selection) bool {
		text := normalizer.CleanText(div.Text())
		if !strings.Contains(text, "Posted") || !strings.Contains(text, "Ref") {
			return true
		}
		if title != "" && strings.HasPrefix(text, title) {
			text = text[len(title):]
		}
		location, datePosted = normalizer.SplitInfo(text)
		return false
	})
	return location, datePosted
}

// parseCardDescription takes the last substantial direct-child div as the
// description preview, skipping info and apply chrome.
func parseCardDescription(article *goquery.Selection) string {
	divs := article.ChildrenFiltered("div")
	for i := divs.Length() - 1; i >= 0; i-- {
		text := normalizer.CleanText(divs.Eq(i).Text())
		if len(text) > 50 && !strings.Contains(text, "Posted") && !strings.Contains(text, "Apply") {
			return text
		}
	}
	return ""
}

func parseApplyURL(article *goquery.Selection, siteRoot, jobID string) string {
	if href, ok := article.Find(`a[href*="ApplicationMethods"]`).First().Attr("href"); ok {
		return AbsoluteURL(siteRoot, href)
	}
	return ApplicationURL(siteRoot, jobID)
}

// isListingPage reports whether the document is a rendered listing page,
// as opposed to a transport glitch or an error page. The distinction is
// what separates "end of pagination" from "retry this offset".
func isListingPage(doc *goquery.Document) bool {
	if resultsRe.MatchString(doc.Text()) {
		return true
	}
	if doc.Find(`[class*="search"], [class*="result"], [class*="listing"]`).Length() > 0 {
		return true
	}
	return doc.Find(`form[role="search"], input[type="search"]`).Length() > 0
}

// ParseTotalJobs extracts the total result count from a listing page, 0
// when the page carries no such marker.
func ParseTotalJobs(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0
	}

	text := doc.Text()
	loc := resultsRe.FindStringIndex(text)
	if loc == nil {
		return 0
	}

	// Prefer "X of N results", fall back to "N results".
	window := text[max(0, loc[0]-40):loc[1]]
	if m := ofTotalRe.FindStringSubmatch(window); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := bareTotalRe.FindStringSubmatch(window); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

// ParseDetail extracts the full-record fields from a job detail page.
// Every field is optional; tenants vary too much for any selector to be
// mandatory.
func ParseDetail(html string) (Detail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Detail{}, ErrMalformed
	}

	var d Detail

	for _, sel := range []string{"h1", "h2", "title"} {
		if t := normalizer.CleanText(doc.Find(sel).First().Text()); t != "" {
			d.Title = t
			break
		}
	}

	for _, sel := range []string{`[class*="jobDescription"]`, `[class*="description"]`, "article", "main"} {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if inner, err := node.Html(); err == nil {
			if text := normalizer.CleanText(node.Text()); len(text) > 50 {
				d.Description = strings.TrimSpace(inner)
				break
			}
		}
	}

	doc.Find("div, span, p").EachWithBreak(func(_ int, node *goquery.Selection) bool {
		text := normalizer.CleanText(node.Text())
		if len(text) > 300 || !strings.Contains(text, "Posted") {
			return true
		}
		loc, date := normalizer.SplitInfo(text)
		if loc != "" || date != "" {
			d.Location, d.DatePosted = loc, date
			return false
		}
		return true
	})

	if href, ok := doc.Find(`a[href*="ApplicationMethods"]`).First().Attr("href"); ok {
		d.ApplyURL = href
	}

	return d, nil
}

