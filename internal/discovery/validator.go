package discovery

import (
	"log"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
)

// Validator probes candidate career-root URLs and keeps the ones that
// answer with a live Avature page. Discovery itself (certificate
// transparency and friends) happens upstream; this only filters a
// candidate list before it is handed to the crawl engine.
type Validator struct {
	collector   *colly.Collector
	parallelism int
}

// NewValidator creates a validator probing with the given browser
// fingerprint and parallelism.
func NewValidator(userAgent string, parallelism int, timeout time.Duration) *Validator {
	if parallelism <= 0 {
		parallelism = 30
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.Async(true),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(timeout)
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: parallelism,
	})

	return &Validator{collector: c, parallelism: parallelism}
}

// Validate probes every candidate and returns the live ones, sorted.
// A candidate is live when its root answers 200 with Avature page markup.
func (v *Validator) Validate(candidates []string) []string {
	var mu sync.Mutex
	liveHosts := make(map[string]bool)

	collector := v.collector.Clone()

	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode != 200 {
			return
		}
		if !strings.Contains(strings.ToLower(string(r.Body)), "avature") {
			return
		}
		mu.Lock()
		liveHosts[r.Request.URL.Host] = true
		mu.Unlock()
	})

	collector.OnError(func(r *colly.Response, err error) {
		log.Printf("probe %s: %v", r.Request.URL, err)
	})

	for _, candidate := range candidates {
		if err := collector.Visit(candidate); err != nil {
			log.Printf("probe %s: %v", candidate, err)
		}
	}
	collector.Wait()

	var live []string
	for _, candidate := range candidates {
		parsed, err := url.Parse(candidate)
		if err != nil {
			continue
		}
		if liveHosts[parsed.Host] {
			live = append(live, candidate)
		}
	}
	sort.Strings(live)
	return live
}
