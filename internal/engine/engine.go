package engine

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/project-tktt/avature-crawler/internal/avature"
	"github.com/project-tktt/avature-crawler/internal/dedup"
	"github.com/project-tktt/avature-crawler/internal/domain"
	"github.com/project-tktt/avature-crawler/internal/progress"
)

// ErrNoTargets is the one run-fatal configuration fault: an empty site
// list. Everything else is contained per site.
var ErrNoTargets = errors.New("no site targets provided")

// Sink consumes the finished job record stream.
type Sink interface {
	Emit(ctx context.Context, rec *domain.JobRecord) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, rec *domain.JobRecord) error

func (f SinkFunc) Emit(ctx context.Context, rec *domain.JobRecord) error { return f(ctx, rec) }

// Stats are the aggregate counters of one run.
type Stats struct {
	SitesProcessed      int            `json:"sites_processed"`
	SitesCompleted      int            `json:"sites_completed"`
	SitesFailed         int            `json:"sites_failed"`
	SitesSkipped        int            `json:"sites_skipped"`
	UniqueJobs          int            `json:"unique_jobs"`
	DuplicatesDiscarded int            `json:"duplicates_discarded"`
	DetailsSkipped      int            `json:"details_skipped"`
	Companies           map[string]int `json:"companies"`
}

// DistinctCompanies returns the number of companies that produced at
// least one record.
func (s *Stats) DistinctCompanies() int { return len(s.Companies) }

// Config holds the engine-level knobs.
type Config struct {
	// Concurrent site crawls; each site is internally sequential
	Concurrency int
	Crawl       avature.Options
}

// Engine runs one crawler per site target, up to Concurrency at a time,
// over shared dedup and progress state. Per-site failures surface only as
// their SiteProgress row; the run itself fails only on configuration.
type Engine struct {
	fetcher  avature.Fetcher
	registry dedup.Registry
	store    progress.Store
	sink     Sink
	cfg      Config
}

// New creates an engine over the shared collaborators.
func New(fetcher avature.Fetcher, registry dedup.Registry, store progress.Store, sink Sink, cfg Config) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	return &Engine{
		fetcher:  fetcher,
		registry: registry,
		store:    store,
		sink:     sink,
		cfg:      cfg,
	}
}

// Run crawls every pending target and returns the aggregate stats. Sites
// the progress store already marks completed are never re-submitted.
func (e *Engine) Run(ctx context.Context, targets []domain.SiteTarget) (*Stats, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}

	stats := &Stats{Companies: make(map[string]int)}
	var mu sync.Mutex

	pending := make([]domain.SiteTarget, 0, len(targets))
	for _, t := range targets {
		if e.store.AlreadyCompleted(t.RootURL) {
			stats.SitesSkipped++
			continue
		}
		pending = append(pending, t)
	}
	log.Printf("run: %d sites (%d already completed)", len(pending), stats.SitesSkipped)

	work := make(chan domain.SiteTarget)
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range work {
				res := e.crawlSite(ctx, target)
				mu.Lock()
				stats.SitesProcessed++
				stats.UniqueJobs += res.Emitted
				stats.DuplicatesDiscarded += res.Duplicates
				stats.DetailsSkipped += res.Skipped
				if res.Emitted > 0 {
					stats.Companies[avature.CompanyFromRoot(target.RootURL)] += res.Emitted
				}
				if res.Progress.Status == domain.SiteCompleted {
					stats.SitesCompleted++
				} else {
					stats.SitesFailed++
				}
				mu.Unlock()
			}
		}()
	}

	for _, target := range pending {
		select {
		case work <- target:
		case <-ctx.Done():
			// Stop handing out sites; in-flight crawls wind down and
			// record themselves as failed.
			close(work)
			wg.Wait()
			return stats, nil
		}
	}
	close(work)
	wg.Wait()

	return stats, nil
}

func (e *Engine) crawlSite(ctx context.Context, target domain.SiteTarget) avature.Result {
	crawler := avature.NewCrawler(target, e.fetcher, e.registry, e.cfg.Crawl)
	res := crawler.Run(ctx, e.sink.Emit)

	if err := e.store.Record(res.Progress); err != nil {
		log.Printf("record progress for %s: %v", target.RootURL, err)
	}

	switch res.Progress.Status {
	case domain.SiteCompleted:
		log.Printf("site %s: completed, %d jobs (%d dup, %d skipped)", target.RootURL, res.Emitted, res.Duplicates, res.Skipped)
	default:
		log.Printf("site %s: failed after %d jobs: %s", target.RootURL, res.Emitted, res.Progress.Error)
	}
	return res
}
