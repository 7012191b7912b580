package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/project-tktt/avature-crawler/internal/avature"
	"github.com/project-tktt/avature-crawler/internal/config"
	"github.com/project-tktt/avature-crawler/internal/dedup"
	"github.com/project-tktt/avature-crawler/internal/domain"
	"github.com/project-tktt/avature-crawler/internal/engine"
	"github.com/project-tktt/avature-crawler/internal/fetch"
	"github.com/project-tktt/avature-crawler/internal/progress"
	"github.com/project-tktt/avature-crawler/internal/proxy"
	"github.com/project-tktt/avature-crawler/internal/queue"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting Avature Crawler")

	cfg := config.Load()

	targets, err := loadTargets(cfg.Files.SitesFile)
	if err != nil {
		log.Fatalf("Load sites: %v", err)
	}
	log.Printf("Sites: %d", len(targets))

	pool, err := proxy.LoadFile(cfg.Files.ProxiesFile, cfg.Crawler.ProxyFailThreshold)
	if err != nil {
		log.Fatalf("Load proxies: %v", err)
	}
	if pool.Total() > 0 {
		log.Printf("Proxies: %d loaded", pool.Total())
	} else {
		log.Println("Proxies: none (direct connection)")
	}

	store, err := progress.OpenFileStore(cfg.Files.ProgressFile)
	if err != nil {
		log.Fatalf("Open progress file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, publisher := buildRedisBacked(ctx, cfg)

	collector := newJobCollector(cfg.Files.OutputFile)
	sink := engine.SinkFunc(func(ctx context.Context, rec *domain.JobRecord) error {
		if publisher != nil {
			if err := publisher.Publish(ctx, rec); err != nil {
				log.Printf("Publish %s: %v", rec.JobID, err)
			}
		}
		return collector.Emit(ctx, rec)
	})

	transport := fetch.NewHTTPTransport(cfg.Crawler.UserAgent, cfg.Crawler.RequestTimeout)
	client := fetch.NewClient(transport, pool, cfg.Crawler.MaxRetries, cfg.Crawler.RequestDelay)

	eng := engine.New(client, registry, store, sink, engine.Config{
		Concurrency: cfg.Crawler.Concurrency,
		Crawl: avature.Options{
			PageSize:          cfg.Crawler.PageSize,
			MaxPages:          cfg.Crawler.MaxPages,
			MaxDuplicatePages: cfg.Crawler.MaxDuplicatePages,
			MaxPageRetries:    cfg.Crawler.MaxRetries,
		},
	})

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutdown signal received, stopping...")
		cancel()
	}()

	start := time.Now()
	stats, err := eng.Run(ctx, targets)
	if err != nil {
		log.Fatalf("Run: %v", err)
	}

	if err := collector.Save(stats, time.Since(start)); err != nil {
		log.Printf("Save output: %v", err)
	}

	log.Printf("Done in %s", time.Since(start).Round(time.Second))
	log.Printf("Sites: %d processed, %d completed, %d failed, %d resumed-skip",
		stats.SitesProcessed, stats.SitesCompleted, stats.SitesFailed, stats.SitesSkipped)
	log.Printf("Jobs: %d unique, %d duplicates discarded, %d companies",
		stats.UniqueJobs, stats.DuplicatesDiscarded, stats.DistinctCompanies())
}

// buildRedisBacked wires the Redis-backed collaborators when configured:
// the shared dedup registry for sharded runs and the record queue feeding
// the indexing workers.
func buildRedisBacked(ctx context.Context, cfg *config.Config) (dedup.Registry, *queue.Publisher) {
	needsRedis := cfg.Crawler.DedupBackend == "redis" || cfg.Crawler.PublishQueue
	if !needsRedis {
		return dedup.NewMemoryRegistry(), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Redis connection failed: %v", err)
	}
	log.Println("Redis connected")

	var registry dedup.Registry = dedup.NewMemoryRegistry()
	if cfg.Crawler.DedupBackend == "redis" {
		registry = dedup.NewRedisRegistry(rdb, cfg.Redis.DedupPrefix)
	}

	var publisher *queue.Publisher
	if cfg.Crawler.PublishQueue {
		publisher = queue.NewPublisher(rdb, cfg.Redis.JobQueue)
	}
	return registry, publisher
}

func loadTargets(path string) ([]domain.SiteTarget, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var targets []domain.SiteTarget
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, domain.SiteTarget{RootURL: line})
	}
	return targets, scanner.Err()
}

// jobCollector accumulates emitted records and writes the final output
// file. Existing records from a previous interrupted run are kept so a
// resume never loses output.
type jobCollector struct {
	mu      sync.Mutex
	path    string
	records []*domain.JobRecord
}

func newJobCollector(path string) *jobCollector {
	c := &jobCollector{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		return c
	}
	var existing struct {
		Jobs []*domain.JobRecord `json:"jobs"`
	}
	if err := json.Unmarshal(data, &existing); err == nil {
		c.records = existing.Jobs
		if len(c.records) > 0 {
			log.Printf("Existing jobs: %d", len(c.records))
		}
	}
	return c
}

func (c *jobCollector) Emit(_ context.Context, rec *domain.JobRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return nil
}

func (c *jobCollector) Save(stats *engine.Stats, elapsed time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	output := map[string]any{
		"total_jobs": len(c.records),
		"stats": map[string]any{
			"sites_processed":      stats.SitesProcessed,
			"sites_completed":      stats.SitesCompleted,
			"sites_failed":         stats.SitesFailed,
			"unique_jobs":          stats.UniqueJobs,
			"duplicates_discarded": stats.DuplicatesDiscarded,
			"distinct_companies":   stats.DistinctCompanies(),
			"time_seconds":         elapsed.Round(100 * time.Millisecond).Seconds(),
			"date":                 time.Now().Format(time.RFC3339),
		},
		"jobs": c.records,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(c.path, data, 0o644)
}
