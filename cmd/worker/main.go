package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/project-tktt/avature-crawler/internal/common/cleaner"
	"github.com/project-tktt/avature-crawler/internal/common/indexer"
	"github.com/project-tktt/avature-crawler/internal/config"
	"github.com/project-tktt/avature-crawler/internal/module/worker"
	"github.com/project-tktt/avature-crawler/internal/queue"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting Indexing Worker Service")

	cfg := config.Load()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Redis connection failed: %v", err)
	}
	log.Println("Redis connected")

	idx := buildIndexer(ctx, cfg)

	htmlCleaner := cleaner.NewCleaner()
	consumer := queue.NewConsumer(rdb, cfg.Redis.JobQueue, 5*time.Second)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w := worker.NewWorker(consumer, htmlCleaner, idx, worker.Config{
			Concurrency: cfg.Worker.Concurrency,
			BatchSize:   cfg.Worker.BatchSize,
		})
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("Worker error: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutdown signal received, stopping...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Graceful shutdown complete")
	case <-time.After(30 * time.Second):
		log.Println("Shutdown timeout, forcing exit")
	}
}

func buildIndexer(ctx context.Context, cfg *config.Config) indexer.Indexer {
	switch cfg.Worker.Indexer {
	case "elasticsearch":
		esIndexer, err := indexer.NewElasticsearchIndexer(cfg.Elasticsearch.Addresses, cfg.Elasticsearch.Index)
		if err != nil {
			log.Fatalf("Elasticsearch connection failed: %v", err)
		}
		log.Printf("Elasticsearch connected, index: %s", cfg.Elasticsearch.Index)
		if err := esIndexer.EnsureIndex(ctx); err != nil {
			log.Printf("Warning: ensure index failed: %v", err)
		}
		return esIndexer
	default:
		pgIndexer, err := indexer.NewPostgresIndexer(cfg.Postgres.ConnectionString, cfg.Postgres.TableName)
		if err != nil {
			log.Fatalf("PostgreSQL connection failed: %v", err)
		}
		log.Printf("PostgreSQL connected, table: %s", cfg.Postgres.TableName)
		return pgIndexer
	}
}
