package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/project-tktt/avature-crawler/internal/domain"
)

// Consumer pops job records off the Redis stream queue.
type Consumer struct {
	client    *redis.Client
	queueName string
	timeout   time.Duration
}

// NewConsumer creates a new queue consumer
func NewConsumer(client *redis.Client, queueName string, timeout time.Duration) *Consumer {
	if queueName == "" {
		queueName = "jobs:records"
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Consumer{
		client:    client,
		queueName: queueName,
		timeout:   timeout,
	}
}

// Consume blocks and waits for a record from the queue.
// Returns nil, nil if timeout occurs with no record.
func (c *Consumer) Consume(ctx context.Context) (*domain.JobRecord, error) {
	result, err := c.client.BRPop(ctx, c.timeout, c.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Timeout, nothing queued
		}
		return nil, fmt.Errorf("brpop: %w", err)
	}

	if len(result) < 2 {
		return nil, nil
	}

	var rec domain.JobRecord
	if err := json.Unmarshal([]byte(result[1]), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}

	return &rec, nil
}

// ConsumeBatch consumes up to maxBatch records from the queue.
// Uses BRPOP to block-wait for the first item (prevents CPU spinning),
// then RPOP to quickly grab the rest of the batch.
func (c *Consumer) ConsumeBatch(ctx context.Context, maxBatch int) ([]*domain.JobRecord, error) {
	recs := make([]*domain.JobRecord, 0, maxBatch)

	result, err := c.client.BRPop(ctx, c.timeout, c.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return recs, nil // Timeout, nothing queued
		}
		return nil, fmt.Errorf("brpop: %w", err)
	}

	if len(result) >= 2 {
		var rec domain.JobRecord
		if err := json.Unmarshal([]byte(result[1]), &rec); err == nil {
			recs = append(recs, &rec)
		}
	}

	for i := 1; i < maxBatch; i++ {
		result, err := c.client.RPop(ctx, c.queueName).Result()
		if err != nil {
			if err == redis.Nil {
				break // Queue drained
			}
			return recs, fmt.Errorf("rpop: %w", err)
		}

		var rec domain.JobRecord
		if err := json.Unmarshal([]byte(result), &rec); err != nil {
			continue // Skip malformed entries
		}

		recs = append(recs, &rec)
	}

	return recs, nil
}
