// Package messaging provides message queue adapters.
package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"triage_server/core/domain"
	"triage_server/core/port/out"

	"github.com/redis/go-redis/v9"
)

// Stream names
const (
	StreamImport          = "triage:import"
	StreamBulkDelete      = "triage:bulk_delete"
	StreamBulkUnsubscribe = "triage:bulk_unsubscribe"
	StreamWatchRenew      = "triage:watch_renew"
)

// AllStreams lists every stream the worker consumes.
var AllStreams = []string{
	StreamImport,
	StreamBulkDelete,
	StreamBulkUnsubscribe,
	StreamWatchRenew,
}

// RedisProducer implements out.MessageProducerPort using Redis Streams.
type RedisProducer struct {
	client *redis.Client
}

// NewRedisProducer creates a new RedisProducer.
func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client}
}

// PublishImport publishes an inbox import job.
func (p *RedisProducer) PublishImport(ctx context.Context, opts domain.ImportOptions) error {
	return p.publish(ctx, StreamImport, &out.ImportJob{
		AccountID:   opts.AccountID,
		Query:       opts.Query,
		MaxResults:  opts.MaxResults,
		AutoArchive: opts.AutoArchive,
	})
}

// PublishBulkDelete publishes a bulk delete job.
func (p *RedisProducer) PublishBulkDelete(ctx context.Context, userID string, messageIDs []string) error {
	return p.publish(ctx, StreamBulkDelete, &out.BulkDeleteJob{
		UserID:     userID,
		MessageIDs: messageIDs,
	})
}

// PublishBulkUnsubscribe publishes a bulk unsubscribe job.
func (p *RedisProducer) PublishBulkUnsubscribe(ctx context.Context, userID string, messageIDs []string) error {
	return p.publish(ctx, StreamBulkUnsubscribe, &out.BulkUnsubscribeJob{
		UserID:     userID,
		MessageIDs: messageIDs,
	})
}

// PublishWatchRenew publishes a watch renewal job.
func (p *RedisProducer) PublishWatchRenew(ctx context.Context, accountID string) error {
	return p.publish(ctx, StreamWatchRenew, &out.WatchRenewJob{
		AccountID: accountID,
	})
}

// publish publishes a job to a stream using go-redis.
func (p *RedisProducer) publish(ctx context.Context, stream string, job interface{}) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}

	return nil
}

// Ensure RedisProducer implements out.MessageProducerPort
var _ out.MessageProducerPort = (*RedisProducer)(nil)
