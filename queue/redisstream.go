package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kapicorp/webhook-relay/config"
)

/* Redis Streams implementation of Backend
 * Uses one stream with a consumer group; the stream entry ID doubles as the
 * receipt. Entries idle past the visibility timeout are reclaimed with
 * XAUTOCLAIM, which stands in for the managed backends' redelivery
 */
type RedisStreams struct {
	client     *redis.Client
	stream     string
	group      string
	consumer   string
	visibility time.Duration
}

// NewRedisStreams creates a Redis Streams backend bound to one stream/group
func NewRedisStreams(cfg config.RedisSettings) (*RedisStreams, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &RedisStreams{
		client:     client,
		stream:     cfg.Stream,
		group:      cfg.Group,
		consumer:   "forwarder-" + uuid.New().String(),
		visibility: cfg.VisibilityTimeout,
	}, nil
}

// Publish adds the body to the stream
func (r *RedisStreams) Publish(ctx context.Context, body []byte) (string, error) {
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{"body": body},
	}).Result()
	if err != nil {
		return "", &PublishError{Queue: r.stream, Err: err}
	}
	return id, nil
}

// Receive claims entries idle past the visibility timeout first, then reads
// new entries from the group, blocking up to wait.
func (r *RedisStreams) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	r.ensureGroup(ctx)

	var messages []Message

	claimed, _, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   r.stream,
		Group:    r.group,
		Consumer: r.consumer,
		MinIdle:  r.visibility,
		Start:    "0-0",
		Count:    int64(max),
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("claiming idle entries: %w", err)
	}
	for _, msg := range claimed {
		messages = append(messages, r.toMessage(ctx, msg, true))
	}

	remaining := max - len(messages)
	if remaining <= 0 {
		return messages, nil
	}

	// Only block when nothing was reclaimed; otherwise return promptly
	block := wait
	if len(messages) > 0 {
		block = time.Millisecond
	}

	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, ">"},
		Count:    int64(remaining),
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return messages, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return messages, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			messages = append(messages, r.toMessage(ctx, msg, false))
		}
	}
	return messages, nil
}

// Acknowledge removes the entry from the group's pending list
func (r *RedisStreams) Acknowledge(ctx context.Context, receipt string) error {
	acked, err := r.client.XAck(ctx, r.stream, r.group, receipt).Result()
	if err != nil {
		return &AckError{Queue: r.stream, Receipt: receipt, Err: err}
	}
	if acked == 0 {
		return &AckError{Queue: r.stream, Receipt: receipt, Err: fmt.Errorf("receipt not pending")}
	}
	return nil
}

// Release is a no-op; reclaim happens via XAUTOCLAIM once the entry goes idle
func (r *RedisStreams) Release(ctx context.Context, receipt string) error {
	return nil
}

// Close closes the Redis connection
func (r *RedisStreams) Close() error {
	return r.client.Close()
}

// ensureGroup creates the consumer group if it does not exist yet
func (r *RedisStreams) ensureGroup(ctx context.Context) {
	err := r.client.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		// Any other failure will surface on the read that follows
		return
	}
}

// toMessage converts a stream entry, looking up the pending delivery counter
// for reclaimed entries.
func (r *RedisStreams) toMessage(ctx context.Context, msg redis.XMessage, reclaimed bool) Message {
	body, _ := msg.Values["body"].(string)

	attempt := 1
	if reclaimed {
		pending, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: r.stream,
			Group:  r.group,
			Start:  msg.ID,
			End:    msg.ID,
			Count:  1,
		}).Result()
		if err == nil && len(pending) == 1 {
			attempt = int(pending[0].RetryCount)
		}
	}

	return Message{
		ID:              msg.ID,
		Body:            []byte(body),
		Receipt:         msg.ID,
		DeliveryAttempt: attempt,
	}
}
