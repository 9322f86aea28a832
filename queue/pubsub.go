package queue

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	subapi "cloud.google.com/go/pubsub/apiv1"
	"cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"google.golang.org/api/option"

	"github.com/kapicorp/webhook-relay/config"
)

/* GCP Pub/Sub implementation of Backend
 * Publishes through the high-level client; receives through the low-level
 * subscriber Pull API so ack IDs map directly onto opaque receipts
 */
type PubSub struct {
	publisher    *pubsub.Client
	subscriber   *subapi.SubscriberClient
	topic        *pubsub.Topic
	subscription string
	label        string
}

// NewPubSub creates a Pub/Sub backend bound to one topic/subscription pair
func NewPubSub(ctx context.Context, cfg config.GCPSettings, opts ...option.ClientOption) (*PubSub, error) {
	publisher, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	p := &PubSub{
		publisher: publisher,
		topic:     publisher.Topic(cfg.TopicID),
		label:     cfg.TopicID,
	}

	// The collector never pulls, so the subscriber is optional
	if cfg.SubscriptionID != "" {
		subscriber, err := subapi.NewSubscriberClient(ctx, opts...)
		if err != nil {
			publisher.Close()
			return nil, fmt.Errorf("creating pubsub subscriber: %w", err)
		}
		p.subscriber = subscriber
		p.subscription = fmt.Sprintf("projects/%s/subscriptions/%s", cfg.ProjectID, cfg.SubscriptionID)
	}

	return p, nil
}

// Publish sends the body to the topic and waits for the server ack
func (p *PubSub) Publish(ctx context.Context, body []byte) (string, error) {
	res := p.topic.Publish(ctx, &pubsub.Message{Data: body})
	id, err := res.Get(ctx)
	if err != nil {
		return "", &PublishError{Queue: p.label, Err: err}
	}
	return id, nil
}

// Receive pulls up to max messages, waiting at most wait for the first one
func (p *PubSub) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if p.subscriber == nil {
		return nil, fmt.Errorf("subscription not configured for receiving messages")
	}

	pullCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	resp, err := p.subscriber.Pull(pullCtx, &pubsubpb.PullRequest{
		Subscription: p.subscription,
		MaxMessages:  int32(max),
	})
	if err != nil {
		// An expired wait is an empty receive, not a failure
		if pullCtx.Err() != nil && ctx.Err() == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("pulling from %s: %w", p.subscription, err)
	}

	messages := make([]Message, 0, len(resp.ReceivedMessages))
	for _, rm := range resp.ReceivedMessages {
		attempt := int(rm.DeliveryAttempt)
		if attempt == 0 {
			attempt = 1
		}
		messages = append(messages, Message{
			ID:              rm.Message.MessageId,
			Body:            rm.Message.Data,
			Receipt:         rm.AckId,
			DeliveryAttempt: attempt,
		})
	}
	return messages, nil
}

// Acknowledge acks the message so the subscription never redelivers it
func (p *PubSub) Acknowledge(ctx context.Context, receipt string) error {
	err := p.subscriber.Acknowledge(ctx, &pubsubpb.AcknowledgeRequest{
		Subscription: p.subscription,
		AckIds:       []string{receipt},
	})
	if err != nil {
		return &AckError{Queue: p.label, Receipt: receipt, Err: err}
	}
	return nil
}

// Release zeroes the ack deadline so the message is redelivered promptly
func (p *PubSub) Release(ctx context.Context, receipt string) error {
	return p.subscriber.ModifyAckDeadline(ctx, &pubsubpb.ModifyAckDeadlineRequest{
		Subscription:       p.subscription,
		AckIds:             []string{receipt},
		AckDeadlineSeconds: 0,
	})
}

// Close releases both clients
func (p *PubSub) Close() error {
	p.topic.Stop()
	if p.subscriber != nil {
		if err := p.subscriber.Close(); err != nil {
			return err
		}
	}
	return p.publisher.Close()
}
