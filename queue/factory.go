package queue

import (
	"context"
	"fmt"

	"github.com/kapicorp/webhook-relay/config"
)

// New selects and builds the configured queue backend. The variant is fixed
// for the lifetime of the process; there is no per-message dispatch.
func New(ctx context.Context, cfg config.QueueSettings) (Backend, error) {
	switch cfg.Type {
	case config.QueueGCPPubSub:
		return NewPubSub(ctx, cfg.GCP)
	case config.QueueAWSSQS:
		return NewSQS(ctx, cfg.AWS)
	case config.QueueRedisStreams:
		return NewRedisStreams(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported queue type: %s", cfg.Type)
	}
}
