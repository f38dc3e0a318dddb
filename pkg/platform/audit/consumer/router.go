package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"dealflow/internal/platform/kafka/consumer"
)

// TopicHandler handles messages from one topic.
type TopicHandler interface {
	Handle(ctx context.Context, msg *consumer.Message) error
}

// Router fans consumed audit records out to per-topic handlers. Records with
// no value are tombstones from outbox compaction and are skipped.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]TopicHandler
	fallback TopicHandler
	logger   *slog.Logger
}

// NewRouter builds a router. fallback may be nil, in which case records on
// unregistered topics are logged and committed.
func NewRouter(logger *slog.Logger, fallback TopicHandler) *Router {
	return &Router{
		handlers: make(map[string]TopicHandler),
		fallback: fallback,
		logger:   logger,
	}
}

func (r *Router) Register(topic string, handler TopicHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[topic] = handler
}

// Topics returns the registered topics in sorted order, ready for the
// consumer group subscription.
func (r *Router) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topics := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		topics = append(topics, t)
	}
	slices.Sort(topics)
	return topics
}

func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	if len(msg.Value) == 0 {
		return nil
	}

	r.mu.RLock()
	handler, ok := r.handlers[msg.Topic]
	r.mu.RUnlock()
	if !ok {
		handler = r.fallback
	}
	if handler == nil {
		r.logger.WarnContext(ctx, "no handler for audit topic",
			"topic", msg.Topic,
			"deal_id", string(msg.Key),
		)
		return nil
	}

	if err := handler.Handle(ctx, msg); err != nil {
		return fmt.Errorf("%s[%d]@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
	}
	return nil
}
