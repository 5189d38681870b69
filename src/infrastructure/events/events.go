// Package events publishes pipeline completions to a message broker and consumes
// them in the worker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"algomind/src/core/reasoning"
	"algomind/src/log"
)

const TopicCompleted = "pipeline.completed"

const (
	BackendNone      = "none"
	BackendGoChannel = "gochannel"
	BackendAMQP      = "amqp"
)

// CompletionMessage is the payload of a pipeline.completed message
type CompletionMessage struct {
	RequestID  string `json:"request_id"`
	SessionID  string `json:"session_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer,omitempty"`
	Intent     string `json:"intent"`
	State      string `json:"state"`
	Steps      int    `json:"steps"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

func NewCompletionMessage(c reasoning.Completion) CompletionMessage {
	msg := CompletionMessage{
		RequestID:  c.ResponseID,
		SessionID:  c.SessionID,
		Question:   c.Question,
		Answer:     c.Answer,
		Intent:     string(c.Intent),
		State:      string(c.State),
		Steps:      c.Steps,
		DurationMs: c.Duration.Milliseconds(),
	}
	if c.Err != nil {
		msg.Error = c.Err.Error()
	}
	return msg
}

// PubSub bundles both sides of a broker connection
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

func (ps *PubSub) Close() error {
	var firstErr error
	if ps.Publisher != nil {
		firstErr = ps.Publisher.Close()
	}
	// the in-process channel is both publisher and subscriber
	if ps.Subscriber != nil && any(ps.Subscriber) != any(ps.Publisher) {
		if err := ps.Subscriber.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Open connects to the configured backend. BackendNone yields nil.
func Open(backend, amqpURL string, logger watermill.LoggerAdapter) (*PubSub, error) {
	switch backend {
	case "", BackendNone:
		return nil, nil
	case BackendGoChannel:
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		return &PubSub{Publisher: ch, Subscriber: ch}, nil
	case BackendAMQP:
		cfg := amqp.NewDurableQueueConfig(amqpURL)
		pub, err := amqp.NewPublisher(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create amqp publisher: %w", err)
		}
		sub, err := amqp.NewSubscriber(cfg, logger)
		if err != nil {
			pub.Close()
			return nil, fmt.Errorf("failed to create amqp subscriber: %w", err)
		}
		return &PubSub{Publisher: pub, Subscriber: sub}, nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", backend)
	}
}

// Publisher reports every finished pipeline run on TopicCompleted
type Publisher struct {
	pub   message.Publisher
	topic string
}

var _ reasoning.Observer = (*Publisher)(nil)

func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{pub: pub, topic: TopicCompleted}
}

// PipelineCompleted publishes c. Failures are logged and dropped.
func (p *Publisher) PipelineCompleted(ctx context.Context, c reasoning.Completion) {
	payload, err := json.Marshal(NewCompletionMessage(c))
	if err != nil {
		log.Error(err, "failed to marshal completion", "request_id", c.ResponseID)
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("request_id", c.ResponseID)
	if err := p.pub.Publish(p.topic, msg); err != nil {
		log.Error(err, "failed to publish completion", "request_id", c.ResponseID, "topic", p.topic)
	}
}

// CompletionHandler processes one decoded completion
type CompletionHandler func(ctx context.Context, c CompletionMessage) error

// NewRouter wires handle to TopicCompleted with the worker's middleware stack
func NewRouter(sub message.Subscriber, logger watermill.LoggerAdapter, handle CompletionHandler) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, err
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second,
			Logger:          logger,
		}.Middleware,
	)

	router.AddNoPublisherHandler(
		"completion_consumer",
		TopicCompleted,
		sub,
		func(msg *message.Message) error {
			var c CompletionMessage
			if err := json.Unmarshal(msg.Payload, &c); err != nil {
				// a malformed payload will never succeed; drop it
				log.Error(err, "dropping malformed completion", "message_uuid", msg.UUID)
				return nil
			}
			return handle(msg.Context(), c)
		},
	)
	return router, nil
}
