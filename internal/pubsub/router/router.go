package router

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/gepvi/gepvi-users/internal/config"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/gepvi/gepvi-users/internal/pubsub"
	"github.com/gepvi/gepvi-users/internal/sentry"
)

// Router manages all message routing
type Router struct {
	router *message.Router
	logger *logger.Logger
	sentry *sentry.Service
}

// NewRouter creates a message router whose handlers are retried with the
// storage backoff settings. Messages that still fail are published to a dead
// letter topic on the same bus instead of being redelivered forever.
func NewRouter(cfg *config.Configuration, bus pubsub.PubSub, logger *logger.Logger, sentry *sentry.Service) (*Router, error) {
	wmLogger := pubsub.NewLoggerAdapter(logger)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, err
	}

	poisonQueue, err := middleware.PoisonQueue(pubsub.AsWatermillPublisher(bus), DeadLetterTopic(cfg.Audit.Topic))
	if err != nil {
		return nil, err
	}

	retry := cfg.Postgres.Retry
	router.AddMiddleware(
		poisonQueue,
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:          int(retry.MaxRetries),
			InitialInterval:     retry.InitialInterval,
			MaxInterval:         retry.MaxInterval,
			MaxElapsedTime:      retry.MaxElapsedTime,
			Multiplier:          2,
			RandomizationFactor: 0.5,
			Logger:              wmLogger,
		}.Middleware,
	)

	return &Router{
		router: router,
		logger: logger,
		sentry: sentry,
	}, nil
}

// DeadLetterTopic names the topic receiving messages whose handler kept failing
func DeadLetterTopic(topic string) string {
	return topic + "_dlq"
}

// AddNoPublishHandler adds a handler that doesn't publish messages
func (r *Router) AddNoPublishHandler(
	handlerName string,
	topicName string,
	subscriber message.Subscriber,
	handlerFunc func(msg *message.Message) error,
) {
	r.router.AddNoPublisherHandler(
		handlerName,
		topicName,
		subscriber,
		func(msg *message.Message) error {
			err := handlerFunc(msg)
			if err != nil {
				r.sentry.CaptureException(err)
				r.logger.Errorw("handler failed",
					"handler", handlerName,
					"error", err,
					"correlation_id", middleware.MessageCorrelationID(msg),
					"message_uuid", msg.UUID,
				)
			}
			return err
		},
	)
}

// Run blocks until ctx is cancelled or Close is called
func (r *Router) Run(ctx context.Context) error {
	r.logger.Info("starting message router")
	return r.router.Run(ctx)
}

// Running is closed once all handlers are subscribed
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

// Close gracefully shuts down the router
func (r *Router) Close() error {
	r.logger.Info("closing message router")
	return r.router.Close()
}
