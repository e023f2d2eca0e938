package queue

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/warsha/core"
	"github.com/trezcool/warsha/core/dispatch"
)

const handlerName = "warsha-jobs"

// PoisonTopic receives the messages that still fail after every retry.
func PoisonTopic(topic string) string {
	return topic + "-poison"
}

// unprocessable marks a message that no retry can fix.
type unprocessable struct {
	error
}

func (u unprocessable) Unwrap() error { return u.error }

func isUnprocessable(err error) bool {
	var u unprocessable
	return errors.As(err, &u)
}

// Worker consumes queued jobs and runs them with the JobKinds of its registry.
type Worker struct {
	router   *message.Router
	registry *dispatch.Registry
	metrics  *Metrics
	log      core.Logger
}

// NewWorker subscribes to conf.Topic on backend.
// Failed jobs are retried conf.MaxRetries times with exponential backoff, then moved to the poison topic.
// Malformed messages and unknown kinds go to the poison topic without retry.
func NewWorker(backend *Backend, registry *dispatch.Registry, conf core.QueueConfig, metrics *Metrics, logger core.Logger, wmLogger watermill.LoggerAdapter) (*Worker, error) {
	if backend.Subscriber == nil {
		return nil, errors.New("queue backend has no subscriber")
	}
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 30 * time.Second}, wmLogger)
	if err != nil {
		return nil, errors.Wrap(err, "creating router")
	}

	poison, err := middleware.PoisonQueue(backend.Publisher, PoisonTopic(conf.Topic))
	if err != nil {
		return nil, errors.Wrap(err, "creating poison queue middleware")
	}
	retry := middleware.Retry{
		MaxRetries:      conf.MaxRetries,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     time.Minute,
		Multiplier:      2,
		ShouldRetry:     func(p middleware.RetryParams) bool { return !isUnprocessable(p.Err) },
		Logger:          wmLogger,
	}
	// outer to inner
	router.AddMiddleware(poison, middleware.Recoverer, retry.Middleware)

	w := &Worker{router: router, registry: registry, metrics: metrics, log: logger}
	router.AddConsumerHandler(handlerName, conf.Topic, backend.Subscriber, w.handle)
	return w, nil
}

func (w *Worker) handle(msg *message.Message) error {
	env, err := DecodeEnvelope(msg)
	if err != nil {
		w.log.Error("poisoning malformed job", err, map[string]interface{}{"message_id": msg.UUID})
		return unprocessable{err}
	}
	kind, err := w.registry.Lookup(env.Kind)
	if err != nil {
		w.log.Error("poisoning job of unknown kind", err, map[string]interface{}{"message_id": msg.UUID})
		return unprocessable{err}
	}

	if err = kind.New(env.User, env.IDs).Handle(msg.Context()); err != nil {
		w.count(env.Kind, StatusFailed)
		return errors.Wrapf(err, "running %s for user %s", env.Kind, env.User.ID)
	}
	w.count(env.Kind, StatusOK)
	w.log.Debug("job done", map[string]interface{}{"kind": env.Kind, "user_id": env.User.ID, "ids": len(env.IDs)})
	return nil
}

func (w *Worker) count(kind, status string) {
	if w.metrics != nil {
		w.metrics.Processed.WithLabelValues(kind, status).Inc()
	}
}

// Run consumes jobs until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	return w.router.Run(ctx)
}

// Running is closed once the worker consumes jobs.
func (w *Worker) Running() chan struct{} {
	return w.router.Running()
}

func (w *Worker) Close() error {
	return w.router.Close()
}
