package queue

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"

	"github.com/trezcool/warsha/core/dispatch"
	"github.com/trezcool/warsha/core/user"
)

// Executor enqueues Jobs instead of running them. Execute returns once the message is accepted by the
// Pub/Sub; the Job itself runs later on a Worker.
type Executor struct {
	pub     message.Publisher
	topic   string
	breaker *gobreaker.CircuitBreaker[struct{}]
	metrics *Metrics
}

var _ dispatch.Executor = (*Executor)(nil)

// NewExecutor publishes to topic. The circuit opens after 5 consecutive publish failures.
func NewExecutor(pub message.Publisher, topic string, metrics *Metrics) *Executor {
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "queue-publish",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Executor{pub: pub, topic: topic, breaker: breaker, metrics: metrics}
}

func (e *Executor) Execute(ctx context.Context, kind dispatch.JobKind, usr user.User, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := Envelope{Kind: kind.Name(), User: usr, IDs: keys}.Message()
	if err != nil {
		return err
	}
	msg.SetContext(ctx)

	_, err = e.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, e.pub.Publish(e.topic, msg)
	})
	if err != nil {
		return errors.Wrapf(err, "publishing %s", kind.Name())
	}
	if e.metrics != nil {
		e.metrics.Enqueued.WithLabelValues(kind.Name()).Inc()
	}
	return nil
}
