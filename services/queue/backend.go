// Package queue runs dispatched jobs asynchronously through a watermill Pub/Sub.
package queue

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/trezcool/warsha/core"
)

// Backend pairs the publisher and subscriber of one Pub/Sub.
type Backend struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes both sides of the backend.
func (b *Backend) Close() error {
	pubErr := b.Publisher.Close()
	if b.Subscriber != nil {
		if err := b.Subscriber.Close(); err != nil {
			return errors.Wrap(err, "closing subscriber")
		}
	}
	return errors.Wrap(pubErr, "closing publisher")
}

// NewMemory returns an in-process backend. Messages published before a worker subscribes are kept.
func NewMemory(logger watermill.LoggerAdapter) *Backend {
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
		Persistent:          true,
	}, logger)
	return &Backend{Publisher: pubSub, Subscriber: pubSub}
}

func natsOptions(name string, logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name(name),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
}

// NewNATS returns a JetStream backend; streams are provisioned on first use.
// withSubscriber is false for processes that only enqueue.
func NewNATS(conf core.QueueConfig, logger watermill.LoggerAdapter, withSubscriber bool) (*Backend, error) {
	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         conf.URL,
		NatsOptions: natsOptions("warsha-publisher", logger),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "creating NATS publisher")
	}
	b := &Backend{Publisher: pub}
	if !withSubscriber {
		return b, nil
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              conf.URL,
		QueueGroupPrefix: "warsha-workers",
		SubscribersCount: 1,
		AckWaitTimeout:   time.Minute,
		CloseTimeout:     30 * time.Second,
		NatsOptions:      natsOptions("warsha-worker", logger),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			DurablePrefix: "warsha",
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.DeliverAll(),
				natsgo.AckExplicit(),
			},
		},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, errors.Wrap(err, "creating NATS subscriber")
	}
	b.Subscriber = sub
	return b, nil
}

// Open picks the backend named by conf.Backend.
func Open(conf core.QueueConfig, logger watermill.LoggerAdapter, withSubscriber bool) (*Backend, error) {
	switch conf.Backend {
	case "", "memory":
		return NewMemory(logger), nil
	case "nats":
		return NewNATS(conf, logger, withSubscriber)
	}
	return nil, errors.Errorf("unknown queue backend %q", conf.Backend)
}
