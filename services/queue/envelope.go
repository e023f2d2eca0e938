package queue

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/warsha/core/user"
)

// KindMetadataKey carries the job kind name in message metadata.
const KindMetadataKey = "kind"

// Envelope is the payload of a queued job: everything a worker needs to rebuild it.
type Envelope struct {
	Kind string    `json:"kind"`
	User user.User `json:"user"`
	IDs  []string  `json:"ids"`
}

// Message encodes env into a new message with a random UUID.
func (env Envelope) Message() (*message.Message, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(err, "encoding envelope")
	}
	msg := message.NewMessage(uuid.New().String(), payload)
	msg.Metadata.Set(KindMetadataKey, env.Kind)
	return msg, nil
}

func DecodeEnvelope(msg *message.Message) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return Envelope{}, errors.Wrapf(err, "decoding envelope of message %s", msg.UUID)
	}
	if env.Kind == "" {
		return Envelope{}, errors.Errorf("message %s has no job kind", msg.UUID)
	}
	return env, nil
}
