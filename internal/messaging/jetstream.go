package messaging

import (
	"errors"

	"github.com/nats-io/nats.go"
)

const challengeStream = "CHALLENGE_EVENTS"

// EnsureStream creates (or validates) the stream holding every challenge
// lifecycle and membership topic this processor consumes. Delivery is
// at-least-once and partition-ordered per subject.
func EnsureStream(js nats.JetStreamContext, subjects []string) error {
	if len(subjects) == 0 {
		return errors.New("no subjects configured for challenge stream")
	}
	if _, err := js.StreamInfo(challengeStream); err != nil {
		if errors.Is(err, nats.ErrStreamNotFound) {
			_, addErr := js.AddStream(&nats.StreamConfig{
				Name:      challengeStream,
				Subjects:  subjects,
				Retention: nats.LimitsPolicy,
				Storage:   nats.FileStorage,
				Replicas:  1,
			})
			return addErr
		}
		return err
	}
	return nil
}
