package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/challenge-forums/processor/internal/contracts"
)

var (
	ErrUnrecognizedTopic    = errors.New("unrecognized topic")
	ErrInvalidPayload       = errors.New("invalid event payload")
	ErrUnsupportedEventType = errors.New("unsupported event type")
)

// Notification event sub-types that map to membership actions. Anything else
// on the notifications topic is skipped by the caller.
const (
	eventUserRegistration   = "USER_REGISTRATION"
	eventUserUnregistration = "USER_UNREGISTRATION"
)

// Topics tells the normalizer which configured topic carries which shape.
type Topics struct {
	ChallengeCreate string
	ChallengeUpdate string
	ResourceCreate  string
	ResourceDelete  string
	Notifications   string
}

// Record is the tagged result of normalization: exactly one field is set.
type Record struct {
	Challenge  *contracts.Challenge
	UserAction *contracts.UserAction
}

type Normalizer struct {
	Topics  Topics
	RootURL string
}

// Normalize converts a raw event plus its source topic into a canonical
// record. Unknown topics fail with ErrUnrecognizedTopic; notification events
// of irrelevant sub-types fail with ErrUnsupportedEventType so callers can
// skip them without treating the item as broken.
func (n *Normalizer) Normalize(topic string, payload []byte) (Record, error) {
	switch topic {
	case n.Topics.ChallengeCreate, n.Topics.ChallengeUpdate:
		ch, err := n.challenge(payload)
		if err != nil {
			return Record{}, err
		}
		return Record{Challenge: ch}, nil
	case n.Topics.ResourceCreate:
		act, err := resourceAction(payload, contracts.ActionInvite)
		if err != nil {
			return Record{}, err
		}
		return Record{UserAction: act}, nil
	case n.Topics.ResourceDelete:
		act, err := resourceAction(payload, contracts.ActionKick)
		if err != nil {
			return Record{}, err
		}
		return Record{UserAction: act}, nil
	case n.Topics.Notifications:
		act, err := notificationAction(payload)
		if err != nil {
			return Record{}, err
		}
		return Record{UserAction: act}, nil
	default:
		return Record{}, fmt.Errorf("%w: %s", ErrUnrecognizedTopic, topic)
	}
}

type challengeEnvelope struct {
	contracts.Challenge
	Legacy struct {
		SelfService bool `json:"selfService"`
	} `json:"legacy"`
}

func (n *Normalizer) challenge(payload []byte) (*contracts.Challenge, error) {
	var env challengeEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if env.ID == "" {
		return nil, fmt.Errorf("%w: challenge event without id", ErrInvalidPayload)
	}
	ch := env.Challenge
	ch.SelfService = ch.SelfService || env.Legacy.SelfService
	ch.URL = fmt.Sprintf("%s/challenges/%s", n.RootURL, ch.ID)
	if err := ChainDeadlines(ch.StartDate, ch.Phases); err != nil {
		return nil, err
	}
	return &ch, nil
}

// ChainDeadlines computes each phase deadline as the anchor plus the phase
// duration in hours: the challenge start date for phases without a
// predecessor, the predecessor's deadline otherwise. Predecessors are usually
// declared first, so the common case resolves in one forward pass; otherwise
// resolution iterates to a fixed point and fails on unresolvable references.
func ChainDeadlines(start time.Time, phases []contracts.Phase) error {
	if len(phases) == 0 {
		return nil
	}
	deadlines := make(map[string]time.Time, len(phases))
	remaining := len(phases)
	for remaining > 0 {
		progress := false
		for i := range phases {
			if _, done := deadlines[phases[i].ID]; done {
				continue
			}
			anchor := start
			if pred := phases[i].Predecessor; pred != "" {
				d, ok := deadlines[pred]
				if !ok {
					continue
				}
				anchor = d
			}
			deadline := anchor.Add(time.Duration(phases[i].Duration) * time.Hour)
			deadlines[phases[i].ID] = deadline
			phases[i].Deadline = deadline
			remaining--
			progress = true
		}
		if !progress {
			return fmt.Errorf("%w: unresolvable phase predecessor chain", ErrInvalidPayload)
		}
	}
	return nil
}

type resourceEnvelope struct {
	ChallengeID  string      `json:"challengeId"`
	MemberID     json.Number `json:"memberId"`
	MemberHandle string      `json:"memberHandle"`
}

func resourceAction(payload []byte, action contracts.Action) (*contracts.UserAction, error) {
	var env resourceEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if env.ChallengeID == "" {
		return nil, fmt.Errorf("%w: resource event without challengeId", ErrInvalidPayload)
	}
	return &contracts.UserAction{
		ChallengeID: env.ChallengeID,
		UserID:      env.MemberID.String(),
		Handle:      env.MemberHandle,
		Action:      action,
	}, nil
}

type notificationDetail struct {
	ChallengeID string      `json:"challengeId"`
	UserID      json.Number `json:"userId"`
}

type notificationEnvelope struct {
	Type   string              `json:"type"`
	Detail *notificationDetail `json:"detail"`
	Data   *notificationDetail `json:"data"`
}

func notificationAction(payload []byte) (*contracts.UserAction, error) {
	var env notificationEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var action contracts.Action
	switch env.Type {
	case eventUserRegistration:
		action = contracts.ActionInvite
	case eventUserUnregistration:
		action = contracts.ActionKick
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEventType, env.Type)
	}

	// Some sub-types nest the event under "detail", others under "data".
	detail := env.Detail
	if detail == nil || detail.ChallengeID == "" {
		detail = env.Data
	}
	if detail == nil || detail.ChallengeID == "" {
		return nil, fmt.Errorf("%w: notification event without challengeId", ErrInvalidPayload)
	}
	return &contracts.UserAction{
		ChallengeID: detail.ChallengeID,
		UserID:      detail.UserID.String(),
		Action:      action,
	}, nil
}
