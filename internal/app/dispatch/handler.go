// Package dispatch routes event batches to the enabled sync services,
// isolating every per-item and per-service failure so the consumer keeps
// draining its topics no matter what a single event does.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/challenge-forums/processor/internal/contracts"
	"github.com/challenge-forums/processor/internal/normalize"
	"github.com/challenge-forums/processor/internal/platform/metrics"
	"github.com/mborders/logmatic"
	"github.com/nats-io/nuid"
)

var itemsTotal = metrics.NewCounterVec(metrics.Opts{
	Name: "processor_items_total",
	Help: "Processed event items by topic, service and result.",
}, []string{"topic", "service", "result"})

func init() {
	metrics.Default.MustRegister(itemsTotal)
}

// Syncer is one enabled platform sync service.
type Syncer interface {
	Name() string
	SyncChallenge(ctx context.Context, ch contracts.Challenge) error
	SyncMember(ctx context.Context, act contracts.UserAction) error
}

// Resolver enriches user actions from the upstream API before fan-out.
type Resolver interface {
	ResolveUserAction(ctx context.Context, act *contracts.UserAction) error
}

// Recorder persists outcomes; it is optional and best-effort.
type Recorder interface {
	Record(ctx context.Context, outcome Outcome) error
}

// Outcome is the explicit per-item, per-service result, collected so callers
// and tests can see what happened without scraping logs.
type Outcome struct {
	ID          string
	Topic       string
	Service     string
	Kind        string
	ChallengeID string
	Skipped     bool
	Err         error
	At          time.Time
}

type Handler struct {
	Normalizer *normalize.Normalizer
	Services   []Syncer
	Resolver   Resolver
	Audit      Recorder
	Log        *logmatic.Logger

	Now   func() time.Time
	NewID func() string
}

func NewHandler(n *normalize.Normalizer, services []Syncer, log *logmatic.Logger) *Handler {
	return &Handler{
		Normalizer: n,
		Services:   services,
		Log:        log,
		Now:        func() time.Time { return time.Now().UTC() },
		NewID:      nuid.Next,
	}
}

// Handle processes one delivered batch in order. Nothing escapes this
// boundary: every failure is logged, recorded and swallowed.
func (h *Handler) Handle(ctx context.Context, topic string, batch [][]byte) []Outcome {
	if len(h.Services) == 0 {
		h.Log.Warn("no enabled services to handle %d message(s) from %s", len(batch), topic)
		return nil
	}

	var outcomes []Outcome
	for _, payload := range batch {
		record, err := h.Normalizer.Normalize(topic, payload)
		if err != nil {
			outcomes = append(outcomes, h.skip(ctx, topic, err))
			continue
		}
		switch {
		case record.Challenge != nil:
			outcomes = append(outcomes, h.fanOutChallenge(ctx, topic, *record.Challenge)...)
		case record.UserAction != nil:
			outcomes = append(outcomes, h.fanOutMember(ctx, topic, *record.UserAction)...)
		}
	}
	return outcomes
}

func (h *Handler) skip(ctx context.Context, topic string, err error) Outcome {
	if errors.Is(err, normalize.ErrUnsupportedEventType) {
		h.Log.Debug("skipping item from %s: %v", topic, err)
	} else {
		h.Log.Warn("skipping item from %s: %v", topic, err)
	}
	itemsTotal.WithLabelValues(topic, "", "skipped").Inc()
	return h.record(ctx, Outcome{Topic: topic, Skipped: true, Err: err})
}

func (h *Handler) fanOutChallenge(ctx context.Context, topic string, ch contracts.Challenge) []Outcome {
	outcomes := make([]Outcome, 0, len(h.Services))
	for _, service := range h.Services {
		err := service.SyncChallenge(ctx, ch)
		outcomes = append(outcomes, h.serviceOutcome(ctx, topic, service.Name(), "challenge", ch.ID, err))
	}
	return outcomes
}

func (h *Handler) fanOutMember(ctx context.Context, topic string, act contracts.UserAction) []Outcome {
	if h.Resolver != nil {
		// Resolution failures are logged but do not block dispatch; a
		// service may still act on what the event carried.
		if err := h.Resolver.ResolveUserAction(ctx, &act); err != nil {
			h.Log.Error("resolve user action for challenge %s: %v", act.ChallengeID, err)
		}
	}
	outcomes := make([]Outcome, 0, len(h.Services))
	for _, service := range h.Services {
		err := service.SyncMember(ctx, act)
		outcomes = append(outcomes, h.serviceOutcome(ctx, topic, service.Name(), "member", act.ChallengeID, err))
	}
	return outcomes
}

func (h *Handler) serviceOutcome(ctx context.Context, topic, service, kind, challengeID string, err error) Outcome {
	result := "ok"
	if err != nil {
		result = "error"
		h.Log.Error("%s sync failed for challenge %s from %s: %v", service, challengeID, topic, err)
	}
	itemsTotal.WithLabelValues(topic, service, result).Inc()
	return h.record(ctx, Outcome{
		Topic:       topic,
		Service:     service,
		Kind:        kind,
		ChallengeID: challengeID,
		Err:         err,
	})
}

func (h *Handler) record(ctx context.Context, outcome Outcome) Outcome {
	outcome.ID = h.NewID()
	outcome.At = h.Now()
	if h.Audit != nil {
		if err := h.Audit.Record(ctx, outcome); err != nil {
			h.Log.Warn("record outcome %s: %v", outcome.ID, err)
		}
	}
	return outcome
}
