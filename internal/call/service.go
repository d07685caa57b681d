package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mbd888/callgate/internal/insight"
	"github.com/mbd888/callgate/internal/logging"
	"github.com/mbd888/callgate/internal/metrics"
	"github.com/mbd888/callgate/internal/policy"
	"github.com/mbd888/callgate/internal/recording"
	"github.com/mbd888/callgate/internal/session"
	"github.com/mbd888/callgate/internal/speech"
	"github.com/mbd888/callgate/internal/traces"
)

// Scorer looks up the fraud-risk score for a caller.
type Scorer interface {
	Assess(ctx context.Context, phoneNumber string) (*insight.Assessment, error)
}

// Fetcher retrieves and persists a recording by reference.
type Fetcher interface {
	Fetch(ctx context.Context, sessionID, ref string) (*recording.Artifact, error)
}

// EventEmitter receives screening decisions for the live operator feed.
type EventEmitter interface {
	EmitDecision(sessionID, from, decision string, score float64)
}

// Service is the call-event state machine. All state lives in the injected
// stores; the service itself is stateless and safe for concurrent use.
type Service struct {
	sessions  session.Store
	policy    *policy.Policy
	scorer    Scorer
	catalog   *speech.Catalog
	relay     Fetcher
	artifacts *recording.ArtifactStore
	appURL    string
	logger    *slog.Logger
	events    EventEmitter
}

// NewService wires the state machine's collaborators.
func NewService(
	sessions session.Store,
	pol *policy.Policy,
	scorer Scorer,
	catalog *speech.Catalog,
	relay Fetcher,
	artifacts *recording.ArtifactStore,
	appURL string,
	logger *slog.Logger,
) *Service {
	return &Service{
		sessions:  sessions,
		policy:    pol,
		scorer:    scorer,
		catalog:   catalog,
		relay:     relay,
		artifacts: artifacts,
		appURL:    appURL,
		logger:    logger,
	}
}

// WithEvents adds a live feed emitter.
func (s *Service) WithEvents(events EventEmitter) *Service {
	s.events = events
	return s
}

// OnCallStart screens an inbound call and returns the initial instruction
// sequence. A risk-lookup failure never admits by accident and never
// propagates as an unhandled error: the caller hears the rejection prompt
// and the failure is logged and counted (fail-closed).
func (s *Service) OnCallStart(ctx context.Context, start CallStart) ([]Action, error) {
	if start.UUID == "" || start.From == "" {
		return nil, fmt.Errorf("%w: uuid and from are required", ErrInvalidCallStart)
	}

	ctx = logging.WithSessionID(ctx, start.UUID)
	ctx, span := traces.StartSpan(ctx, "call.start", traces.SessionID(start.UUID))
	defer span.End()

	err := s.sessions.Create(ctx, &session.Session{
		ID:     start.UUID,
		Region: start.RegionURL,
	})
	switch {
	case err == nil:
		metrics.ActiveSessions.Inc()
	case errors.Is(err, session.ErrSessionExists):
		// Webhook redelivery for a call we already know; re-answer it.
		logging.L(ctx).Warn("call-start redelivered for existing session")
	default:
		return nil, fmt.Errorf("call: create session: %w", err)
	}

	assessment, err := s.scorer.Assess(ctx, start.From)
	if err != nil {
		// Fail closed: a caller we cannot score is not admitted.
		logging.L(ctx).Error("risk lookup failed, rejecting call", "error", err)
		return s.finishStart(ctx, start, DecisionFailedClosed, 0), nil
	}

	logging.L(ctx).Info("caller scored",
		"score", assessment.Score,
		"level", s.policy.Level(),
		"cutoff", s.policy.Cutoff(),
	)
	span.SetAttributes(traces.RiskScore(assessment.Score))

	decision := DecisionRejected
	if s.policy.Admits(assessment.Score) {
		decision = DecisionAdmitted
	}
	return s.finishStart(ctx, start, decision, assessment.Score), nil
}

// finishStart records the decision and builds the instruction sequence.
func (s *Service) finishStart(ctx context.Context, start CallStart, decision string, score float64) []Action {
	metrics.CallsTotal.WithLabelValues(decision).Inc()
	if s.events != nil {
		s.events.EmitDecision(start.UUID, start.From, decision, score)
	}

	if decision != DecisionAdmitted {
		if err := s.sessions.SetState(ctx, start.UUID, session.StateRejected); err != nil {
			logging.L(ctx).Warn("failed to mark session rejected", "error", err)
		}
		return []Action{
			talk(s.catalog.MustPrompt(speech.Greeting)),
			talk(s.catalog.MustPrompt(speech.Rejection)),
		}
	}

	if err := s.sessions.SetState(ctx, start.UUID, session.StateRecording); err != nil {
		logging.L(ctx).Warn("failed to mark session recording", "error", err)
	}

	eventURL := s.appURL + "/onEvent?session-id=" + start.UUID
	return []Action{
		talk(s.catalog.MustPrompt(speech.Greeting)),
		talk(s.catalog.MustPrompt(speech.Success)),
		record(eventURL),
		talk(s.catalog.MustPrompt(speech.Repeat)),
		inputDTMF(),
	}
}

// OnCallEvent dispatches a mid-call event by shape. It returns a nil action
// list when the event only needs a bare acknowledgment. Unknown sessions and
// relay failures are acknowledged rather than errored: the platform retries
// error statuses, and a retry cannot succeed for either case.
func (s *Service) OnCallEvent(ctx context.Context, sessionID string, ev Event) ([]Action, error) {
	ctx = logging.WithSessionID(ctx, sessionID)
	ctx, span := traces.StartSpan(ctx, "call.event", traces.SessionID(sessionID))
	defer span.End()

	switch {
	case ev.RecordingURL != nil:
		return nil, s.onRecordingReady(ctx, sessionID, *ev.RecordingURL)
	case ev.DTMF != nil:
		return s.onKeypadInput(ctx, sessionID, *ev.DTMF), nil
	default:
		logging.L(ctx).Info("ignoring unrecognized call event", "payload", string(ev.Raw))
		return nil, nil
	}
}

func (s *Service) onRecordingReady(ctx context.Context, sessionID, ref string) error {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		// No matching session (evicted, or a stray delivery). Acknowledge
		// without fetching; there is no call context to attach the audio to.
		logging.L(ctx).Warn("recording-ready for unknown session", "error", err)
		return nil
	}

	if _, err := s.relay.Fetch(ctx, sessionID, ref); err != nil {
		// Already logged and counted by the relay. The platform cannot help
		// by retrying the webhook, so acknowledge.
		return nil
	}

	if err := s.sessions.SetState(ctx, sessionID, session.StateRelayed); err != nil {
		logging.L(ctx).Warn("failed to mark session relayed", "error", err)
	}
	return nil
}

func (s *Service) onKeypadInput(ctx context.Context, sessionID, digits string) []Action {
	logging.L(ctx).Info("keypad input received", "dtmf", digits)

	// Prefer this call's own recording; fall back to the shared latest slot
	// for compatibility with the single playback URL.
	if _, err := s.artifacts.Get(sessionID); err == nil {
		metrics.PlaybacksTotal.Inc()
		return []Action{stream(s.appURL + "/recordings/" + sessionID + ".ogg")}
	}
	if _, err := s.artifacts.Latest(); err == nil {
		metrics.PlaybacksTotal.Inc()
		return []Action{stream(s.appURL + "/download.ogg")}
	}

	logging.L(ctx).Warn("keypad input before any recording exists")
	return []Action{talk(noPlaybackText)}
}
