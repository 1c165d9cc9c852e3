package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/steven-d-pennington/ClearSide-sub001/internal/board"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/session"
)

// Fatal initialization errors. Everything else in the main sequence is
// either a recoverable pause (truncation) or best-effort enrichment.
var (
	ErrSessionNotFound          = errors.New("session not found")
	ErrInsufficientParticipants = errors.New("at least 2 participants are required")
)

// GenRequest asks a generation backend for one utterance.
type GenRequest struct {
	Kind       session.Segment
	Transcript []session.Utterance
	// Directives are extra steering lines (address a speaker directly,
	// announce the wrap-up, and so on).
	Directives []string
}

// GenResult is the tagged outcome of a generation call. Truncated carries
// whatever partial content the backend produced; a hard failure is the
// error return instead.
type GenResult struct {
	Content   string
	Truncated bool
}

// Generator is one speaker's content-generation capability.
type Generator interface {
	Generate(ctx context.Context, req GenRequest) (GenResult, error)
	AddContext(text string)
	AddOtherSpeakerMessage(speakerName, text string)
	EvaluateSpeakingDesire(ctx context.Context, transcript []session.Utterance, currentSpeakerName string) (*board.SpeakerSignal, error)
}

type MemoryExtraction struct {
	IsSubstantive bool     `json:"is_substantive"`
	Topics        []string `json:"topics"`
}

// Memory is the optional long-term memory collaborator.
type Memory interface {
	Enabled() bool
	// ContextFor returns seed context for a speaker, empty when none exists.
	ContextFor(speakerID string) (string, error)
	ExtractFromUtterance(ctx context.Context, speakerName, text string) (MemoryExtraction, error)
	ProcessSessionMemory(ctx context.Context, extractions []MemoryExtraction, agreements []board.AgreementEntry, disagreements []board.DisagreementEntry) error
}

// EventSink receives fire-and-forget observer events; implementations must
// never block the caller.
type EventSink interface {
	Broadcast(sessionID, eventType string, payload any)
}

// Event types pushed to the sink.
const (
	EventSessionStarted   = "session_started"
	EventSessionResumed   = "session_resumed"
	EventUtteranceCreated = "utterance_created"
	EventSpeakerDecision  = "speaker_decision"
	EventTruncation       = "generation_truncated"
	EventSessionPaused    = "session_paused"
	EventSessionResumedOp = "session_unpaused"
	EventSessionCompleted = "session_completed"
	EventSessionFailed    = "session_failed"
)

type SessionStore interface {
	Find(ctx context.Context, id string) (session.Session, error)
	SetStatus(ctx context.Context, id string, status session.Status) error
	SetError(ctx context.Context, id string, msg string) error
	Complete(ctx context.Context, id string, d time.Duration) error
}

type ParticipantStore interface {
	BySession(ctx context.Context, sessionID string) ([]session.Participant, error)
}

type PersonaStore interface {
	Find(ctx context.Context, id string) (session.Persona, error)
}

// UtteranceStore is append-only: utterances are immutable once created.
type UtteranceStore interface {
	Append(ctx context.Context, u session.Utterance) error
	BySession(ctx context.Context, sessionID string) ([]session.Utterance, error)
	Recent(ctx context.Context, sessionID string, n int) ([]session.Utterance, error)
}

// BoardStore persists and reloads derived board state.
type BoardStore interface {
	board.Store
	Load(ctx context.Context, sessionID string) (board.State, bool, error)
}

// GeneratorFactory builds the generation capability for one speaker. The
// host is requested with a zero-value participant and HostID.
type GeneratorFactory func(speakerID string, p session.Participant, persona session.Persona) Generator

type Deps struct {
	Sessions     SessionStore
	Participants ParticipantStore
	Personas     PersonaStore
	Utterances   UtteranceStore
	Board        BoardStore
	Extractor    board.Extractor
	Memory       Memory // optional
	Events       EventSink
	NewGenerator GeneratorFactory
	HostPersona  session.Persona
}
