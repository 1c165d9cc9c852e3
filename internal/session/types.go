package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// HostID is the reserved speaker identity for the moderator. The host is
// never a row in the participant set.
const HostID = "host"

// ErrNotFound is wrapped by stores when a looked-up record does not exist,
// so callers can tell a missing record from a failing store.
var ErrNotFound = errors.New("not found")

type Status string

const (
	StatusConfiguring Status = "configuring"
	StatusLive        Status = "live"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

type FlowMode string

const (
	FlowManual FlowMode = "manual"
	FlowTimed  FlowMode = "timed"
	FlowPaced  FlowMode = "paced"
)

type Segment string

const (
	SegmentIntroduction Segment = "introduction"
	SegmentDiscussion   Segment = "discussion"
	SegmentHostQuestion Segment = "host_question"
	SegmentClosing      Segment = "closing"
)

type Session struct {
	ID           string   `json:"id"`
	Topic        string   `json:"topic"`
	TopicContext string   `json:"topicContext,omitempty"`
	FlowMode     FlowMode `json:"flowMode"`
	// FlowDelayMillis only applies to the paced mode. Zero means the
	// controller default.
	FlowDelayMillis int    `json:"flowDelayMillis,omitempty"`
	MaxTurns        int    `json:"maxTurns"`
	RapidPacing     bool   `json:"rapidPacing,omitempty"`
	MinimalPersona  bool   `json:"minimalPersona,omitempty"`
	Status          Status `json:"status"`
	ErrorMessage    string `json:"errorMessage,omitempty"`

	CreatedAt       time.Time `json:"createdAt"`
	CompletedAt     time.Time `json:"completedAt"`
	DurationSeconds float64   `json:"durationSeconds,omitempty"`
}

func (s Session) FlowDelay() time.Duration {
	return time.Duration(s.FlowDelayMillis) * time.Millisecond
}

type Persona struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Style        string `json:"style,omitempty"`
	SystemPrompt string `json:"systemPrompt"`
}

// MinimalPrompt is the trimmed persona used when a session sets the
// minimal-persona flag: name and argumentative style only.
func (p Persona) MinimalPrompt() string {
	line := "You are " + strings.TrimSpace(p.Name) + "."
	if s := strings.TrimSpace(p.Style); s != "" {
		line += " Style: " + s
	}
	return line
}

type Participant struct {
	ID          string `json:"id"`
	SessionID   string `json:"sessionId"`
	DisplayName string `json:"displayName"`
	PersonaID   string `json:"personaId"`
	// Model overrides the configured default model for this guest's
	// generation backend. Empty means inherit.
	Model string `json:"model,omitempty"`
}

// Utterance is the atomic, append-only unit of conversation. StartedAt is
// captured before generation begins so ordering reflects when speaking
// started, not when it finished.
type Utterance struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	SpeakerID string    `json:"speakerId"`
	Content   string    `json:"content"`
	Segment   Segment   `json:"segment"`
	Position  int       `json:"position"`
	StartedAt time.Time `json:"startedAt"`
	Truncated bool      `json:"truncated,omitempty"`
}

func NewID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// timestamp so an ID is still produced.
		return hex.EncodeToString([]byte(time.Now().Format("20060102150405.000")))
	}
	return hex.EncodeToString(b[:])
}
