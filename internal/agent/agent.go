// Package agent implements the generation capability: one persona-backed
// speaker over openai-go chat completions with a rolling message context.
package agent

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	openaigo "github.com/openai/openai-go/v3"

	"github.com/steven-d-pennington/ClearSide-sub001/internal/board"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/llm"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/orchestrator"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/session"
)

const (
	// finishLength is openai's finish reason when output hit the token cap.
	finishLength = "length"

	// historyCap bounds the rolling context. Oldest non-system messages are
	// dropped first.
	historyCap = 40
)

type Agent struct {
	speakerID string
	name      string
	persona   string

	httpClient *http.Client
	cfg        llm.ChatConfig
	retry      llm.RetryOptions
	logPrefix  string

	mu      sync.Mutex
	history []openaigo.ChatCompletionMessageParamUnion
}

type Options struct {
	HTTPClient *http.Client
	Config     llm.ChatConfig
	Retry      llm.RetryOptions
	LogPrefix  string
}

func New(speakerID, displayName, persona string, opts Options) *Agent {
	if opts.HTTPClient == nil {
		opts.HTTPClient = llm.NewHTTPClient()
	}
	if strings.TrimSpace(opts.LogPrefix) == "" {
		opts.LogPrefix = "[agent]"
	}
	return &Agent{
		speakerID:  speakerID,
		name:       displayName,
		persona:    strings.TrimSpace(persona),
		httpClient: opts.HTTPClient,
		cfg:        opts.Config,
		retry:      opts.Retry,
		logPrefix:  opts.LogPrefix,
	}
}

// Generate produces one utterance. A "length" finish reason is reported as a
// truncated result carrying the partial content, not as an error.
func (a *Agent) Generate(ctx context.Context, req orchestrator.GenRequest) (orchestrator.GenResult, error) {
	instruction := a.instructionFor(req)

	a.mu.Lock()
	messages := make([]openaigo.ChatCompletionMessageParamUnion, 0, len(a.history)+2)
	messages = append(messages, openaigo.SystemMessage(a.systemPrompt()))
	messages = append(messages, a.history...)
	messages = append(messages, openaigo.UserMessage(instruction))
	a.mu.Unlock()

	var content, finish string
	err := llm.Retry(ctx, a.retry, func() error {
		var err error
		content, finish, err = llm.ChatCompletion(ctx, a.httpClient, a.cfg, messages)
		return err
	})
	if err != nil {
		return orchestrator.GenResult{}, fmt.Errorf("generate for %s: %w", a.name, err)
	}

	a.appendHistory(openaigo.AssistantMessage(content))

	if finish == finishLength {
		return orchestrator.GenResult{Content: content, Truncated: true}, nil
	}
	return orchestrator.GenResult{Content: content}, nil
}

// AddContext seeds the rolling context with out-of-band information, such as
// long-term memory supplied at initialization.
func (a *Agent) AddContext(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	a.appendHistory(openaigo.SystemMessage(text))
}

func (a *Agent) AddOtherSpeakerMessage(speakerName, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	a.appendHistory(openaigo.UserMessage(speakerName + ": " + text))
}

type desireVerdict struct {
	WantsToSpeak bool   `json:"wants_to_speak"`
	Urgency      string `json:"urgency"`
	Reason       string `json:"reason"`
}

// EvaluateSpeakingDesire asks the backend whether this persona wants the
// next turn. A nil signal means no desire.
func (a *Agent) EvaluateSpeakingDesire(ctx context.Context, transcript []session.Utterance, currentSpeakerName string) (*board.SpeakerSignal, error) {
	system := `You decide whether a panelist wants to speak next in a podcast discussion.
Answer with ONLY a JSON object: {"wants_to_speak": bool, "urgency": "low"|"medium"|"high", "reason": "..."}`

	var b strings.Builder
	fmt.Fprintf(&b, "Panelist: %s\n", a.name)
	if currentSpeakerName != "" {
		fmt.Fprintf(&b, "Current speaker: %s\n", currentSpeakerName)
	}
	b.WriteString("Recent transcript:\n")
	b.WriteString(FormatTranscript(transcript))

	content, _, err := llm.ChatCompletion(ctx, a.httpClient, a.cfg, []openaigo.ChatCompletionMessageParamUnion{
		openaigo.SystemMessage(system),
		openaigo.UserMessage(b.String()),
	})
	if err != nil {
		return nil, err
	}

	var v desireVerdict
	if err := unmarshalJSON(content, &v); err != nil {
		return nil, fmt.Errorf("desire verdict invalid json: %w (raw=%s)", err, content)
	}
	if !v.WantsToSpeak {
		return nil, nil
	}

	urgency := board.Urgency(strings.ToLower(strings.TrimSpace(v.Urgency)))
	switch urgency {
	case board.UrgencyLow, board.UrgencyMedium, board.UrgencyHigh:
	default:
		urgency = board.UrgencyLow
	}
	return &board.SpeakerSignal{
		SpeakerID: a.speakerID,
		Urgency:   urgency,
		Reason:    strings.TrimSpace(v.Reason),
		CreatedAt: time.Now(),
	}, nil
}

func (a *Agent) systemPrompt() string {
	if a.persona != "" {
		return a.persona
	}
	return "You are " + a.name + ", a guest on a panel podcast. Speak conversationally, in a few sentences."
}

func (a *Agent) instructionFor(req orchestrator.GenRequest) string {
	var b strings.Builder
	switch req.Kind {
	case session.SegmentIntroduction:
		b.WriteString("Deliver the opening of the episode.\n")
	case session.SegmentHostQuestion:
		b.WriteString("You are moderating. Keep it short and end with a question.\n")
	case session.SegmentClosing:
		b.WriteString("The episode is closing.\n")
	default:
		b.WriteString("Continue the discussion with your next spoken contribution.\n")
	}
	for _, d := range req.Directives {
		if d = strings.TrimSpace(d); d != "" {
			b.WriteString(d)
			b.WriteString("\n")
		}
	}
	if len(req.Transcript) > 0 {
		b.WriteString("Recent transcript:\n")
		b.WriteString(FormatTranscript(req.Transcript))
	}
	b.WriteString("\nSpeak as yourself. Plain spoken text only, no stage directions.")
	return b.String()
}

func (a *Agent) appendHistory(m openaigo.ChatCompletionMessageParamUnion) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, m)
	if len(a.history) > historyCap {
		a.history = a.history[len(a.history)-historyCap:]
	}
}

// FormatTranscript renders a transcript window for prompt injection.
func FormatTranscript(utts []session.Utterance) string {
	if len(utts) == 0 {
		return "(none yet)"
	}
	var b strings.Builder
	for _, u := range utts {
		fmt.Fprintf(&b, "[%s] %s: %s\n", u.StartedAt.Format("15:04:05"), u.SpeakerID, strings.TrimSpace(u.Content))
	}
	return strings.TrimSpace(b.String())
}
