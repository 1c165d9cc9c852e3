// Package orchestrator owns the session lifecycle and the per-turn protocol:
// signal collection, speaker decision, correction rules, turn execution,
// board updates, close checks, and flow-control waits. One orchestrator
// instance manages exactly one session.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/steven-d-pennington/ClearSide-sub001/internal/board"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/flow"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/session"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/syncx"
)

type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseInitializing  Phase = "initializing"
	PhaseOpening       Phase = "opening"
	PhaseMainLoop      Phase = "main_loop"
	PhaseClosing       Phase = "closing"
	PhaseCompleted     Phase = "completed"
	PhaseFailed        Phase = "failed"
)

const (
	DefaultMaxTurns       = 30
	MinTurnsBeforeClosing = 8

	// How many recent utterances feed speaker decisions and desire
	// evaluation, and how many cross-speaker messages a guest sees before
	// generating.
	transcriptWindow   = 6
	contextInjectCount = 3
	resumeReplayCount  = 10

	hostDisplayName = "Host"
)

type Orchestrator struct {
	deps      Deps
	sessionID string
	logPrefix string

	sess         session.Session
	participants []session.Participant
	names        map[string]string // speaker id -> display name, host included
	gens         map[string]Generator
	hostGen      Generator
	brd          *board.Board
	flow         *flow.Controller
	detached     *syncx.Group

	mu            sync.Mutex
	boardLoaded   bool
	topicUpdates  []topicUpdate
	phase         Phase
	running       bool
	paused        bool
	stopped       bool
	turnCount     int
	lastSpeakerID string
	turnCounts    map[string]int
	transcript    []session.Utterance
	memoryNotes   []MemoryExtraction
	resumeCh      chan struct{}
	hostTarget    int // rotating index for host-addressed guests
	startedAt     time.Time
}

func New(sessionID string, deps Deps) *Orchestrator {
	return &Orchestrator{
		deps:       deps,
		sessionID:  sessionID,
		logPrefix:  fmt.Sprintf("[orchestrator] session=%s", sessionID),
		phase:      PhaseUninitialized,
		turnCounts: map[string]int{},
		resumeCh:   make(chan struct{}, 1),
	}
}

// Initialize loads the session, participants, and personas, rebuilds or
// creates the board, and constructs one generation handle per speaker.
// Memory seeding is optional: absence only skips that speaker's seed.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.setPhase(PhaseInitializing)

	sess, err := o.deps.Sessions.Find(ctx, o.sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, o.sessionID)
	}
	if err != nil {
		return fmt.Errorf("load session %s: %w", o.sessionID, err)
	}
	if sess.MaxTurns <= 0 {
		sess.MaxTurns = DefaultMaxTurns
	}

	participants, err := o.deps.Participants.BySession(ctx, o.sessionID)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	if len(participants) < 2 {
		return fmt.Errorf("%w: have %d", ErrInsufficientParticipants, len(participants))
	}

	names := map[string]string{session.HostID: hostDisplayName}
	speakers := []board.NamedSpeaker{{ID: session.HostID, Name: hostDisplayName}}
	gens := map[string]Generator{}
	for _, p := range participants {
		persona, err := o.deps.Personas.Find(ctx, p.PersonaID)
		if err != nil {
			return fmt.Errorf("load persona %s: %w", p.PersonaID, err)
		}
		if sess.MinimalPersona {
			persona.SystemPrompt = persona.MinimalPrompt()
		}
		names[p.ID] = p.DisplayName
		speakers = append(speakers, board.NamedSpeaker{ID: p.ID, Name: p.DisplayName})
		gens[p.ID] = o.deps.NewGenerator(p.ID, p, persona)
	}
	hostGen := o.deps.NewGenerator(session.HostID, session.Participant{}, o.deps.HostPersona)

	st, found, err := o.deps.Board.Load(ctx, o.sessionID)
	var brd *board.Board
	if err != nil {
		log.Printf("%s board state load failed, starting fresh: err=%v", o.logPrefix, err)
		found = false
	}
	if found {
		brd = board.Restore(st, o.deps.Extractor, o.deps.Board, speakers, o.logPrefix)
	} else {
		brd = board.New(o.sessionID, o.deps.Extractor, o.deps.Board, speakers, o.logPrefix)
	}

	if o.deps.Memory != nil && o.deps.Memory.Enabled() {
		o.seedMemory(session.HostID, hostGen)
		for id, g := range gens {
			o.seedMemory(id, g)
		}
	}

	o.mu.Lock()
	o.boardLoaded = found
	o.sess = sess
	o.participants = participants
	o.names = names
	o.gens = gens
	o.hostGen = hostGen
	o.brd = brd
	o.flow = flow.NewController(sess.FlowMode, sess.FlowDelay(), sess.RapidPacing)
	o.mu.Unlock()

	log.Printf("%s initialized: participants=%d maxTurns=%d flow=%s", o.logPrefix, len(participants), sess.MaxTurns, sess.FlowMode)
	return nil
}

func (o *Orchestrator) seedMemory(speakerID string, g Generator) {
	seed, err := o.deps.Memory.ContextFor(speakerID)
	if err != nil {
		log.Printf("%s memory seed failed: speaker=%s err=%v", o.logPrefix, speakerID, err)
		return
	}
	if strings.TrimSpace(seed) != "" {
		g.AddContext(seed)
	}
}

// Start runs the session to completion: opening (skipped on resumption),
// main loop, closing, post-session memory reconciliation. It is a no-op if
// the orchestrator is already running, and returns without error when a
// participant-turn truncation forces a pause.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil
	}
	if o.brd == nil {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator not initialized")
	}
	o.running = true
	o.startedAt = time.Now()
	o.detached = syncx.NewGroup(context.Background())
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		detached := o.detached
		o.mu.Unlock()
		if detached != nil {
			detached.Stop()
		}
	}()

	if err := o.run(ctx); err != nil {
		// Cancellation racing an orderly stop is not a failure: Stop already
		// persisted the paused status for later resumption.
		if o.stopRequested() && errors.Is(err, context.Canceled) {
			log.Printf("%s stopped mid-flight: session left paused", o.logPrefix)
			return nil
		}
		o.markFailed(ctx, err)
		return err
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context) error {
	existing, err := o.deps.Utterances.BySession(ctx, o.sessionID)
	if err != nil {
		return fmt.Errorf("load utterances: %w", err)
	}

	if err := o.deps.Sessions.SetStatus(ctx, o.sessionID, session.StatusLive); err != nil {
		log.Printf("%s set status live failed: err=%v", o.logPrefix, err)
	}

	resumed := len(existing) > 0
	if resumed {
		o.resume(existing)
		o.deps.Events.Broadcast(o.sessionID, EventSessionResumed, map[string]any{
			"turnCount":   o.TurnCount(),
			"lastSpeaker": o.LastSpeakerID(),
		})
	} else {
		o.deps.Events.Broadcast(o.sessionID, EventSessionStarted, map[string]any{"topic": o.sess.Topic})
		if err := o.runOpening(ctx); err != nil {
			return err
		}
	}

	pausedForTruncation, err := o.runMainLoop(ctx)
	if err != nil {
		return err
	}
	if pausedForTruncation {
		// Recoverable, user-actionable state: external intervention swaps
		// configuration and resumes. Not a failure.
		return nil
	}

	if o.stopRequested() || ctx.Err() != nil {
		// Orderly stop: Stop persisted the paused status, so the session
		// can be resumed later. No closing, no completion.
		log.Printf("%s stopped before closing: session left paused", o.logPrefix)
		return nil
	}
	if err := o.runClosing(ctx); err != nil {
		return err
	}

	o.reconcileMemory(ctx)

	duration := time.Since(o.startedAt)
	if err := o.deps.Sessions.Complete(ctx, o.sessionID, duration); err != nil {
		log.Printf("%s mark complete failed: err=%v", o.logPrefix, err)
	}
	o.setPhase(PhaseCompleted)
	o.deps.Events.Broadcast(o.sessionID, EventSessionCompleted, map[string]any{
		"turnCount":       o.TurnCount(),
		"durationSeconds": duration.Seconds(),
	})
	log.Printf("%s completed: turns=%d duration=%s", o.logPrefix, o.TurnCount(), duration.Round(time.Second))
	return nil
}

// reconcileMemory is the fire-once, non-fatal post-session memory call.
func (o *Orchestrator) reconcileMemory(ctx context.Context) {
	if o.deps.Memory == nil || !o.deps.Memory.Enabled() {
		return
	}
	o.mu.Lock()
	notes := append([]MemoryExtraction(nil), o.memoryNotes...)
	o.mu.Unlock()
	st := o.brd.State()
	if err := o.deps.Memory.ProcessSessionMemory(ctx, notes, st.Agreements, st.Disagreements); err != nil {
		log.Printf("%s session memory reconciliation failed: err=%v", o.logPrefix, err)
	}
}

func (o *Orchestrator) markFailed(ctx context.Context, cause error) {
	o.setPhase(PhaseFailed)
	if err := o.deps.Sessions.SetError(ctx, o.sessionID, cause.Error()); err != nil {
		log.Printf("%s persist failure status failed: err=%v", o.logPrefix, err)
	}
	o.deps.Events.Broadcast(o.sessionID, EventSessionFailed, map[string]any{"error": cause.Error()})
	log.Printf("%s failed: err=%v", o.logPrefix, cause)
}

// ---- control surface ----

// Pause prevents the next loop iteration from starting. An in-flight
// generation call is not aborted.
func (o *Orchestrator) Pause(ctx context.Context) {
	o.mu.Lock()
	already := o.paused
	o.paused = true
	o.mu.Unlock()
	if already {
		return
	}
	if err := o.deps.Sessions.SetStatus(ctx, o.sessionID, session.StatusPaused); err != nil {
		log.Printf("%s persist paused status failed: err=%v", o.logPrefix, err)
	}
	o.deps.Events.Broadcast(o.sessionID, EventSessionPaused, nil)
}

func (o *Orchestrator) Resume(ctx context.Context) {
	o.mu.Lock()
	wasPaused := o.paused
	o.paused = false
	ch := o.resumeCh
	o.mu.Unlock()
	if !wasPaused {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
	if err := o.deps.Sessions.SetStatus(ctx, o.sessionID, session.StatusLive); err != nil {
		log.Printf("%s persist live status failed: err=%v", o.logPrefix, err)
	}
	o.deps.Events.Broadcast(o.sessionID, EventSessionResumedOp, nil)
}

// Stop requests an orderly halt: the flag is observed at the top of the main
// loop, any pending manual-advance wait is released, and an in-flight
// generation call completes and is persisted first.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.mu.Lock()
	o.stopped = true
	fc := o.flow
	ch := o.resumeCh
	o.mu.Unlock()
	if fc != nil {
		fc.Advance()
	}
	select {
	case ch <- struct{}{}:
	default:
	}
	if err := o.deps.Sessions.SetStatus(ctx, o.sessionID, session.StatusPaused); err != nil {
		log.Printf("%s persist stop status failed: err=%v", o.logPrefix, err)
	}
}

// AdvanceOnce releases a pending manual-advance wait without changing mode.
func (o *Orchestrator) AdvanceOnce() {
	o.mu.Lock()
	fc := o.flow
	o.mu.Unlock()
	if fc != nil {
		fc.Advance()
	}
}

// SetFlowMode updates pacing live. Switching away from manual while an
// advance is pending releases it immediately.
func (o *Orchestrator) SetFlowMode(mode session.FlowMode, delay time.Duration) {
	o.mu.Lock()
	fc := o.flow
	if fc != nil {
		o.sess.FlowMode = mode
		if delay > 0 {
			o.sess.FlowDelayMillis = int(delay / time.Millisecond)
		}
	}
	o.mu.Unlock()
	if fc != nil {
		fc.SetMode(mode, delay)
	}
}

// ---- read accessors ----

func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Orchestrator) IsPaused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) TurnCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.turnCount
}

func (o *Orchestrator) LastSpeakerID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastSpeakerID
}

func (o *Orchestrator) TurnCounts() map[string]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]int, len(o.turnCounts))
	for k, v := range o.turnCounts {
		out[k] = v
	}
	return out
}

type topicUpdate struct {
	topic  string
	status board.TopicStatus
}

// SetTopicStatus queues a topic-status change. It is applied at the next
// loop boundary so the board keeps a single sequential writer.
func (o *Orchestrator) SetTopicStatus(topic string, status board.TopicStatus) {
	o.mu.Lock()
	o.topicUpdates = append(o.topicUpdates, topicUpdate{topic: topic, status: status})
	o.mu.Unlock()
}

func (o *Orchestrator) applyTopicUpdates() {
	o.mu.Lock()
	updates := o.topicUpdates
	o.topicUpdates = nil
	o.mu.Unlock()
	for _, tu := range updates {
		if !o.brd.SetTopicStatus(tu.topic, tu.status) {
			log.Printf("%s topic update ignored (unknown topic): topic=%q", o.logPrefix, tu.topic)
		}
	}
}

// SetTopicContext appends background material to the session's topic
// context before the opening phase uses it.
func (o *Orchestrator) SetTopicContext(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess.TopicContext == "" {
		o.sess.TopicContext = text
	} else {
		o.sess.TopicContext += "\n\n" + text
	}
}

func (o *Orchestrator) Session() session.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sess
}

func (o *Orchestrator) BoardState() board.State {
	o.mu.Lock()
	brd := o.brd
	o.mu.Unlock()
	if brd == nil {
		return board.State{}
	}
	return brd.State()
}

// ---- internals ----

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
}

func (o *Orchestrator) stopRequested() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopped
}

// waitIfPaused blocks at the top of a loop iteration until a resume (or
// stop) signal arrives.
func (o *Orchestrator) waitIfPaused(ctx context.Context) error {
	for {
		o.mu.Lock()
		paused := o.paused
		stopped := o.stopped
		ch := o.resumeCh
		o.mu.Unlock()
		if !paused || stopped {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (o *Orchestrator) displayName(speakerID string) string {
	if n, ok := o.names[speakerID]; ok {
		return n
	}
	return speakerID
}

func (o *Orchestrator) recentTranscript(n int) []session.Utterance {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.transcript) <= n {
		return append([]session.Utterance(nil), o.transcript...)
	}
	return append([]session.Utterance(nil), o.transcript[len(o.transcript)-n:]...)
}
