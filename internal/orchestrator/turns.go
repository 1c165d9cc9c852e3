package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/steven-d-pennington/ClearSide-sub001/internal/policy"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/session"
)

// runOpening has the host produce the introduction, then waits on the flow
// controller before the main loop begins.
func (o *Orchestrator) runOpening(ctx context.Context) error {
	o.setPhase(PhaseOpening)

	directives := []string{
		fmt.Sprintf("Open the conversation on the topic: %s", o.sess.Topic),
		"Introduce the guests briefly and frame the discussion.",
	}
	if tc := strings.TrimSpace(o.sess.TopicContext); tc != "" {
		directives = append(directives, "Background: "+tc)
	}

	startedAt := time.Now()
	res, err := o.hostGen.Generate(ctx, GenRequest{
		Kind:       session.SegmentIntroduction,
		Transcript: nil,
		Directives: directives,
	})
	if err != nil {
		return fmt.Errorf("opening generation: %w", err)
	}

	u := o.persistUtterance(ctx, session.HostID, res.Content, session.SegmentIntroduction, startedAt, res.Truncated)
	o.brd.RecordSpeaker(session.HostID)
	o.detachMemoryExtract(session.HostID, u.Content)

	return o.flow.Wait(ctx)
}

// hostTurn executes one moderator turn. An explicit question from the
// decision is used verbatim; otherwise a follow-up is generated, addressed
// to a rotating target guest. Host turns do not advance turnCount.
func (o *Orchestrator) hostTurn(ctx context.Context, dec policy.Decision) error {
	startedAt := time.Now()

	content := strings.TrimSpace(dec.Question)
	wasTruncated := false
	if content == "" {
		target := o.nextHostTarget()
		directives := []string{
			fmt.Sprintf("Moderator turn: %s.", dec.Reason),
			fmt.Sprintf("Ask a pointed follow-up question addressed to %s.", o.displayName(target)),
		}
		res, err := o.hostGen.Generate(ctx, GenRequest{
			Kind:       session.SegmentHostQuestion,
			Transcript: o.recentTranscript(transcriptWindow),
			Directives: directives,
		})
		if err != nil {
			return fmt.Errorf("host generation: %w", err)
		}
		content = res.Content
		wasTruncated = res.Truncated
	} else {
		// Verbatim questions bypass Generate, so the host's running context
		// has to learn them explicitly.
		o.hostGen.AddContext("You asked: " + content)
	}

	u := o.persistUtterance(ctx, session.HostID, content, session.SegmentHostQuestion, startedAt, wasTruncated)
	o.brd.ProcessUtterance(ctx, u)
	o.brd.RecordSpeaker(session.HostID)
	o.mu.Lock()
	o.lastSpeakerID = session.HostID
	o.mu.Unlock()
	o.detachMemoryExtract(session.HostID, content)
	return nil
}

// participantTurn executes one guest turn. A truncated generation is a
// recoverable pause, not an error: the partial content is persisted and
// broadcast, a truncation event is emitted, and the orchestrator pauses.
func (o *Orchestrator) participantTurn(ctx context.Context, dec policy.Decision) (truncated bool, err error) {
	id := dec.SpeakerID
	gen, ok := o.gens[id]
	if !ok {
		return false, fmt.Errorf("no generator for participant %s", id)
	}

	o.brd.ConsumeSignal(ctx, id)

	// Feed the guest the latest lines from other speakers before it talks.
	recent := o.recentTranscript(transcriptWindow)
	injected := 0
	for i := len(recent) - 1; i >= 0 && injected < contextInjectCount; i-- {
		u := recent[i]
		if u.SpeakerID == id {
			continue
		}
		gen.AddOtherSpeakerMessage(o.displayName(u.SpeakerID), u.Content)
		injected++
	}

	var directives []string
	if dec.AddressDirectly {
		if last := o.LastSpeakerID(); last != "" && last != id {
			directives = append(directives, fmt.Sprintf("Respond directly to %s.", o.displayName(last)))
		}
	}

	startedAt := time.Now()
	res, err := gen.Generate(ctx, GenRequest{
		Kind:       session.SegmentDiscussion,
		Transcript: recent,
		Directives: directives,
	})
	if err != nil {
		return false, fmt.Errorf("participant %s generation: %w", id, err)
	}

	if res.Truncated {
		u := o.persistUtterance(ctx, id, res.Content, session.SegmentDiscussion, startedAt, true)
		o.deps.Events.Broadcast(o.sessionID, EventTruncation, map[string]any{
			"utteranceId": u.ID,
			"speakerId":   id,
		})
		o.Pause(ctx)
		log.Printf("%s generation truncated, pausing: participant=%s utterance=%s", o.logPrefix, id, u.ID)
		return true, nil
	}

	u := o.persistUtterance(ctx, id, res.Content, session.SegmentDiscussion, startedAt, false)
	o.hostGen.AddOtherSpeakerMessage(o.displayName(id), u.Content)
	o.brd.ProcessUtterance(ctx, u)
	o.brd.RecordSpeaker(id)

	o.mu.Lock()
	o.turnCount++
	o.turnCounts[id]++
	o.lastSpeakerID = id
	o.mu.Unlock()

	o.detachMemoryExtract(id, u.Content)
	return false, nil
}

// runClosing scripts the wrap-up: host announcement, one final statement per
// guest in participant order, then a host synthesis. Each step follows the
// same utterance → board → memory pattern as the main loop.
func (o *Orchestrator) runClosing(ctx context.Context) error {
	o.setPhase(PhaseClosing)

	if err := o.closingStep(ctx, session.HostID, []string{
		"Announce that the conversation is wrapping up.",
		"Invite each guest to give a short final statement.",
	}); err != nil {
		return err
	}
	if err := o.flow.StepDelay(ctx); err != nil {
		return err
	}

	for _, p := range o.participants {
		if err := o.closingStep(ctx, p.ID, []string{
			"Give a brief final statement summarizing your position.",
		}); err != nil {
			return err
		}
		if err := o.flow.StepDelay(ctx); err != nil {
			return err
		}
	}

	return o.closingStep(ctx, session.HostID, []string{
		"Synthesize the conversation: key topics, points of agreement and disagreement, and a sign-off.",
	})
}

func (o *Orchestrator) closingStep(ctx context.Context, speakerID string, directives []string) error {
	gen := o.hostGen
	if speakerID != session.HostID {
		g, ok := o.gens[speakerID]
		if !ok {
			return fmt.Errorf("no generator for participant %s", speakerID)
		}
		gen = g
	}

	startedAt := time.Now()
	res, err := gen.Generate(ctx, GenRequest{
		Kind:       session.SegmentClosing,
		Transcript: o.recentTranscript(transcriptWindow),
		Directives: directives,
	})
	if err != nil {
		return fmt.Errorf("closing generation (%s): %w", speakerID, err)
	}
	// Truncation during closing keeps the partial statement and moves on;
	// the safety-valve pause only applies to main-loop turns.
	if res.Truncated {
		log.Printf("%s closing statement truncated: speaker=%s", o.logPrefix, speakerID)
	}

	u := o.persistUtterance(ctx, speakerID, res.Content, session.SegmentClosing, startedAt, res.Truncated)
	o.brd.ProcessUtterance(ctx, u)
	o.brd.RecordSpeaker(speakerID)
	o.mu.Lock()
	o.lastSpeakerID = speakerID
	o.mu.Unlock()
	o.detachMemoryExtract(speakerID, u.Content)
	return nil
}

// persistUtterance appends the utterance, mirrors it into the in-memory
// transcript, and broadcasts it. Store failures are logged: the in-memory
// transcript stays authoritative for this process.
func (o *Orchestrator) persistUtterance(ctx context.Context, speakerID, content string, segment session.Segment, startedAt time.Time, truncated bool) session.Utterance {
	o.mu.Lock()
	position := len(o.transcript)
	o.mu.Unlock()

	u := session.Utterance{
		ID:        session.NewID(),
		SessionID: o.sessionID,
		SpeakerID: speakerID,
		Content:   content,
		Segment:   segment,
		Position:  position,
		StartedAt: startedAt,
		Truncated: truncated,
	}
	if err := o.deps.Utterances.Append(ctx, u); err != nil {
		log.Printf("%s utterance persist failed: utterance=%s err=%v", o.logPrefix, u.ID, err)
	}

	o.mu.Lock()
	o.transcript = append(o.transcript, u)
	o.mu.Unlock()

	o.deps.Events.Broadcast(o.sessionID, EventUtteranceCreated, map[string]any{
		"utteranceId": u.ID,
		"speakerId":   u.SpeakerID,
		"segment":     string(u.Segment),
		"position":    u.Position,
		"truncated":   u.Truncated,
	})
	return u
}

// detachMemoryExtract fires the memory-extraction call without blocking the
// turn sequencer. Failures are logged, never raised.
func (o *Orchestrator) detachMemoryExtract(speakerID, content string) {
	if o.deps.Memory == nil || !o.deps.Memory.Enabled() {
		return
	}
	o.mu.Lock()
	detached := o.detached
	o.mu.Unlock()
	if detached == nil {
		return
	}
	name := o.displayName(speakerID)
	detached.Go(func(ctx context.Context) {
		ext, err := o.deps.Memory.ExtractFromUtterance(ctx, name, content)
		if err != nil {
			log.Printf("%s memory extraction failed: speaker=%s err=%v", o.logPrefix, speakerID, err)
			return
		}
		if !ext.IsSubstantive {
			return
		}
		o.mu.Lock()
		o.memoryNotes = append(o.memoryNotes, ext)
		o.mu.Unlock()
	})
}

func (o *Orchestrator) nextHostTarget() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.participants) == 0 {
		return ""
	}
	p := o.participants[o.hostTarget%len(o.participants)]
	o.hostTarget++
	return p.ID
}
