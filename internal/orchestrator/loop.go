package orchestrator

import (
	"context"
	"log"
	"sync"

	"github.com/steven-d-pennington/ClearSide-sub001/internal/board"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/policy"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/session"
)

// runMainLoop drives the per-turn protocol until the turn budget is spent,
// the close condition holds, or a stop/truncation intervenes. It reports
// whether a truncation pause ended the loop.
func (o *Orchestrator) runMainLoop(ctx context.Context) (pausedForTruncation bool, err error) {
	o.setPhase(PhaseMainLoop)

	for {
		if o.stopRequested() {
			return false, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err := o.waitIfPaused(ctx); err != nil {
			return false, err
		}
		if o.stopRequested() {
			return false, nil
		}
		if o.TurnCount() >= o.maxTurns() {
			return false, nil
		}

		o.applyTopicUpdates()
		if o.shouldClose() {
			return false, nil
		}

		o.collectSignals(ctx)

		dec := policy.Decide(o.brd.State(), o.recentTranscript(transcriptWindow), o.TurnCounts(), o.participants)
		dec = o.correctDecision(dec)
		o.deps.Events.Broadcast(o.sessionID, EventSpeakerDecision, map[string]any{
			"speakerId": dec.SpeakerID,
			"reason":    dec.Reason,
		})

		if dec.SpeakerID == session.HostID {
			if err := o.hostTurn(ctx, dec); err != nil {
				return false, err
			}
		} else {
			truncated, err := o.participantTurn(ctx, dec)
			if err != nil {
				return false, err
			}
			if truncated {
				return true, nil
			}
		}

		if o.shouldClose() {
			return false, nil
		}

		if err := o.flow.Wait(ctx); err != nil {
			return false, err
		}
	}
}

// collectSignals asks every participant for a speaking-desire verdict in
// parallel. A slow or failing participant is isolated: its signal is simply
// omitted this round. Board writes happen after the join so the board keeps
// a single sequential writer.
func (o *Orchestrator) collectSignals(ctx context.Context) {
	window := o.recentTranscript(transcriptWindow)
	currentName := o.displayName(o.LastSpeakerID())

	var mu sync.Mutex
	var collected []board.SpeakerSignal

	var wg sync.WaitGroup
	for id, g := range o.gens {
		wg.Add(1)
		go func(id string, g Generator) {
			defer wg.Done()
			sig, err := g.EvaluateSpeakingDesire(ctx, window, currentName)
			if err != nil {
				log.Printf("%s signal collection failed: participant=%s err=%v", o.logPrefix, id, err)
				return
			}
			if sig == nil {
				return
			}
			s := *sig
			s.SpeakerID = id
			mu.Lock()
			collected = append(collected, s)
			mu.Unlock()
		}(id, g)
	}
	wg.Wait()

	for _, s := range collected {
		o.brd.AddSignal(ctx, s)
	}
}

// correctDecision applies the two post-hoc rules the policy is deliberately
// ignorant of.
func (o *Orchestrator) correctDecision(dec policy.Decision) policy.Decision {
	last := o.LastSpeakerID()
	st := o.brd.State()

	// Rule A: no immediate repeat by the same guest.
	if dec.SpeakerID != session.HostID && dec.SpeakerID == last {
		if next, ok := policy.LeastSpoken(o.participants, o.TurnCounts(), last); ok {
			dec.SpeakerID = next
			dec.Reason = "rotating away from previous speaker"
		} else {
			dec.SpeakerID = session.HostID
			dec.Reason = "interjecting to maintain flow"
		}
	}

	// Rule B: the host never takes a third consecutive turn.
	if dec.SpeakerID == session.HostID && st.ConsecutiveHostTurns >= 2 {
		if next, ok := policy.LeastSpoken(o.participants, o.TurnCounts(), ""); ok {
			dec.SpeakerID = next
			dec.Reason = "handing back to the least-heard guest"
			dec.Question = ""
		}
	}
	return dec
}

func (o *Orchestrator) maxTurns() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess.MaxTurns > 0 {
		return o.sess.MaxTurns
	}
	return DefaultMaxTurns
}

// shouldClose is true once the turn budget is spent, or once the minimum
// turn count is reached and every tracked topic has left active status. A
// conversation that never surfaces a topic only closes via the ceiling.
func (o *Orchestrator) shouldClose() bool {
	if o.TurnCount() >= o.maxTurns() {
		return true
	}
	if o.TurnCount() < MinTurnsBeforeClosing {
		return false
	}
	st := o.brd.State()
	if len(st.Topics) == 0 {
		return false
	}
	for _, t := range st.Topics {
		if t.Status == board.TopicActive {
			return false
		}
	}
	return true
}

// resume reconstructs bookkeeping from persisted utterances after a restart:
// turn count from non-host utterances, last speaker from the final
// utterance, per-participant counters replayed one turn per utterance, and
// the most recent utterances replayed into each generator's running context
// (excluding a speaker's own lines from its own context).
func (o *Orchestrator) resume(existing []session.Utterance) {
	o.mu.Lock()
	o.transcript = append([]session.Utterance(nil), existing...)
	o.turnCount = 0
	o.turnCounts = map[string]int{}
	for _, u := range existing {
		if u.SpeakerID != session.HostID {
			o.turnCount++
			o.turnCounts[u.SpeakerID]++
		}
	}
	o.lastSpeakerID = existing[len(existing)-1].SpeakerID
	gens := o.gens
	hostGen := o.hostGen
	boardLoaded := o.boardLoaded
	o.mu.Unlock()

	// A board restored from persisted state already carries its speaker
	// history; only a fresh board needs the replay.
	if !boardLoaded {
		for _, u := range existing {
			o.brd.RecordSpeaker(u.SpeakerID)
		}
	}

	replay := existing
	if len(replay) > resumeReplayCount {
		replay = replay[len(replay)-resumeReplayCount:]
	}
	for _, u := range replay {
		name := o.displayName(u.SpeakerID)
		if u.SpeakerID != session.HostID {
			hostGen.AddOtherSpeakerMessage(name, u.Content)
		}
		for id, g := range gens {
			if id == u.SpeakerID {
				continue
			}
			g.AddOtherSpeakerMessage(name, u.Content)
		}
	}

	log.Printf("%s resumed: utterances=%d turnCount=%d lastSpeaker=%s", o.logPrefix, len(existing), o.TurnCount(), o.LastSpeakerID())
}
