// Package policy proposes the next speaker from board state and a short
// transcript window. It is a pure function of its inputs: anti-repeat and
// anti-host-domination corrections are the orchestrator's job, so the policy
// can be swapped without touching correction semantics.
package policy

import (
	"fmt"

	"github.com/steven-d-pennington/ClearSide-sub001/internal/board"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/session"
)

type Decision struct {
	SpeakerID       string
	Reason          string
	AddressDirectly bool
	// Question, when set on a host decision, is used verbatim instead of a
	// generated follow-up.
	Question string
}

// hostCadence is how often the host interjects with a question when no
// stronger signal exists.
const hostCadence = 4

func Decide(st board.State, transcript []session.Utterance, turnCounts map[string]int, participants []session.Participant) Decision {
	// A pending signal beats everything else.
	if sig, ok := st.NextSignal(); ok {
		return Decision{
			SpeakerID:       sig.SpeakerID,
			Reason:          fmt.Sprintf("signaled desire to speak (urgency %s)", sig.Urgency),
			AddressDirectly: sig.Urgency == board.UrgencyHigh,
		}
	}

	total := 0
	for _, n := range turnCounts {
		total += n
	}

	// The host steps in to redirect when tension is rising, and on a fixed
	// cadence to keep discussion moving when nothing else demands a turn.
	if st.Beat.Temperature == board.TempRisingTension {
		return Decision{
			SpeakerID: session.HostID,
			Reason:    "mediating rising tension",
		}
	}
	if st.Momentum.BalanceHealth == board.BalanceGuestHeavy {
		return Decision{
			SpeakerID: session.HostID,
			Reason:    "rebalancing with a host question",
		}
	}
	if total > 0 && total%hostCadence == 0 && lastSpeaker(transcript) != session.HostID {
		return Decision{
			SpeakerID: session.HostID,
			Reason:    "periodic host question",
		}
	}

	// Otherwise the guest with the fewest turns speaks, addressing the
	// previous speaker when one exists.
	if guest, ok := leastSpoken(participants, turnCounts, ""); ok {
		return Decision{
			SpeakerID:       guest,
			Reason:          "balancing guest speaking time",
			AddressDirectly: lastSpeaker(transcript) != "" && lastSpeaker(transcript) != guest,
		}
	}

	return Decision{SpeakerID: session.HostID, Reason: "no guests available"}
}

func lastSpeaker(transcript []session.Utterance) string {
	if len(transcript) == 0 {
		return ""
	}
	return transcript[len(transcript)-1].SpeakerID
}

// leastSpoken picks the guest with the fewest turns, preserving participant
// order on ties. exclude may name a guest to skip.
func leastSpoken(participants []session.Participant, turnCounts map[string]int, exclude string) (string, bool) {
	bestID := ""
	bestN := 0
	for _, p := range participants {
		if p.ID == exclude {
			continue
		}
		n := turnCounts[p.ID]
		if bestID == "" || n < bestN {
			bestID, bestN = p.ID, n
		}
	}
	return bestID, bestID != ""
}

// LeastSpoken is the correction-rule helper the orchestrator uses when it
// overrides a proposed speaker.
func LeastSpoken(participants []session.Participant, turnCounts map[string]int, exclude string) (string, bool) {
	return leastSpoken(participants, turnCounts, exclude)
}
