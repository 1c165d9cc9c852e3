package board

import (
	"math"
	"time"

	"github.com/steven-d-pennington/ClearSide-sub001/internal/session"
)

const (
	beatWindow       = 5 * time.Minute
	topicDepthWindow = 3 * time.Minute
)

func (b *Board) updateBeat(ext Extraction, now time.Time) {
	var agreement, concession, frustration, excitement bool
	for _, ind := range ext.EmotionalIndicators {
		switch ind {
		case IndicatorAgreement:
			agreement = true
		case IndicatorConcession:
			concession = true
		case IndicatorFrustration:
			frustration = true
		case IndicatorExcitement:
			excitement = true
		}
	}

	if agreement || concession {
		b.st.Beat.RecentAgreements++
	}
	if frustration {
		b.st.Beat.RecentDisagreements++
	}

	// Windowed counts drive the temperature, independent of the running
	// counters above.
	var agr, dis int
	cutoff := now.Add(-beatWindow)
	for _, a := range b.st.Agreements {
		if a.RecordedAt.After(cutoff) {
			agr++
		}
	}
	for _, d := range b.st.Disagreements {
		if d.RecordedAt.After(cutoff) {
			dis++
		}
	}

	switch {
	case concession && dis > 0:
		b.st.Beat.Temperature = TempBreakthrough
	case dis > agr && dis >= 2:
		b.st.Beat.Temperature = TempRisingTension
	case agr > dis && agr >= 2:
		b.st.Beat.Temperature = TempAgreementForming
	case agr+dis == 0 && len(b.st.Claims) > 5:
		b.st.Beat.Temperature = TempDecliningEnergy
	default:
		b.st.Beat.Temperature = TempNeutral
	}

	if excitement || frustration {
		b.st.Beat.EnergyLevel = EnergyHigh
	} else {
		b.st.Beat.EnergyLevel = EnergyMedium
	}
}

func (b *Board) recomputeMomentum(now time.Time) {
	m := &b.st.Momentum

	tracked := len(b.st.RecentSpeakers)
	if tracked == 0 {
		m.HostGuestRatio = 0.3
	} else {
		hostTurns := 0
		for _, id := range b.st.RecentSpeakers {
			if id == session.HostID {
				hostTurns++
			}
		}
		m.HostGuestRatio = float64(hostTurns) / float64(tracked)
	}

	m.SignalFrequency = math.Min(1, float64(len(b.st.Signals))/3)

	m.TopicDepth = 0
	if b.st.CurrentThread != "" {
		cutoff := now.Add(-topicDepthWindow)
		for _, c := range b.st.Claims {
			if c.RecordedAt.After(cutoff) {
				m.TopicDepth++
			}
		}
	}

	balanceTerm := math.Max(0, 40-80*math.Abs(m.HostGuestRatio-0.3))
	depthTerm := math.Min(30, 5*float64(m.TopicDepth))
	m.EngagementScore = int(math.Round(30*m.SignalFrequency + balanceTerm + depthTerm))

	switch {
	case m.HostGuestRatio > 0.5:
		m.BalanceHealth = BalanceHostHeavy
	case m.HostGuestRatio < 0.15 && tracked > 3:
		m.BalanceHealth = BalanceGuestHeavy
	default:
		m.BalanceHealth = BalanceGood
	}
}
