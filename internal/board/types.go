package board

import "time"

type TopicStatus string

const (
	TopicActive   TopicStatus = "active"
	TopicResolved TopicStatus = "resolved"
	TopicTabled   TopicStatus = "tabled"
)

type TopicEntry struct {
	Topic        string      `json:"topic"`
	IntroducedBy string      `json:"introducedBy"`
	Status       TopicStatus `json:"status"`
}

type Stance string

const (
	StanceAssertion  Stance = "assertion"
	StanceHypothesis Stance = "hypothesis"
	StanceQuestion   Stance = "question"
)

type ClaimEntry struct {
	Claim        string    `json:"claim"`
	Speaker      string    `json:"speaker"`
	Stance       Stance    `json:"stance"`
	SupportedBy  []string  `json:"supportedBy"`
	ChallengedBy []string  `json:"challengedBy"`
	RecordedAt   time.Time `json:"recordedAt"`
}

type AgreementEntry struct {
	Speaker    string    `json:"speaker"`
	AgreesWith string    `json:"agreesWith"`
	Topic      string    `json:"topic"`
	RecordedAt time.Time `json:"recordedAt"`
}

type DisagreementEntry struct {
	Speaker       string    `json:"speaker"`
	DisagreesWith string    `json:"disagreesWith"`
	Topic         string    `json:"topic"`
	RecordedAt    time.Time `json:"recordedAt"`
}

type Temperature string

const (
	TempNeutral          Temperature = "neutral"
	TempRisingTension    Temperature = "rising_tension"
	TempAgreementForming Temperature = "agreement_forming"
	TempBreakthrough     Temperature = "breakthrough"
	TempDecliningEnergy  Temperature = "declining_energy"
)

type EnergyLevel string

const (
	EnergyLow    EnergyLevel = "low"
	EnergyMedium EnergyLevel = "medium"
	EnergyHigh   EnergyLevel = "high"
)

type EmotionalBeat struct {
	Temperature         Temperature `json:"temperature"`
	EnergyLevel         EnergyLevel `json:"energyLevel"`
	RecentAgreements    int         `json:"recentAgreements"`
	RecentDisagreements int         `json:"recentDisagreements"`
}

type BalanceHealth string

const (
	BalanceGood       BalanceHealth = "good"
	BalanceHostHeavy  BalanceHealth = "host_heavy"
	BalanceGuestHeavy BalanceHealth = "guest_heavy"
)

type Momentum struct {
	SignalFrequency float64       `json:"signalFrequency"`
	HostGuestRatio  float64       `json:"hostGuestRatio"`
	TopicDepth      int           `json:"topicDepth"`
	EngagementScore int           `json:"engagementScore"`
	BalanceHealth   BalanceHealth `json:"balanceHealth"`
}

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

func (u Urgency) rank() int {
	switch u {
	case UrgencyHigh:
		return 2
	case UrgencyMedium:
		return 1
	default:
		return 0
	}
}

// SpeakerSignal is a transient "I want to speak" declaration. At most one
// signal per speaker exists at any time.
type SpeakerSignal struct {
	SpeakerID string    `json:"speakerId"`
	Urgency   Urgency   `json:"urgency"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// State is the board's full derived state for one session.
type State struct {
	SessionID            string              `json:"sessionId"`
	Topics               []TopicEntry        `json:"topics"`
	Claims               []ClaimEntry        `json:"claims"`
	Agreements           []AgreementEntry    `json:"agreements"`
	Disagreements        []DisagreementEntry `json:"disagreements"`
	KeyPoints            map[string][]string `json:"keyPoints"`
	CurrentThread        string              `json:"currentThread,omitempty"`
	RecentSpeakers       []string            `json:"recentSpeakerHistory"`
	ConsecutiveHostTurns int                 `json:"consecutiveHostTurns"`
	Beat                 EmotionalBeat       `json:"emotionalBeat"`
	Momentum             Momentum            `json:"momentum"`
	Signals              []SpeakerSignal     `json:"signals"`
}
