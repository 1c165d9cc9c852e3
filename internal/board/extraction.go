package board

import "context"

// Emotional indicators an extractor may report. Unknown indicators are
// ignored.
const (
	IndicatorAgreement   = "agreement"
	IndicatorConcession  = "concession"
	IndicatorFrustration = "frustration"
	IndicatorExcitement  = "excitement"
)

type ExtractedClaim struct {
	Claim  string `json:"claim"`
	Stance Stance `json:"stance"`
}

// Extraction is the structured-fact result for a single utterance.
type Extraction struct {
	NewTopics           []string         `json:"new_topics"`
	Claims              []ExtractedClaim `json:"claims"`
	AgreementsWith      []string         `json:"agreements_with"`
	DisagreementsWith   []string         `json:"disagreements_with"`
	IsKeyPoint          bool             `json:"is_key_point"`
	TopicMarker         string           `json:"topic_marker"`
	EmotionalIndicators []string         `json:"emotional_indicators"`
}

// Extractor turns raw utterance text into structured facts. The board treats
// it as best-effort enrichment: failures are logged, never propagated.
type Extractor interface {
	Extract(ctx context.Context, text, speakerName string, otherNames []string) (Extraction, error)
}
