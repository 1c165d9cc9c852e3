package board

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/steven-d-pennington/ClearSide-sub001/internal/session"
)

const (
	recentSpeakerMax = 5
	keyPointMaxLen   = 200
	generalThread    = "general discussion"
)

// Store persists board state. Saves are best-effort: the in-memory copy is
// authoritative for the process lifetime, so errors are logged and dropped.
type Store interface {
	Save(ctx context.Context, st State) error
}

// NamedSpeaker pairs a speaker id with its display name. Order matters for
// deterministic name resolution.
type NamedSpeaker struct {
	ID   string
	Name string
}

// Board is the derived shared-state aggregator for one session. The
// orchestrator is its only writer and calls the mutating methods
// sequentially; the mutex exists because State snapshots are read from
// other goroutines (the control server, event payloads).
type Board struct {
	mu        sync.RWMutex
	st        State
	extractor Extractor
	store     Store
	speakers  []NamedSpeaker
	logPrefix string
	now       func() time.Time
}

func New(sessionID string, extractor Extractor, store Store, speakers []NamedSpeaker, logPrefix string) *Board {
	return Restore(State{SessionID: sessionID}, extractor, store, speakers, logPrefix)
}

// Restore rebuilds a board around previously persisted state.
func Restore(st State, extractor Extractor, store Store, speakers []NamedSpeaker, logPrefix string) *Board {
	if st.KeyPoints == nil {
		st.KeyPoints = map[string][]string{}
	}
	return &Board{
		st:        st,
		extractor: extractor,
		store:     store,
		speakers:  speakers,
		logPrefix: logPrefix,
		now:       time.Now,
	}
}

// State returns a snapshot safe to hand to other goroutines.
func (b *Board) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshot()
}

// snapshot deep-copies the state. Callers hold b.mu.
func (b *Board) snapshot() State {
	out := b.st
	out.Topics = append([]TopicEntry(nil), b.st.Topics...)
	out.Claims = append([]ClaimEntry(nil), b.st.Claims...)
	out.Agreements = append([]AgreementEntry(nil), b.st.Agreements...)
	out.Disagreements = append([]DisagreementEntry(nil), b.st.Disagreements...)
	out.RecentSpeakers = append([]string(nil), b.st.RecentSpeakers...)
	out.Signals = append([]SpeakerSignal(nil), b.st.Signals...)
	out.KeyPoints = make(map[string][]string, len(b.st.KeyPoints))
	for k, v := range b.st.KeyPoints {
		out.KeyPoints[k] = append([]string(nil), v...)
	}
	return out
}

// ProcessUtterance enriches the board from one finalized utterance. The
// extraction collaborator is best-effort: on failure the board is left as-is.
func (b *Board) ProcessUtterance(ctx context.Context, u session.Utterance) {
	speakerName := b.displayName(u.SpeakerID)
	others := make([]string, 0, len(b.speakers))
	for _, s := range b.speakers {
		if s.ID != u.SpeakerID {
			others = append(others, s.Name)
		}
	}

	ext, err := b.extractor.Extract(ctx, u.Content, speakerName, others)
	if err != nil {
		log.Printf("%s extraction failed: speaker=%s utterance=%s err=%v", b.logPrefix, u.SpeakerID, u.ID, err)
		return
	}

	now := b.now()

	b.mu.Lock()
	for _, topic := range ext.NewTopics {
		b.addTopic(topic, u.SpeakerID)
	}

	for _, c := range ext.Claims {
		claim := strings.TrimSpace(c.Claim)
		if claim == "" {
			continue
		}
		stance := c.Stance
		switch stance {
		case StanceAssertion, StanceHypothesis, StanceQuestion:
		default:
			stance = StanceAssertion
		}
		b.st.Claims = append(b.st.Claims, ClaimEntry{
			Claim:        claim,
			Speaker:      u.SpeakerID,
			Stance:       stance,
			SupportedBy:  []string{},
			ChallengedBy: []string{},
			RecordedAt:   now,
		})
	}

	thread := b.st.CurrentThread
	if thread == "" {
		thread = generalThread
	}
	for _, name := range ext.AgreementsWith {
		if id, ok := b.resolveSpeaker(name); ok && id != u.SpeakerID {
			b.st.Agreements = append(b.st.Agreements, AgreementEntry{
				Speaker:    u.SpeakerID,
				AgreesWith: id,
				Topic:      thread,
				RecordedAt: now,
			})
		}
	}
	for _, name := range ext.DisagreementsWith {
		if id, ok := b.resolveSpeaker(name); ok && id != u.SpeakerID {
			b.st.Disagreements = append(b.st.Disagreements, DisagreementEntry{
				Speaker:       u.SpeakerID,
				DisagreesWith: id,
				Topic:         thread,
				RecordedAt:    now,
			})
		}
	}

	if ext.IsKeyPoint {
		point := strings.TrimSpace(u.Content)
		// Clip on a rune boundary so a multi-byte character is never split.
		if r := []rune(point); len(r) > keyPointMaxLen {
			point = string(r[:keyPointMaxLen])
		}
		if point != "" {
			b.st.KeyPoints[u.SpeakerID] = append(b.st.KeyPoints[u.SpeakerID], point)
		}
	}

	if marker := strings.TrimSpace(ext.TopicMarker); marker != "" {
		b.st.CurrentThread = marker
	}

	b.updateBeat(ext, now)
	b.recomputeMomentum(now)
	snap := b.snapshot()
	b.mu.Unlock()
	b.persist(ctx, snap)
}

// RecordSpeaker appends to the bounded speaker history and maintains the
// consecutive-host counter: reset to 0 by any non-host speaker, incremented
// only when the host speaks.
func (b *Board) RecordSpeaker(speakerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.st.RecentSpeakers = append(b.st.RecentSpeakers, speakerID)
	if n := len(b.st.RecentSpeakers); n > recentSpeakerMax {
		b.st.RecentSpeakers = b.st.RecentSpeakers[n-recentSpeakerMax:]
	}
	if speakerID == session.HostID {
		b.st.ConsecutiveHostTurns++
	} else {
		b.st.ConsecutiveHostTurns = 0
	}
	b.recomputeMomentum(b.now())
}

// SetTopicStatus marks a tracked topic resolved or tabled. Matching is
// case-insensitive.
func (b *Board) SetTopicStatus(topic string, status TopicStatus) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	want := strings.ToLower(strings.TrimSpace(topic))
	for i := range b.st.Topics {
		if strings.ToLower(b.st.Topics[i].Topic) == want {
			b.st.Topics[i].Status = status
			return true
		}
	}
	return false
}

// AddSignal records a speaking-desire signal, replacing any existing signal
// from the same speaker, and persists the full queue.
func (b *Board) AddSignal(ctx context.Context, sig SpeakerSignal) {
	if strings.TrimSpace(sig.SpeakerID) == "" {
		return
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = b.now()
	}
	b.mu.Lock()
	kept := b.st.Signals[:0]
	for _, s := range b.st.Signals {
		if s.SpeakerID != sig.SpeakerID {
			kept = append(kept, s)
		}
	}
	b.st.Signals = append(kept, sig)
	b.recomputeMomentum(b.now())
	snap := b.snapshot()
	b.mu.Unlock()
	b.persist(ctx, snap)
}

// ConsumeSignal removes a speaker's pending signal, returning it if present.
func (b *Board) ConsumeSignal(ctx context.Context, speakerID string) (SpeakerSignal, bool) {
	b.mu.Lock()
	for i, s := range b.st.Signals {
		if s.SpeakerID == speakerID {
			out := s
			b.st.Signals = append(b.st.Signals[:i], b.st.Signals[i+1:]...)
			b.recomputeMomentum(b.now())
			snap := b.snapshot()
			b.mu.Unlock()
			b.persist(ctx, snap)
			return out, true
		}
	}
	b.mu.Unlock()
	return SpeakerSignal{}, false
}

// NextSignal reports the highest-priority pending signal.
func (b *Board) NextSignal() (SpeakerSignal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.st.NextSignal()
}

// NextSignal reports the highest-priority pending signal: urgency descending,
// ties broken by earliest creation time.
func (s State) NextSignal() (SpeakerSignal, bool) {
	if len(s.Signals) == 0 {
		return SpeakerSignal{}, false
	}
	sigs := append([]SpeakerSignal(nil), s.Signals...)
	sort.SliceStable(sigs, func(i, j int) bool {
		ri, rj := sigs[i].Urgency.rank(), sigs[j].Urgency.rank()
		if ri != rj {
			return ri > rj
		}
		return sigs[i].CreatedAt.Before(sigs[j].CreatedAt)
	})
	return sigs[0], true
}

func (b *Board) addTopic(topic, speakerID string) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return
	}
	lower := strings.ToLower(topic)
	for _, t := range b.st.Topics {
		if strings.ToLower(t.Topic) == lower {
			return
		}
	}
	b.st.Topics = append(b.st.Topics, TopicEntry{
		Topic:        topic,
		IntroducedBy: speakerID,
		Status:       TopicActive,
	})
}

// resolveSpeaker fuzzy-matches a stated name against known display names.
// Exact match wins; otherwise the first speaker whose leading name token
// matches (prefix allowed) is chosen, in registration order.
func (b *Board) resolveSpeaker(name string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(name))
	if t == "" {
		return "", false
	}
	for _, s := range b.speakers {
		if strings.ToLower(s.Name) == t {
			return s.ID, true
		}
	}
	first := strings.Fields(t)[0]
	for _, s := range b.speakers {
		fields := strings.Fields(strings.ToLower(s.Name))
		if len(fields) == 0 {
			continue
		}
		if fields[0] == first || strings.HasPrefix(fields[0], first) || strings.HasPrefix(first, fields[0]) {
			return s.ID, true
		}
	}
	return "", false
}

func (b *Board) displayName(speakerID string) string {
	for _, s := range b.speakers {
		if s.ID == speakerID {
			return s.Name
		}
	}
	return speakerID
}

func (b *Board) persist(ctx context.Context, snap State) {
	if b.store == nil {
		return
	}
	if err := b.store.Save(ctx, snap); err != nil {
		log.Printf("%s board persist failed: session=%s err=%v", b.logPrefix, snap.SessionID, err)
	}
}
