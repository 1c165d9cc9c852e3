// Package memory is the optional long-term memory collaborator: per-speaker
// fact files with an LRU cap, refreshed by LLM extraction during a session
// and reconciled once when the session ends.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"

	"github.com/steven-d-pennington/ClearSide-sub001/internal/board"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/llm"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/orchestrator"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/state"
)

const DefaultMaxFacts = 50

type Fact struct {
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
}

type FactsFile struct {
	Facts []Fact `json:"facts"`
}

type Manager struct {
	dir        string
	enabled    bool
	maxFacts   int
	httpClient *http.Client
	cfg        llm.ChatConfig
	retry      llm.RetryOptions
}

type Options struct {
	Dir        string
	Enabled    bool
	MaxFacts   int
	HTTPClient *http.Client
	Config     llm.ChatConfig
	Retry      llm.RetryOptions
}

func NewManager(opts Options) *Manager {
	if opts.MaxFacts <= 0 {
		opts.MaxFacts = DefaultMaxFacts
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = llm.NewHTTPClient()
	}
	return &Manager{
		dir:        opts.Dir,
		enabled:    opts.Enabled,
		maxFacts:   opts.MaxFacts,
		httpClient: opts.HTTPClient,
		cfg:        opts.Config,
		retry:      opts.Retry,
	}
}

func (m *Manager) Enabled() bool { return m != nil && m.enabled }

func (m *Manager) factsPath(speakerID string) string {
	return filepath.Join(m.dir, "memory", speakerID+".json")
}

// ContextFor formats a speaker's stored facts for context seeding. An empty
// string means nothing to seed.
func (m *Manager) ContextFor(speakerID string) (string, error) {
	f, err := state.LoadJSONFile[FactsFile](m.factsPath(speakerID))
	if err != nil {
		return "", err
	}
	if len(f.Facts) == 0 {
		return "", nil
	}
	var b strings.Builder
	b.WriteString("What you remember from earlier conversations:\n")
	for _, fact := range f.Facts {
		b.WriteString("- ")
		b.WriteString(fact.Content)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), nil
}

// ExtractFromUtterance asks the LLM whether an utterance is worth
// remembering and which topics it touched.
func (m *Manager) ExtractFromUtterance(ctx context.Context, speakerName, text string) (orchestrator.MemoryExtraction, error) {
	system := `You judge whether a podcast utterance contains substantive positions worth remembering across sessions.
Return ONLY a JSON object: {"is_substantive": bool, "topics": ["..."]}`
	user := fmt.Sprintf("Speaker: %s\nUtterance:\n%s", speakerName, strings.TrimSpace(text))

	var out orchestrator.MemoryExtraction
	err := llm.Retry(ctx, m.retry, func() error {
		content, _, err := llm.ChatCompletion(ctx, m.httpClient, m.cfg, []openaigo.ChatCompletionMessageParamUnion{
			openaigo.SystemMessage(system),
			openaigo.UserMessage(user),
		})
		if err != nil {
			return err
		}
		var parsed orchestrator.MemoryExtraction
		if err := json.Unmarshal([]byte(llm.ExtractJSON(content)), &parsed); err != nil {
			return fmt.Errorf("memory extraction invalid json: %w (raw=%s)", err, content)
		}
		out = parsed
		return nil
	})
	if err != nil {
		return orchestrator.MemoryExtraction{}, err
	}
	return out, nil
}

// ProcessSessionMemory folds the session's accumulated extractions and the
// board's agreement/disagreement pairs into stored facts.
func (m *Manager) ProcessSessionMemory(ctx context.Context, extractions []orchestrator.MemoryExtraction, agreements []board.AgreementEntry, disagreements []board.DisagreementEntry) error {
	now := time.Now()

	byID := map[string][]string{}
	for _, a := range agreements {
		line := fmt.Sprintf("Agreed with %s on %s", a.AgreesWith, a.Topic)
		byID[a.Speaker] = append(byID[a.Speaker], line)
	}
	for _, d := range disagreements {
		line := fmt.Sprintf("Disagreed with %s on %s", d.DisagreesWith, d.Topic)
		byID[d.Speaker] = append(byID[d.Speaker], line)
	}

	topicSet := map[string]struct{}{}
	for _, e := range extractions {
		for _, t := range e.Topics {
			if t = strings.TrimSpace(t); t != "" {
				topicSet[strings.ToLower(t)] = struct{}{}
			}
		}
	}
	if len(topicSet) > 0 {
		topics := make([]string, 0, len(topicSet))
		for t := range topicSet {
			topics = append(topics, t)
		}
		sort.Strings(topics)
		line := "Discussed topics: " + strings.Join(topics, ", ")
		for id := range byID {
			byID[id] = append(byID[id], line)
		}
	}

	for speakerID, lines := range byID {
		path := m.factsPath(speakerID)
		f, err := state.LoadJSONFile[FactsFile](path)
		if err != nil {
			return fmt.Errorf("load facts for %s: %w", speakerID, err)
		}
		f.Facts = UpsertFacts(now, f.Facts, lines, m.maxFacts)
		if err := state.SaveJSONFileIndented(path, f); err != nil {
			return fmt.Errorf("save facts for %s: %w", speakerID, err)
		}
	}
	return nil
}

// UpsertFacts appends new fact lines, touching duplicates instead of
// re-adding them, then applies the LRU cap.
func UpsertFacts(now time.Time, facts []Fact, lines []string, cap int) []Fact {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		found := false
		for i := range facts {
			if strings.EqualFold(strings.TrimSpace(facts[i].Content), line) {
				facts[i].LastAccessedAt = now
				found = true
				break
			}
		}
		if !found {
			facts = append(facts, Fact{Content: line, CreatedAt: now, LastAccessedAt: now})
		}
	}
	return ApplyFactLRUCap(facts, cap)
}

// ApplyFactLRUCap keeps the most recently accessed facts, oldest out first.
func ApplyFactLRUCap(facts []Fact, cap int) []Fact {
	if cap <= 0 || len(facts) <= cap {
		return facts
	}
	sort.SliceStable(facts, func(i, j int) bool {
		ai := facts[i].LastAccessedAt
		aj := facts[j].LastAccessedAt
		if ai.IsZero() && aj.IsZero() {
			return facts[i].CreatedAt.Before(facts[j].CreatedAt)
		}
		if ai.IsZero() {
			return true
		}
		if aj.IsZero() {
			return false
		}
		return ai.Before(aj)
	})
	return append([]Fact(nil), facts[len(facts)-cap:]...)
}
