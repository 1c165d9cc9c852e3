package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/steven-d-pennington/ClearSide-sub001/internal/board"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/orchestrator"
)

func TestUpsertFactsTouchesDuplicates(t *testing.T) {
	base := time.Now().Add(-time.Hour)
	facts := []Fact{{Content: "Agreed with p2 on latency", CreatedAt: base, LastAccessedAt: base}}

	now := time.Now()
	out := UpsertFacts(now, facts, []string{"agreed with p2 on LATENCY", "Disagreed with p1 on cost"}, 50)

	if len(out) != 2 {
		t.Fatalf("facts = %d, want 2", len(out))
	}
	if !out[0].LastAccessedAt.Equal(now) {
		t.Fatal("case-insensitive duplicate should be touched, not re-added")
	}
	if out[0].CreatedAt != base {
		t.Fatal("touch must not reset createdAt")
	}
}

func TestApplyFactLRUCap(t *testing.T) {
	now := time.Now()
	var facts []Fact
	for i := 0; i < 6; i++ {
		facts = append(facts, Fact{
			Content:        string(rune('a' + i)),
			CreatedAt:      now,
			LastAccessedAt: now.Add(time.Duration(i) * time.Minute),
		})
	}

	out := ApplyFactLRUCap(facts, 3)
	if len(out) != 3 {
		t.Fatalf("capped facts = %d", len(out))
	}
	// The least recently accessed entries are evicted first.
	if out[0].Content != "d" || out[2].Content != "f" {
		t.Fatalf("kept = %q %q %q", out[0].Content, out[1].Content, out[2].Content)
	}

	if got := ApplyFactLRUCap(facts, 0); len(got) != len(facts) {
		t.Fatal("non-positive cap means unlimited")
	}
}

func TestApplyFactLRUCapZeroAccessTimes(t *testing.T) {
	now := time.Now()
	facts := []Fact{
		{Content: "old", CreatedAt: now.Add(-2 * time.Hour)},
		{Content: "new", CreatedAt: now.Add(-time.Hour)},
		{Content: "touched", CreatedAt: now.Add(-3 * time.Hour), LastAccessedAt: now},
	}
	out := ApplyFactLRUCap(facts, 2)
	if len(out) != 2 {
		t.Fatalf("capped facts = %d", len(out))
	}
	for _, f := range out {
		if f.Content == "old" {
			t.Fatal("untouched oldest fact should be evicted first")
		}
	}
}

func TestProcessSessionMemoryWritesPerSpeakerFacts(t *testing.T) {
	m := NewManager(Options{Dir: t.TempDir(), Enabled: true, MaxFacts: 10})

	extractions := []orchestrator.MemoryExtraction{
		{IsSubstantive: true, Topics: []string{"Latency", "cost"}},
		{IsSubstantive: true, Topics: []string{"latency"}},
	}
	agreements := []board.AgreementEntry{{Speaker: "p1", AgreesWith: "p2", Topic: "latency"}}
	disagreements := []board.DisagreementEntry{{Speaker: "p2", DisagreesWith: "p1", Topic: "cost"}}

	if err := m.ProcessSessionMemory(context.Background(), extractions, agreements, disagreements); err != nil {
		t.Fatalf("process: %v", err)
	}

	seed, err := m.ContextFor("p1")
	if err != nil {
		t.Fatalf("context for p1: %v", err)
	}
	if !strings.Contains(seed, "Agreed with p2 on latency") {
		t.Fatalf("p1 seed missing agreement line: %q", seed)
	}
	if !strings.Contains(seed, "Discussed topics: cost, latency") {
		t.Fatalf("p1 seed missing deduped topic line: %q", seed)
	}

	seed, err = m.ContextFor("p2")
	if err != nil {
		t.Fatalf("context for p2: %v", err)
	}
	if !strings.Contains(seed, "Disagreed with p1 on cost") {
		t.Fatalf("p2 seed missing disagreement line: %q", seed)
	}

	// Running the same session again must not duplicate facts.
	if err := m.ProcessSessionMemory(context.Background(), extractions, agreements, disagreements); err != nil {
		t.Fatalf("second process: %v", err)
	}
	again, _ := m.ContextFor("p1")
	if strings.Count(again, "Agreed with p2 on latency") != 1 {
		t.Fatalf("duplicate fact recorded: %q", again)
	}
}

func TestContextForUnknownSpeaker(t *testing.T) {
	m := NewManager(Options{Dir: t.TempDir(), Enabled: true})
	seed, err := m.ContextFor("nobody")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if seed != "" {
		t.Fatalf("expected empty seed, got %q", seed)
	}
}

func TestEnabled(t *testing.T) {
	var m *Manager
	if m.Enabled() {
		t.Fatal("nil manager must read as disabled")
	}
	if NewManager(Options{}).Enabled() {
		t.Fatal("default is disabled")
	}
	if !NewManager(Options{Enabled: true}).Enabled() {
		t.Fatal("enabled option ignored")
	}
}
