package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/steven-d-pennington/ClearSide-sub001/internal/board"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess := session.Session{ID: "s1", Topic: "open models", MaxTurns: 12}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Find(ctx, "s1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != session.StatusConfiguring {
		t.Fatalf("new sessions default to configuring, got %s", got.Status)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("createdAt not stamped")
	}

	if err := s.SetStatus(ctx, "s1", session.StatusLive); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := s.Complete(ctx, "s1", 90*time.Second); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, _ = s.Find(ctx, "s1")
	if got.Status != session.StatusCompleted || got.DurationSeconds != 90 {
		t.Fatalf("completed session = %+v", got)
	}
	if got.CompletedAt.IsZero() {
		t.Fatal("completedAt not stamped")
	}

	if err := s.SetError(ctx, "s1", "backend unreachable"); err != nil {
		t.Fatalf("set error: %v", err)
	}
	got, _ = s.Find(ctx, "s1")
	if got.Status != session.StatusError || got.ErrorMessage != "backend unreachable" {
		t.Fatalf("errored session = %+v", got)
	}
}

func TestFindUnknownSession(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Find(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected an error for a missing session")
	}
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("missing session should wrap ErrNotFound, got %v", err)
	}
}

func TestCreateSessionRequiresID(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateSession(context.Background(), session.Session{}); err == nil {
		t.Fatal("expected an error for a missing id")
	}
}

func TestParticipantsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := []session.Participant{
		{ID: "p1", SessionID: "s1", DisplayName: "Alex Rivera", PersonaID: "pa"},
		{ID: "p2", SessionID: "s1", DisplayName: "Jamie Chen", PersonaID: "pb"},
	}
	if err := s.PutParticipants(ctx, "s1", want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Participants().BySession(ctx, "s1")
	if err != nil {
		t.Fatalf("by session: %v", err)
	}
	if len(got) != 2 || got[0].DisplayName != "Alex Rivera" || got[1].ID != "p2" {
		t.Fatalf("participants = %+v", got)
	}
}

func TestPersonaRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := session.Persona{ID: "pa", Name: "Alex Rivera", Style: "direct", SystemPrompt: "You are Alex."}
	if err := s.PutPersona(ctx, p); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Personas().Find(ctx, "pa")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.SystemPrompt != p.SystemPrompt {
		t.Fatalf("persona = %+v", got)
	}
	_, err = s.Personas().Find(ctx, "missing")
	if err == nil {
		t.Fatal("expected an error for a missing persona")
	}
	if !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("missing persona should wrap ErrNotFound, got %v", err)
	}
}

func TestUtterancesAppendOnly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repo := s.Utterances()

	// Appending to a session with no file yet starts an empty log.
	for i := 0; i < 5; i++ {
		u := session.Utterance{
			ID:        session.NewID(),
			SessionID: "s1",
			SpeakerID: "p1",
			Content:   "line",
			Position:  i,
		}
		if err := repo.Append(ctx, u); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	all, err := repo.BySession(ctx, "s1")
	if err != nil {
		t.Fatalf("by session: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("utterances = %d", len(all))
	}
	for i, u := range all {
		if u.Position != i {
			t.Fatalf("order lost at %d: position=%d", i, u.Position)
		}
	}

	recent, err := repo.Recent(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].Position != 3 {
		t.Fatalf("recent = %+v", recent)
	}

	// An empty session reads back as empty, not as an error.
	none, err := repo.BySession(ctx, "s2")
	if err != nil {
		t.Fatalf("empty session: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no utterances, got %d", len(none))
	}
}

func TestBoardStateRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st, found, err := s.Load(ctx, "s1")
	if err != nil || found {
		t.Fatalf("missing board should load as not-found: found=%v err=%v", found, err)
	}

	st = board.State{
		SessionID:            "s1",
		Topics:               []board.TopicEntry{{Topic: "latency", IntroducedBy: "p1", Status: board.TopicActive}},
		RecentSpeakers:       []string{"host", "p1"},
		ConsecutiveHostTurns: 0,
		Signals: []board.SpeakerSignal{
			{SpeakerID: "p2", Urgency: board.UrgencyHigh, CreatedAt: time.Now().UTC()},
		},
	}
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, found, err := s.Load(ctx, "s1")
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if len(got.Topics) != 1 || got.Topics[0].Topic != "latency" {
		t.Fatalf("topics = %+v", got.Topics)
	}
	if len(got.Signals) != 1 || got.Signals[0].Urgency != board.UrgencyHigh {
		t.Fatalf("signals = %+v", got.Signals)
	}
	if len(got.RecentSpeakers) != 2 {
		t.Fatalf("recent speakers = %+v", got.RecentSpeakers)
	}
}
