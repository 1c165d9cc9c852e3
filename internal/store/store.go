// Package store is the file-backed persistence collaborator: per-session
// JSON documents under a data directory, saved atomically (tmp then rename).
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/steven-d-pennington/ClearSide-sub001/internal/board"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/session"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/state"
)

type Store struct {
	dataDir string
}

func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dataDir: dataDir}, nil
}

type sessionPaths struct {
	Dir          string
	Session      string
	Participants string
	Utterances   string
	Board        string
}

func (s *Store) paths(sessionID string) sessionPaths {
	dir := filepath.Join(s.dataDir, "sessions", sessionID)
	return sessionPaths{
		Dir:          dir,
		Session:      filepath.Join(dir, "session.json"),
		Participants: filepath.Join(dir, "participants.json"),
		Utterances:   filepath.Join(dir, "utterances.json"),
		Board:        filepath.Join(dir, "board.json"),
	}
}

func (s *Store) personaPath(id string) string {
	return filepath.Join(s.dataDir, "personas", id+".json")
}

// ---- sessions ----

func (s *Store) CreateSession(ctx context.Context, sess session.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if sess.Status == "" {
		sess.Status = session.StatusConfiguring
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	return state.SaveJSONFileIndented(s.paths(sess.ID).Session, sess)
}

func (s *Store) Find(ctx context.Context, id string) (session.Session, error) {
	p := s.paths(id).Session
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return session.Session{}, fmt.Errorf("session %s: %w", id, session.ErrNotFound)
		}
		return session.Session{}, fmt.Errorf("session %s: %w", id, err)
	}
	return state.LoadJSONFile[session.Session](p)
}

func (s *Store) SetStatus(ctx context.Context, id string, status session.Status) error {
	sess, err := s.Find(ctx, id)
	if err != nil {
		return err
	}
	sess.Status = status
	return state.SaveJSONFileIndented(s.paths(id).Session, sess)
}

func (s *Store) SetError(ctx context.Context, id string, msg string) error {
	sess, err := s.Find(ctx, id)
	if err != nil {
		return err
	}
	sess.Status = session.StatusError
	sess.ErrorMessage = msg
	return state.SaveJSONFileIndented(s.paths(id).Session, sess)
}

func (s *Store) Complete(ctx context.Context, id string, d time.Duration) error {
	sess, err := s.Find(ctx, id)
	if err != nil {
		return err
	}
	sess.Status = session.StatusCompleted
	sess.CompletedAt = time.Now()
	sess.DurationSeconds = d.Seconds()
	return state.SaveJSONFileIndented(s.paths(id).Session, sess)
}

// ---- participants ----

type participantsFile struct {
	Participants []session.Participant `json:"participants"`
}

func (s *Store) PutParticipants(ctx context.Context, sessionID string, ps []session.Participant) error {
	return state.SaveJSONFileIndented(s.paths(sessionID).Participants, participantsFile{Participants: ps})
}

// ParticipantRepo is the participant view of the store.
type ParticipantRepo struct{ s *Store }

func (s *Store) Participants() ParticipantRepo { return ParticipantRepo{s: s} }

func (r ParticipantRepo) BySession(ctx context.Context, sessionID string) ([]session.Participant, error) {
	f, err := state.LoadJSONFile[participantsFile](r.s.paths(sessionID).Participants)
	if err != nil {
		return nil, err
	}
	return f.Participants, nil
}

// ---- personas ----

func (s *Store) PutPersona(ctx context.Context, p session.Persona) error {
	if p.ID == "" {
		return fmt.Errorf("persona id is required")
	}
	return state.SaveJSONFileIndented(s.personaPath(p.ID), p)
}

type PersonaRepo struct{ s *Store }

func (s *Store) Personas() PersonaRepo { return PersonaRepo{s: s} }

func (r PersonaRepo) Find(ctx context.Context, id string) (session.Persona, error) {
	p := r.s.personaPath(id)
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return session.Persona{}, fmt.Errorf("persona %s: %w", id, session.ErrNotFound)
		}
		return session.Persona{}, fmt.Errorf("persona %s: %w", id, err)
	}
	return state.LoadJSONFile[session.Persona](p)
}

// ---- utterances (append-only) ----

type utterancesFile struct {
	Utterances []session.Utterance `json:"utterances"`
}

type UtteranceRepo struct{ s *Store }

func (s *Store) Utterances() UtteranceRepo { return UtteranceRepo{s: s} }

func (r UtteranceRepo) Append(ctx context.Context, u session.Utterance) error {
	p := r.s.paths(u.SessionID).Utterances
	f, err := state.LoadJSONFile[utterancesFile](p)
	if err != nil {
		return err
	}
	f.Utterances = append(f.Utterances, u)
	return state.SaveJSONFile(p, f)
}

func (r UtteranceRepo) BySession(ctx context.Context, sessionID string) ([]session.Utterance, error) {
	f, err := state.LoadJSONFile[utterancesFile](r.s.paths(sessionID).Utterances)
	if err != nil {
		return nil, err
	}
	return f.Utterances, nil
}

func (r UtteranceRepo) Recent(ctx context.Context, sessionID string, n int) ([]session.Utterance, error) {
	all, err := r.BySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if n <= 0 || len(all) <= n {
		return all, nil
	}
	return all[len(all)-n:], nil
}

// ---- board state ----

func (s *Store) Save(ctx context.Context, st board.State) error {
	return state.SaveJSONFile(s.paths(st.SessionID).Board, st)
}

func (s *Store) Load(ctx context.Context, sessionID string) (board.State, bool, error) {
	p := s.paths(sessionID).Board
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return board.State{}, false, nil
		}
		return board.State{}, false, err
	}
	st, err := state.LoadJSONFile[board.State](p)
	if err != nil {
		return board.State{}, false, err
	}
	st.SessionID = sessionID
	return st, true, nil
}
