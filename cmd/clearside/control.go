package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/steven-d-pennington/ClearSide-sub001/internal/board"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/events"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/orchestrator"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/session"
)

// startControlServer exposes the orchestrator's control surface over HTTP:
// pause/resume/advance/stop/flow-mode plus state snapshots and the
// websocket observer endpoint.
func startControlServer(addr string, orch *orchestrator.Orchestrator, hub *events.Hub) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("/events", hub)

	mux.HandleFunc("POST /control/pause", func(w http.ResponseWriter, r *http.Request) {
		orch.Pause(r.Context())
		writeJSON(w, map[string]any{"paused": true})
	})
	mux.HandleFunc("POST /control/resume", func(w http.ResponseWriter, r *http.Request) {
		orch.Resume(r.Context())
		writeJSON(w, map[string]any{"paused": false})
	})
	mux.HandleFunc("POST /control/advance", func(w http.ResponseWriter, r *http.Request) {
		orch.AdvanceOnce()
		writeJSON(w, map[string]any{"advanced": true})
	})
	mux.HandleFunc("POST /control/stop", func(w http.ResponseWriter, r *http.Request) {
		orch.Stop(r.Context())
		writeJSON(w, map[string]any{"stopping": true})
	})
	mux.HandleFunc("POST /control/flow", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Mode        string `json:"mode"`
			DelayMillis int    `json:"delayMillis"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mode := session.FlowMode(body.Mode)
		switch mode {
		case session.FlowManual, session.FlowTimed, session.FlowPaced:
		default:
			http.Error(w, "mode must be manual, timed, or paced", http.StatusBadRequest)
			return
		}
		orch.SetFlowMode(mode, time.Duration(body.DelayMillis)*time.Millisecond)
		writeJSON(w, map[string]any{"mode": body.Mode})
	})

	mux.HandleFunc("POST /control/topic", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Topic  string `json:"topic"`
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		status := board.TopicStatus(body.Status)
		switch status {
		case board.TopicActive, board.TopicResolved, board.TopicTabled:
		default:
			http.Error(w, "status must be active, resolved, or tabled", http.StatusBadRequest)
			return
		}
		orch.SetTopicStatus(body.Topic, status)
		writeJSON(w, map[string]any{"topic": body.Topic, "status": body.Status})
	})

	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"session":   orch.Session(),
			"phase":     orch.Phase(),
			"running":   orch.IsRunning(),
			"paused":    orch.IsPaused(),
			"turnCount": orch.TurnCount(),
		})
	})
	mux.HandleFunc("GET /board", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, orch.BoardState())
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("%s control server stopped: err=%v", logPrefix, err)
		}
	}()
	log.Printf("%s control server listening: addr=%s", logPrefix, addr)
	return srv
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("%s write response failed: err=%v", logPrefix, err)
	}
}
