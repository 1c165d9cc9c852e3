package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/steven-d-pennington/ClearSide-sub001/internal/agent"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/config"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/events"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/extract"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/llm"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/memory"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/orchestrator"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/research"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/session"
	"github.com/steven-d-pennington/ClearSide-sub001/internal/store"
)

const logPrefix = "[clearside]"

func main() {
	var (
		configPath = flag.String("config", "config.json", "path to config JSON")
		sessionID  = flag.String("session", "", "session id to run (required)")
	)
	flag.Parse()

	loadDotEnv()

	if *sessionID == "" {
		log.Fatalf("%s -session is required", logPrefix)
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("%s load config: %v", logPrefix, err)
	}
	cfg = cfg.ApplyEnv().WithDefaults()

	if err := run(cfg, *sessionID); err != nil {
		log.Fatalf("%s %v", logPrefix, err)
	}
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		log.Printf("%s load .env failed: %v", logPrefix, err)
		return
	}
	log.Printf("%s loaded env from .env", logPrefix)
}

func run(cfg config.Config, sessionID string) error {
	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return err
	}

	chatCfg := llm.ChatConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
	}
	retry := llm.RetryOptions{MaxRetries: cfg.MaxLLMRetries, LogPrefix: logPrefix}
	httpClient := &http.Client{Timeout: cfg.LLMTimeout()}

	hub := events.NewHub(logPrefix)
	defer hub.Close()
	sinks := events.Fanout{hub, events.LogSink{Prefix: logPrefix}}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, events.NewWebhook(cfg.WebhookURL, nil, logPrefix))
	}

	var mem orchestrator.Memory
	if cfg.Memory() {
		mem = memory.NewManager(memory.Options{
			Dir:        cfg.DataDir,
			Enabled:    true,
			MaxFacts:   cfg.MemoryFactsCap,
			HTTPClient: httpClient,
			Config:     chatCfg,
			Retry:      retry,
		})
	}

	hostPersona := session.Persona{
		ID:   "host",
		Name: "Host",
		SystemPrompt: "You are the moderator of a panel podcast. Keep the conversation " +
			"moving, draw out disagreements fairly, and keep your own turns short.",
	}

	deps := orchestrator.Deps{
		Sessions:     st,
		Participants: st.Participants(),
		Personas:     st.Personas(),
		Utterances:   st.Utterances(),
		Board:        st,
		Extractor:    extract.New(httpClient, chatCfg, retry),
		Memory:       mem,
		Events:       sinks,
		HostPersona:  hostPersona,
		NewGenerator: func(speakerID string, p session.Participant, persona session.Persona) orchestrator.Generator {
			name := p.DisplayName
			prompt := persona.SystemPrompt
			if speakerID == session.HostID {
				name = persona.Name
			}
			return agent.New(speakerID, name, prompt, agent.Options{
				HTTPClient: httpClient,
				Config:     chatCfg.WithModel(p.Model),
				Retry:      retry,
				LogPrefix:  logPrefix,
			})
		},
	}

	orch := orchestrator.New(sessionID, deps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First signal: orderly stop, the in-flight turn completes and the
	// session is left paused. Second signal: abort in-flight work.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("%s shutdown requested: finishing current turn", logPrefix)
		orch.Stop(context.Background())
		<-sigCh
		log.Printf("%s second signal: aborting", logPrefix)
		cancel()
	}()

	if err := orch.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	maybeResearchTopic(ctx, cfg, st, orch)

	srv := startControlServer(cfg.ListenAddr, orch, hub)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("session run: %w", err)
	}
	if orch.IsPaused() {
		log.Printf("%s session left paused (awaiting intervention): session=%s", logPrefix, sessionID)
	}
	return nil
}

// maybeResearchTopic appends an RSS-sourced brief to the session's topic
// context when research is configured and no context was supplied.
func maybeResearchTopic(ctx context.Context, cfg config.Config, st *store.Store, orch *orchestrator.Orchestrator) {
	if cfg.ResearchFeedURL == "" {
		return
	}
	sess := orch.Session()
	if sess.TopicContext != "" {
		return
	}

	client := research.NewClient(nil, logPrefix)
	brief, err := client.BuildTopicBrief(ctx, cfg.ResearchFeedURL, sess.Topic, cfg.ResearchItems)
	if err != nil {
		log.Printf("%s topic research failed (continuing without): err=%v", logPrefix, err)
		return
	}
	if brief == "" {
		return
	}
	orch.SetTopicContext(brief)
	log.Printf("%s topic brief attached: chars=%d", logPrefix, len(brief))
}
