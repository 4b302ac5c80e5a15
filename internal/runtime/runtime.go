package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cantolabs/canto-core/internal/audio"
	"github.com/cantolabs/canto-core/internal/bus"
	"github.com/cantolabs/canto-core/internal/capability"
	"github.com/cantolabs/canto-core/internal/chat"
	"github.com/cantolabs/canto-core/internal/config"
	"github.com/cantolabs/canto-core/internal/convo"
	"github.com/cantolabs/canto-core/internal/eventstore"
	"github.com/cantolabs/canto-core/internal/natsserver"
	"github.com/cantolabs/canto-core/internal/pacing"
	"github.com/cantolabs/canto-core/internal/synth"
	"github.com/cantolabs/canto-core/internal/transcribe"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger.With(slog.String("component", "natsserver")))
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger.With(slog.String("component", "bus")))
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer busClient.Close()

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger.With(slog.String("component", "eventstore")))
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer store.Close()

	registry, err := capability.NewRegistry(ctx, r.nodeConfig(), busClient, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start capability registry: %w", err)
	}
	defer registry.Close()

	healthy := []func() bool{busClient.Healthy}

	var synthesizer synth.Synthesizer
	if r.cfg.Synthesis.Enabled || r.cfg.Conversation.Enabled {
		if synthesizer, err = r.buildSynthesizer(); err != nil {
			return err
		}
	}
	var recognizer transcribe.Recognizer
	if r.cfg.Transcribe.Enabled || r.cfg.Conversation.Enabled {
		if recognizer, err = r.buildRecognizer(); err != nil {
			return err
		}
	}
	var generator chat.Generator
	if r.cfg.Chat.Enabled || r.cfg.Conversation.Enabled {
		generator = r.buildGenerator()
	}

	if r.cfg.Synthesis.Enabled {
		var planner pacing.Planner
		if r.cfg.Chat.Enabled {
			planner = pacing.NewModelPlanner(generator, r.logger)
		} else {
			planner = pacing.NewAnalyzer()
		}
		pipeline := synth.NewPipeline(synthesizer, planner, r.logger)
		pipeline.SetBreathingRoom(r.cfg.Timing.BreathingRoom)
		synthService := synth.NewService(ctx, r.cfg.Synthesis, r.cfg.Timing, busClient, pipeline, r.logger)
		if err := synthService.Start(); err != nil {
			return fmt.Errorf("failed to start synthesis service: %w", err)
		}
		defer synthService.Close()
		healthy = append(healthy, synthService.Healthy)
	}

	if r.cfg.Transcribe.Enabled {
		transcriber := transcribe.NewTranscriber(recognizer, r.logger)
		if r.cfg.Transcribe.MaxChunkMS > 0 {
			transcriber.SetMaxChunkDuration(r.cfg.Transcribe.MaxChunkMS)
		}
		transcribeService := transcribe.NewService(ctx, r.cfg.Transcribe, busClient, transcriber, r.logger)
		if err := transcribeService.Start(); err != nil {
			return fmt.Errorf("failed to start transcription service: %w", err)
		}
		defer transcribeService.Close()
		healthy = append(healthy, transcribeService.Healthy)
	}

	if r.cfg.Chat.Enabled {
		chatService := chat.NewService(ctx, r.cfg.Chat, busClient, generator, r.logger)
		if err := chatService.Start(); err != nil {
			return fmt.Errorf("failed to start chat service: %w", err)
		}
		defer chatService.Close()
		healthy = append(healthy, chatService.Healthy)
	}

	sessionService := r.buildSessionService(ctx, busClient, store, synthesizer, recognizer, generator)
	if sessionService != nil {
		if err := sessionService.Start(); err != nil {
			return fmt.Errorf("failed to start session service: %w", err)
		}
		defer sessionService.Close()
		healthy = append(healthy, sessionService.Healthy)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, req *http.Request) {
		r.handleReady(w, req, healthy)
	})
	mux.HandleFunc("/capabilities", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(registry.Snapshot()); err != nil {
			r.logger.Warn("failed to encode capability roster", slog.String("error", err.Error()))
		}
	})
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// nodeConfig extends the configured node identity with a capability entry
// for each enabled voice provider, so peers can discover what this node
// serves.
func (r *Runtime) nodeConfig() config.NodeConfig {
	nodeCfg := r.cfg.Node
	if r.cfg.Synthesis.Enabled {
		nodeCfg.Capabilities = append(nodeCfg.Capabilities, config.NodeCapability{Name: capability.CapSynthesize})
	}
	if r.cfg.Transcribe.Enabled {
		nodeCfg.Capabilities = append(nodeCfg.Capabilities, config.NodeCapability{Name: capability.CapTranscribe})
	}
	if r.cfg.Chat.Enabled {
		nodeCfg.Capabilities = append(nodeCfg.Capabilities, config.NodeCapability{Name: capability.CapChat})
	}
	if r.cfg.Conversation.Enabled {
		nodeCfg.Capabilities = append(nodeCfg.Capabilities, config.NodeCapability{Name: capability.CapSession})
	}
	return nodeCfg
}

// buildSessionService assembles the conversational session service from the
// configured providers. A provider implementing convo.FullDuplexProvider
// handles sessions natively; the orchestrator remains the fallback path.
// Returns nil when conversation handling is disabled.
func (r *Runtime) buildSessionService(ctx context.Context, busClient *bus.Client, store *eventstore.Store, synthesizer synth.Synthesizer, recognizer transcribe.Recognizer, generator chat.Generator) *convo.Service {
	if !r.cfg.Conversation.Enabled {
		return nil
	}

	var provider convo.FullDuplexProvider
	if p, ok := generator.(convo.FullDuplexProvider); ok {
		provider = p
	} else if p, ok := synthesizer.(convo.FullDuplexProvider); ok {
		provider = p
	} else if p, ok := recognizer.(convo.FullDuplexProvider); ok {
		provider = p
	}

	factory := func() *convo.Orchestrator {
		return convo.NewOrchestrator(
			transcribe.NewTranscriber(recognizer, r.logger),
			generator,
			synthesizer,
			r.cfg.Chat.SystemPrompt,
			r.cfg.Conversation.Voice,
			r.cfg.Conversation.Language,
			r.logger,
		)
	}

	return convo.NewService(ctx, r.cfg.Conversation, busClient, store, r.cfg.Node.ID, factory, provider)
}

func (r *Runtime) buildSynthesizer() (synth.Synthesizer, error) {
	cfg := r.cfg.Synthesis
	switch cfg.Mode {
	case "exec":
		s, err := synth.NewExecSynth(cfg.Command, audio.Format(cfg.Format), cfg.SampleRate, cfg.Channels)
		if err != nil {
			return nil, fmt.Errorf("failed to build exec synthesizer: %w", err)
		}
		return s, nil
	default:
		return synth.NewMockSynth(audio.Format(cfg.Format), cfg.SampleRate, cfg.Channels), nil
	}
}

func (r *Runtime) buildRecognizer() (transcribe.Recognizer, error) {
	cfg := r.cfg.Transcribe
	switch cfg.Mode {
	case "exec":
		rec, err := transcribe.NewExecRecognizer(cfg.Command, cfg.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("failed to build exec recognizer: %w", err)
		}
		return rec, nil
	default:
		return transcribe.NewMockRecognizer(), nil
	}
}

func (r *Runtime) buildGenerator() chat.Generator {
	cfg := r.cfg.Chat
	switch cfg.Mode {
	case "ollama":
		return chat.NewOllamaGenerator(cfg.Endpoint, cfg.Model)
	default:
		return chat.NewMockGenerator()
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request, healthy []func() bool) {
	ready := r.ready.Load()
	for _, check := range healthy {
		ready = ready && check()
	}
	if ready {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
