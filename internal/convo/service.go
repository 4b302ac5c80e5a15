package convo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cantolabs/canto-core/internal/audio"
	"github.com/cantolabs/canto-core/internal/bus"
	"github.com/cantolabs/canto-core/internal/config"
	"github.com/cantolabs/canto-core/internal/eventstore"
	"github.com/cantolabs/canto-core/internal/protocol"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OrchestratorFactory builds a fresh per-session orchestrator so each
// session carries its own conversation history.
type OrchestratorFactory func() *Orchestrator

// Service runs conversational sessions over the bus: it consumes audio
// frames and publishes the resulting session events and agent audio. When a
// full-duplex provider is configured, each session is delegated to it and
// its event stream drives the reducers directly; otherwise the service
// detects end of turn locally and drives the fallback orchestrator.
type Service struct {
	cfg      config.ConversationConfig
	bus      *bus.Client
	store    *eventstore.Store
	nodeID   string
	newOrch  OrchestratorFactory
	provider FullDuplexProvider
	sessions map[string]*sessionState
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	sub      *nats.Subscription
	wg       sync.WaitGroup
	ready    bool
	tracer   trace.Tracer
}

type sessionState struct {
	id           string
	detector     *TurnDetector
	engine       *Engine
	orch         *Orchestrator
	ps           ProviderSession
	buffer       []byte
	receivedMS   int64
	turnStartMS  int64
	speechActive bool
	inflight     bool
	pendingClose bool
}

// NewService builds the session service. provider may be nil; sessions then
// always use the fallback orchestrator built by factory.
func NewService(parent context.Context, cfg config.ConversationConfig, busClient *bus.Client, store *eventstore.Store, nodeID string, factory OrchestratorFactory, provider FullDuplexProvider) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:      cfg,
		bus:      busClient,
		store:    store,
		nodeID:   nodeID,
		newOrch:  factory,
		provider: provider,
		sessions: make(map[string]*sessionState),
		ctx:      ctx,
		cancel:   cancel,
		tracer:   otel.Tracer("github.com/cantolabs/canto-core/convo"),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	subject := protocol.SubjectAudioFramePrefix + ".>"
	sub, err := s.bus.Conn().Subscribe(subject, s.handleFrame)
	if err != nil {
		return fmt.Errorf("subscribe audio frames: %w", err)
	}
	s.sub = sub
	s.ready = true
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || s.ready
}

func (s *Service) handleFrame(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.bus.Logger().Warn("failed to decode audio frame", slogError(err))
		return
	}
	if frame.SessionID == "" {
		frame.SessionID = uuid.NewString()
	}

	s.mu.Lock()
	state := s.sessions[frame.SessionID]
	created := false
	if state == nil {
		state = &sessionState{
			id:       frame.SessionID,
			detector: NewTurnDetector(s.cfg.EnergyThreshold, s.cfg.SilenceThresholdMS),
			engine:   NewEngine(),
		}
		s.sessions[frame.SessionID] = state
		created = true
	}
	s.mu.Unlock()

	if created {
		s.openSession(state)
	}

	sampleRate := frame.SampleRate
	if sampleRate <= 0 {
		sampleRate = s.cfg.SampleRate
	}
	channels := frame.Channels
	if channels <= 0 {
		channels = s.cfg.Channels
	}
	chunkMS := pcmDurationMS(len(frame.PCM), sampleRate, channels)

	s.mu.Lock()
	ps := state.ps
	s.mu.Unlock()
	if ps != nil {
		s.forwardToProvider(state, ps, frame, sampleRate, channels, chunkMS)
		return
	}

	s.mu.Lock()
	energy := ChunkEnergy(frame.PCM)
	speechStarted := false
	if energy > s.cfg.EnergyThreshold && !state.speechActive {
		state.speechActive = true
		state.turnStartMS = state.receivedMS
		speechStarted = true
	}
	if state.speechActive {
		state.buffer = append(state.buffer, frame.PCM...)
	}
	endOfTurn := state.detector.Feed(frame.PCM, state.receivedMS)
	state.receivedMS += chunkMS
	turnStartMS := state.turnStartMS
	s.mu.Unlock()

	if speechStarted {
		s.record(state, Event{Type: EventUserSpeechStarted, SessionID: state.id, OffsetMS: turnStartMS, Role: RoleUser})
	}
	if endOfTurn || frame.Final {
		s.scheduleTurn(state, sampleRate, channels, frame.Final)
	}
}

// openSession persists the session row and binds it to either a native
// full-duplex provider session or the fallback orchestrator.
func (s *Service) openSession(state *sessionState) {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	if err := s.store.AppendSession(ctx, state.id, s.nodeID, string(StatusActive)); err != nil {
		s.bus.Logger().Warn("failed to persist session", slogError(err))
	}

	if s.provider != nil {
		ps, err := s.provider.StartSession(s.ctx, SessionConfig{
			SessionID: state.id,
			VoiceID:   s.cfg.Voice,
			Language:  s.cfg.Language,
		})
		if err == nil {
			s.mu.Lock()
			state.ps = ps
			s.mu.Unlock()
			s.wg.Add(1)
			go s.pumpProviderEvents(state, ps)
			return
		}
		s.bus.Logger().Warn("full-duplex session start failed, using orchestrator",
			slog.String("session_id", state.id), slogError(err))
	}

	s.mu.Lock()
	state.orch = s.newOrch()
	s.mu.Unlock()
	s.record(state, Event{Type: EventSessionStarted, SessionID: state.id})
}

// pumpProviderEvents drains a provider session's ordered event stream
// through the reducers and onto the bus. Provider streams open with
// session_started and close when the provider ends the session.
func (s *Service) pumpProviderEvents(state *sessionState, ps ProviderSession) {
	defer s.wg.Done()
	for e := range ps.Events() {
		if e.SessionID == "" {
			e.SessionID = state.id
		}
		s.record(state, e)
	}
	s.closeSession(state)
}

// forwardToProvider hands raw session audio to the native provider, which
// owns turn taking from here on.
func (s *Service) forwardToProvider(state *sessionState, ps ProviderSession, frame protocol.AudioFrame, sampleRate, channels int, chunkMS int64) {
	s.mu.Lock()
	state.receivedMS += chunkMS
	s.mu.Unlock()

	if len(frame.PCM) > 0 {
		ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		if err := ps.SendAudio(ctx, audioFromPCM(frame.PCM, sampleRate, channels)); err != nil {
			s.bus.Logger().Warn("failed to forward audio to provider",
				slog.String("session_id", state.id), slogError(err))
		}
		cancel()
	}
	if frame.Final {
		if err := ps.Close(); err != nil {
			s.bus.Logger().Warn("failed to close provider session",
				slog.String("session_id", state.id), slogError(err))
		}
	}
}

func (s *Service) scheduleTurn(state *sessionState, sampleRate, channels int, closing bool) {
	s.mu.Lock()
	if state.inflight {
		if closing {
			state.pendingClose = true
		}
		s.mu.Unlock()
		return
	}
	pcm := append([]byte(nil), state.buffer...)
	hadSpeech := state.speechActive
	offsetMS := state.receivedMS
	state.buffer = nil
	state.speechActive = false
	state.inflight = len(pcm) > 0 && hadSpeech
	inflight := state.inflight
	s.mu.Unlock()

	if !inflight {
		if closing {
			s.closeSession(state)
		}
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, 60*time.Second)
		defer cancel()

		ctx, span := s.tracer.Start(ctx, "convo.turn",
			trace.WithAttributes(
				attribute.String("session.id", state.id),
				attribute.Int("turn.pcm_bytes", len(pcm)),
			))
		defer span.End()

		userAudio := audioFromPCM(pcm, sampleRate, channels)
		err := state.orch.Respond(ctx, state.id, userAudio, offsetMS, func(e Event) error {
			s.record(state, e)
			return nil
		})
		if err != nil {
			span.RecordError(err)
			s.bus.Logger().Warn("conversation turn failed",
				slog.String("session_id", state.id), slogError(err))
		}

		s.mu.Lock()
		state.inflight = false
		pendingClose := state.pendingClose || closing
		s.mu.Unlock()

		if pendingClose {
			s.closeSession(state)
		}
	}()
}

func (s *Service) closeSession(state *sessionState) {
	s.mu.Lock()
	if _, ok := s.sessions[state.id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, state.id)
	endMS := state.receivedMS
	ended := state.engine.State().Status == StatusEnded
	s.mu.Unlock()

	// a native provider may already have ended the stream itself
	if !ended {
		s.record(state, Event{Type: EventSessionEnded, SessionID: state.id, OffsetMS: endMS})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.AppendSession(ctx, state.id, s.nodeID, string(StatusEnded)); err != nil {
		s.bus.Logger().Warn("failed to finalize session", slogError(err))
	}
	s.mu.Lock()
	turns := state.engine.Transcript()
	s.mu.Unlock()
	for _, turn := range turns {
		err := s.store.AppendTurn(ctx, eventstore.Turn{
			SessionID: state.id,
			Role:      string(turn.Role),
			Text:      turn.Text,
			StartMS:   turn.StartMS,
			EndMS:     turn.EndMS,
		})
		if err != nil {
			s.bus.Logger().Warn("failed to persist turn", slogError(err))
		}
	}
}

// record applies an event to the session reducers, persists it, and
// publishes it on the bus. Agent audio additionally goes out as PCM chunks.
func (s *Service) record(state *sessionState, e Event) {
	s.mu.Lock()
	state.engine.Apply(e)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := s.store.AppendEvent(ctx, eventstore.Event{
		SessionID: e.SessionID,
		Type:      string(e.Type),
		Role:      string(e.Role),
		OffsetMS:  e.OffsetMS,
		Payload:   []byte(e.Text),
	}); err != nil {
		s.bus.Logger().Warn("failed to persist session event", slogError(err))
	}
	cancel()

	s.publishEvent(e)
	if e.Type == EventAgentAudio {
		s.publishAgentAudio(e)
	}
}

func (s *Service) publishEvent(e Event) {
	msg := protocol.SessionEvent{
		SessionID: e.SessionID,
		Type:      string(e.Type),
		OffsetMS:  e.OffsetMS,
		Role:      string(e.Role),
		Text:      e.Text,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.bus.Logger().Warn("failed to marshal session event", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectSessionEvents, data); err != nil {
		s.bus.Logger().Warn("failed to publish session event", slogError(err))
	}
}

func (s *Service) publishAgentAudio(e Event) {
	chunk := protocol.AgentAudioChunk{
		SessionID:  e.SessionID,
		SampleRate: e.Audio.SampleRate,
		Channels:   e.Audio.Channels,
		PCM:        e.Audio.PCM,
		Final:      true,
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		s.bus.Logger().Warn("failed to marshal agent audio", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectAgentAudio, data); err != nil {
		s.bus.Logger().Warn("failed to publish agent audio", slogError(err))
	}
}

func audioFromPCM(pcm []byte, sampleRate, channels int) audio.Data {
	return audio.Data{
		PCM:        pcm,
		Format:     audio.FormatWAV,
		SampleRate: sampleRate,
		Channels:   channels,
		DurationMS: pcmDurationMS(len(pcm), sampleRate, channels),
	}
}

func pcmDurationMS(byteLen, sampleRate, channels int) int64 {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := byteLen / 2 / channels
	return int64(samples) * 1000 / int64(sampleRate)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
