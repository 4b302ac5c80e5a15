package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/cantolabs/canto-core/internal/audio"
	"github.com/cantolabs/canto-core/internal/bus"
	"github.com/cantolabs/canto-core/internal/config"
	"github.com/cantolabs/canto-core/internal/protocol"
	"github.com/cantolabs/canto-core/internal/script"
	"github.com/nats-io/nats.go"
)

// Service serves synthesis requests over the bus: each request carries a
// scene plan, each result the assembled WAV track and its timing map.
type Service struct {
	cfg       config.SynthesisConfig
	timingCfg config.TimingConfig
	bus       *bus.Client
	pipeline  *Pipeline
	sub       *nats.Subscription
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger
}

func NewService(parent context.Context, cfg config.SynthesisConfig, timingCfg config.TimingConfig, busClient *bus.Client, pipeline *Pipeline, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:       cfg,
		timingCfg: timingCfg,
		bus:       busClient,
		pipeline:  pipeline,
		ctx:       ctx,
		cancel:    cancel,
		logger:    log.With(slog.String("component", "synth-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectSynthesisRequest, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.SynthesisRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode synthesis request", slogError(err))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.ctx, 120*time.Second)
		defer cancel()

		result := s.run(ctx, req)
		data, err := json.Marshal(result)
		if err != nil {
			s.logger.Warn("failed to marshal synthesis result", slogError(err))
			return
		}
		if err := s.bus.Conn().Publish(protocol.SubjectSynthesisResult, data); err != nil {
			s.logger.Warn("failed to publish synthesis result", slogError(err))
		}
	}()
}

func (s *Service) run(ctx context.Context, req protocol.SynthesisRequest) protocol.SynthesisResult {
	result := protocol.SynthesisResult{RequestID: req.RequestID}

	scenes := make([]script.Scene, 0, len(req.Scenes))
	for _, sc := range req.Scenes {
		scenes = append(scenes, script.Scene{ID: sc.ID, Narration: sc.Narration, DurationFrames: sc.DurationFrames})
	}

	opts := Options{
		VoiceID:        req.VoiceID,
		Language:       req.Language,
		BaseRate:       s.cfg.BaseRate,
		DefaultPauseMS: s.cfg.DefaultPauseMS,
		FPS:            req.FPS,
	}
	if opts.VoiceID == "" {
		opts.VoiceID = s.cfg.Voice
	}
	if opts.FPS <= 0 {
		opts.FPS = s.cfg.FPS
	}
	if opts.FPS <= 0 {
		opts.FPS = s.timingCfg.FPS
	}

	run, err := s.pipeline.RunScenePlan(ctx, scenes, opts)
	if err != nil {
		s.logger.Warn("synthesis run failed", slogError(err))
		result.Error = err.Error()
		return result
	}

	var wavBuf bytes.Buffer
	if err := audio.EncodeWAV(&wavBuf, run.Audio); err != nil {
		s.logger.Warn("failed to encode synthesis track", slogError(err))
		result.Error = err.Error()
		return result
	}

	result.WAVBase64 = base64.StdEncoding.EncodeToString(wavBuf.Bytes())
	result.DurationMS = run.Audio.DurationMS
	result.FPS = run.Timing.FPS
	for _, e := range run.Timing.Entries {
		result.Timing = append(result.Timing, protocol.TimingEntry{
			SceneID:                e.SceneID,
			DurationMS:             e.DurationMS,
			DurationFrames:         e.DurationFrames,
			RecommendedSceneFrames: e.RecommendedSceneFrames,
		})
	}
	return result
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
