package transcribe

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
	"github.com/nats-io/nats.go"
)

// Service serves transcription requests over the bus: WAV in, transcript
// (and optionally diarized roster and subtitles) out.
type Service struct {
	cfg         config.TranscribeConfig
	bus         *bus.Client
	transcriber *Transcriber
	sub         *nats.Subscription
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	logger      *slog.Logger
}

func NewService(parent context.Context, cfg config.TranscribeConfig, busClient *bus.Client, transcriber *Transcriber, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:         cfg,
		bus:         busClient,
		transcriber: transcriber,
		ctx:         ctx,
		cancel:      cancel,
		logger:      log.With(slog.String("component", "transcribe-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectTranscribeRequest, s.handleRequest)
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
	var req protocol.TranscribeRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode transcribe request", slogError(err))
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
			s.logger.Warn("failed to marshal transcribe result", slogError(err))
			return
		}
		if err := s.bus.Conn().Publish(protocol.SubjectTranscribeResult, data); err != nil {
			s.logger.Warn("failed to publish transcribe result", slogError(err))
		}
	}()
}

func (s *Service) run(ctx context.Context, req protocol.TranscribeRequest) protocol.TranscribeResult {
	result := protocol.TranscribeResult{RequestID: req.RequestID}

	wavBytes, err := base64.StdEncoding.DecodeString(req.WAVBase64)
	if err != nil {
		result.Error = "decode wav payload: " + err.Error()
		return result
	}
	buffer, err := audio.DecodeWAV(bytes.NewReader(wavBytes))
	if err != nil {
		result.Error = "parse wav payload: " + err.Error()
		return result
	}

	language := req.Language
	if language == "" {
		language = s.cfg.Language
	}

	project, err := s.transcriber.Project(ctx, Request{
		Audio:        buffer,
		Language:     language,
		Diarize:      req.Diarize,
		SpeakerCount: req.SpeakerCount,
	}, SubtitleFormat(req.SubtitleFormat))
	if err != nil {
		s.logger.Warn("transcription run failed", slogError(err))
		result.Error = err.Error()
		return result
	}

	result.Text = project.Transcript.Text
	result.Subtitles = project.Subtitles
	for _, seg := range project.Transcript.Segments {
		result.Segments = append(result.Segments, protocol.TranscriptSegment{
			Text:         seg.Text,
			StartMS:      seg.StartMS,
			EndMS:        seg.EndMS,
			SpeakerLabel: seg.SpeakerLabel,
		})
	}
	for _, sp := range project.Speakers {
		result.Speakers = append(result.Speakers, protocol.SpeakerSummary{
			Label:         sp.Label,
			SegmentCount:  sp.SegmentCount,
			TotalSpeechMS: sp.TotalSpeechMS,
		})
	}
	return result
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
