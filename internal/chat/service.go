package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cantolabs/canto-core/internal/bus"
	"github.com/cantolabs/canto-core/internal/config"
	"github.com/cantolabs/canto-core/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Service serves one-shot chat completions over the bus.
type Service struct {
	cfg       config.ChatConfig
	bus       *bus.Client
	generator Generator
	sub       *nats.Subscription
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	ready     bool
	logger    *slog.Logger
}

func NewService(parent context.Context, cfg config.ChatConfig, busClient *bus.Client, generator Generator, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:       cfg,
		bus:       busClient,
		generator: generator,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.With(slog.String("component", "chat-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectChatRequest, s.handleRequest)
	if err != nil {
		return fmt.Errorf("subscribe chat requests: %w", err)
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

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.ChatRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode chat request", slogError(err))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, 60*time.Second)
		defer cancel()

		system := req.System
		if system == "" {
			system = s.cfg.SystemPrompt
		}
		var messages []Message
		if system != "" {
			messages = append(messages, Message{Role: "system", Content: system})
		}
		messages = append(messages, Message{Role: "user", Content: req.Prompt})

		temperature := req.Temperature
		if temperature == 0 {
			temperature = s.cfg.Temperature
		}

		start := time.Now()
		content, err := s.generator.Chat(ctx, Request{
			Messages:    messages,
			Model:       s.cfg.Model,
			Temperature: temperature,
			MaxTokens:   coalesceInt(req.MaxTokens, s.cfg.MaxTokens),
		})
		response := protocol.ChatResponse{
			RequestID: req.RequestID,
			SessionID: req.SessionID,
			Timestamp: time.Now().UTC(),
		}
		if err != nil {
			s.logger.Warn("chat generation failed", slogError(err))
			response.Error = err.Error()
		} else {
			response.Content = content
			s.logger.Info("chat generation complete", slog.Duration("latency", time.Since(start)))
		}
		s.publishResponse(response)
	}()
}

func (s *Service) publishResponse(response protocol.ChatResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		s.logger.Warn("failed to marshal chat response", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectChatResponse, data); err != nil {
		s.logger.Warn("failed to publish chat response", slogError(err))
	}
}

func coalesceInt(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
