package chat

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cantolabs/canto-core/internal/bus"
	"github.com/cantolabs/canto-core/internal/config"
	"github.com/cantolabs/canto-core/internal/protocol"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startTestBus(t *testing.T) *bus.Client {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("create nats server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(ns.Shutdown)

	client, err := bus.Connect(context.Background(), config.BusConfig{
		Servers:        []string{ns.ClientURL()},
		ConnectTimeout: 2000,
	}, newLogger())
	if err != nil {
		t.Fatalf("connect to nats: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestServiceAnswersChatRequests(t *testing.T) {
	client := startTestBus(t)
	cfg := config.ChatConfig{
		Enabled:      true,
		Mode:         "mock",
		SystemPrompt: "You are a helpful voice assistant.",
		MaxTokens:    128,
		Temperature:  0.7,
	}
	svc := NewService(context.Background(), cfg, client, NewMockGenerator(), newLogger())
	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	defer svc.Close()
	if !svc.Healthy() {
		t.Fatal("service must be healthy after start")
	}

	responses := make(chan protocol.ChatResponse, 1)
	sub, err := client.Conn().Subscribe(protocol.SubjectChatResponse, func(msg *nats.Msg) {
		var res protocol.ChatResponse
		if json.Unmarshal(msg.Data, &res) == nil {
			responses <- res
		}
	})
	if err != nil {
		t.Fatalf("subscribe responses: %v", err)
	}
	defer sub.Unsubscribe()

	req, err := json.Marshal(protocol.ChatRequest{
		RequestID: "req-1",
		SessionID: "sess-1",
		Prompt:    "hello there",
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if err := client.Conn().Publish(protocol.SubjectChatRequest, req); err != nil {
		t.Fatalf("publish request: %v", err)
	}

	select {
	case res := <-responses:
		if res.Error != "" {
			t.Fatalf("unexpected error: %s", res.Error)
		}
		if res.RequestID != "req-1" || res.SessionID != "sess-1" {
			t.Fatalf("response not correlated: %+v", res)
		}
		if res.Content != "[mock reply to hello there]" {
			t.Fatalf("unexpected content: %q", res.Content)
		}
		if res.Timestamp.IsZero() {
			t.Fatal("response must carry a timestamp")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for chat response")
	}
}

func TestServiceDisabledIsHealthyNoop(t *testing.T) {
	client := startTestBus(t)
	svc := NewService(context.Background(), config.ChatConfig{Enabled: false}, client, NewMockGenerator(), newLogger())
	if err := svc.Start(); err != nil {
		t.Fatalf("start must be a no-op when disabled: %v", err)
	}
	defer svc.Close()
	if !svc.Healthy() {
		t.Fatal("disabled service reports healthy")
	}
}
