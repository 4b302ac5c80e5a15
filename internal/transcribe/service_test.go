package transcribe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/cantolabs/canto-core/internal/audio"
	"github.com/cantolabs/canto-core/internal/bus"
	"github.com/cantolabs/canto-core/internal/config"
	"github.com/cantolabs/canto-core/internal/protocol"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

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

func awaitTranscribeResult(t *testing.T, client *bus.Client) protocol.TranscribeResult {
	t.Helper()
	results := make(chan protocol.TranscribeResult, 1)
	sub, err := client.Conn().Subscribe(protocol.SubjectTranscribeResult, func(msg *nats.Msg) {
		var res protocol.TranscribeResult
		if json.Unmarshal(msg.Data, &res) == nil {
			results <- res
		}
	})
	if err != nil {
		t.Fatalf("subscribe results: %v", err)
	}
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	select {
	case res := <-results:
		return res
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for transcribe result")
		return protocol.TranscribeResult{}
	}
}

func startTranscribeService(t *testing.T, client *bus.Client, cfg config.TranscribeConfig) {
	t.Helper()
	svc := NewService(context.Background(), cfg, client, NewTranscriber(NewMockRecognizer(), newLogger()), newLogger())
	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Close)
	if !svc.Healthy() {
		t.Fatal("service must be healthy after start")
	}
}

func wavPayload(t *testing.T, durationMS int64) string {
	t.Helper()
	var buf bytes.Buffer
	if err := audio.EncodeWAV(&buf, audio.Silence(durationMS, audio.FormatWAV, 16000, 1)); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestServiceTranscribesWAVPayload(t *testing.T) {
	client := startTestBus(t)
	startTranscribeService(t, client, config.TranscribeConfig{Enabled: true, Language: "en"})

	req, err := json.Marshal(protocol.TranscribeRequest{
		RequestID:      "req-1",
		WAVBase64:      wavPayload(t, 1000),
		SubtitleFormat: "srt",
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if err := client.Conn().Publish(protocol.SubjectTranscribeRequest, req); err != nil {
		t.Fatalf("publish request: %v", err)
	}

	res := awaitTranscribeResult(t, client)
	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if res.RequestID != "req-1" {
		t.Fatalf("result not correlated: %+v", res)
	}
	if !strings.Contains(res.Text, "transcript of") {
		t.Fatalf("unexpected transcript text: %q", res.Text)
	}
	if len(res.Segments) != 1 || res.Segments[0].EndMS != 1000 {
		t.Fatalf("unexpected segments: %+v", res.Segments)
	}
	if !strings.HasPrefix(res.Subtitles, "1\n00:00:00,000 --> 00:00:01,000") {
		t.Fatalf("unexpected subtitles: %q", res.Subtitles)
	}
}

func TestServiceRejectsMalformedPayload(t *testing.T) {
	client := startTestBus(t)
	startTranscribeService(t, client, config.TranscribeConfig{Enabled: true})

	req, _ := json.Marshal(protocol.TranscribeRequest{RequestID: "req-bad", WAVBase64: "not a wav"})
	if err := client.Conn().Publish(protocol.SubjectTranscribeRequest, req); err != nil {
		t.Fatalf("publish request: %v", err)
	}

	res := awaitTranscribeResult(t, client)
	if res.RequestID != "req-bad" || res.Error == "" {
		t.Fatalf("expected a correlated error result, got %+v", res)
	}
}
