package synth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/cantolabs/canto-core/internal/audio"
	"github.com/cantolabs/canto-core/internal/bus"
	"github.com/cantolabs/canto-core/internal/config"
	"github.com/cantolabs/canto-core/internal/pacing"
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

func awaitSynthesisResult(t *testing.T, client *bus.Client) protocol.SynthesisResult {
	t.Helper()
	results := make(chan protocol.SynthesisResult, 1)
	sub, err := client.Conn().Subscribe(protocol.SubjectSynthesisResult, func(msg *nats.Msg) {
		var res protocol.SynthesisResult
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
		t.Fatal("timed out waiting for synthesis result")
		return protocol.SynthesisResult{}
	}
}

func newTestService(t *testing.T, client *bus.Client, cfg config.SynthesisConfig, timingCfg config.TimingConfig) *Service {
	t.Helper()
	pipeline := NewPipeline(NewMockSynth(audio.FormatWAV, 22050, 1), pacing.NewAnalyzer(), newLogger())
	pipeline.SetBreathingRoom(timingCfg.BreathingRoom)
	svc := NewService(context.Background(), cfg, timingCfg, client, pipeline, newLogger())
	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func TestServiceSynthesizesScenePlan(t *testing.T) {
	client := startTestBus(t)
	cfg := config.SynthesisConfig{
		Enabled:        true,
		Voice:          "voice-1",
		BaseRate:       1.0,
		DefaultPauseMS: 300,
		FPS:            24,
	}
	svc := newTestService(t, client, cfg, config.TimingConfig{FPS: 30, BreathingRoom: 1.15})
	if !svc.Healthy() {
		t.Fatal("service must be healthy after start")
	}

	req, err := json.Marshal(protocol.SynthesisRequest{
		RequestID: "req-1",
		Scenes: []protocol.SynthesisScene{
			{ID: "intro", Narration: "welcome to the launch"},
			{ID: "cta", Narration: "get started now"},
		},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if err := client.Conn().Publish(protocol.SubjectSynthesisRequest, req); err != nil {
		t.Fatalf("publish request: %v", err)
	}

	res := awaitSynthesisResult(t, client)
	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if res.RequestID != "req-1" {
		t.Fatalf("result not correlated: %+v", res)
	}
	// no fps on the request: the synthesis section's fps wins
	if res.FPS != 24 {
		t.Fatalf("expected configured fps 24, got %d", res.FPS)
	}
	if len(res.Timing) != 2 || res.Timing[0].SceneID != "intro" || res.Timing[1].SceneID != "cta" {
		t.Fatalf("unexpected timing map: %+v", res.Timing)
	}
	for _, e := range res.Timing {
		if e.RecommendedSceneFrames < e.DurationFrames {
			t.Fatalf("recommended frames must include breathing room: %+v", e)
		}
	}
	wav, err := base64.StdEncoding.DecodeString(res.WAVBase64)
	if err != nil || len(wav) == 0 {
		t.Fatalf("result must carry a WAV payload: err=%v len=%d", err, len(wav))
	}
	if res.DurationMS <= 0 {
		t.Fatalf("expected a positive track duration, got %d", res.DurationMS)
	}
}

func TestServiceReportsFailedRun(t *testing.T) {
	client := startTestBus(t)
	newTestService(t, client, config.SynthesisConfig{Enabled: true, BaseRate: 1.0}, config.TimingConfig{FPS: 30})

	req, _ := json.Marshal(protocol.SynthesisRequest{RequestID: "req-empty"})
	if err := client.Conn().Publish(protocol.SubjectSynthesisRequest, req); err != nil {
		t.Fatalf("publish request: %v", err)
	}

	res := awaitSynthesisResult(t, client)
	if res.RequestID != "req-empty" || res.Error == "" {
		t.Fatalf("expected a correlated error result, got %+v", res)
	}
	if res.WAVBase64 != "" {
		t.Fatal("failed runs must not carry audio")
	}
}
