package capability

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cantolabs/canto-core/internal/bus"
	"github.com/cantolabs/canto-core/internal/config"
	"github.com/cantolabs/canto-core/internal/protocol"
	"github.com/nats-io/nats-server/v2/server"
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

func startRegistry(t *testing.T, client *bus.Client, id string, caps ...config.NodeCapability) *Registry {
	t.Helper()
	reg, err := NewRegistry(context.Background(), config.NodeConfig{
		ID:                id,
		Role:              "voice-node",
		HeartbeatInterval: 50,
		HeartbeatTimeout:  5000,
		Capabilities:      caps,
	}, client, newLogger())
	if err != nil {
		t.Fatalf("start registry %s: %v", id, err)
	}
	t.Cleanup(reg.Close)
	return reg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRequestSubjectMapping(t *testing.T) {
	cases := map[string]string{
		CapSynthesize: protocol.SubjectSynthesisRequest,
		CapTranscribe: protocol.SubjectTranscribeRequest,
		CapChat:       protocol.SubjectChatRequest,
		CapSession:    protocol.SubjectAudioFramePrefix + ".*",
		"voice.other": "",
	}
	for name, want := range cases {
		if got := RequestSubject(name); got != want {
			t.Fatalf("%s: expected %q, got %q", name, want, got)
		}
	}
}

func TestRegistryDiscoversServingNodes(t *testing.T) {
	client := startTestBus(t)

	regA := startRegistry(t, client, "node-a", config.NodeCapability{Name: CapSynthesize, Tier: "gpu"})
	startRegistry(t, client, "node-b", config.NodeCapability{Name: CapChat})

	waitFor(t, "node-b announcement", func() bool {
		return len(regA.Serving(CapChat)) == 1
	})

	serving := regA.Serving(CapChat)
	if serving[0].ID != "node-b" {
		t.Fatalf("unexpected serving node: %+v", serving[0])
	}
	if serving[0].Capabilities[0].Subject != protocol.SubjectChatRequest {
		t.Fatalf("announcement must carry the serving subject: %+v", serving[0].Capabilities[0])
	}

	subject, ok := regA.ResolveSubject(CapChat)
	if !ok || subject != protocol.SubjectChatRequest {
		t.Fatalf("expected chat subject, got %q ok=%v", subject, ok)
	}
	if _, ok := regA.ResolveSubject(CapTranscribe); ok {
		t.Fatal("no node serves transcription, resolve must fail")
	}

	snapshot := regA.Snapshot()
	if len(snapshot) != 2 || snapshot[0].ID != "node-a" || snapshot[1].ID != "node-b" {
		t.Fatalf("snapshot must list both nodes ordered by id: %+v", snapshot)
	}

	gpu := regA.Query(WithTierFilter("gpu"))
	if len(gpu) != 1 || gpu[0].ID != "node-a" {
		t.Fatalf("tier filter must match the local node: %+v", gpu)
	}
}

func TestRegistryLocalNodeIsHealthy(t *testing.T) {
	client := startTestBus(t)
	reg := startRegistry(t, client, "node-solo", config.NodeCapability{Name: CapSession})

	waitFor(t, "self announcement", reg.Healthy)
	local := reg.LocalCapabilities()
	if len(local) != 1 || local[0].Name != CapSession {
		t.Fatalf("unexpected local capabilities: %+v", local)
	}
}
