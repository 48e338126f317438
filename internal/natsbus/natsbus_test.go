package natsbus

import (
	"testing"
	"time"

	"github.com/ShayCichocki/swarmer/pkg/models"
)

func startBus(t *testing.T) *Embedded {
	t.Helper()
	bus, err := StartEmbedded(0)
	if err != nil {
		t.Fatalf("failed to start embedded nats: %v", err)
	}
	t.Cleanup(bus.Close)
	return bus
}

func TestSubject(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "swarmer.swarm-1.events"},
		{"ci.", "ci.swarm-1.events"},
		{"org.team", "org.team.swarm-1.events"},
	}
	for _, tt := range tests {
		p := NewPublisher(nil, tt.prefix)
		if got := p.Subject("swarm-1"); got != tt.want {
			t.Errorf("Subject() with prefix %q = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

func TestPublishSubscribe(t *testing.T) {
	bus := startBus(t)

	pub, err := Connect(bus.ClientURL(), "test")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer pub.Close()

	received := make(chan Message, 4)
	unsubscribe, err := pub.Subscribe("*", func(m Message) { received <- m })
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsubscribe()
	if err := pub.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	ev := models.CoordinationEvent{
		Seq:     7,
		Time:    time.Now(),
		Type:    models.EventTaskCompleted,
		AgentID: "agent-1",
		TaskID:  "task-1",
		Data:    map[string]string{"tokens": "150"},
	}
	if err := pub.Publish("swarm-42", ev); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := pub.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	select {
	case m := <-received:
		if m.SwarmID != "swarm-42" || m.Event.Seq != 7 || m.Event.Type != models.EventTaskCompleted {
			t.Errorf("received %+v", m)
		}
		if m.Event.Data["tokens"] != "150" {
			t.Errorf("Data = %v", m.Event.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	if _, err := Connect("nats://127.0.0.1:1", ""); err == nil {
		t.Error("expected error for unreachable server")
	}
}
