package broker

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
)

// natsURL returns the NATS server to test against, skipping the test when
// none is configured.
func natsURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("PULSEHUB_TEST_NATS_URL")
	if url == "" {
		t.Skip("PULSEHUB_TEST_NATS_URL not set; skipping NATS broker test")
	}
	return url
}

// TestNATSRoundTrip publishes through a real NATS server and waits for the
// subscription to deliver it back.
func TestNATSRoundTrip(t *testing.T) {
	n, err := NewNATS(natsURL(t), zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to connect to NATS: %v", err)
	}
	t.Cleanup(func() { _ = n.Close() })

	type delivery struct {
		topic   string
		payload string
	}
	deliveries := make(chan delivery, 1)

	ctx := context.Background()
	if err := n.Subscribe(ctx, func(topic string, payload []byte) {
		deliveries <- delivery{topic, string(payload)}
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := n.Publish(ctx, "lobby", []byte("hello")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-deliveries:
		if got.topic != "lobby" || got.payload != "hello" {
			t.Errorf("Expected lobby/hello, got %s/%s", got.topic, got.payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for NATS delivery")
	}
}
