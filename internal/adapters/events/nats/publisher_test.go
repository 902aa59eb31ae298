package nats

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
)

func runServer(t *testing.T) *server.Server {
	t.Helper()

	srv, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   server.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestNewPublisher_RequiresURL(t *testing.T) {
	if _, err := NewPublisher(Config{}, nil); err == nil {
		t.Error("expected error for empty url")
	}
}

func TestPublish(t *testing.T) {
	srv := runServer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	publisher, err := NewPublisher(Config{URL: srv.ClientURL(), Subject: "test.events"}, logger)
	if err != nil {
		t.Fatalf("NewPublisher failed: %v", err)
	}
	defer publisher.Close()

	sub, err := natsgo.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("connect subscriber: %v", err)
	}
	defer sub.Close()

	msgs := make(chan *natsgo.Msg, 1)
	if _, err := sub.ChanSubscribe("test.events", msgs); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	event := &domain.SubmissionEvent{
		Type:         domain.SubmissionEventRecorded,
		LogID:        "log-1",
		SubmissionID: "sub-1",
		Timestamp:    time.Now().UTC(),
		Verdict:      "human",
	}
	if err := publisher.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-msgs:
		var got domain.SubmissionEvent
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.SubmissionID != "sub-1" || got.Verdict != "human" {
			t.Errorf("received %+v", got)
		}
		if id := msg.Header.Get(natsgo.MsgIdHdr); id != "verification.recorded:sub-1" {
			t.Errorf("Nats-Msg-Id = %q", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublish_CanceledContext(t *testing.T) {
	srv := runServer(t)

	publisher, err := NewPublisher(Config{URL: srv.ClientURL()}, nil)
	if err != nil {
		t.Fatalf("NewPublisher failed: %v", err)
	}
	defer publisher.Close()

	if publisher.Subject() != DefaultSubject {
		t.Errorf("Subject() = %q, want %q", publisher.Subject(), DefaultSubject)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := publisher.Publish(ctx, &domain.SubmissionEvent{SubmissionID: "x"}); err == nil {
		t.Error("expected error for canceled context")
	}
}
