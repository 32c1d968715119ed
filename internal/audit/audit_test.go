package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapSink_Record(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewZapSink(zap.New(core))

	actor, target := uuid.New(), uuid.New()
	ctx := WithRequestID(context.Background(), "req-123")
	sink.Record(ctx, Entry{
		Actor:      actor,
		ActorEmail: "desk@hotel.test",
		Action:     "note_added",
		Target:     target,
		Detail:     "Added a note",
		At:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})

	if logs.Len() != 1 {
		t.Fatalf("expected one entry, got %d", logs.Len())
	}
	fields := logs.All()[0].ContextMap()
	if fields["type"] != "audit" {
		t.Errorf("unexpected type: %v", fields["type"])
	}
	if fields["action"] != "note_added" {
		t.Errorf("unexpected action: %v", fields["action"])
	}
	if fields["actor"] != actor.String() || fields["target"] != target.String() {
		t.Errorf("unexpected actor/target: %v / %v", fields["actor"], fields["target"])
	}
	if fields["request_id"] != "req-123" {
		t.Errorf("unexpected request id: %v", fields["request_id"])
	}
	if fields["actor_email"] != "desk@hotel.test" {
		t.Errorf("unexpected actor email: %v", fields["actor_email"])
	}
}

func TestWithRequestID_IgnoresBlank(t *testing.T) {
	ctx := WithRequestID(context.Background(), "   ")
	if got := RequestIDFromContext(ctx); got != "" {
		t.Errorf("expected empty request id, got %q", got)
	}
}
