package notify

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type captureBroadcaster struct {
	msgs [][]byte
}

func (c *captureBroadcaster) Broadcast(msg []byte) {
	c.msgs = append(c.msgs, msg)
}

func TestRaiseBroadcastsAndLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	out := &captureBroadcaster{}
	n := NewNotifier(zap.New(core), out)

	note := n.Raise(TypeError, "ABRP::config user token not set")

	if _, err := uuid.Parse(note.ID); err != nil {
		t.Fatalf("expected uuid id, got %q", note.ID)
	}
	if note.Subtype != Subtype {
		t.Fatalf("unexpected subtype %q", note.Subtype)
	}
	if len(out.msgs) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(out.msgs))
	}
	var decoded Notification
	if err := json.Unmarshal(out.msgs[0], &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != TypeError || decoded.Message != note.Message {
		t.Fatalf("unexpected broadcast %+v", decoded)
	}
	if logs.FilterLevelExact(zapcore.ErrorLevel).Len() != 1 {
		t.Fatalf("expected error-level log")
	}
}

func TestRaiseWithoutBroadcaster(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	n := NewNotifier(zap.New(core), nil)
	n.Raise(TypeAlert, "already running")
	if logs.FilterLevelExact(zapcore.WarnLevel).Len() != 1 {
		t.Fatalf("expected alert logged as warning")
	}
}
