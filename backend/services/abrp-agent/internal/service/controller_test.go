package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"abrplink/backend/services/abrp-agent/internal/configstore"
	"abrplink/backend/services/abrp-agent/internal/host"
	"abrplink/backend/services/abrp-agent/internal/scheduler"
)

func TestControllerRunsOnScheduler(t *testing.T) {
	sched := scheduler.New(map[string]time.Duration{}, 16, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sched.Run(ctx) }()

	source := &fakeSource{record: parkedAt(time.Now().Unix())}
	sender := &fakeSender{}
	agent := NewAgent(sched, source, sender, configstore.NewMemoryStore(), &fakeNotifier{}, nil, zap.NewNop(), Options{})
	ctrl := NewController(agent, sched)

	if _, err := ctrl.SetSending(ctx, true); !errors.Is(err, ErrTokenMissing) {
		t.Fatalf("expected ErrTokenMissing, got %v", err)
	}
	if err := ctrl.SetToken(ctx, "tok"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	st, err := ctrl.SetSending(ctx, true)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if st.State != StateRunning || !st.LowRateActive {
		t.Fatalf("unexpected status %+v", st)
	}
	if sched.Subscribed(host.EventVehicleOn) != 1 {
		t.Fatalf("expected vehicle.on subscription")
	}

	if err := ctrl.Publish(host.EventVehicleOn); err != nil {
		t.Fatalf("publish: %v", err)
	}
	st, err = ctrl.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.LastSent == nil {
		t.Fatalf("expected vehicle.on to trigger an evaluation and send, got %+v", st)
	}

	if err := ctrl.Publish("vehicle.crash"); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}

	rec, err := ctrl.Info(ctx)
	if err != nil || rec.SOC == nil {
		t.Fatalf("info: %v %+v", err, rec)
	}
	if _, err := ctrl.Onetime(ctx); err != nil {
		t.Fatalf("onetime: %v", err)
	}

	if err := ctrl.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := ctrl.Stop(ctx); err != nil {
		t.Fatalf("stop when stopped: %v", err)
	}
	if sched.Subscribed(scheduler.TopicLowRate) != 0 {
		t.Fatalf("expected low-rate handler removed")
	}
	if err := ctrl.ResetConfig(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
}
