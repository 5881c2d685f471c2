package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"abrplink/backend/services/abrp-agent/internal/host"
	"abrplink/backend/services/abrp-agent/internal/models"
	"abrplink/backend/services/abrp-agent/internal/notify"
	"abrplink/backend/services/abrp-agent/internal/observability"
	"abrplink/backend/services/abrp-agent/internal/policy"
	"abrplink/backend/services/abrp-agent/internal/scheduler"
	"abrplink/backend/services/abrp-agent/internal/smoother"
)

// ErrTokenMissing is returned when no ABRP user token is configured.
var ErrTokenMissing = errors.New("abrp: user token not set")

// Send triggers recorded in metrics.
const (
	TriggerPolicy  = "policy"
	TriggerOnetime = "onetime"
)

// State of the periodic sender.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// Bus is the scheduler surface the agent subscribes its handlers on.
type Bus interface {
	Subscribe(topic string, handler scheduler.Handler) scheduler.SubscriptionID
	Unsubscribe(id scheduler.SubscriptionID)
}

// TelemetrySource builds records and raw samples from the vehicle registry.
type TelemetrySource interface {
	Build(ctx context.Context) models.TelemetryRecord
	Sample(ctx context.Context) (models.Sample, bool)
}

// Sender transmits records without blocking. The returned error covers failures before the
// request is started (an unencodable record); the outcome of the exchange goes to the
// callbacks. The sender logs and counts failures itself, so callers may pass nil callbacks.
type Sender interface {
	Send(token string, record models.TelemetryRecord, done func(status int), fail func(error)) error
}

// Notifier raises operator-visible notifications.
type Notifier interface {
	Raise(typ notify.Type, message string) notify.Notification
}

// Options tunes the agent.
type Options struct {
	Policy        policy.Params
	BufferSize    int
	LowRateTopic  string
	HighRateTopic string
	Now           func() time.Time
}

// Status is a snapshot of the agent state.
type Status struct {
	State          State                   `json:"state"`
	LowRateActive  bool                    `json:"low_rate_active"`
	HighRateActive bool                    `json:"high_rate_active"`
	BufferLen      int                     `json:"buffer_len"`
	LastSentUTC    int64                   `json:"last_sent_utc"`
	LastSent       *models.TelemetryRecord `json:"last_sent,omitempty"`
	LastRule       policy.Rule             `json:"last_rule,omitempty"`
	MaxInterval    string                  `json:"max_interval,omitempty"`
}

// Agent is the telemetry dispatcher. Its methods must be called from the scheduler loop
// (directly as handlers or through Controller), which serializes all access to its state.
type Agent struct {
	bus       Bus
	source    TelemetrySource
	sender    Sender
	store     host.ConfigStore
	notifier  Notifier
	evaluator *policy.Evaluator
	buffer    *smoother.Buffer
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time

	lowTopic  string
	highTopic string

	state       State
	lowSubs     []scheduler.SubscriptionID
	highSub     scheduler.SubscriptionID
	highActive  bool
	lastSent    models.TelemetryRecord
	lastSentUTC int64
	lastRule    policy.Rule
	lastMax     time.Duration
}

// NewAgent builds a stopped agent.
func NewAgent(
	bus Bus,
	source TelemetrySource,
	sender Sender,
	store host.ConfigStore,
	notifier Notifier,
	metrics *observability.Metrics,
	logger *zap.Logger,
	opts Options,
) *Agent {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LowRateTopic == "" {
		opts.LowRateTopic = scheduler.TopicLowRate
	}
	if opts.HighRateTopic == "" {
		opts.HighRateTopic = scheduler.TopicHighRate
	}
	return &Agent{
		bus:       bus,
		source:    source,
		sender:    sender,
		store:     store,
		notifier:  notifier,
		evaluator: policy.NewEvaluator(opts.Policy),
		buffer:    smoother.NewBuffer(opts.BufferSize),
		metrics:   metrics,
		logger:    logger,
		now:       opts.Now,
		lowTopic:  opts.LowRateTopic,
		highTopic: opts.HighRateTopic,
		state:     StateStopped,
	}
}

// Start subscribes the evaluation handler. It refuses to run without a user token.
func (a *Agent) Start(ctx context.Context) error {
	if a.state == StateRunning {
		a.logger.Warn("start requested while already running")
		a.notifier.Raise(notify.TypeAlert, "ABRP::already running")
		return nil
	}

	if _, err := a.token(ctx); err != nil {
		a.notifier.Raise(notify.TypeError, "ABRP::config user token not set")
		return err
	}

	a.lastSent = models.TelemetryRecord{}
	a.lastSentUTC = 0
	a.buffer.Drain()
	for _, topic := range []string{a.lowTopic, host.EventVehicleOn, host.EventVehicleOff} {
		a.lowSubs = append(a.lowSubs, a.bus.Subscribe(topic, a.Tick))
	}
	a.state = StateRunning
	a.metrics.Running(true)
	a.logger.Info("agent started", zap.String("topic", a.lowTopic))
	a.notifier.Raise(notify.TypeInfo, "ABRP::started")
	return nil
}

// Stop unsubscribes both handlers. In-flight requests are left to finish on their own.
func (a *Agent) Stop(_ context.Context) error {
	if a.state == StateStopped {
		a.logger.Warn("stop requested while already stopped")
		a.notifier.Raise(notify.TypeAlert, "ABRP::already stopped")
		return nil
	}

	for _, id := range a.lowSubs {
		a.bus.Unsubscribe(id)
	}
	a.lowSubs = nil
	a.setSampling(false)
	a.buffer.Drain()
	a.metrics.BufferLen(0)

	a.state = StateStopped
	a.metrics.Running(false)
	a.logger.Info("agent stopped")
	a.notifier.Raise(notify.TypeInfo, "ABRP::stopped")
	return nil
}

// SetSending starts or stops periodic transmission.
func (a *Agent) SetSending(ctx context.Context, enabled bool) error {
	if enabled {
		return a.Start(ctx)
	}
	return a.Stop(ctx)
}

// Tick is the low-rate handler, also invoked on vehicle on/off events.
func (a *Agent) Tick(ctx context.Context, topic string) {
	if a.state != StateRunning {
		return
	}
	a.metrics.Tick()

	current := a.source.Build(ctx)
	if sample, ok := a.buffer.Drain(); ok {
		current.Power = models.Round(&sample.Power, models.PrecisionPower)
		current.Speed = models.Round(&sample.Speed, models.PrecisionDefault)
	}
	a.metrics.BufferLen(0)

	elapsed := time.Duration(current.Timestamp(a.now().Unix())-a.lastSentUTC) * time.Second
	decision := a.evaluator.Evaluate(current, a.lastSent, elapsed)
	a.lastRule = decision.Rule
	a.lastMax = decision.MaxInterval
	a.metrics.MaxInterval(decision.MaxInterval)

	a.logger.Debug("telemetry evaluated",
		zap.String("topic", topic),
		zap.String("rule", string(decision.Rule)),
		zap.Duration("elapsed", decision.Elapsed),
		zap.Duration("max_interval", decision.MaxInterval),
		zap.Bool("send", decision.Send),
	)

	if decision.Send {
		if a.transmit(ctx, current, TriggerPolicy) == nil {
			a.lastSent = current
			a.lastSentUTC = current.Timestamp(a.now().Unix())
		}
	} else {
		a.metrics.Skipped()
	}

	a.setSampling(!current.Parked())
}

// Sample is the high-rate handler feeding the smoothing buffer.
func (a *Agent) Sample(ctx context.Context, _ string) {
	if a.state != StateRunning {
		return
	}
	s, ok := a.source.Sample(ctx)
	if !ok {
		return
	}
	a.buffer.Accumulate(s.Power, s.Speed)
	a.metrics.Sampled(a.buffer.Len())
}

// Info returns the record that would be sent now, without draining samples.
func (a *Agent) Info(ctx context.Context) models.TelemetryRecord {
	return a.source.Build(ctx)
}

// Onetime sends the current record immediately. The periodic last-sent state is not touched.
func (a *Agent) Onetime(ctx context.Context) (models.TelemetryRecord, error) {
	record := a.source.Build(ctx)
	if err := a.transmit(ctx, record, TriggerOnetime); err != nil {
		return record, err
	}
	return record, nil
}

// ResetConfig clears every stored agent setting.
func (a *Agent) ResetConfig(ctx context.Context) error {
	values, err := a.store.GetValues(ctx, host.ConfigNamespace, host.ConfigPrefix)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	cleared := make(map[string]string, len(values)+1)
	for k := range values {
		cleared[k] = ""
	}
	cleared[host.KeyUserToken] = ""
	if err := a.store.SetValues(ctx, host.ConfigNamespace, host.ConfigPrefix, cleared); err != nil {
		return fmt.Errorf("reset config: %w", err)
	}
	a.logger.Info("agent config reset", zap.Int("keys", len(cleared)))
	a.notifier.Raise(notify.TypeInfo, "ABRP::config reset")
	return nil
}

// SetToken stores the ABRP user token; an empty token removes it.
func (a *Agent) SetToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	err := a.store.SetValues(ctx, host.ConfigNamespace, host.ConfigPrefix, map[string]string{host.KeyUserToken: token})
	if err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	if token == "" {
		a.logger.Info("user token cleared")
	} else {
		a.logger.Info("user token updated")
	}
	return nil
}

// Status reports state, subscriptions and the last transmitted record.
func (a *Agent) Status() Status {
	st := Status{
		State:          a.state,
		LowRateActive:  len(a.lowSubs) > 0,
		HighRateActive: a.highActive,
		BufferLen:      a.buffer.Len(),
		LastSentUTC:    a.lastSentUTC,
		LastRule:       a.lastRule,
	}
	if a.lastSentUTC != 0 {
		rec := a.lastSent
		st.LastSent = &rec
	}
	if a.lastRule != "" {
		st.MaxInterval = a.lastMax.String()
	}
	return st
}

// Running reports whether periodic sending is active.
func (a *Agent) Running() bool {
	return a.state == StateRunning
}

func (a *Agent) token(ctx context.Context) (string, error) {
	values, err := a.store.GetValues(ctx, host.ConfigNamespace, host.ConfigPrefix)
	if err != nil {
		a.logger.Error("failed to read config", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrTokenMissing, err)
	}
	token := strings.TrimSpace(values[host.KeyUserToken])
	if token == "" {
		return "", ErrTokenMissing
	}
	return token, nil
}

// transmit hands record to the sender. A nil error means a request was started.
func (a *Agent) transmit(ctx context.Context, record models.TelemetryRecord, trigger string) error {
	token, err := a.token(ctx)
	if err != nil {
		a.logger.Error("transmit aborted", zap.String("trigger", trigger), zap.Error(err))
		return err
	}

	err = a.sender.Send(token, record, func(status int) {
		a.logger.Debug("telemetry delivered", zap.String("trigger", trigger), zap.Int("status", status))
	}, nil)
	if err != nil {
		return fmt.Errorf("transmit: %w", err)
	}
	a.metrics.Sent(trigger)
	a.logger.Info("sending telemetry", zap.String("trigger", trigger), zap.Int64p("utc", record.UTC))
	return nil
}

// setSampling keeps the high-rate subscription in line with want.
func (a *Agent) setSampling(want bool) {
	switch {
	case want && !a.highActive:
		a.highSub = a.bus.Subscribe(a.highTopic, a.Sample)
		a.highActive = true
		a.logger.Debug("high-rate sampling enabled")
	case !want && a.highActive:
		a.bus.Unsubscribe(a.highSub)
		a.highActive = false
		a.buffer.Drain()
		a.metrics.BufferLen(0)
		a.logger.Debug("high-rate sampling disabled")
	}
}
