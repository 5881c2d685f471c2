package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// TopicLowRate fires every ten seconds.
	TopicLowRate = "ticker.10"
	// TopicHighRate fires every second.
	TopicHighRate = "ticker.1"
)

// ErrStopped is returned by Call once the loop has exited.
var ErrStopped = errors.New("scheduler: stopped")

// Handler receives one delivery of a topic on the loop goroutine.
type Handler func(ctx context.Context, topic string)

// SubscriptionID identifies one Subscribe call.
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	topic   string
	handler Handler
}

type job struct {
	fn   func(ctx context.Context) error
	done chan error
}

// DefaultRates returns the periodic topics and their intervals.
func DefaultRates() map[string]time.Duration {
	return map[string]time.Duration{
		TopicLowRate:  10 * time.Second,
		TopicHighRate: time.Second,
	}
}

// Scheduler runs every handler, queued job and published event on one goroutine, so the
// state they touch needs no locking. Subscribe, Unsubscribe, Publish, Post and Call are safe
// from any goroutine; Call must not be used from inside a handler.
type Scheduler struct {
	logger *zap.Logger
	rates  map[string]time.Duration

	mu     sync.Mutex
	subs   map[SubscriptionID]subscription
	nextID SubscriptionID

	queue chan job
	done  chan struct{}
	once  sync.Once
}

// New builds scheduler with the given periodic topics; nil rates means DefaultRates.
func New(rates map[string]time.Duration, queueSize int, logger *zap.Logger) *Scheduler {
	if rates == nil {
		rates = DefaultRates()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Scheduler{
		logger: logger,
		rates:  rates,
		subs:   make(map[SubscriptionID]subscription),
		queue:  make(chan job, queueSize),
		done:   make(chan struct{}),
	}
}

// Subscribe registers handler for topic.
func (s *Scheduler) Subscribe(topic string, handler Handler) SubscriptionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs[id] = subscription{id: id, topic: topic, handler: handler}
	s.logger.Debug("subscribed", zap.String("topic", topic), zap.Uint64("subscription", uint64(id)))
	return id
}

// Unsubscribe removes a subscription; unknown ids are ignored.
func (s *Scheduler) Unsubscribe(id SubscriptionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[id]; ok {
		delete(s.subs, id)
		s.logger.Debug("unsubscribed", zap.String("topic", sub.topic), zap.Uint64("subscription", uint64(id)))
	}
}

// Subscribed reports the number of live subscriptions for topic.
func (s *Scheduler) Subscribed(topic string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.subs {
		if sub.topic == topic {
			n++
		}
	}
	return n
}

// Publish queues one delivery of topic to its current subscribers.
func (s *Scheduler) Publish(topic string) {
	s.Post(func(ctx context.Context) {
		s.dispatch(ctx, topic)
	})
}

// Post queues fn to run on the loop without waiting for it. The work is dropped with a
// warning when the queue is full or the loop has stopped.
func (s *Scheduler) Post(fn func(ctx context.Context)) {
	j := job{fn: func(ctx context.Context) error {
		fn(ctx)
		return nil
	}}
	select {
	case <-s.done:
		s.logger.Debug("scheduler stopped, dropping posted work")
	case s.queue <- j:
	default:
		s.logger.Warn("scheduler queue full, dropping posted work")
	}
}

// Call runs fn on the loop and waits for its result.
func (s *Scheduler) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	j := job{fn: fn, done: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	case s.queue <- j:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	case err := <-j.done:
		return err
	}
}

// Run drives tickers and queued work until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.once.Do(func() { close(s.done) })

	// At most one pending tick per topic; a slow topic coalesces only its own ticks.
	pending := make(map[string]*atomic.Bool, len(s.rates))
	for topic := range s.rates {
		pending[topic] = new(atomic.Bool)
	}
	ticks := make(chan string, len(s.rates))
	var wg sync.WaitGroup
	for topic, every := range s.rates {
		if every <= 0 {
			continue
		}
		wg.Add(1)
		go func(topic string, every time.Duration, flag *atomic.Bool) {
			defer wg.Done()
			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if !flag.CompareAndSwap(false, true) {
						continue
					}
					select {
					case ticks <- topic:
					case <-ctx.Done():
						return
					}
				}
			}
		}(topic, every, pending[topic])
	}
	defer wg.Wait()

	s.logger.Info("scheduler started", zap.Int("tickers", len(s.rates)))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case topic := <-ticks:
			pending[topic].Store(false)
			s.dispatch(ctx, topic)
		case j := <-s.queue:
			err := s.runJob(ctx, j.fn)
			if j.done != nil {
				j.done <- err
			}
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, topic string) {
	s.mu.Lock()
	handlers := make([]subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.topic == topic {
			handlers = append(handlers, sub)
		}
	}
	s.mu.Unlock()
	sort.Slice(handlers, func(i, j int) bool { return handlers[i].id < handlers[j].id })

	for _, sub := range handlers {
		if !s.active(sub.id) {
			continue
		}
		h := sub.handler
		_ = s.runJob(ctx, func(ctx context.Context) error {
			h(ctx, topic)
			return nil
		})
	}
}

func (s *Scheduler) active(id SubscriptionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[id]
	return ok
}

func (s *Scheduler) runJob(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler handler panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("scheduler: handler panicked: %v", r)
		}
	}()
	return fn(ctx)
}
