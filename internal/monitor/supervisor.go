package monitor

import (
	"context"
	"errors"
	"fmt"
	"indodax-monitor-bot/internal/metrics"
	"indodax-monitor-bot/internal/statemanager"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner is a periodic task driven by the Supervisor.
type Runner interface {
	Name() string
	Interval() time.Duration
	Tick(ctx context.Context) error
}

// LoopStatus is the last known state of one loop.
type LoopStatus struct {
	Name        string        `json:"name"`
	Interval    time.Duration `json:"interval"`
	Ticks       uint64        `json:"ticks"`
	LastTick    time.Time     `json:"last_tick"`
	LastError   string        `json:"last_error,omitempty"`
	LastErrorAt time.Time     `json:"last_error_at,omitempty"`
	StoreErrors uint64        `json:"store_errors"`
	Panics      uint64        `json:"panics"`
}

// Supervisor runs every loop in its own goroutine. A tick that panics or
// fails is contained to that tick; the loop keeps its schedule and the other
// loops are unaffected.
type Supervisor struct {
	runners     []Runner
	tickTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger

	mu      sync.RWMutex
	status  map[string]*LoopStatus
	started time.Time
	running bool
	cancel  context.CancelFunc
	done    chan error
}

// NewSupervisor creates a supervisor. tickTimeout bounds a single tick; zero disables it.
func NewSupervisor(runners []Runner, tickTimeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *Supervisor {
	status := make(map[string]*LoopStatus, len(runners))
	for _, r := range runners {
		status[r.Name()] = &LoopStatus{Name: r.Name(), Interval: r.Interval()}
	}
	return &Supervisor{
		runners:     runners,
		tickTimeout: tickTimeout,
		metrics:     m,
		logger:      logger.With(zap.String("component", "supervisor")),
		status:      status,
	}
}

// Run blocks until ctx is cancelled. Each loop ticks immediately, then on its interval.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	s.started = time.Now()
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	g, ctx := errgroup.WithContext(ctx)
	for _, r := range s.runners {
		r := r
		g.Go(func() error {
			s.runLoop(ctx, r)
			return nil
		})
	}
	s.logger.Info("Monitoring loops started", zap.Int("loops", len(s.runners)))
	err := g.Wait()
	s.logger.Info("Monitoring loops stopped")
	return err
}

// Start runs the supervisor in the background until Stop is called.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		done <- s.Run(ctx)
	}()
}

// Stop cancels the loops and waits for in-flight ticks to finish or abandon.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Supervisor) runLoop(ctx context.Context, r Runner) {
	interval := r.Interval()
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.safeTick(ctx, r)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// safeTick runs one tick and records its outcome. Store failures are
// escalated here; context errors from shutdown are not failures.
func (s *Supervisor) safeTick(ctx context.Context, r Runner) {
	if ctx.Err() != nil {
		return
	}
	name := r.Name()
	tickCtx := ctx
	if s.tickTimeout > 0 {
		var cancel context.CancelFunc
		tickCtx, cancel = context.WithTimeout(ctx, s.tickTimeout)
		defer cancel()
	}

	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				s.metrics.IncPanic(name)
				s.logger.Error("Loop tick panicked", zap.String("loop", name), zap.Any("panic", p), zap.Stack("stack"))
				s.record(name, func(st *LoopStatus) { st.Panics++ })
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return r.Tick(tickCtx)
	}()

	now := time.Now()
	s.record(name, func(st *LoopStatus) {
		st.Ticks++
		st.LastTick = now
		if err != nil && ctx.Err() == nil {
			st.LastError = err.Error()
			st.LastErrorAt = now
		}
	})

	switch {
	case err == nil:
	case errors.Is(err, statemanager.ErrStoreIO):
		s.metrics.IncStoreError(name)
		s.record(name, func(st *LoopStatus) { st.StoreErrors++ })
		s.logger.Error("Failed to commit loop state, retrying next tick", zap.String("loop", name), zap.Error(err))
	case ctx.Err() != nil:
	default:
		s.logger.Warn("Loop tick failed", zap.String("loop", name), zap.Error(err))
	}
}

func (s *Supervisor) record(name string, fn func(*LoopStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.status[name]; ok {
		fn(st)
	}
}

// Snapshot returns a copy of every loop's status, sorted by name.
func (s *Supervisor) Snapshot() []LoopStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LoopStatus, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Status implements metrics.HealthReporter.
func (s *Supervisor) Status() any {
	return s.Snapshot()
}

// Healthy reports whether the supervisor is running and every loop ticked recently.
func (s *Supervisor) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return false
	}
	now := time.Now()
	for _, st := range s.status {
		last := st.LastTick
		if last.IsZero() {
			last = s.started
		}
		if now.Sub(last) > 3*st.Interval+s.tickTimeout {
			return false
		}
	}
	return true
}
