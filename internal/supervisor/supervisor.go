// Package supervisor keeps a long-lived worker process alive forever.
// Restart behavior is modeled as an explicit state machine so it can be
// tested without crashing real processes.
package supervisor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Phase of the supervisor state machine.
type Phase string

const (
	Starting Phase = "STARTING"
	Running  Phase = "RUNNING"
	Crashed  Phase = "CRASHED"
	Backoff  Phase = "BACKOFF"
	Stopped  Phase = "STOPPED"
)

// Process is the supervised worker. Start launches it, Wait blocks until it
// exits, Stop asks it to terminate and escalates after the grace period.
type Process interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(grace time.Duration) error
}

// Factory builds a fresh Process per (re)start attempt.
type Factory func() Process

// Supervisor restarts its process after every exit, forever. The interval
// between attempts is constant so a persistently failing worker (missing
// dependency, bad credentials) burns a bounded amount of CPU. There is
// deliberately no restart cap: the appliance is unattended and must
// self-heal whenever the underlying fault clears.
type Supervisor struct {
	NewProcess      Factory
	RestartInterval time.Duration
	GracePeriod     time.Duration
	Log             *zap.Logger

	sleep func(ctx context.Context, d time.Duration) bool

	mu    sync.Mutex
	phase Phase
}

func New(factory Factory, restartInterval, grace time.Duration, log *zap.Logger) *Supervisor {
	if restartInterval <= 0 {
		restartInterval = 5 * time.Second
	}
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return &Supervisor{
		NewProcess:      factory,
		RestartInterval: restartInterval,
		GracePeriod:     grace,
		Log:             log,
		sleep:           sleepInterruptible,
		phase:           Stopped,
	}
}

// Phase returns the current state machine phase.
func (s *Supervisor) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Supervisor) transition(to Phase, fields ...zap.Field) {
	s.mu.Lock()
	from := s.phase
	s.phase = to
	s.mu.Unlock()
	s.Log.Info("supervisor_transition",
		append([]zap.Field{
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		}, fields...)...)
}

// Run drives the loop until ctx is cancelled. Only the external stop signal
// reaches Stopped; any process exit, clean or not, is a crash because the
// worker is meant to run forever.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			s.transition(Stopped)
			return
		}
		s.transition(Starting)
		p := s.NewProcess()

		if err := p.Start(ctx); err != nil {
			s.transition(Crashed, zap.Error(err))
			if !s.backoff(ctx) {
				return
			}
			continue
		}
		s.transition(Running)

		exited := make(chan error, 1)
		go func() { exited <- p.Wait() }()

		select {
		case <-ctx.Done():
			if err := p.Stop(s.GracePeriod); err != nil {
				s.Log.Warn("supervised_stop_failed", zap.Error(err))
			}
			<-exited
			s.transition(Stopped)
			return
		case err := <-exited:
			s.transition(Crashed, zap.Error(err))
			if !s.backoff(ctx) {
				return
			}
		}
	}
}

// backoff sleeps the fixed restart interval. Returns false when the stop
// signal arrived mid-sleep (the loop transitions to Stopped and exits).
func (s *Supervisor) backoff(ctx context.Context) bool {
	s.transition(Backoff, zap.Duration("interval", s.RestartInterval))
	if !s.sleep(ctx, s.RestartInterval) {
		s.transition(Stopped)
		return false
	}
	return true
}

func sleepInterruptible(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
