package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pialert/pialert/internal/domain"
	"github.com/pialert/pialert/internal/notify"
	"github.com/pialert/pialert/internal/probe"
	"github.com/pialert/pialert/internal/state"
	"github.com/pialert/pialert/internal/threshold"
)

// Check pairs a target with the prober that measures it.
type Check struct {
	Target domain.Target
	Prober probe.Prober
}

// Pass is one scheduled monitoring invocation: Probe → Evaluate → Detect →
// Dispatch, sequentially per target, with per-target failures isolated.
// The process owns no memory between runs; everything it needs from the
// previous invocation lives in the state store.
type Pass struct {
	Checks   []Check
	Store    state.Store
	Notifier notify.Notifier
	Log      *zap.Logger
	Force    bool

	now func() time.Time
}

func NewPass(checks []Check, store state.Store, notifier notify.Notifier, log *zap.Logger) *Pass {
	return &Pass{
		Checks:   checks,
		Store:    store,
		Notifier: notifier,
		Log:      log,
		now:      time.Now,
	}
}

// Run evaluates every target once. It returns an error only for pass-fatal
// conditions; a probe or delivery failure on one target is logged and the
// remaining targets still run.
func (p *Pass) Run(ctx context.Context) error {
	for _, c := range p.Checks {
		p.runTarget(ctx, c)
	}
	return nil
}

func (p *Pass) runTarget(ctx context.Context, c Check) {
	name := c.Target.Name
	now := p.now().UTC()

	prev, known, err := p.Store.Read(name)
	if err != nil {
		// Corrupt or unreadable state: re-baseline conservatively. One
		// extra alert beats silently losing a transition.
		p.Log.Warn("state_read_failed",
			zap.String("target", name),
			zap.Error(err),
		)
		prev, known = state.Record{}, false
	}

	var st domain.Status
	sample, perr := c.Prober.Measure(ctx, c.Target)
	switch {
	case perr == nil:
		st = threshold.Evaluate(sample, c.Target.Thresholds, prev, known)
	case errors.Is(perr, probe.ErrUnavailable):
		p.Log.Warn("probe_unavailable",
			zap.String("target", name),
			zap.Error(perr),
		)
		st = threshold.Unavailable(name, now, c.Target.Thresholds, prev, known)
	default:
		p.Log.Error("probe_failed",
			zap.String("target", name),
			zap.Error(perr),
		)
		st = threshold.Unavailable(name, now, c.Target.Thresholds, prev, known)
	}

	decision, rec, ev := Decide(now, st, prev, known, p.Force)
	if perr == nil && sample.Bool == nil {
		v := sample.Value
		rec.LastValue = &v
		rec.Unit = sample.Unit
	} else if known {
		// No fresh reading this pass; keep the last one inspectable.
		rec.LastValue = prev.LastValue
		rec.Unit = prev.Unit
	}

	switch decision {
	case DecisionBaseline:
		p.Log.Info("baseline_established",
			zap.String("target", name),
			zap.String("state", string(rec.LastState)),
		)
	case DecisionAlert:
		// Dispatch before commit; a delivery failure is logged and the
		// transition still commits (at-most-one-alert policy).
		if err := p.Notifier.Send(ctx, ev.Text); err != nil {
			p.Log.Error("dispatcher_unavailable",
				zap.String("target", name),
				zap.String("from", string(ev.From)),
				zap.String("to", string(ev.To)),
				zap.Error(err),
			)
		} else {
			p.Log.Info("alert_sent",
				zap.String("target", name),
				zap.String("from", string(ev.From)),
				zap.String("to", string(ev.To)),
			)
		}
	default:
		p.Log.Info("no_change",
			zap.String("target", name),
			zap.String("state", string(rec.LastState)),
			zap.String("pending", string(rec.PendingState)),
			zap.Int("consecutive", rec.ConsecutiveCount),
		)
	}

	if err := p.Store.Write(name, rec); err != nil {
		p.Log.Error("state_write_failed",
			zap.String("target", name),
			zap.Error(err),
		)
	}
}
