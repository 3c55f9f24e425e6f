// Package threshold turns raw samples into classified statuses. It is pure
// state-transition logic over persisted counters: no timers, no IO.
package threshold

import (
	"time"

	"github.com/pialert/pialert/internal/domain"
	"github.com/pialert/pialert/internal/state"
)

// Evaluate classifies a sample against the target's thresholds and advances
// the consecutive-sample gate carried in the persisted record. known is
// false on the first-ever observation of the target.
//
// A single sample crossing a threshold never flips state: a candidate state
// different from the persisted one must repeat RequiredConsecutive times
// before Confirmed is set. Reverting out of a bad state additionally
// requires the value to clear the threshold by HysteresisMargin, so a value
// hovering at the boundary cannot flap.
func Evaluate(s domain.Sample, th domain.Thresholds, prev state.Record, known bool) domain.Status {
	cand := classify(s, th, prev.LastState, known)
	return gate(s.TargetName, s.Timestamp, cand, th, prev, known)
}

// Unavailable feeds an inability-to-measure through the same gate as a real
// sample, as a DEGRADED candidate. A sensor that flaps between readable and
// unreadable is subject to the same anti-flap rules as its values.
func Unavailable(target string, ts time.Time, th domain.Thresholds, prev state.Record, known bool) domain.Status {
	return gate(target, ts, domain.StateDegraded, th, prev, known)
}

func gate(target string, ts time.Time, cand domain.State, th domain.Thresholds, prev state.Record, known bool) domain.Status {
	required := th.RequiredConsecutive
	if required < 1 {
		required = 1
	}

	st := domain.Status{TargetName: target, State: cand, Timestamp: ts}
	switch {
	case !known:
		st.ConsecutiveCount = 1
	case cand == prev.LastState:
		if prev.PendingState == "" {
			st.ConsecutiveCount = prev.ConsecutiveCount + 1
		} else {
			// A pending excursion collapsed back to baseline.
			st.ConsecutiveCount = 1
		}
	case cand == prev.PendingState:
		st.ConsecutiveCount = prev.ConsecutiveCount + 1
		st.Confirmed = st.ConsecutiveCount >= required
	default:
		st.ConsecutiveCount = 1
		st.Confirmed = st.ConsecutiveCount >= required
	}
	return st
}

func classify(s domain.Sample, th domain.Thresholds, last domain.State, known bool) domain.State {
	if s.Bool != nil {
		if *s.Bool {
			return domain.StateUp
		}
		return domain.StateDown
	}

	raw := rawLevel(s.Value, th)
	if !known {
		return raw
	}

	// Hysteresis applies to recovery only; escalation is immediate (and
	// still gated by the consecutive counter).
	switch last {
	case domain.StateDown:
		if severity(raw) < severity(domain.StateDown) && !cleared(s.Value, th.Critical, th) {
			return domain.StateDown
		}
		if raw == domain.StateOK && !cleared(s.Value, th.Warn, th) {
			return domain.StateDegraded
		}
	case domain.StateDegraded:
		if raw == domain.StateOK && !cleared(s.Value, th.Warn, th) {
			return domain.StateDegraded
		}
	}
	return raw
}

func rawLevel(v float64, th domain.Thresholds) domain.State {
	if beyond(v, th.Critical, th) {
		return domain.StateDown
	}
	if beyond(v, th.Warn, th) {
		return domain.StateDegraded
	}
	return domain.StateOK
}

// beyond reports whether v crosses the limit in the alerting direction.
func beyond(v, limit float64, th domain.Thresholds) bool {
	if th.Direction == domain.DirectionBelow {
		return v < limit
	}
	return v > limit
}

// cleared reports whether v has crossed back past limit by the hysteresis
// margin, i.e. is safely on the healthy side.
func cleared(v, limit float64, th domain.Thresholds) bool {
	if th.Direction == domain.DirectionBelow {
		return v >= limit+th.HysteresisMargin
	}
	return v <= limit-th.HysteresisMargin
}

func severity(s domain.State) int {
	switch s {
	case domain.StateDown:
		return 2
	case domain.StateDegraded:
		return 1
	default:
		return 0
	}
}
