package scheduler

import (
	"fmt"
	"time"

	"github.com/pialert/pialert/internal/domain"
	"github.com/pialert/pialert/internal/state"
)

// Decision is the outcome of comparing a fresh status against the
// persisted record.
type Decision int

const (
	// DecisionNoop: same state, or a pending excursion that has not met
	// the consecutive gate yet. Counters are persisted, nothing is sent.
	DecisionNoop Decision = iota
	// DecisionBaseline: first-ever observation. Establishes state without
	// alerting so a fresh install does not produce an alert storm.
	DecisionBaseline
	// DecisionAlert: a confirmed transition. Exactly one alert per genuine
	// state change.
	DecisionAlert
)

// Decide compares a status against the persisted record and returns the
// record to write back plus the alert to send, if any. force re-alerts a
// standing unhealthy state even without a transition (used by the bot's
// live check).
func Decide(now time.Time, st domain.Status, prev state.Record, known, force bool) (Decision, state.Record, *domain.AlertEvent) {
	if !known {
		return DecisionBaseline, state.Record{
			LastState:        st.State,
			LastChange:       now,
			ConsecutiveCount: st.ConsecutiveCount,
		}, nil
	}

	transition := st.Confirmed && st.State != prev.LastState
	// A forced pass only re-announces the persisted state; an unconfirmed
	// candidate still has to pass the consecutive gate like any other.
	forced := force && st.State == prev.LastState && !prev.LastState.Healthy()
	if transition || forced {
		from := prev.LastState
		rec := state.Record{
			LastState:        st.State,
			LastChange:       now,
			ConsecutiveCount: st.ConsecutiveCount,
		}
		if !transition {
			// Forced re-alert of a standing condition; the change
			// timestamp keeps pointing at the original transition.
			rec.LastChange = prev.LastChange
		}
		ev := &domain.AlertEvent{
			TargetName: st.TargetName,
			From:       from,
			To:         st.State,
			Timestamp:  now,
			Text:       formatAlert(st.TargetName, from, st.State, now),
		}
		return DecisionAlert, rec, ev
	}

	rec := state.Record{
		LastState:        prev.LastState,
		LastChange:       prev.LastChange,
		ConsecutiveCount: st.ConsecutiveCount,
	}
	if st.State != prev.LastState {
		rec.PendingState = st.State
	}
	return DecisionNoop, rec, nil
}

func formatAlert(target string, from, to domain.State, ts time.Time) string {
	icon := "⚠️"
	if to.Healthy() {
		icon = "✅"
	}
	return fmt.Sprintf("%s %s is %s (was %s)\nTimestamp: %s",
		icon, target, to, from, ts.Format("2006-01-02 15:04:05"))
}
