package scheduler

import (
	"strings"
	"testing"
	"time"

	"github.com/pialert/pialert/internal/domain"
	"github.com/pialert/pialert/internal/state"
	"github.com/pialert/pialert/internal/threshold"
)

var now = time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

func boolp(b bool) *bool { return &b }

func binary(name string, up bool) domain.Sample {
	return domain.Sample{TargetName: name, Timestamp: now, Bool: boolp(up)}
}

// step runs one full evaluate+decide cycle the way a pass does, feeding the
// written record back in, so sequences of invocations can be replayed.
func step(t *testing.T, s domain.Sample, th domain.Thresholds, prev state.Record, known bool) (Decision, state.Record, *domain.AlertEvent) {
	t.Helper()
	st := threshold.Evaluate(s, th, prev, known)
	return Decide(now, st, prev, known, false)
}

func TestDecide_FirstObservationBaselinesWithoutAlert(t *testing.T) {
	d, rec, ev := step(t, binary("internet", false), domain.Thresholds{RequiredConsecutive: 3}, state.Record{}, false)
	if d != DecisionBaseline || ev != nil {
		t.Fatalf("want silent baseline, got d=%v ev=%v", d, ev)
	}
	if rec.LastState != domain.StateDown || rec.ConsecutiveCount != 1 {
		t.Fatalf("unexpected baseline record %+v", rec)
	}
}

func TestDecide_ExactlyOneAlertPerGenuineChange(t *testing.T) {
	th := domain.Thresholds{RequiredConsecutive: 3}
	rec := state.Record{LastState: domain.StateUp, ConsecutiveCount: 10}

	// DOWN,DOWN,DOWN,DOWN → exactly one alert, after the 3rd sample.
	var alerts []*domain.AlertEvent
	for i := 0; i < 4; i++ {
		var ev *domain.AlertEvent
		_, rec, ev = step(t, binary("internet", false), th, rec, true)
		if ev != nil {
			alerts = append(alerts, ev)
			if i != 2 {
				t.Fatalf("alert fired on sample %d, want sample 3", i+1)
			}
		}
	}
	if len(alerts) != 1 {
		t.Fatalf("want exactly 1 alert, got %d", len(alerts))
	}
	if alerts[0].From != domain.StateUp || alerts[0].To != domain.StateDown {
		t.Fatalf("unexpected alert %+v", alerts[0])
	}
	if rec.LastState != domain.StateDown {
		t.Fatalf("final record should be DOWN: %+v", rec)
	}
}

func TestDecide_OutlierNeverFlipsState(t *testing.T) {
	th := domain.Thresholds{RequiredConsecutive: 3}
	rec := state.Record{LastState: domain.StateUp, ConsecutiveCount: 10}

	// one DOWN outlier, then UP again
	d, rec, ev := step(t, binary("internet", false), th, rec, true)
	if d != DecisionNoop || ev != nil {
		t.Fatalf("outlier must be a no-op, got %v", d)
	}
	if rec.LastState != domain.StateUp || rec.PendingState != domain.StateDown {
		t.Fatalf("outlier should only pend: %+v", rec)
	}

	_, rec, ev = step(t, binary("internet", true), th, rec, true)
	if ev != nil || rec.LastState != domain.StateUp || rec.PendingState != "" {
		t.Fatalf("return to baseline should clear pending: %+v ev=%v", rec, ev)
	}
}

func TestDecide_RecoveryAlertsSymmetrically(t *testing.T) {
	th := domain.Thresholds{RequiredConsecutive: 2}
	rec := state.Record{LastState: domain.StateDown, LastChange: now.Add(-time.Hour), ConsecutiveCount: 5}

	_, rec, ev := step(t, binary("internet", true), th, rec, true)
	if ev != nil {
		t.Fatalf("first UP sample must not alert yet")
	}
	_, rec, ev = step(t, binary("internet", true), th, rec, true)
	if ev == nil || ev.From != domain.StateDown || ev.To != domain.StateUp {
		t.Fatalf("want DOWN→UP recovery alert, got %+v", ev)
	}
	if !strings.Contains(ev.Text, "✅") || !strings.Contains(ev.Text, "internet") {
		t.Fatalf("recovery text should carry the target and a recovery marker: %q", ev.Text)
	}
	if rec.LastState != domain.StateUp || !rec.LastChange.Equal(now) {
		t.Fatalf("record not advanced on recovery: %+v", rec)
	}
}

func TestDecide_ReplayAgainstEndStateIsIdempotent(t *testing.T) {
	th := domain.Thresholds{RequiredConsecutive: 3}

	// build the end-state of DOWN,DOWN,DOWN from an UP baseline
	rec := state.Record{LastState: domain.StateUp, ConsecutiveCount: 1}
	for i := 0; i < 3; i++ {
		_, rec, _ = step(t, binary("internet", false), th, rec, true)
	}

	// replaying the same sequence against the end state yields zero alerts
	for i := 0; i < 3; i++ {
		var ev *domain.AlertEvent
		_, rec, ev = step(t, binary("internet", false), th, rec, true)
		if ev != nil {
			t.Fatalf("replay sample %d produced a duplicate alert", i+1)
		}
	}
}

func TestDecide_ForceRealertsStandingCondition(t *testing.T) {
	th := domain.Thresholds{RequiredConsecutive: 1}
	changed := now.Add(-2 * time.Hour)
	rec := state.Record{LastState: domain.StateDown, LastChange: changed, ConsecutiveCount: 9}

	st := threshold.Evaluate(binary("internet", false), th, rec, true)
	d, got, ev := Decide(now, st, rec, true, true)
	if d != DecisionAlert || ev == nil {
		t.Fatalf("force should re-alert a standing DOWN")
	}
	if !got.LastChange.Equal(changed) {
		t.Fatalf("forced re-alert must keep the original change timestamp: %+v", got)
	}
}

func TestDecide_ForceDoesNotBypassConsecutiveGate(t *testing.T) {
	th := domain.Thresholds{RequiredConsecutive: 3}
	rec := state.Record{LastState: domain.StateUp, LastChange: now.Add(-time.Hour), ConsecutiveCount: 10}

	// a single DOWN outlier during a forced pass
	st := threshold.Evaluate(binary("internet", false), th, rec, true)
	d, got, ev := Decide(now, st, rec, true, true)
	if d != DecisionNoop || ev != nil {
		t.Fatalf("forced pass alerted on an unconfirmed single outlier: d=%v ev=%+v", d, ev)
	}
	if got.LastState != domain.StateUp {
		t.Fatalf("forced pass flipped last_state on a single outlier: %+v", got)
	}
	if got.PendingState != domain.StateDown || got.ConsecutiveCount != 1 {
		t.Fatalf("outlier under force should pend like any other: %+v", got)
	}
}

func TestDecide_ForceDoesNotAlertHealthyState(t *testing.T) {
	th := domain.Thresholds{RequiredConsecutive: 1}
	rec := state.Record{LastState: domain.StateUp, ConsecutiveCount: 3}

	st := threshold.Evaluate(binary("internet", true), th, rec, true)
	_, _, ev := Decide(now, st, rec, true, true)
	if ev != nil {
		t.Fatalf("force must not alert a healthy steady state")
	}
}

func TestFormatAlert_EmbedsAllFields(t *testing.T) {
	text := formatAlert("pihole", domain.StateUp, domain.StateDown, now)
	for _, want := range []string{"pihole", "DOWN", "UP", "2026-08-23 12:00:00", "⚠️"} {
		if !strings.Contains(text, want) {
			t.Fatalf("alert text missing %q: %q", want, text)
		}
	}
}
