package domain

import "time"

// Kind says what flavor of check a target needs.
type Kind string

const (
	KindConnectivity Kind = "connectivity"
	KindService      Kind = "service"
	KindResource     Kind = "resource"
)

// State is the classified health of a target. Connectivity and service
// targets are binary (UP/DOWN); resource targets are graded (OK/DEGRADED/DOWN).
type State string

const (
	StateUp       State = "UP"
	StateDown     State = "DOWN"
	StateOK       State = "OK"
	StateDegraded State = "DEGRADED"
)

// Healthy reports whether s is a good state (no alert condition).
func (s State) Healthy() bool {
	return s == StateUp || s == StateOK
}

const (
	DirectionAbove = "above"
	DirectionBelow = "below"
)

// Thresholds configures how raw values are classified for one target.
// HysteresisMargin is how far a value must cross back past a threshold
// before the state may revert; RequiredConsecutive is how many
// consecutive samples must agree before a transition is confirmed.
type Thresholds struct {
	Warn                float64
	Critical            float64
	Direction           string
	HysteresisMargin    float64
	RequiredConsecutive int
}

// Target identifies a thing being watched.
type Target struct {
	Name       string
	Kind       Kind
	Thresholds Thresholds
}

// Sample is one raw measurement. Bool is set for binary checks
// (connectivity, service), Value for numeric ones (resource metrics).
type Sample struct {
	TargetName string    `json:"target_name"`
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"`
	Bool       *bool     `json:"bool,omitempty"`
	Unit       string    `json:"unit,omitempty"`
}

// Status is the classification derived from one sample.
// ConsecutiveCount is the length of the streak the sample belongs to.
// Confirmed reports whether the consecutive-sample gate is satisfied,
// i.e. a transition away from the persisted state may be alerted.
type Status struct {
	TargetName       string
	State            State
	Timestamp        time.Time
	ConsecutiveCount int
	Confirmed        bool
}

// AlertEvent is a confirmed transition, built once and handed to the
// dispatcher. It is never persisted.
type AlertEvent struct {
	TargetName string
	From       State
	To         State
	Timestamp  time.Time
	Text       string
}
