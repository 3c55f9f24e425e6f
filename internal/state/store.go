package state

import (
	"fmt"
	"time"

	"github.com/pialert/pialert/internal/domain"
)

// Record is the only entity surviving across invocations: one per target,
// created on first observation, mutated only after a transition decision.
// LastState always reflects the most recently alerted or initial state,
// never a single-sample blip. PendingState names the candidate state the
// consecutive counter currently refers to; empty while the target sits at
// its baseline. LastValue/Unit keep the raw reading inspectable so the bot
// can answer /status without re-probing.
type Record struct {
	LastState        domain.State `json:"last_state"`
	LastChange       time.Time    `json:"last_change_timestamp"`
	ConsecutiveCount int          `json:"consecutive_count"`
	PendingState     domain.State `json:"pending_state,omitempty"`
	LastValue        *float64     `json:"last_value,omitempty"`
	Unit             string       `json:"unit,omitempty"`
}

// Store persists per-target records between invocations.
// Read returns ok=false when the target has never been observed.
type Store interface {
	Read(target string) (Record, bool, error)
	Write(target string, rec Record) error
	Reset(target string) error
	All() (map[string]Record, error)
}

// StorageError wraps a read or write failure of the backing file. Callers
// treat a failed read as "no prior state" so a corrupt file costs one
// conservative re-alert instead of silent data loss.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("state storage %s: %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
