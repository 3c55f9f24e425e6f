package probe

import (
	"context"
	"errors"
	"time"

	"github.com/pialert/pialert/internal/domain"
)

// ErrUnavailable marks a check that could not run at all (timeout reaching
// the tooling, permission error, absent sensor). It is distinct from a
// failing check: inability to measure must never pass as OK, so callers
// classify it as DEGRADED instead of discarding the target.
var ErrUnavailable = errors.New("probe unavailable")

// Prober produces at most one sample per target per invocation.
type Prober interface {
	Measure(ctx context.Context, target domain.Target) (domain.Sample, error)
}

func boolSample(target string, ts time.Time, ok bool) domain.Sample {
	v := ok
	return domain.Sample{TargetName: target, Timestamp: ts, Bool: &v}
}
