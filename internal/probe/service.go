package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/pialert/pialert/internal/domain"
)

type runFunc func(ctx context.Context, name string, args ...string) (string, error)

func execRun(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return string(out), err
}

// ServiceProbe asks the service manager whether a unit is active
// (`systemctl is-active <unit>`). A non-zero exit with output still counts
// as a measurement (the unit is inactive or failed); only a missing or
// broken systemctl makes the probe unavailable.
type ServiceProbe struct {
	Unit    string
	Timeout time.Duration

	run runFunc
	now func() time.Time
}

func NewServiceProbe(unit string, timeout time.Duration) *ServiceProbe {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ServiceProbe{
		Unit:    unit,
		Timeout: timeout,
		run:     execRun,
		now:     time.Now,
	}
}

func (p *ServiceProbe) Measure(ctx context.Context, target domain.Target) (domain.Sample, error) {
	rctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	out, err := p.run(rctx, "systemctl", "is-active", p.Unit)
	status := strings.TrimSpace(out)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// systemctl answered; "inactive"/"failed" exit non-zero.
			return boolSample(target.Name, p.now().UTC(), false), nil
		}
		return domain.Sample{}, fmt.Errorf("systemctl is-active %s: %v: %w", p.Unit, err, ErrUnavailable)
	}
	return boolSample(target.Name, p.now().UTC(), status == "active"), nil
}
