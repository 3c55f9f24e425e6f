package probe

import (
	"context"
	"net"
	"time"

	"github.com/pialert/pialert/internal/domain"
)

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// ConnectivityProbe reports the appliance reachable if any of the
// configured endpoints answers a TCP dial within the timeout. Defaults
// target public DNS resolvers on port 53, the same reachability signal
// the box depends on anyway.
type ConnectivityProbe struct {
	Hosts   []string
	Timeout time.Duration

	dial dialFunc
	now  func() time.Time
}

func NewConnectivityProbe(hosts []string, timeout time.Duration) *ConnectivityProbe {
	if len(hosts) == 0 {
		hosts = []string{"1.1.1.1:53", "8.8.8.8:53"}
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	d := &net.Dialer{}
	return &ConnectivityProbe{
		Hosts:   hosts,
		Timeout: timeout,
		dial:    d.DialContext,
		now:     time.Now,
	}
}

func (p *ConnectivityProbe) Measure(ctx context.Context, target domain.Target) (domain.Sample, error) {
	for _, host := range p.Hosts {
		dctx, cancel := context.WithTimeout(ctx, p.Timeout)
		conn, err := p.dial(dctx, "tcp", host)
		cancel()
		if err == nil {
			conn.Close()
			return boolSample(target.Name, p.now().UTC(), true), nil
		}
	}
	// Every endpoint unreachable is a genuine DOWN, not an unavailable probe.
	return boolSample(target.Name, p.now().UTC(), false), nil
}
