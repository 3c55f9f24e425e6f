package probe

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pialert/pialert/internal/domain"
)

// Resource metric names understood by ResourceProbe.
const (
	MetricCPU  = "cpu"
	MetricRAM  = "ram"
	MetricDisk = "disk"
	MetricTemp = "temp"
)

// ResourceProbe samples one host metric: cpu %, ram %, disk % or CPU
// temperature. CPU usage is computed from two /proc/stat readings taken
// CPUWindow apart, everything else from a single read. A missing sensor
// or unreadable source file surfaces as ErrUnavailable, never as a fake OK.
type ResourceProbe struct {
	Metric      string
	ProcStat    string
	MemInfo     string
	ThermalZone string
	MountPoint  string
	CPUWindow   time.Duration

	statfs func(path string) (total, free uint64, err error)
	run    runFunc
	now    func() time.Time
}

func NewResourceProbe(metric string) *ResourceProbe {
	return &ResourceProbe{
		Metric:      metric,
		ProcStat:    "/proc/stat",
		MemInfo:     "/proc/meminfo",
		ThermalZone: "/sys/class/thermal/thermal_zone0/temp",
		MountPoint:  "/",
		CPUWindow:   500 * time.Millisecond,
		statfs:      statfsUsage,
		run:         execRun,
		now:         time.Now,
	}
}

func (p *ResourceProbe) Measure(ctx context.Context, target domain.Target) (domain.Sample, error) {
	var (
		value float64
		unit  string
		err   error
	)
	switch p.Metric {
	case MetricCPU:
		value, err = p.cpuPercent(ctx)
		unit = "%"
	case MetricRAM:
		value, err = p.ramPercent()
		unit = "%"
	case MetricDisk:
		value, err = p.diskPercent()
		unit = "%"
	case MetricTemp:
		value, err = p.temperature(ctx)
		unit = "°C"
	default:
		return domain.Sample{}, fmt.Errorf("unknown resource metric %q: %w", p.Metric, ErrUnavailable)
	}
	if err != nil {
		return domain.Sample{}, err
	}
	return domain.Sample{
		TargetName: target.Name,
		Timestamp:  p.now().UTC(),
		Value:      value,
		Unit:       unit,
	}, nil
}

type cpuTimes struct {
	total uint64
	idle  uint64
}

func (p *ResourceProbe) cpuPercent(ctx context.Context) (float64, error) {
	first, err := readCPUTimes(p.ProcStat)
	if err != nil {
		return 0, err
	}
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("cpu sample interrupted: %v: %w", ctx.Err(), ErrUnavailable)
	case <-time.After(p.CPUWindow):
	}
	second, err := readCPUTimes(p.ProcStat)
	if err != nil {
		return 0, err
	}
	return cpuUsagePercent(first, second), nil
}

// cpuUsagePercent derives busy time from the delta of two aggregate
// /proc/stat samples. A zero delta (same snapshot twice) reads as idle.
func cpuUsagePercent(prev, cur cpuTimes) float64 {
	deltaTotal := cur.total - prev.total
	if cur.total <= prev.total {
		return 0
	}
	deltaIdle := cur.idle - prev.idle
	return 100 * (1 - float64(deltaIdle)/float64(deltaTotal))
}

func readCPUTimes(path string) (cpuTimes, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return cpuTimes{}, fmt.Errorf("read %s: %v: %w", path, err, ErrUnavailable)
	}
	for _, line := range strings.Split(string(b), "\n") {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)
		// cpu user nice system idle iowait irq softirq steal ...
		var t cpuTimes
		for i, f := range fields[1:] {
			v, perr := strconv.ParseUint(f, 10, 64)
			if perr != nil {
				continue
			}
			t.total += v
			if i == 3 || i == 4 { // idle + iowait
				t.idle += v
			}
		}
		return t, nil
	}
	return cpuTimes{}, fmt.Errorf("no aggregate cpu line in %s: %w", path, ErrUnavailable)
}

func (p *ResourceProbe) ramPercent() (float64, error) {
	b, err := os.ReadFile(p.MemInfo)
	if err != nil {
		return 0, fmt.Errorf("read %s: %v: %w", p.MemInfo, err, ErrUnavailable)
	}
	var total, avail uint64
	for _, line := range strings.Split(string(b), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch strings.TrimSuffix(fields[0], ":") {
		case "MemTotal":
			total, _ = strconv.ParseUint(fields[1], 10, 64)
		case "MemAvailable":
			avail, _ = strconv.ParseUint(fields[1], 10, 64)
		}
	}
	if total == 0 {
		return 0, fmt.Errorf("no MemTotal in %s: %w", p.MemInfo, ErrUnavailable)
	}
	return 100 * (1 - float64(avail)/float64(total)), nil
}

func (p *ResourceProbe) diskPercent() (float64, error) {
	total, free, err := p.statfs(p.MountPoint)
	if err != nil {
		return 0, fmt.Errorf("statfs %s: %v: %w", p.MountPoint, err, ErrUnavailable)
	}
	if total == 0 {
		return 0, fmt.Errorf("statfs %s: zero capacity: %w", p.MountPoint, ErrUnavailable)
	}
	return 100 * (1 - float64(free)/float64(total)), nil
}

func statfsUsage(path string) (uint64, uint64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	bsize := uint64(st.Bsize)
	return st.Blocks * bsize, st.Bavail * bsize, nil
}

// temperature reads the first thermal zone in millidegrees, falling back to
// `vcgencmd measure_temp` on Raspberry Pi class boards without one.
func (p *ResourceProbe) temperature(ctx context.Context) (float64, error) {
	if b, err := os.ReadFile(p.ThermalZone); err == nil {
		raw := strings.TrimSpace(string(b))
		milli, perr := strconv.ParseFloat(raw, 64)
		if perr == nil {
			return milli / 1000, nil
		}
	}
	out, err := p.run(ctx, "vcgencmd", "measure_temp")
	if err != nil {
		return 0, fmt.Errorf("no thermal zone and vcgencmd failed: %v: %w", err, ErrUnavailable)
	}
	return parseVcgencmdTemp(out)
}

func parseVcgencmdTemp(out string) (float64, error) {
	// vcgencmd prints: temp=48.3'C
	s := strings.TrimSpace(out)
	s = strings.TrimPrefix(s, "temp=")
	s = strings.TrimSuffix(s, "'C")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected vcgencmd output %q: %w", out, ErrUnavailable)
	}
	return v, nil
}
