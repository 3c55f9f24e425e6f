package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pialert/pialert/internal/domain"
)

func resTarget(name string) domain.Target {
	return domain.Target{Name: name, Kind: domain.KindResource}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCPUUsagePercent(t *testing.T) {
	cases := []struct {
		name      string
		prev, cur cpuTimes
		want      float64
	}{
		{"half busy", cpuTimes{total: 100, idle: 50}, cpuTimes{total: 200, idle: 100}, 50},
		{"fully idle", cpuTimes{total: 100, idle: 100}, cpuTimes{total: 200, idle: 200}, 0},
		{"fully busy", cpuTimes{total: 100, idle: 50}, cpuTimes{total: 200, idle: 50}, 100},
		{"no delta", cpuTimes{total: 100, idle: 50}, cpuTimes{total: 100, idle: 50}, 0},
	}
	for _, c := range cases {
		if got := cpuUsagePercent(c.prev, c.cur); got != c.want {
			t.Fatalf("%s: got %.2f want %.2f", c.name, got, c.want)
		}
	}
}

func TestReadCPUTimes(t *testing.T) {
	stat := "cpu  100 0 100 700 100 0 0 0 0 0\ncpu0 50 0 50 350 50 0 0 0 0 0\n"
	path := writeFile(t, "stat", stat)

	got, err := readCPUTimes(path)
	if err != nil {
		t.Fatalf("readCPUTimes: %v", err)
	}
	if got.total != 1000 {
		t.Fatalf("total: got %d want 1000", got.total)
	}
	if got.idle != 800 { // idle + iowait
		t.Fatalf("idle: got %d want 800", got.idle)
	}
}

func TestResourceProbe_RAM(t *testing.T) {
	meminfo := "MemTotal:       1000 kB\nMemFree:         100 kB\nMemAvailable:    250 kB\n"
	p := NewResourceProbe(MetricRAM)
	p.MemInfo = writeFile(t, "meminfo", meminfo)

	s, err := p.Measure(context.Background(), resTarget("ram"))
	if err != nil {
		t.Fatalf("measure: %v", err)
	}
	if s.Value != 75 {
		t.Fatalf("ram%%: got %.2f want 75", s.Value)
	}
	if s.Unit != "%" {
		t.Fatalf("unit: got %q", s.Unit)
	}
}

func TestResourceProbe_Disk(t *testing.T) {
	p := NewResourceProbe(MetricDisk)
	p.statfs = func(path string) (uint64, uint64, error) {
		return 1000, 100, nil
	}

	s, err := p.Measure(context.Background(), resTarget("disk"))
	if err != nil {
		t.Fatalf("measure: %v", err)
	}
	if s.Value != 90 {
		t.Fatalf("disk%%: got %.2f want 90", s.Value)
	}
}

func TestResourceProbe_TempThermalZone(t *testing.T) {
	p := NewResourceProbe(MetricTemp)
	p.ThermalZone = writeFile(t, "temp", "48300\n")

	s, err := p.Measure(context.Background(), resTarget("temp"))
	if err != nil {
		t.Fatalf("measure: %v", err)
	}
	if s.Value != 48.3 {
		t.Fatalf("temp: got %.2f want 48.3", s.Value)
	}
	if s.Unit != "°C" {
		t.Fatalf("unit: got %q", s.Unit)
	}
}

func TestResourceProbe_TempVcgencmdFallback(t *testing.T) {
	p := NewResourceProbe(MetricTemp)
	p.ThermalZone = filepath.Join(t.TempDir(), "missing")
	p.run = func(ctx context.Context, name string, args ...string) (string, error) {
		if name != "vcgencmd" {
			t.Fatalf("unexpected command %s", name)
		}
		return "temp=51.0'C\n", nil
	}

	s, err := p.Measure(context.Background(), resTarget("temp"))
	if err != nil {
		t.Fatalf("measure: %v", err)
	}
	if s.Value != 51.0 {
		t.Fatalf("temp: got %.2f want 51.0", s.Value)
	}
}

func TestResourceProbe_TempAbsentSensorIsUnavailable(t *testing.T) {
	p := NewResourceProbe(MetricTemp)
	p.ThermalZone = filepath.Join(t.TempDir(), "missing")
	p.run = func(ctx context.Context, name string, args ...string) (string, error) {
		return "", errors.New("vcgencmd: not found")
	}

	_, err := p.Measure(context.Background(), resTarget("temp"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestResourceProbe_CPUFromProcStat(t *testing.T) {
	// Same file read twice yields no delta, which must read as idle, not error.
	stat := "cpu  100 0 100 700 100 0 0 0 0 0\n"
	p := NewResourceProbe(MetricCPU)
	p.ProcStat = writeFile(t, "stat", stat)
	p.CPUWindow = time.Millisecond

	s, err := p.Measure(context.Background(), resTarget("cpu"))
	if err != nil {
		t.Fatalf("measure: %v", err)
	}
	if s.Value != 0 {
		t.Fatalf("cpu%%: got %.2f want 0", s.Value)
	}
}

func TestResourceProbe_UnknownMetric(t *testing.T) {
	p := NewResourceProbe("gpu")
	_, err := p.Measure(context.Background(), resTarget("gpu"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}
