package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/pialert/pialert/internal/domain"
)

// ErrConfig marks a fatal configuration problem. The process exits
// non-zero before any probing when one is detected.
var ErrConfig = errors.New("invalid configuration")

// Config is the document the appliance's setup step writes out; the
// monitoring core consumes it but never mutates it.
type Config struct {
	Telegram   Telegram   `mapstructure:"telegram"`
	Paths      Paths      `mapstructure:"paths"`
	Settings   Settings   `mapstructure:"settings"`
	DownAlert  DownAlert  `mapstructure:"down_alert"`
	Monitor    Monitor    `mapstructure:"monitor"`
	Notify     Notify     `mapstructure:"notify"`
	Supervisor Supervisor `mapstructure:"supervisor"`
	HTTP       HTTP       `mapstructure:"http"`
}

type Telegram struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

type Paths struct {
	DownAlert   ModulePaths `mapstructure:"down_alert"`
	Monitor     ModulePaths `mapstructure:"monitor"`
	Maintenance ModulePaths `mapstructure:"maintenance"`
	Supervisor  ModulePaths `mapstructure:"supervisor"`
}

type ModulePaths struct {
	Logs  string `mapstructure:"logs"`
	State string `mapstructure:"state"`
}

type Settings struct {
	// DryRun suppresses actual delivery; detection still runs and the
	// intended messages are logged.
	DryRun bool `mapstructure:"dry_run"`
	// DockerTest marks a containerized test environment with no service
	// manager and no thermal sensors; those targets are skipped.
	DockerTest bool `mapstructure:"docker_test"`
}

// DownAlert configures the binary checks: internet reachability and the
// appliance's DNS filtering service.
type DownAlert struct {
	Hosts               []string `mapstructure:"hosts"`
	DialTimeoutMS       int      `mapstructure:"dial_timeout_ms"`
	Service             string   `mapstructure:"service"`
	RequiredConsecutive int      `mapstructure:"required_consecutive_samples"`
}

// Monitor configures the graded resource checks.
type Monitor struct {
	Thresholds map[string]Threshold `mapstructure:"thresholds"`
}

type Threshold struct {
	Warn                float64 `mapstructure:"warn_threshold"`
	Critical            float64 `mapstructure:"critical_threshold"`
	Direction           string  `mapstructure:"direction"`
	HysteresisMargin    float64 `mapstructure:"hysteresis_margin"`
	RequiredConsecutive int     `mapstructure:"required_consecutive_samples"`
}

type Notify struct {
	Attempts  int `mapstructure:"attempts"`
	BackoffMS int `mapstructure:"backoff_ms"`
}

type Supervisor struct {
	RestartIntervalSec int `mapstructure:"restart_interval_seconds"`
	GracePeriodSec     int `mapstructure:"grace_period_seconds"`
}

type HTTP struct {
	// Addr enables the local status API when non-empty, e.g. "127.0.0.1:8053".
	Addr string `mapstructure:"addr"`
}

// Load reads and validates the config document (JSON or YAML, decided by
// the file extension).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %v: %w", path, err, ErrConfig)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %v: %w", path, err, ErrConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("down_alert.hosts", []string{"1.1.1.1:53", "8.8.8.8:53"})
	v.SetDefault("down_alert.dial_timeout_ms", 2000)
	v.SetDefault("down_alert.service", "pihole-FTL")
	v.SetDefault("down_alert.required_consecutive_samples", 1)

	for metric, critical := range map[string]float64{
		"cpu":  85,
		"ram":  90,
		"disk": 90,
		"temp": 75,
	} {
		prefix := "monitor.thresholds." + metric
		v.SetDefault(prefix+".warn_threshold", critical-10)
		v.SetDefault(prefix+".critical_threshold", critical)
		v.SetDefault(prefix+".direction", domain.DirectionAbove)
		v.SetDefault(prefix+".hysteresis_margin", 5)
		v.SetDefault(prefix+".required_consecutive_samples", 1)
	}

	v.SetDefault("notify.attempts", 3)
	v.SetDefault("notify.backoff_ms", 300)
	v.SetDefault("supervisor.restart_interval_seconds", 5)
	v.SetDefault("supervisor.grace_period_seconds", 10)
}

// Validate enforces the fields the core cannot run without.
func (c *Config) Validate() error {
	if !c.Settings.DryRun {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required: %w", ErrConfig)
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required: %w", ErrConfig)
		}
	}
	for name, mp := range map[string]ModulePaths{
		"down_alert": c.Paths.DownAlert,
		"monitor":    c.Paths.Monitor,
	} {
		if mp.Logs == "" {
			return fmt.Errorf("paths.%s.logs is required: %w", name, ErrConfig)
		}
		if mp.State == "" {
			return fmt.Errorf("paths.%s.state is required: %w", name, ErrConfig)
		}
	}
	for metric, th := range c.Monitor.Thresholds {
		switch th.Direction {
		case domain.DirectionAbove:
			if th.Warn > th.Critical {
				return fmt.Errorf("monitor.thresholds.%s: warn_threshold %g above critical_threshold %g makes DEGRADED unreachable: %w",
					metric, th.Warn, th.Critical, ErrConfig)
			}
		case domain.DirectionBelow:
			if th.Warn < th.Critical {
				return fmt.Errorf("monitor.thresholds.%s: warn_threshold %g below critical_threshold %g makes DEGRADED unreachable: %w",
					metric, th.Warn, th.Critical, ErrConfig)
			}
		default:
			return fmt.Errorf("monitor.thresholds.%s.direction must be above or below: %w", metric, ErrConfig)
		}
	}
	return nil
}

func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.DownAlert.DialTimeoutMS) * time.Millisecond
}

func (c *Config) NotifyBackoff() time.Duration {
	return time.Duration(c.Notify.BackoffMS) * time.Millisecond
}

func (c *Config) RestartInterval() time.Duration {
	return time.Duration(c.Supervisor.RestartIntervalSec) * time.Second
}

func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.Supervisor.GracePeriodSec) * time.Second
}

// binaryThresholds is the gate applied to UP/DOWN targets; only the
// consecutive-sample requirement matters for them.
func binaryThresholds(required int) domain.Thresholds {
	return domain.Thresholds{RequiredConsecutive: required}
}

// DownAlertTargets returns the binary targets of the down-alert module.
// The service target is dropped under docker_test, where no service
// manager exists to ask.
func (c *Config) DownAlertTargets() []domain.Target {
	targets := []domain.Target{{
		Name:       "internet",
		Kind:       domain.KindConnectivity,
		Thresholds: binaryThresholds(c.DownAlert.RequiredConsecutive),
	}}
	if !c.Settings.DockerTest && c.DownAlert.Service != "" {
		targets = append(targets, domain.Target{
			Name:       "pihole",
			Kind:       domain.KindService,
			Thresholds: binaryThresholds(c.DownAlert.RequiredConsecutive),
		})
	}
	return targets
}

// MonitorTargets returns the graded resource targets. The temperature
// target is dropped under docker_test, where no sensor is exposed.
func (c *Config) MonitorTargets() []domain.Target {
	order := []string{"cpu", "ram", "disk", "temp"}
	var targets []domain.Target
	for _, metric := range order {
		th, ok := c.Monitor.Thresholds[metric]
		if !ok {
			continue
		}
		if metric == "temp" && c.Settings.DockerTest {
			continue
		}
		targets = append(targets, domain.Target{
			Name: metric,
			Kind: domain.KindResource,
			Thresholds: domain.Thresholds{
				Warn:                th.Warn,
				Critical:            th.Critical,
				Direction:           th.Direction,
				HysteresisMargin:    th.HysteresisMargin,
				RequiredConsecutive: th.RequiredConsecutive,
			},
		})
	}
	return targets
}
