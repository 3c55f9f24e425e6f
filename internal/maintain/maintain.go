// Package maintain runs the appliance's housekeeping tasks (system
// updates, blocklist refresh, log rotation) and reports the outcome over
// the notification channel.
package maintain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pialert/pialert/internal/notify"
	"github.com/pialert/pialert/internal/state"
)

// ErrUnknownTask is returned when the requested task name is not one of
// the registered tasks (or "all").
var ErrUnknownTask = errors.New("unknown maintenance task")

// Task is one housekeeping step, executed as a command line.
type Task struct {
	Name string
	Argv []string
}

// tasks, in the order "all" runs them. Package updates come first so a
// refreshed blocklist is built against current binaries.
var tasks = []Task{
	{Name: "os_update", Argv: []string{"sudo", "sh", "-c", "apt-get update && apt-get upgrade -y"}},
	{Name: "pihole_update", Argv: []string{"sudo", "pihole", "-up"}},
	{Name: "gravity", Argv: []string{"sudo", "pihole", "-g"}},
	{Name: "clear_logs", Argv: []string{"sudo", "pihole", "flush"}},
}

// TaskNames lists the registered tasks in run order.
func TaskNames() []string {
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.Name
	}
	return names
}

// Result is the persisted record of a task's last run.
type Result struct {
	LastRun time.Time `json:"last_run"`
	Success bool      `json:"success"`
	LogFile string    `json:"log_file"`
	Error   string    `json:"error,omitempty"`
}

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Runner executes maintenance tasks, keeps a per-task log file, persists
// the outcome, and sends a single summary message at the end.
type Runner struct {
	LogDir    string
	StatePath string
	Log       *zap.Logger
	Notifier  notify.Notifier

	run runFunc
	now func() time.Time
}

func NewRunner(logDir, statePath string, nt notify.Notifier, log *zap.Logger) *Runner {
	return &Runner{
		LogDir:    logDir,
		StatePath: statePath,
		Log:       log,
		Notifier:  nt,
		run:       execRun,
		now:       time.Now,
	}
}

func resolve(name string) ([]Task, error) {
	if name == "all" {
		return tasks, nil
	}
	for _, t := range tasks {
		if t.Name == name {
			return []Task{t}, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", name, ErrUnknownTask)
}

// Run executes the named task ("all" runs every registered task in
// order). A failing task does not stop the ones after it; the summary
// and the persisted results carry the per-task outcome.
func (r *Runner) Run(ctx context.Context, name string) error {
	todo, err := resolve(name)
	if err != nil {
		return err
	}

	results, err := ReadResults(r.StatePath)
	if err != nil {
		r.Log.Warn("maintenance_state_unreadable", zap.Error(err))
		results = map[string]Result{}
	}

	var lines []string
	var failed bool
	for _, t := range todo {
		res := r.runTask(ctx, t)
		results[t.Name] = res
		if err := state.WriteFileAtomic(r.StatePath, results); err != nil {
			r.Log.Error("maintenance_state_write_failed", zap.Error(err))
		}
		if res.Success {
			lines = append(lines, fmt.Sprintf("%s: ✅", t.Name))
		} else {
			failed = true
			lines = append(lines, fmt.Sprintf("%s: ❌ (%s)", t.Name, res.Error))
		}
	}

	head := "🛠 Maintenance complete"
	if failed {
		head = "🛠 Maintenance finished with failures"
	}
	summary := head + "\n" + strings.Join(lines, "\n")
	if err := r.Notifier.Send(ctx, summary); err != nil {
		r.Log.Error("dispatcher_unavailable", zap.Error(err))
	}
	if failed {
		return errors.New("one or more maintenance tasks failed")
	}
	return nil
}

func (r *Runner) runTask(ctx context.Context, t Task) Result {
	started := r.now()
	logFile := filepath.Join(r.LogDir, fmt.Sprintf("%s_%s.log", t.Name, started.Format("20060102_150405")))
	r.Log.Info("maintenance_task_started", zap.String("task", t.Name), zap.String("log_file", logFile))

	out, err := r.run(ctx, t.Argv[0], t.Argv[1:]...)
	if werr := writeTaskLog(logFile, out); werr != nil {
		r.Log.Warn("maintenance_log_write_failed", zap.String("task", t.Name), zap.Error(werr))
	}

	res := Result{LastRun: started, Success: err == nil, LogFile: logFile}
	if err != nil {
		res.Error = err.Error()
		r.Log.Error("maintenance_task_failed", zap.String("task", t.Name), zap.Error(err))
	} else {
		r.Log.Info("maintenance_task_finished", zap.String("task", t.Name))
	}
	return res
}

func writeTaskLog(path string, out []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

// ReadResults loads the persisted per-task outcomes. A missing file
// returns an empty map.
func ReadResults(path string) (map[string]Result, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Result{}, nil
	}
	if err != nil {
		return nil, err
	}
	var results map[string]Result
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return results, nil
}

// StatusText renders the persisted outcomes for chat delivery.
func StatusText(results map[string]Result) string {
	if len(results) == 0 {
		return "No maintenance has run yet."
	}
	var b strings.Builder
	b.WriteString("Maintenance status:\n")
	for _, name := range TaskNames() {
		res, ok := results[name]
		if !ok {
			fmt.Fprintf(&b, "%s: never run\n", name)
			continue
		}
		mark := "✅"
		if !res.Success {
			mark = "❌"
		}
		fmt.Fprintf(&b, "%s: %s %s\n", name, mark, res.LastRun.Format("2006-01-02 15:04:05"))
	}
	return strings.TrimRight(b.String(), "\n")
}
