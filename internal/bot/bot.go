// Package bot answers operator commands over the Telegram long-poll API.
// It reads the same persisted state the monitoring passes write, so
// /status costs nothing but a file read.
package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pialert/pialert/internal/maintain"
	"github.com/pialert/pialert/internal/notify"
	"github.com/pialert/pialert/internal/state"
)

// Transport is the slice of the Telegram client the bot needs. notify.Telegram
// implements it; tests supply a scripted fake.
type Transport interface {
	Updates(ctx context.Context, offset int64, timeout time.Duration) ([]notify.Update, error)
	Reply(ctx context.Context, chatID int64, text string) error
}

// Bot polls for commands and dispatches them. RunMonitor triggers a live
// monitoring pass for /monitor; RunMaintain starts a maintenance task.
type Bot struct {
	Transport        Transport
	DownAlert        state.Store
	Monitor          state.Store
	MaintenanceState string
	RunMonitor       func(ctx context.Context) error
	RunMaintain      func(ctx context.Context, task string) error
	Log              *zap.Logger

	PollTimeout time.Duration
	// IgnoreBefore drops commands sent before the bot came up. After a
	// restart the API replays up to a day of queued messages; running a
	// stale /maintenance from yesterday would be a surprise upgrade.
	IgnoreBefore time.Time

	offset int64
	sleep  func(ctx context.Context, d time.Duration) bool
}

func New(tr Transport, downAlert, monitor state.Store, log *zap.Logger) *Bot {
	return &Bot{
		Transport:    tr,
		DownAlert:    downAlert,
		Monitor:      monitor,
		Log:          log,
		PollTimeout:  30 * time.Second,
		IgnoreBefore: time.Now(),
		sleep:        sleepCtx,
	}
}

// Run polls until ctx is cancelled. Poll failures are logged and retried
// after a short pause; a broken network must not kill the bot, the
// supervisor only restarts on real crashes.
func (b *Bot) Run(ctx context.Context) error {
	b.Log.Info("bot_started")
	for {
		if ctx.Err() != nil {
			b.Log.Info("bot_stopped")
			return nil
		}
		updates, err := b.Transport.Updates(ctx, b.offset, b.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				b.Log.Info("bot_stopped")
				return nil
			}
			b.Log.Warn("bot_poll_failed", zap.Error(err))
			if !b.sleep(ctx, 3*time.Second) {
				b.Log.Info("bot_stopped")
				return nil
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= b.offset {
				b.offset = u.UpdateID + 1
			}
			if u.Message == nil || !strings.HasPrefix(u.Message.Text, "/") {
				continue
			}
			if u.Message.Date > 0 && time.Unix(u.Message.Date, 0).Before(b.IgnoreBefore) {
				b.Log.Info("bot_backlog_skipped",
					zap.String("command", u.Message.Text),
					zap.Int64("sent_at", u.Message.Date),
				)
				continue
			}
			b.handle(ctx, u.Message.Chat.ID, u.Message.Text)
		}
	}
}

func (b *Bot) handle(ctx context.Context, chatID int64, text string) {
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	b.Log.Info("bot_command", zap.String("command", cmd))

	var reply string
	switch cmd {
	case "/status":
		reply = b.statusText()
	case "/monitor":
		if err := b.RunMonitor(ctx); err != nil {
			reply = fmt.Sprintf("Monitor pass failed: %v", err)
			break
		}
		reply = "Live check done.\n" + b.statusText()
	case "/maintenance_status":
		results, err := maintain.ReadResults(b.MaintenanceState)
		if err != nil {
			reply = fmt.Sprintf("Cannot read maintenance state: %v", err)
			break
		}
		reply = maintain.StatusText(results)
	case "/maintenance":
		task := "all"
		if len(fields) > 1 {
			task = fields[1]
		}
		if err := b.RunMaintain(ctx, task); err != nil {
			reply = fmt.Sprintf("Maintenance %q failed: %v", task, err)
			break
		}
		reply = fmt.Sprintf("Maintenance %q finished.", task)
	default:
		reply = "Commands:\n/status\n/monitor\n/maintenance [task]\n/maintenance_status"
	}

	if err := b.Transport.Reply(ctx, chatID, reply); err != nil {
		b.Log.Warn("bot_reply_failed", zap.Error(err))
	}
}

// statusText renders every persisted record from both modules.
func (b *Bot) statusText() string {
	var sb strings.Builder
	sb.WriteString("📊 Pi-hole status\n")
	writeSection(&sb, "Connectivity", b.DownAlert)
	writeSection(&sb, "Resources", b.Monitor)
	return strings.TrimRight(sb.String(), "\n")
}

func writeSection(sb *strings.Builder, title string, store state.Store) {
	fmt.Fprintf(sb, "\n%s:\n", title)
	records, err := store.All()
	if err != nil {
		fmt.Fprintf(sb, "unreadable: %v\n", err)
		return
	}
	if len(records) == 0 {
		sb.WriteString("no observations yet\n")
		return
	}
	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rec := records[name]
		mark := "✅"
		if !rec.LastState.Healthy() {
			mark = "⚠️"
		}
		if rec.LastValue != nil {
			fmt.Fprintf(sb, "%s %s: %s (%.1f%s)\n", mark, name, rec.LastState, *rec.LastValue, rec.Unit)
		} else {
			fmt.Fprintf(sb, "%s %s: %s\n", mark, name, rec.LastState)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
