// Package cli wires configuration, logging, probes, state and delivery
// into the pialert commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pialert/pialert/internal/bot"
	"github.com/pialert/pialert/internal/config"
	"github.com/pialert/pialert/internal/domain"
	"github.com/pialert/pialert/internal/httpapi"
	"github.com/pialert/pialert/internal/logging"
	"github.com/pialert/pialert/internal/maintain"
	"github.com/pialert/pialert/internal/notify"
	"github.com/pialert/pialert/internal/probe"
	"github.com/pialert/pialert/internal/scheduler"
	"github.com/pialert/pialert/internal/state"
	"github.com/pialert/pialert/internal/supervisor"
)

// Execute runs the root command. Configuration problems and failed
// commands surface as a non-zero exit through the returned error.
func Execute() error {
	return newRootCmd().Execute()
}

type app struct {
	cfgPath string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "pialert",
		Short:         "Health monitoring and alerting for a Pi-hole appliance",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "/etc/pialert/config.json", "path to the configuration file")

	root.AddCommand(newCheckCmd(a))
	root.AddCommand(newBotCmd(a))
	root.AddCommand(newSuperviseCmd(a))
	root.AddCommand(newMaintainCmd(a))
	root.AddCommand(newVersionCmd())
	return root
}

// version is set at build time with -ldflags "-X ...cli.version=v1.2.3".
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pialert version",
		// no config needed to print a version
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "pialert", version)
		},
	}
}

// ---- shared wiring ----

func (a *app) notifier(log *zap.Logger) notify.Notifier {
	if a.cfg.Settings.DryRun {
		return &notify.DryRun{Log: log}
	}
	tg := notify.NewTelegram(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID)
	return notify.NewRetry(tg, a.cfg.Notify.Attempts, a.cfg.NotifyBackoff())
}

func (a *app) downAlertChecks() []scheduler.Check {
	var checks []scheduler.Check
	for _, target := range a.cfg.DownAlertTargets() {
		var pr probe.Prober
		switch target.Kind {
		case domain.KindService:
			pr = probe.NewServiceProbe(a.cfg.DownAlert.Service, a.cfg.DialTimeout())
		default:
			pr = probe.NewConnectivityProbe(a.cfg.DownAlert.Hosts, a.cfg.DialTimeout())
		}
		checks = append(checks, scheduler.Check{Target: target, Prober: pr})
	}
	return checks
}

func (a *app) monitorChecks() []scheduler.Check {
	var checks []scheduler.Check
	for _, target := range a.cfg.MonitorTargets() {
		checks = append(checks, scheduler.Check{Target: target, Prober: probe.NewResourceProbe(target.Name)})
	}
	return checks
}

// maintenancePaths falls back next to the down-alert module when no
// dedicated maintenance paths are configured.
func (a *app) maintenancePaths() (logDir, statePath string) {
	logDir = a.cfg.Paths.Maintenance.Logs
	if logDir == "" {
		logDir = a.cfg.Paths.DownAlert.Logs
	}
	statePath = a.cfg.Paths.Maintenance.State
	if statePath == "" {
		statePath = filepath.Join(filepath.Dir(a.cfg.Paths.DownAlert.State), "maintenance_state.json")
	}
	return logDir, statePath
}

func (a *app) runPass(ctx context.Context, module string, checks []scheduler.Check, statePath string, force bool) error {
	logDir := a.cfg.Paths.DownAlert.Logs
	if module == "monitor" {
		logDir = a.cfg.Paths.Monitor.Logs
	}
	log, err := logging.NewLogger(logDir, module)
	if err != nil {
		return fmt.Errorf("open %s log: %w", module, err)
	}
	defer log.Sync() //nolint:errcheck

	store := state.NewFileStore(statePath)
	p := scheduler.NewPass(checks, store, a.notifier(log), log)
	p.Force = force
	return p.Run(ctx)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ---- commands ----

func newCheckCmd(a *app) *cobra.Command {
	var module string
	var force bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one monitoring pass and exit (cron entry point)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			switch module {
			case "down_alert":
				return a.runPass(ctx, "down_alert", a.downAlertChecks(), a.cfg.Paths.DownAlert.State, force)
			case "monitor":
				return a.runPass(ctx, "monitor", a.monitorChecks(), a.cfg.Paths.Monitor.State, force)
			case "all":
				if err := a.runPass(ctx, "down_alert", a.downAlertChecks(), a.cfg.Paths.DownAlert.State, force); err != nil {
					return err
				}
				return a.runPass(ctx, "monitor", a.monitorChecks(), a.cfg.Paths.Monitor.State, force)
			default:
				return fmt.Errorf("unknown module %q (want down_alert, monitor or all): %w", module, config.ErrConfig)
			}
		},
	}
	cmd.Flags().StringVar(&module, "module", "all", "which module to run: down_alert, monitor or all")
	cmd.Flags().BoolVar(&force, "force", false, "re-send alerts for targets already in a bad state")
	return cmd
}

func newBotCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram command bot (long-lived worker)",
		RunE: func(cmd *cobra.Command, args []string) error {
			tg := notify.NewTelegram(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID)
			if !tg.Enabled() {
				return fmt.Errorf("bot needs telegram credentials: %w", config.ErrConfig)
			}

			log, err := logging.NewLogger(a.cfg.Paths.DownAlert.Logs, "bot")
			if err != nil {
				return fmt.Errorf("open bot log: %w", err)
			}
			defer log.Sync() //nolint:errcheck

			ctx, cancel := signalContext()
			defer cancel()

			downAlert := state.NewFileStore(a.cfg.Paths.DownAlert.State)
			monitor := state.NewFileStore(a.cfg.Paths.Monitor.State)
			maintLogs, maintState := a.maintenancePaths()

			b := bot.New(tg, downAlert, monitor, log)
			b.MaintenanceState = maintState
			b.RunMonitor = func(ctx context.Context) error {
				return a.runPass(ctx, "monitor", a.monitorChecks(), a.cfg.Paths.Monitor.State, true)
			}
			b.RunMaintain = func(ctx context.Context, task string) error {
				return maintain.NewRunner(maintLogs, maintState, a.notifier(log), log).Run(ctx, task)
			}

			if addr := a.cfg.HTTP.Addr; addr != "" {
				api := httpapi.NewServer(downAlert, monitor, maintState, log)
				go func() {
					if err := api.ListenAndServe(addr); err != nil {
						log.Error("status_api_failed", zap.Error(err))
					}
				}()
			}

			return b.Run(ctx)
		},
	}
}

func newSuperviseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "supervise",
		Short: "Keep the bot worker running, restarting it after every exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("locate own binary: %w", err)
			}

			logDir := a.cfg.Paths.Supervisor.Logs
			if logDir == "" {
				logDir = a.cfg.Paths.DownAlert.Logs
			}
			log, err := logging.NewLogger(logDir, "supervisor")
			if err != nil {
				return fmt.Errorf("open supervisor log: %w", err)
			}
			defer log.Sync() //nolint:errcheck

			ctx, cancel := signalContext()
			defer cancel()

			cfgPath := a.cfgPath
			factory := func() supervisor.Process {
				return supervisor.NewExecProcess(exe, "bot", "--config", cfgPath)
			}
			s := supervisor.New(factory, a.cfg.RestartInterval(), a.cfg.GracePeriod(), log)
			s.Run(ctx)
			return nil
		},
	}
}

func newMaintainCmd(a *app) *cobra.Command {
	var task string
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Run maintenance tasks and send a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			maintLogs, maintState := a.maintenancePaths()
			log, err := logging.NewLogger(maintLogs, "maintenance")
			if err != nil {
				return fmt.Errorf("open maintenance log: %w", err)
			}
			defer log.Sync() //nolint:errcheck

			ctx, cancel := signalContext()
			defer cancel()

			return maintain.NewRunner(maintLogs, maintState, a.notifier(log), log).Run(ctx, task)
		},
	}
	cmd.Flags().StringVar(&task, "task", "all", "task to run: "+taskList())
	return cmd
}

func taskList() string {
	out := "all"
	for _, name := range maintain.TaskNames() {
		out += ", " + name
	}
	return out
}
