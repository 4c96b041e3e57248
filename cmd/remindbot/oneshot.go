package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"remindbot/internal/app"
	"remindbot/internal/config"
	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

func newSweepCmd(o *rootOpts) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the reminder sweep without serving commands",
		Long: strings.TrimSpace(`
Runs the reminder sweep against the configured store and delivers due
notices. With --once a single tick runs and the command exits; otherwise it
ticks at reminders.sweep_interval until interrupted.`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(o.configPath)
			if err != nil {
				return fail(cmd, err)
			}
			defer a.Close()

			tick := func() error {
				res, err := a.SweepOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.String())
				return nil
			}
			if once {
				if err := tick(); err != nil {
					return fail(cmd, err)
				}
				return nil
			}

			every, err := config.ParseDurationOrDefault("reminders.sweep_interval", a.Config().Reminders.SweepInterval, time.Minute)
			if err != nil {
				return fail(cmd, err)
			}
			t := time.NewTicker(every)
			defer t.Stop()
			for {
				if err := tick(); err != nil {
					a.Logger().Warn("sweep failed", logx.Err(err))
				}
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
				}
			}
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single tick and exit")
	return cmd
}

func newWeeklyCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "weekly",
		Short: "Post the weekly summary for the last completed week now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(o.configPath)
			if err != nil {
				return fail(cmd, err)
			}
			defer a.Close()

			res, err := a.WeeklyOnce(cmd.Context())
			if err != nil {
				return fail(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "window %s .. %s: scopes=%d sent=%d skipped=%d failed=%d\n",
				res.Start.Format(time.RFC3339), res.End.Format(time.RFC3339),
				res.Scopes, res.Sent, res.Skipped, res.Failed)
			return nil
		},
	}
}

func newImportCmd(o *rootOpts) *cobra.Command {
	var (
		kind   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "import [flags] FILE...",
		Short: "Import exported task or event documents into the store",
		Long: strings.TrimSpace(`
Reads documents exported from the previous bot (one JSON object per line or a
JSON array, relaxed or canonical extended JSON) and inserts them. Items whose
ID already exists are skipped, so an import can be repeated safely.`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k := reminder.Kind(strings.ToLower(strings.TrimSpace(kind)))
			if !k.Valid() {
				return fail(cmd, fmt.Errorf("--kind must be task or event, got %q", kind))
			}
			items, err := decodeFiles(k, args)
			if err != nil {
				return fail(cmd, err)
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "decoded %d %s item(s)\n", len(items), k)
				return nil
			}

			cfg, err := config.NewConfigManager(o.configPath).Parse()
			if err != nil {
				return fail(cmd, err)
			}
			log := logx.NewConsole(o.logLevel).With(logx.String("comp", "import"))
			st, err := app.OpenStore(cfg, log)
			if err != nil {
				return fail(cmd, err)
			}
			defer st.Close()

			svc := reminder.NewService(reminder.Deps{Store: st, Log: log}, cfg.Reminders.DefaultTimezone)
			inserted, skipped, err := svc.Import(cmd.Context(), items)
			fmt.Fprintf(cmd.OutOrStdout(), "inserted=%d skipped=%d\n", inserted, skipped)
			if err != nil {
				return fail(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "task", "document kind: task or event")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "decode and count without writing")
	return cmd
}

func decodeFiles(kind reminder.Kind, paths []string) ([]reminder.Item, error) {
	var all []reminder.Item
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		items, err := reminder.DecodeLegacyStream(kind, f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		all = append(all, items...)
	}
	return all, nil
}

func newCheckConfigCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the config file and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigManager(o.configPath).Parse()
			if err != nil {
				w := cmd.ErrOrStderr()
				fmt.Fprintf(w, "%s: invalid\n", o.configPath)
				for _, line := range strings.Split(err.Error(), "\n") {
					fmt.Fprintln(w, "  -", line)
				}
				return errors.New("config invalid")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (platform=%s storage=%s tz=%s weekly=%v)\n",
				o.configPath, cfg.Transport.Platform, cfg.Storage.Driver,
				cfg.Reminders.DefaultTimezone, cfg.WeeklySummary.IsEnabled())
			return nil
		},
	}
}
