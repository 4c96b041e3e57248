package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"remindbot/internal/app"
	logx "remindbot/pkg/logx"
)

const shutdownTimeout = 15 * time.Second

func newRunCmd(o *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the chat platform and serve commands and reminders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := run(cmd.Context(), o); err != nil {
				return fail(cmd, err)
			}
			return nil
		},
	}
}

func run(parent context.Context, o *rootOpts) error {
	if parent == nil {
		parent = context.Background()
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a, err := app.New(o.configPath)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if err := a.Start(ctx); err != nil {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		return errors.Join(err, a.Stop(sctx, app.StopFatalError))
	}
	log := a.Logger()
	sdNotify(log, daemon.SdNotifyReady)
	go watchdog(ctx, a, log)

	reason := app.StopUnknown
	select {
	case sig := <-sigCh:
		reason = app.StopSIGTERM
		if sig == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	case <-parent.Done():
	}

	sdNotify(log, daemon.SdNotifyStopping)
	cancel()
	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	stopErr := a.Stop(sctx, reason)
	if reason == app.StopFatalError {
		return errors.Join(a.Err(), stopErr)
	}
	return stopErr
}

// watchdog pings systemd at half the configured WatchdogSec while the app
// supervisor is healthy. A fatal error stops the pings so systemd restarts
// the unit even if shutdown hangs.
func watchdog(ctx context.Context, a *app.App, log logx.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("systemd watchdog config unreadable", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if a.Err() != nil {
				return
			}
			sdNotify(log, daemon.SdNotifyWatchdog)
		}
	}
}

func sdNotify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify", logx.String("state", state))
	}
}
