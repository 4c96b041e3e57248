package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"remindbot/internal/config"
)

type rootOpts struct {
	configPath string
	envFile    string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := &rootOpts{}
	cmd := &cobra.Command{
		Use:           "remindbot",
		Short:         "Task and event reminder bot for Telegram and Discord",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: strings.TrimSpace(`
  # Run the bot (systemd: Type=notify, WatchdogSec=60)
  remindbot run --config /etc/remindbot/config.yaml

  # One sweep tick, e.g. from a timer while the bot is down
  remindbot sweep --once

  # Import documents exported from the previous bot
  remindbot import --kind task tasks.jsonl
`),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(o.envFile)
		},
	}
	cmd.PersistentFlags().StringVarP(&o.configPath, "config", "c", envOr("REMINDBOT_CONFIG", "./config.yaml"), "path to the JSON or YAML config")
	cmd.PersistentFlags().StringVar(&o.envFile, "env-file", ".env", "dotenv file with secrets; missing is fine")
	cmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "info", "console log level for one-shot commands")

	cmd.AddCommand(newRunCmd(o))
	cmd.AddCommand(newSweepCmd(o))
	cmd.AddCommand(newWeeklyCmd(o))
	cmd.AddCommand(newImportCmd(o))
	cmd.AddCommand(newCheckConfigCmd(o))

	cmd.SetErr(os.Stderr)
	cmd.SetOut(os.Stdout)
	return cmd
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// fail prints err on stderr in the shape operators grep for.
func fail(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), "fatal:", err)
	return err
}
