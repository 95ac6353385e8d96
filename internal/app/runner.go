package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/cycler/internal/config"
	clierr "github.com/ggonzalez94/cycler/internal/errors"
	"github.com/ggonzalez94/cycler/internal/version"
)

// Runner wires the CLI surface: global flags, logging and the command tree.
type Runner struct {
	flags  config.GlobalFlags
	output string
	log    *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	r := &Runner{stdout: os.Stdout, stderr: os.Stderr, log: slog.Default()}
	root := r.rootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(r.stderr, "error: %v\n", err)
		return clierr.ExitCode(err)
	}
	return int(clierr.CodeSuccess)
}

func (r *Runner) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           version.CLIName,
		Short:         "Automated recurring token swaps and daily check-ins across wallets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			r.log = newLogger(r.flags.LogLevel, r.flags.LogFormat, r.stderr)
			slog.SetDefault(r.log)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&r.flags.ConfigPath, "config", "", "path to config file")
	pf.StringVar(&r.flags.RPCURL, "rpc-url", "", "RPC node URL override")
	pf.StringVar(&r.flags.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&r.flags.LogFormat, "log-format", "", "log format (text, json)")
	pf.StringVar(&r.flags.Timeout, "timeout", "", "API request timeout (e.g. 15s)")
	pf.IntVar(&r.flags.Retries, "retries", -1, "API retry attempts")
	pf.StringVar(&r.flags.MetricsListen, "metrics-listen", "", "address to expose Prometheus metrics on")
	pf.BoolVar(&r.flags.NoCache, "no-cache", false, "disable the local memo cache")
	pf.StringVarP(&r.output, "output", "o", "plain", "output format (plain, json)")

	root.AddCommand(
		r.runCommand(),
		r.accountsCommand(),
		r.checkinCommand(),
		r.configCommand(),
		r.versionCommand(),
	)
	return root
}

func newLogger(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (r *Runner) settings() (config.Settings, error) {
	return config.Load(r.flags)
}
