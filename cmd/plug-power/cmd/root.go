package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/oshokin/plug-power/internal/config"
	"github.com/oshokin/plug-power/internal/domain/plug"
	"github.com/oshokin/plug-power/internal/logger"
	"github.com/oshokin/plug-power/internal/service/power"
	"github.com/oshokin/plug-power/internal/version"
)

const (
	// exitOK is returned when the command sequence completed.
	exitOK = 0
	// exitFailure is returned on any error.
	exitFailure = 1
)

// errInvalidLogLevel is returned for an unrecognized --log-level value.
var errInvalidLogLevel = errors.New("invalid log level")

// newRootCommand builds the plug-power command with its flags.
func newRootCommand() *cobra.Command {
	var (
		// host overrides the plug address from configuration.
		host string
		// configPath to the configuration YAML file.
		configPath string
		// logLevel sets the minimum level of diagnostics written to stderr.
		logLevel string
	)

	rootCmd := &cobra.Command{
		Use:   "plug-power [on|off|cycle|status]",
		Short: "Control board power through a Kasa smart plug.",
		Long: `Switches the Kasa smart plug that powers the board.

Commands:
  status  print the plug alias, host and power state (default)
  on      turn the plug on unless it already is
  off     turn the plug off unless it already is
  cycle   turn the plug off, wait 3 seconds, turn it on again

The plug address comes from --host, then from the settings file, then from the
built-in default ` + config.DefaultHost + `.`,
		Example: `  plug-power status
  plug-power off
  plug-power cycle
  plug-power status --host 192.168.4.100`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgs:         plug.Names(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		RunE: func(cmd *cobra.Command, args []string) error {
			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				return fmt.Errorf("%w: %q", errInvalidLogLevel, logLevel)
			}

			logger.SetLevel(level)

			// Only a missing argument falls back to the default; an empty one is rejected.
			command := plug.DefaultCommand
			if len(args) > 0 {
				var err error
				if command, err = plug.ParseCommand(args[0]); err != nil {
					return err
				}
			}

			// An explicit --host is used verbatim, even when empty.
			var hostOverride *string
			if cmd.Flags().Changed("host") {
				hostOverride = &host
			}

			// The default settings file is optional; an explicit one is not.
			path := configPath
			if !cmd.Flags().Changed("config") {
				path = ""
			}

			return power.Run(cmd.Context(), &power.Options{
				ConfigPath: path,
				Host:       hostOverride,
				Command:    command,
				Stdout:     cmd.OutOrStdout(),
			})
		},
	}

	rootCmd.Flags().StringVar(&host, "host", "", "Kasa plug IP address or hostname (default "+config.DefaultHost+")")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "error", "diagnostics level written to stderr (debug, info, warn, error)")

	version.AttachCobraVersionCommand(rootCmd)

	return rootCmd
}

// Run executes plug-power with args and returns the process exit code.
// Failures are reported as a single "Error: <message>" line on stderr.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)

		return exitFailure
	}

	return exitOK
}

// Execute runs the plug-power CLI and exits with non-zero status on error.
// No signal handling is installed: an interrupt terminates the process, even mid-cycle.
func Execute() {
	code := Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)

	logger.Sync()

	os.Exit(code)
}
