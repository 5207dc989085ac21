package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hmibridge/hmibridge/internal/config"
	"github.com/hmibridge/hmibridge/internal/version"
)

// OutputFormatter handles output formatting based on the --json flag.
type OutputFormatter struct {
	jsonMode bool
	cmd      *cobra.Command
}

func newOutputFormatter(cmd *cobra.Command) *OutputFormatter {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &OutputFormatter{jsonMode: jsonMode, cmd: cmd}
}

// JSON reports whether machine-readable output was requested.
func (f *OutputFormatter) JSON() bool { return f.jsonMode }

// Print outputs data in the appropriate format.
func (f *OutputFormatter) Print(data any) error {
	out := f.cmd.OutOrStdout()
	if s, ok := data.(string); ok && !f.jsonMode {
		fmt.Fprintln(out, s)
		return nil
	}
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(out, string(jsonBytes))
	return nil
}

// Success outputs a success message.
func (f *OutputFormatter) Success(message string, data map[string]any) error {
	if f.jsonMode {
		output := map[string]any{
			"success": true,
			"message": message,
		}
		for k, v := range data {
			output[k] = v
		}
		return f.Print(output)
	}
	fmt.Fprintln(f.cmd.OutOrStdout(), message)
	return nil
}

// Error outputs an error message and returns it wrapped.
func (f *OutputFormatter) Error(message string, err error) error {
	errOut := f.cmd.ErrOrStderr()
	if f.jsonMode {
		output := map[string]any{
			"success": false,
			"error":   message,
		}
		if err != nil {
			output["details"] = err.Error()
		}
		jsonBytes, _ := json.MarshalIndent(output, "", "  ")
		fmt.Fprintln(errOut, string(jsonBytes))
	} else if err != nil {
		fmt.Fprintf(errOut, "%s: %v\n", message, err)
	} else {
		fmt.Fprintln(errOut, message)
	}
	if err == nil {
		return fmt.Errorf("%s", message)
	}
	return fmt.Errorf("%s: %w", message, err)
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hmibridge",
		Short: "HMI bridge - inspect plugins and pedalboards, manage the bridge daemon",
		Long: `hmibridge works on the local instance of the HMI bridge: it reads the
plugin bundles and pedalboards the daemon serves, edits its settings and
talks to a running daemon through its event feed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Version = version.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	rootCmd.PersistentFlags().String("instance", config.DefaultInstance, "Instance name")

	rootCmd.AddCommand(
		newPluginsCommand(),
		newPedalboardsCommand(),
		newConfigCommand(),
		newDaemonCommand(),
		newSendCommand(),
		newWatchCommand(),
	)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		// Error is already printed by command handlers
		stop()
		os.Exit(1)
	}
}
