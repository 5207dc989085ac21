package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	configstore "github.com/hmibridge/hmibridge/internal/config/store"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:           "config",
		Short:         "Show and edit the bridge settings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	configShowCmd := &cobra.Command{
		Use:           "show",
		Short:         "Print the effective settings",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          configShow,
	}

	configSetCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting",
		Long: `Change one setting. A running daemon picks the change up and restarts
the affected service. Bundle roots accept a comma separated list.
Put -- before the key when the value starts with a dash.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          configSet,
	}

	configUnsetCmd := &cobra.Command{
		Use:           "unset <key>",
		Short:         "Reset one setting to its default",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          configUnset,
	}

	configKeysCmd := &cobra.Command{
		Use:           "keys",
		Short:         "List the setting keys with their current values",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          configKeys,
	}

	configExportCmd := &cobra.Command{
		Use:           "export [file]",
		Short:         "Write the settings as YAML to a file or stdout",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          configExport,
	}

	configImportCmd := &cobra.Command{
		Use:           "import <file|->",
		Short:         "Apply a YAML settings document",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          configImport,
	}

	configCmd.AddCommand(configShowCmd, configSetCmd, configUnsetCmd, configKeysCmd, configExportCmd, configImportCmd)
	return configCmd
}

// withStore opens the instance store for the duration of fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, store *configstore.Store) error) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	return fn(ctx, store)
}

func configShow(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	if out.JSON() {
		settings, err := loadSettings(cmd)
		if err != nil {
			return out.Error("Failed to load settings", err)
		}
		return out.Print(settings)
	}

	err := withStore(cmd, func(ctx context.Context, store *configstore.Store) error {
		return store.ExportYAML(ctx, cmd.OutOrStdout())
	})
	if err != nil {
		return out.Error("Failed to load settings", err)
	}
	return nil
}

func configSet(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	key, value := args[0], args[1]

	err := withStore(cmd, func(ctx context.Context, store *configstore.Store) error {
		return store.SetValue(ctx, key, value)
	})
	if configstore.IsNotFound(err) {
		return out.Error(fmt.Sprintf("Unknown setting %q (see 'hmibridge config keys')", key), nil)
	}
	if err != nil {
		return out.Error(fmt.Sprintf("Failed to set %s", key), err)
	}
	return out.Success(fmt.Sprintf("%s updated", key), map[string]any{"key": key, "value": value})
}

func configUnset(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	key := args[0]

	known := false
	for _, k := range configstore.SettingKeys() {
		if k == key {
			known = true
			break
		}
	}
	if !known {
		return out.Error(fmt.Sprintf("Unknown setting %q (see 'hmibridge config keys')", key), nil)
	}

	err := withStore(cmd, func(ctx context.Context, store *configstore.Store) error {
		return store.DeleteSetting(ctx, key)
	})
	if err != nil && !configstore.IsNotFound(err) {
		return out.Error(fmt.Sprintf("Failed to reset %s", key), err)
	}
	return out.Success(fmt.Sprintf("%s reset to its default", key), map[string]any{"key": key})
}

func configKeys(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	var values map[string]string
	err := withStore(cmd, func(ctx context.Context, store *configstore.Store) error {
		var err error
		values, err = store.LoadSettings(ctx, configstore.SettingKeys()...)
		return err
	})
	if err != nil {
		return out.Error("Failed to load settings", err)
	}

	if out.JSON() {
		return out.Print(values)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE")
	for _, key := range configstore.SettingKeys() {
		value, ok := values[key]
		if !ok {
			value = "(default)"
		}
		fmt.Fprintf(w, "%s\t%s\n", key, value)
	}
	return w.Flush()
}

func configExport(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	if len(args) == 0 {
		err := withStore(cmd, func(ctx context.Context, store *configstore.Store) error {
			return store.ExportYAML(ctx, cmd.OutOrStdout())
		})
		if err != nil {
			return out.Error("Failed to export settings", err)
		}
		return nil
	}

	path := args[0]
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return out.Error("Failed to create export file", err)
	}
	err = withStore(cmd, func(ctx context.Context, store *configstore.Store) error {
		return store.ExportYAML(ctx, f)
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return out.Error("Failed to export settings", err)
	}
	return out.Success(fmt.Sprintf("Settings written to %s", path), map[string]any{"path": path})
}

func configImport(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	var r io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return out.Error("Failed to open settings file", err)
		}
		defer f.Close()
		r = f
	}

	var applied configstore.BridgeSettings
	err := withStore(cmd, func(ctx context.Context, store *configstore.Store) error {
		var err error
		applied, err = store.ImportYAML(ctx, r)
		return err
	})
	if err != nil {
		return out.Error("Failed to import settings", err)
	}

	if out.JSON() {
		return out.Print(map[string]any{"success": true, "settings": applied})
	}
	return out.Success("Settings imported", nil)
}
