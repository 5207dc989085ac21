package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hmibridge/hmibridge/internal/plugins"
)

func newPluginsCommand() *cobra.Command {
	pluginsCmd := &cobra.Command{
		Use:           "plugins",
		Short:         "Inspect installed plugin bundles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pluginsListCmd := &cobra.Command{
		Use:           "list",
		Short:         "List plugins found under the bundle roots",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          pluginsList,
	}

	pluginsInfoCmd := &cobra.Command{
		Use:           "info <plugin-uri>",
		Short:         "Show the parameters and assets of a plugin",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          pluginsInfo,
	}

	pluginsRefreshCmd := &cobra.Command{
		Use:           "refresh",
		Short:         "Discard the plugin metadata cache so it is rebuilt on next use",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          pluginsRefresh,
	}

	pluginsCmd.AddCommand(pluginsListCmd, pluginsInfoCmd, pluginsRefreshCmd)
	return pluginsCmd
}

type pluginRow struct {
	URI    string `json:"uri"`
	Bundle string `json:"bundle"`
}

func pluginsList(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	settings, err := loadSettings(cmd)
	if err != nil {
		return out.Error("Failed to load settings", err)
	}

	index := plugins.BuildIndex(bundleRoots(settings))
	rows := make([]pluginRow, 0, len(index))
	for uri, bundle := range index {
		rows = append(rows, pluginRow{URI: uri, Bundle: bundle})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].URI < rows[j].URI })

	if out.JSON() {
		return out.Print(rows)
	}
	if len(rows) == 0 {
		return out.Print("No plugins found under " + strings.Join(settings.BundleRoots, ", "))
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "URI\tBUNDLE")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\n", r.URI, r.Bundle)
	}
	return w.Flush()
}

func pluginsInfo(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	settings, err := loadSettings(cmd)
	if err != nil {
		return out.Error("Failed to load settings", err)
	}
	cache, err := pluginCache(cmd, settings)
	if err != nil {
		return out.Error("Failed to open plugin cache", err)
	}

	desc, ok := cache.Get(cmd.Context(), args[0])
	if !ok {
		return out.Error(fmt.Sprintf("Plugin %s is not installed", args[0]), nil)
	}
	if err := cache.Flush(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}

	if out.JSON() {
		return out.Print(desc)
	}
	printPlugin(cmd, desc)
	return nil
}

func printPlugin(cmd *cobra.Command, desc *plugins.PluginDescription) {
	o := cmd.OutOrStdout()
	fmt.Fprintf(o, "%s\n", desc.Label)
	fmt.Fprintf(o, "  URI:    %s\n", desc.URI)
	fmt.Fprintf(o, "  Bundle: %s\n", desc.Bundle)
	if desc.Brand != "" {
		fmt.Fprintf(o, "  Brand:  %s\n", desc.Brand)
	}
	if desc.Thumbnail != "" {
		fmt.Fprintf(o, "  Thumbnail:  %s\n", desc.Thumbnail)
	}
	if desc.Screenshot != "" {
		fmt.Fprintf(o, "  Screenshot: %s\n", desc.Screenshot)
	}

	if len(desc.Controls) > 0 {
		fmt.Fprintln(o, "\nControls:")
		w := tabwriter.NewWriter(o, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  SYMBOL\tNAME\tMIN\tMAX\tDEFAULT\tKIND")
		for _, c := range desc.Controls {
			fmt.Fprintf(w, "  %s\t%s\t%g\t%g\t%g\t%s\n", c.Symbol, c.Name, c.Minimum, c.Maximum, c.Default, controlKind(c))
		}
		w.Flush()
	}

	if len(desc.Files) > 0 {
		fmt.Fprintln(o, "\nFiles:")
		for _, f := range desc.Files {
			fmt.Fprintf(o, "  %s (%s) %s\n", f.Label, f.URI, strings.Join(f.FileTypes, ","))
		}
	}
}

func controlKind(c plugins.ControlParameter) string {
	var kinds []string
	if c.Output {
		kinds = append(kinds, "output")
	}
	switch {
	case c.Toggle:
		kinds = append(kinds, "toggle")
	case c.Trigger:
		kinds = append(kinds, "trigger")
	case c.Enumeration:
		kinds = append(kinds, fmt.Sprintf("enum(%d)", len(c.ScalePoints)))
	case c.Integer:
		kinds = append(kinds, "integer")
	}
	if len(kinds) == 0 {
		return "-"
	}
	return strings.Join(kinds, ",")
}

func pluginsRefresh(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	settings, err := loadSettings(cmd)
	if err != nil {
		return out.Error("Failed to load settings", err)
	}
	cache, err := pluginCache(cmd, settings)
	if err != nil {
		return out.Error("Failed to open plugin cache", err)
	}
	if err := cache.Refresh(); err != nil {
		return out.Error("Failed to clear plugin cache", err)
	}
	indexed := len(plugins.BuildIndex(bundleRoots(settings)))
	return out.Success(fmt.Sprintf("Plugin cache cleared; %d plugins installed", indexed), map[string]any{"plugins": indexed})
}
