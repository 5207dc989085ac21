package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hmibridge/hmibridge/internal/config"
	"github.com/hmibridge/hmibridge/internal/pedalboard"
)

func newPedalboardsCommand() *cobra.Command {
	pedalboardsCmd := &cobra.Command{
		Use:           "pedalboards",
		Short:         "Inspect saved pedalboards",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pedalboardsListCmd := &cobra.Command{
		Use:           "list",
		Short:         "List pedalboards in host order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          pedalboardsList,
	}

	pedalboardsShowCmd := &cobra.Command{
		Use:           "show <index|name|path>",
		Short:         "Show the pedals of a pedalboard with their saved values",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          pedalboardsShow,
	}

	pedalboardsCmd.AddCommand(pedalboardsListCmd, pedalboardsShowCmd)
	return pedalboardsCmd
}

func pedalboardsList(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	settings, err := loadSettings(cmd)
	if err != nil {
		return out.Error("Failed to load settings", err)
	}
	library := pedalboard.NewLibrary(config.ExpandPath(settings.PedalboardsDir), nil)
	entries, err := library.List()
	if err != nil {
		return out.Error("Failed to list pedalboards", err)
	}

	if out.JSON() {
		if entries == nil {
			entries = []pedalboard.Entry{}
		}
		return out.Print(entries)
	}
	if len(entries) == 0 {
		return out.Print("No pedalboards in " + library.Root())
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tNAME\tPATH")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\n", e.Index, e.Name, e.Path)
	}
	return w.Flush()
}

type pedalView struct {
	*pedalboard.PedalInstance
	PluginLabel string `json:"plugin_label,omitempty"`
	Installed   bool   `json:"installed"`
}

type pedalboardView struct {
	Name   string      `json:"name"`
	Path   string      `json:"path"`
	Pedals []pedalView `json:"pedals"`
}

func pedalboardsShow(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	settings, err := loadSettings(cmd)
	if err != nil {
		return out.Error("Failed to load settings", err)
	}
	cache, err := pluginCache(cmd, settings)
	if err != nil {
		return out.Error("Failed to open plugin cache", err)
	}
	library := pedalboard.NewLibrary(config.ExpandPath(settings.PedalboardsDir), cache)

	pb, err := library.Open(cmd.Context(), args[0])
	if err != nil {
		return out.Error("Failed to open pedalboard", err)
	}
	pedals, err := pb.Snapshot(cmd.Context())
	if err != nil {
		return out.Error("Failed to read pedalboard", err)
	}
	if err := cache.Flush(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}

	view := pedalboardView{Name: pb.Name, Path: pb.Path, Pedals: make([]pedalView, 0, len(pedals))}
	for _, p := range pedals {
		v := pedalView{PedalInstance: p, Installed: p.Plugin != nil}
		if p.Plugin != nil {
			v.PluginLabel = p.Plugin.Label
		}
		view.Pedals = append(view.Pedals, v)
	}

	if out.JSON() {
		return out.Print(view)
	}

	o := cmd.OutOrStdout()
	fmt.Fprintf(o, "%s (%s)\n", view.Name, view.Path)
	for i, p := range view.Pedals {
		label := p.PluginLabel
		if !p.Installed {
			label = "not installed"
		}
		state := "on"
		if !p.Enabled {
			state = "bypassed"
		}
		fmt.Fprintf(o, "\n[%d] %s  %s (%s) %s\n", i, p.Name, label, p.PluginURI, state)

		symbols := make([]string, 0, len(p.Values))
		for symbol := range p.Values {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)
		for _, symbol := range symbols {
			fmt.Fprintf(o, "      %s = %g\n", symbol, p.Values[symbol])
		}
		for _, f := range p.Files() {
			fmt.Fprintf(o, "      %s -> %s\n", f.Label, f.Path)
		}
	}
	return nil
}
