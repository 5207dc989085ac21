package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hmibridge/hmibridge/internal/daemon"
	"github.com/hmibridge/hmibridge/internal/version"
)

const stopTimeout = 10 * time.Second

func newDaemonCommand() *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:           "daemon",
		Short:         "Query and control the bridge daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	daemonStatusCmd := &cobra.Command{
		Use:           "status",
		Short:         "Show whether the daemon runs and what it serves",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          daemonStatus,
	}

	daemonStopCmd := &cobra.Command{
		Use:           "stop",
		Short:         "Stop the running daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          daemonStop,
	}

	daemonMetricsCmd := &cobra.Command{
		Use:           "metrics",
		Short:         "Print the daemon metrics in Prometheus text format",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          daemonMetrics,
	}

	daemonCmd.AddCommand(daemonStatusCmd, daemonStopCmd, daemonMetricsCmd)
	return daemonCmd
}

// fetchStatus reads the status snapshot the daemon serves on its feed.
func fetchStatus(ctx context.Context, addr string) (daemon.Status, error) {
	var status daemon.Status
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/status", nil)
	if err != nil {
		return status, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return status, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return status, fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("decode status: %w", err)
	}
	return status, nil
}

func daemonStatus(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	instance, err := instanceName(cmd)
	if err != nil {
		return out.Error("Invalid instance", err)
	}
	pid, err := daemon.RunningPID(instance)
	if err != nil {
		return out.Error("Failed to read pid file", err)
	}
	if pid == 0 {
		if out.JSON() {
			return out.Print(map[string]any{"running": false, "instance": instance})
		}
		return out.Print(fmt.Sprintf("hmibridged (%s) is not running", instance))
	}

	addr, err := feedAddr(cmd)
	if err != nil {
		if out.JSON() {
			return out.Print(map[string]any{"running": true, "instance": instance, "pid": pid})
		}
		return out.Print(fmt.Sprintf("hmibridged (%s) is running as pid %d; %v", instance, pid, err))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	status, err := fetchStatus(ctx, addr)
	if err != nil {
		return out.Error(fmt.Sprintf("Daemon pid %d did not answer on %s", pid, addr), err)
	}
	if warning := version.Mismatch(status.Version); warning != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), warning)
	}

	if out.JSON() {
		return out.Print(map[string]any{"running": true, "status": status})
	}
	printStatus(cmd, status)
	return nil
}

func printStatus(cmd *cobra.Command, status daemon.Status) {
	o := cmd.OutOrStdout()
	fmt.Fprintf(o, "hmibridged %s (%s)\n", version.Format(status.Version), status.Instance)
	fmt.Fprintf(o, "  PID:     %d\n", status.PID)
	fmt.Fprintf(o, "  Uptime:  %s\n", status.Uptime)
	fmt.Fprintf(o, "  Hosts:   %d\n", len(status.Peers))
	fmt.Fprintf(o, "  Feed:    %d client(s)\n", status.FeedClients)
	fmt.Fprintf(o, "  Plugins: %d cached, %d extracted, %d scan(s)\n",
		status.Plugins.Entries, status.Plugins.Extractions, status.Plugins.ScanCount)
	fmt.Fprintf(o, "  Events:  %d published, %d dropped\n", status.Bus.PublishTotal, status.Bus.DroppedTotal)
	if pb := status.Pedalboard; pb != nil {
		fmt.Fprintf(o, "  Pedalboard: [%d] %s, %d pedal(s)\n", pb.Index, pb.Name, pb.Pedals)
	} else {
		fmt.Fprintln(o, "  Pedalboard: none")
	}

	names := make([]string, 0, len(status.Services))
	for name := range status.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	w := tabwriter.NewWriter(o, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nSERVICE\tSTATE")
	for _, name := range names {
		state := "stopped"
		if status.Services[name] {
			state = "running"
		}
		fmt.Fprintf(w, "%s\t%s\n", name, state)
	}
	w.Flush()

	if len(status.Peers) > 0 {
		fmt.Fprintln(o, "\nHosts:")
		for _, p := range status.Peers {
			fmt.Fprintf(o, "  %s  %s\n", p.ID, p.Remote)
		}
	}
}

func daemonMetrics(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	addr, err := feedAddr(cmd)
	if err != nil {
		return out.Error("Metrics are served on the event feed", err)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/metrics", nil)
	if err != nil {
		return out.Error("Failed to build request", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return out.Error("Failed to reach daemon", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out.Error("Failed to read metrics", fmt.Errorf("unexpected status %s", resp.Status))
	}
	_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
	return err
}

func daemonStop(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	instance, err := instanceName(cmd)
	if err != nil {
		return out.Error("Invalid instance", err)
	}
	if err := daemon.Stop(instance, stopTimeout); err != nil {
		return out.Error("Failed to stop daemon", err)
	}
	return out.Success(fmt.Sprintf("hmibridged (%s) stopped", instance), map[string]any{"instance": instance})
}
