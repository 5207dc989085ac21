package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/hmibridge/hmibridge/internal/config"
	configstore "github.com/hmibridge/hmibridge/internal/config/store"
	"github.com/hmibridge/hmibridge/internal/plugins"
	"github.com/hmibridge/hmibridge/internal/validate"
)

const commandTimeout = 10 * time.Second

func instanceName(cmd *cobra.Command) (string, error) {
	instance, _ := cmd.Flags().GetString("instance")
	if !validate.Ident(instance) {
		return "", fmt.Errorf("invalid instance name %q", instance)
	}
	return instance, nil
}

// openStore opens the settings store of the selected instance, creating
// and seeding it on first use.
func openStore(cmd *cobra.Command) (*configstore.Store, error) {
	instance, err := instanceName(cmd)
	if err != nil {
		return nil, err
	}
	return configstore.Open(configstore.Options{InstanceName: instance})
}

func loadSettings(cmd *cobra.Command) (configstore.BridgeSettings, error) {
	store, err := openStore(cmd)
	if err != nil {
		return configstore.BridgeSettings{}, err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	return store.LoadBridgeSettings(ctx)
}

func bundleRoots(settings configstore.BridgeSettings) []string {
	roots := make([]string, 0, len(settings.BundleRoots))
	for _, root := range settings.BundleRoots {
		roots = append(roots, config.ExpandPath(root))
	}
	return roots
}

// pluginCache builds the same cache the daemon uses, sharing its disk
// document.
func pluginCache(cmd *cobra.Command, settings configstore.BridgeSettings) (*plugins.Cache, error) {
	instance, err := instanceName(cmd)
	if err != nil {
		return nil, err
	}
	diskPath := config.GetInstancePaths(instance).PluginCache
	if settings.PluginCache != "" {
		diskPath = config.ExpandPath(settings.PluginCache)
	}
	return plugins.NewCache(plugins.Options{
		Roots: bundleRoots(settings),
		Store: plugins.NewDiskStore(diskPath),
	}), nil
}

// dialAddr turns a listen address into one a local client can dial:
// wildcard and empty hosts become the loopback address.
func dialAddr(listen string) (string, error) {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "", err
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port), nil
}

func feedAddr(cmd *cobra.Command) (string, error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return "", err
	}
	if settings.EventFeedAddr == "" {
		return "", fmt.Errorf("the event feed is disabled (%s is empty)", configstore.KeyEventFeedAddr)
	}
	return dialAddr(settings.EventFeedAddr)
}
