package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hmibridge/hmibridge/internal/config"
	configstore "github.com/hmibridge/hmibridge/internal/config/store"
	"github.com/hmibridge/hmibridge/internal/daemon"
	"github.com/hmibridge/hmibridge/internal/validate"
	"github.com/hmibridge/hmibridge/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "hmibridged",
		Short:         "HMI bridge daemon - relays between the audio host and presentation clients",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDaemon,
	}
	rootCmd.Version = version.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	rootCmd.Flags().String("instance", config.DefaultInstance, "Instance name")
	rootCmd.Flags().Bool("quiet", false, "Log to the instance log file only")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	instance, _ := cmd.Flags().GetString("instance")
	quiet, _ := cmd.Flags().GetBool("quiet")
	if !validate.Ident(instance) {
		return fmt.Errorf("invalid instance name %q", instance)
	}

	if err := setupLogging(instance, quiet); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logging: %v\n", err)
	}

	if daemon.IsRunning(instance) {
		return fmt.Errorf("daemon is already running for instance %s", instance)
	}

	store, err := configstore.Open(configstore.Options{InstanceName: instance})
	if err != nil {
		return fmt.Errorf("failed to open config store: %w", err)
	}
	defer store.Close()

	d, err := daemon.New(daemon.Options{Store: store})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() { errChan <- d.Start() }()

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %s, shutting down...", sig)
		d.Shutdown()
		if err := <-errChan; err != nil {
			log.Printf("Error during shutdown: %v", err)
			return err
		}
	case err := <-errChan:
		if err != nil {
			log.Printf("Daemon error: %v", err)
			return err
		}
	}

	log.Println("Daemon stopped")
	return nil
}

func setupLogging(instance string, quiet bool) error {
	paths, err := config.EnsureInstanceDirs(instance)
	if err != nil {
		return fmt.Errorf("initialise instance directories: %w", err)
	}

	logPath := filepath.Join(paths.Logs, "daemon.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	var out io.Writer = logFile
	if !quiet {
		out = io.MultiWriter(os.Stdout, logFile)
	}
	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	log.Printf("=== HMI Bridge Daemon Starting (instance %s, PID %d, %s) ===", instance, os.Getpid(), version.Format(version.String()))
	log.Printf("Log file: %s", logPath)
	return nil
}
