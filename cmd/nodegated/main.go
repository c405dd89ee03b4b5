package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nodegate-io/nodegate/internal/config"
	configstore "github.com/nodegate-io/nodegate/internal/config/store"
	"github.com/nodegate-io/nodegate/internal/daemon"
	"github.com/nodegate-io/nodegate/internal/hal"
	noderuntime "github.com/nodegate-io/nodegate/internal/runtime"
	nodeversion "github.com/nodegate-io/nodegate/internal/version"
)

var (
	flagNode     string
	flagListen   string
	flagDNS      string
	flagSim      bool
	flagSimTags  []string
	flagNetworks []string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "nodegated",
		Short:         "Nodegate daemon - access-control node controller",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDaemon,
	}
	rootCmd.Version = nodeversion.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	rootCmd.Flags().StringVar(&flagNode, "node", config.DefaultNode, "node name")
	rootCmd.Flags().StringVar(&flagListen, "listen", daemon.DefaultHTTPAddr, "HTTP listen address")
	rootCmd.Flags().StringVar(&flagDNS, "dns-listen", daemon.DefaultDNSAddr, "captive DNS listen address (empty disables)")
	rootCmd.Flags().BoolVar(&flagSim, "sim", false, "run with simulated radio and tag reader")
	rootCmd.Flags().StringSliceVar(&flagSimTags, "sim-tag", nil, "queue a simulated tag read (repeatable, --sim only)")
	rootCmd.Flags().StringSliceVar(&flagNetworks, "sim-network", nil, "simulated visible network (repeatable, --sim only)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	paths, err := config.EnsureNodeDirs(flagNode)
	if err != nil {
		return fmt.Errorf("prepare node directories: %w", err)
	}

	if err := setupLogging(paths); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logging: %v\n", err)
	}

	if pid, running := daemonRunning(paths.PIDFile); running {
		return fmt.Errorf("daemon is already running (PID %d)", pid)
	}

	store, err := configstore.Open(configstore.Options{
		NodeName: flagNode,
		DBPath:   paths.ConfigDB,
	})
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	radio, reader, actuator, err := buildCapabilities()
	if err != nil {
		return err
	}

	d, err := daemon.New(daemon.Options{
		Store:    store,
		Radio:    radio,
		Reader:   reader,
		Actuator: actuator,
		HTTPAddr: flagListen,
		DNSAddr:  flagDNS,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %s, shutting down...", sig)
		d.Shutdown()
	}()

	log.Printf("Nodegate daemon started (PID: %d)", os.Getpid())
	log.Printf("Console socket: %s", paths.Socket)

	if err := d.Run(ctx); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	log.Println("Daemon stopped")
	return nil
}

// buildCapabilities selects the hardware layer. This repository carries
// the controller logic and the simulated capabilities; hardware radio
// and reader drivers are provided by device-specific builds.
func buildCapabilities() (hal.Radio, hal.Reader, hal.Actuator, error) {
	if !flagSim {
		return nil, nil, nil, errors.New("no hardware drivers in this build, run with --sim")
	}

	var radioOpts []hal.SimRadioOption
	if len(flagNetworks) > 0 {
		radioOpts = append(radioOpts, hal.WithVisibleNetworks(flagNetworks...))
	}
	radio := hal.NewSimRadio(radioOpts...)

	reader := hal.NewSimReader()
	for _, tag := range flagSimTags {
		reader.QueueTag(hal.TagID(tag))
	}

	return radio, reader, hal.NewSimActuator(), nil
}

// daemonRunning reports whether a live process holds the pid file.
func daemonRunning(pidFile string) (int, bool) {
	pid, err := noderuntime.ReadPIDFile(pidFile)
	if err != nil {
		return 0, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, false
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return pid, false
	}
	return pid, true
}

func setupLogging(paths config.NodePaths) error {
	if err := os.MkdirAll(paths.Logs, 0o755); err != nil {
		return fmt.Errorf("create logs directory: %w", err)
	}

	logPath := filepath.Join(paths.Logs, "daemon.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	multi := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(multi)
	log.SetFlags(log.LstdFlags)

	log.Printf("=== Nodegate Daemon Starting (PID: %d) ===", os.Getpid())
	log.Printf("Log file: %s", logPath)
	return nil
}
