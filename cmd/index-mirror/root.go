package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Sriram-PR/index-mirror/pkg/config"
	applog "github.com/Sriram-PR/index-mirror/pkg/log"
	"github.com/Sriram-PR/index-mirror/pkg/orchestrate"
)

// shutdownGrace is how long a run may take to wind down after the first signal
const shutdownGrace = 30 * time.Second

// NewRootCmd creates the root command, which runs a mirror of one listing tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index-mirror [url]",
		Short: "Recursively download every file under a directory listing",
		Long: `index-mirror walks the auto-generated "Index of /" pages served under a
root URL and downloads every file it finds, recreating the remote directory
tree under the output directory.

A report listing every scanned directory, downloaded file and failure is
written to download_report.txt in the output directory, even when the run is
interrupted.

Examples:
  index-mirror https://files.example.com/pub/
  index-mirror -o ./mirror -t 8 -d 0.5 http://10.0.0.5/share/
  index-mirror --config mirror.yaml --state-dir ./state`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runMirrorCmd,
	}

	defaults := config.Default()
	flags := cmd.Flags()
	flags.StringP("output", "o", defaults.OutputDir, "Output directory")
	flags.Float64P("delay", "d", defaults.Delay.Seconds(), "Delay in seconds each worker waits after a download attempt")
	flags.IntP("threads", "t", defaults.NumWorkers, "Number of download workers")
	flags.Bool("verify-ssl", defaults.VerifyTLS, "Verify TLS certificates")
	flags.StringP("config", "c", "", "YAML config file (flags override its values)")
	flags.String("loglevel", "info", "Log level (debug, info, warn, error)")
	flags.String("state-dir", "", "Directory for the run journal (disabled when empty)")
	flags.Bool("reset-state", false, "Wipe the run journal for this host before starting")
	flags.Int("max-depth", 0, "Maximum directory depth below the root (0 = unlimited)")
	flags.StringArray("exclude", nil, "Regex of URLs to skip (repeatable)")
	flags.Float64("rate", 0, "Maximum HTTP requests per second across all workers (0 = unlimited)")

	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// runMirrorCmd executes a mirror run
func runMirrorCmd(cmd *cobra.Command, args []string) error {
	logLevel, _ := cmd.Flags().GetString("loglevel")
	log := applog.NewLogger(logLevel, cmd.ErrOrStderr())

	appCfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	logAppConfig(appCfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopSignals := handleSignals(cancel, log)
	defer stopSignals()

	orch := orchestrate.NewOrchestrator(appCfg, log.WithField("component", "mirror"))
	result, err := orch.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warnf("Run cancelled gracefully. Partial report at %s", result.ReportPath)
			return nil
		}
		return err
	}

	log.Info("Mirror completed successfully.")
	return nil
}

// buildConfig layers the config file, positional URL and explicitly set flags, in that order
func buildConfig(cmd *cobra.Command, args []string) (*config.AppConfig, error) {
	flags := cmd.Flags()

	appCfg := config.Default()
	configPath, _ := flags.GetString("config")
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return nil, err
		}
		appCfg = loaded
	}

	if len(args) == 1 {
		appCfg.BaseURL = args[0]
	}

	if flags.Changed("output") {
		appCfg.OutputDir, _ = flags.GetString("output")
	}
	if flags.Changed("delay") {
		seconds, _ := flags.GetFloat64("delay")
		appCfg.Delay = time.Duration(seconds * float64(time.Second))
	}
	if flags.Changed("threads") {
		appCfg.NumWorkers, _ = flags.GetInt("threads")
	}
	if flags.Changed("verify-ssl") {
		appCfg.VerifyTLS, _ = flags.GetBool("verify-ssl")
	}
	if flags.Changed("state-dir") {
		appCfg.StateDir, _ = flags.GetString("state-dir")
	}
	if flags.Changed("reset-state") {
		appCfg.ResetState, _ = flags.GetBool("reset-state")
	}
	if flags.Changed("max-depth") {
		appCfg.MaxDepth, _ = flags.GetInt("max-depth")
	}
	if flags.Changed("exclude") {
		excludes, _ := flags.GetStringArray("exclude")
		appCfg.ExcludePatterns = append(appCfg.ExcludePatterns, excludes...)
	}
	if flags.Changed("rate") {
		appCfg.MaxRequestsPerSecond, _ = flags.GetFloat64("rate")
	}

	if appCfg.BaseURL == "" {
		return nil, errors.New("a root URL is required (argument or base_url in --config)")
	}
	return appCfg, nil
}

// handleSignals cancels the run on the first SIGINT/SIGTERM and forces exit on a second
// one or when shutdown overruns shutdownGrace. The returned func stops listening.
func handleSignals(cancel context.CancelFunc, log *logrus.Logger) func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC in signal handler: %v", r)
			}
		}()

		var sig os.Signal
		select {
		case sig = <-sigChan:
		case <-done:
			return
		}
		log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(shutdownGrace):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}

// logAppConfig logs the effective configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Config: Root:%s, Output:%s, Workers:%d, Delay:%v, VerifyTLS:%t",
		appCfg.BaseURL, appCfg.OutputDir, appCfg.NumWorkers, appCfg.Delay, appCfg.VerifyTLS)
	log.Infof("Config Limits: MaxRequests:%d, RatePerSec:%g, MaxDepth:%d, Excludes:%d, AllowOutsideRoot:%t",
		appCfg.MaxConcurrentRequests, appCfg.MaxRequestsPerSecond, appCfg.MaxDepth,
		len(appCfg.ExcludePatterns), appCfg.AllowOutsideRoot)
	log.Infof("Config Timeouts: Listing:%v, Download:%v, MaxListingBytes:%d",
		appCfg.ListingTimeout, appCfg.DownloadTimeout, appCfg.MaxListingBytes)
	if appCfg.StateDir != "" {
		log.Infof("Config Journal: StateDir:%s, Reset:%t", appCfg.StateDir, appCfg.ResetState)
	}
}
