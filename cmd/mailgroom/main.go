// Command mailgroom organises a Gmail mailbox: it scans recent mail, groups
// it into filter candidates, walks the user through a review, and
// materialises the accepted rules as labels and server-side filters.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mailgroom/internal/config"
	"mailgroom/internal/errs"
	"mailgroom/internal/gmail"
	"mailgroom/internal/pipeline"
	"mailgroom/internal/state"
)

// Exit codes.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
	exitAuth    = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		dataDir    string
		configPath string
		logLevel   string
	)

	rootCmd := &cobra.Command{
		Use:           "mailgroom",
		Short:         "Organise a Gmail mailbox into labels and server-side filters",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", config.DefaultDataDir(), "Directory for credentials, state and reports")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default <data-dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level: debug, info, warn, error")

	resolveConfigPath := func() string {
		if configPath != "" {
			return configPath
		}
		return filepath.Join(dataDir, "config.yaml")
	}

	var authForce bool
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Acquire and cache Gmail credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogger(logLevel)
			_, err := gmail.NewService(cmd.Context(), dataDir, authForce)
			if err != nil {
				return err
			}
			fmt.Println("Authentication successful.")
			return nil
		},
	}
	authCmd.Flags().BoolVar(&authForce, "force", false, "Discard any cached token and re-authenticate")

	initConfigCmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath()
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}

	var (
		dryRun           bool
		noReview         bool
		interactive      bool
		labelsOnly       bool
		resume           bool
		ignoreExclusions bool
	)
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Scan, review and materialise filter rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(logLevel)

			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			if dryRun {
				cfg.Execution.DryRun = true
			}

			svc, err := gmail.NewService(cmd.Context(), dataDir, false)
			if err != nil {
				return err
			}
			client, err := gmail.NewClient(svc, gmail.Options{
				MaxConcurrent: cfg.Scan.MaxConcurrentRequests,
				Logger:        logger,
			})
			if err != nil {
				return err
			}

			opts := pipeline.Options{
				Config:           cfg,
				DataDir:          dataDir,
				Client:           client,
				Logger:           logger,
				DryRun:           cfg.Execution.DryRun,
				NoReview:         noReview,
				LabelsOnly:       labelsOnly,
				Resume:           resume,
				IgnoreExclusions: ignoreExclusions,
			}
			if interactive {
				opts.Confirm = confirmPhase
			}
			return pipeline.Run(cmd.Context(), opts)
		},
	}
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log planned operations without touching the mailbox")
	runCmd.Flags().BoolVar(&noReview, "no-review", false, "Accept every proposed cluster without interactive review")
	runCmd.Flags().BoolVar(&interactive, "interactive", false, "Confirm before each remote-mutating phase")
	runCmd.Flags().BoolVar(&labelsOnly, "labels-only", false, "Create labels but no filters and no retroactive changes")
	runCmd.Flags().BoolVar(&resume, "resume", false, "Continue an interrupted run from its checkpoint")
	runCmd.Flags().BoolVar(&ignoreExclusions, "ignore-exclusions", false, "Resurface permanently excluded clusters")

	var detailed bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Summarise the current run state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printStatus(filepath.Join(dataDir, pipeline.StateFile), detailed)
		},
	}
	statusCmd.Flags().BoolVar(&detailed, "detailed", false, "Include checkpoints and created object ids")

	rootCmd.AddCommand(authCmd, initConfigCmd, runCmd, statusCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		switch errs.KindOf(err) {
		case errs.KindAuth:
			fmt.Fprintln(os.Stderr, "Run 'mailgroom auth' to (re)authenticate.")
			return exitAuth
		case errs.KindInvalidInput:
			return exitConfig
		}
		return exitRuntime
	}
	return exitOK
}

func setupLogger(level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	switch strings.ToLower(level) {
	case "debug":
		lvl.Set(slog.LevelDebug)
	case "warn", "warning":
		lvl.Set(slog.LevelWarn)
	case "error":
		lvl.Set(slog.LevelError)
	default:
		lvl.Set(slog.LevelInfo)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

// confirmPhase implements --interactive: one yes/no question per
// remote-mutating phase.
func confirmPhase(phase state.Phase) bool {
	fmt.Printf("Proceed with %s? [y/N] ", phase)
	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(sc.Text()))
	return answer == "y" || answer == "yes"
}

func printStatus(statePath string, detailed bool) error {
	if !state.Exists(statePath) {
		fmt.Println("No run state found.")
		return nil
	}
	st, err := state.Load(statePath)
	if err != nil {
		return err
	}
	rs := st.State()

	fmt.Printf("Run:       %s\n", rs.RunID)
	fmt.Printf("Phase:     %s\n", rs.Phase)
	fmt.Printf("Started:   %s\n", rs.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated:   %s\n", rs.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Scanned:   %d messages\n", rs.MessagesScanned)
	fmt.Printf("Modified:  %d messages\n", rs.MessagesModified)
	fmt.Printf("Failures:  %d messages, %d batches\n", len(rs.FailedMessageIDs), len(rs.FailedBatchIDs))
	if rs.Completed {
		fmt.Println("Completed: yes")
	} else {
		fmt.Println("Completed: no (resume with 'mailgroom run --resume')")
	}

	if !detailed {
		return nil
	}
	fmt.Printf("\nCheckpoints: %d\n", rs.CheckpointCount)
	if rs.PageToken != "" {
		fmt.Printf("Cursor:      %s\n", rs.PageToken)
	}
	if len(rs.CreatedLabels) > 0 {
		fmt.Println("\nLabels created:")
		for path, id := range rs.CreatedLabels {
			fmt.Printf("  %s (%s)\n", path, id)
		}
	}
	if len(rs.CreatedFilters) > 0 {
		fmt.Println("\nFilters created:")
		for key, id := range rs.CreatedFilters {
			fmt.Printf("  %s (%s)\n", key, id)
		}
	}
	if len(rs.FailedMessageIDs) > 0 {
		fmt.Println("\nFailed message ids:")
		for _, id := range rs.FailedMessageIDs {
			fmt.Printf("  %s\n", id)
		}
	}
	return nil
}
