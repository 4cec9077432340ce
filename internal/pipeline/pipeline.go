// Package pipeline sequences the phases: scan, classify, review, create
// labels, create filters, apply retroactively. The run state store is
// consulted at every boundary so an interrupted run resumes at its phase.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"mailgroom/internal/apply"
	"mailgroom/internal/classify"
	"mailgroom/internal/cluster"
	"mailgroom/internal/config"
	"mailgroom/internal/exclusion"
	"mailgroom/internal/filterengine"
	"mailgroom/internal/gmail"
	"mailgroom/internal/label"
	"mailgroom/internal/model"
	"mailgroom/internal/report"
	"mailgroom/internal/review"
	"mailgroom/internal/scan"
	"mailgroom/internal/state"
	"mailgroom/internal/store"
)

// File names under the data directory.
const (
	StateFile      = "state.json"
	DecisionsFile  = "decisions.json"
	ExclusionsFile = "exclusions.json"
	CacheFile      = "cache.db"
)

// Options configures one pipeline run.
type Options struct {
	Config  *config.Config
	DataDir string
	Client  gmail.Client
	Logger  *slog.Logger

	DryRun           bool
	NoReview         bool
	LabelsOnly       bool
	Resume           bool
	IgnoreExclusions bool

	// Confirm, when non-nil, is asked before each remote-mutating phase
	// (the --interactive flag). Returning false stops the run at that
	// boundary with the state intact.
	Confirm func(phase state.Phase) bool

	// RunReview drives the review UI over a prepared session and reports
	// whether the queue was finished. Defaults to the terminal UI; tests
	// substitute their own.
	RunReview func(session *review.Session, labelName func(id string) (string, bool)) (bool, error)
}

// Run executes (or resumes) the pipeline.
func Run(ctx context.Context, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config

	if cfg.Classification.Mode != "rules" {
		logger.Warn("classification mode not yet implemented, using rules", "mode", cfg.Classification.Mode)
	}

	statePath := filepath.Join(opts.DataDir, StateFile)
	var runState *state.Store
	var err error
	if opts.Resume && state.Exists(statePath) {
		runState, err = state.Load(statePath)
		if err != nil {
			return err
		}
		if runState.State().Completed {
			logger.Info("previous run already complete, starting fresh")
			runState = state.New(statePath)
		} else {
			logger.Info("resuming run", "run_id", runState.State().RunID, "phase", runState.State().Phase)
		}
	} else {
		runState = state.New(statePath)
	}
	rs := runState.State()

	cache, err := store.Open(filepath.Join(opts.DataDir, CacheFile))
	if err != nil {
		return err
	}
	defer cache.Close()

	// A cache from a different run is stale unless we are resuming it.
	cacheRun, err := cache.GetRunID(ctx)
	if err != nil {
		return err
	}
	if cacheRun != rs.RunID {
		if err := cache.Clear(ctx); err != nil {
			return err
		}
		if err := cache.SetRunID(ctx, rs.RunID); err != nil {
			return err
		}
	}

	exclusions, err := exclusion.Load(filepath.Join(opts.DataDir, ExclusionsFile))
	if err != nil {
		return err
	}
	decisions, err := review.LoadDecisions(filepath.Join(opts.DataDir, DecisionsFile))
	if err != nil {
		return err
	}

	// --ignore-exclusions resurfaces suppressed clusters with their prior
	// decisions cleared.
	excludedKey := exclusions.Contains
	if opts.IgnoreExclusions {
		excludedKey = nil
		for _, key := range exclusions.Keys() {
			if err := decisions.Delete(key); err != nil {
				return err
			}
		}
	}

	labels := label.NewManager(opts.Client, cfg.Labels.Prefix, logger)
	classifier := classify.New(cfg.Labels.Prefix)

	// Phase: Scanning.
	var messages []model.MessageMetadata
	if rs.Phase.Rank() <= state.PhaseScanning.Rank() {
		scanner := scanNew(opts, cache, runState, logger)
		messages, err = scanner.Scan(ctx, cfg.Scan.PeriodDays)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if err := runState.SetPhase(state.PhaseClassifying); err != nil {
			return err
		}
	} else {
		messages, err = cache.LoadAllMessages(ctx)
		if err != nil {
			return err
		}
	}
	logger.Info("metadata ready", "messages", len(messages))

	// Phase: Classifying. Pure and fast, so it reruns on every resume
	// rather than persisting its output.
	classified := make([]cluster.Classified, 0, len(messages))
	for _, meta := range messages {
		meta.IsAutomated = classify.IsAutomatedSender(meta)
		classified = append(classified, cluster.Classified{Meta: meta, Class: classifier.Classify(meta)})
	}
	if rs.Phase.Rank() <= state.PhaseClassifying.Rank() {
		if err := runState.SetPhase(state.PhaseReviewing); err != nil {
			return err
		}
	}

	clusters := cluster.Build(classified, cluster.Options{
		MinEmails: cfg.Classification.MinimumEmailsForLabel,
		Excluded:  excludedKey,
	})
	// Categories the config marks auto-archive default to archiving even
	// when the per-message hints were mixed.
	for i := range clusters {
		for _, slug := range cfg.Labels.AutoArchiveCategories {
			if string(clusters[i].Category) == slug {
				clusters[i].ShouldArchive = true
			}
		}
	}
	logger.Info("clusters proposed", "count", len(clusters))

	clusters, err = filterengine.Reconcile(ctx, opts.Client, clusters)
	if err != nil {
		return err
	}
	if err := labels.Refresh(ctx); err != nil {
		return err
	}

	// Phase: Reviewing.
	if rs.Phase.Rank() <= state.PhaseReviewing.Rank() {
		session := review.NewSession(clusters, decisions, exclusions)
		if opts.NoReview {
			if err := session.AcceptAll(); err != nil {
				return err
			}
		} else {
			runReview := opts.RunReview
			if runReview == nil {
				runReview = review.Run
			}
			finished, err := runReview(session, labels.NameByID)
			if err != nil {
				return fmt.Errorf("review: %w", err)
			}
			if !finished {
				logger.Info("review interrupted; rerun with --resume to continue")
				return runState.Checkpoint()
			}
		}
		if err := runState.SetPhase(state.PhaseCreatingLabels); err != nil {
			return err
		}
	}

	ordered := decisions.All()
	materializer := filterengine.NewMaterializer(opts.Client, labels, runState, logger, opts.DryRun)

	// Phase: CreatingLabels.
	if rs.Phase.Rank() <= state.PhaseCreatingLabels.Rank() {
		if !confirm(opts, state.PhaseCreatingLabels) {
			return runState.Checkpoint()
		}
		if err := materializer.EnsureLabels(ctx, ordered); err != nil {
			return err
		}
		next := state.PhaseCreatingFilters
		if opts.LabelsOnly {
			next = state.PhaseApplyingLabels
		}
		if err := runState.SetPhase(next); err != nil {
			return err
		}
	}

	// Phase: CreatingFilters.
	var filterResult filterengine.Result
	if !opts.LabelsOnly && rs.Phase.Rank() <= state.PhaseCreatingFilters.Rank() {
		if !confirm(opts, state.PhaseCreatingFilters) {
			return runState.Checkpoint()
		}
		filterResult, err = materializer.Apply(ctx, ordered)
		if err != nil {
			return err
		}
		if err := runState.SetPhase(state.PhaseApplyingLabels); err != nil {
			return err
		}
	}

	// Phase: ApplyingLabels.
	var applyResult apply.Result
	if !opts.LabelsOnly && rs.Phase.Rank() <= state.PhaseApplyingLabels.Rank() {
		if !confirm(opts, state.PhaseApplyingLabels) {
			return runState.Checkpoint()
		}
		applier := apply.New(opts.Client, labels, runState, logger, opts.DryRun)
		applyResult, err = applier.Apply(ctx, ordered)
		if err != nil {
			return err
		}
	}

	if err := runState.Complete(); err != nil {
		return err
	}

	reportPath, err := report.Write(opts.DataDir, report.Summary{
		State:          rs,
		Decisions:      ordered,
		CreatedLabels:  labels.Created(),
		FiltersCreated: filterResult.Created,
		FiltersDeleted: filterResult.Deleted,
		Applied:        applyResult.Modified,
		DryRun:         opts.DryRun,
	})
	if err != nil {
		return err
	}
	logger.Info("run complete", "report", reportPath,
		"filters_created", filterResult.Created, "messages_modified", applyResult.Modified)
	return nil
}

func scanNew(opts Options, cache *store.Store, runState *state.Store, logger *slog.Logger) *scan.Scanner {
	return scan.New(scan.Options{
		Client:   opts.Client,
		Cache:    cache,
		RunState: runState,
		Logger:   logger,
		Workers:  opts.Config.Scan.MaxConcurrentRequests,
	})
}

func confirm(opts Options, phase state.Phase) bool {
	if opts.Confirm == nil {
		return true
	}
	return opts.Confirm(phase)
}
