package filterengine

import (
	"context"
	"fmt"
	"log/slog"

	"mailgroom/internal/gmail"
	"mailgroom/internal/label"
	"mailgroom/internal/model"
	"mailgroom/internal/state"
)

// Materializer translates decisions into remote label/filter operations.
// Operations run sequentially; each remote mutation is checkpointed so a
// resumed run never repeats it.
type Materializer struct {
	client   gmail.Client
	labels   *label.Manager
	runState *state.Store
	logger   *slog.Logger
	dryRun   bool
}

// Result summarises a materialisation pass.
type Result struct {
	Created int
	Deleted int
	Skipped int
	Failed  int
}

// NewMaterializer wires the dependencies.
func NewMaterializer(client gmail.Client, labels *label.Manager, runState *state.Store, logger *slog.Logger, dryRun bool) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{client: client, labels: labels, runState: runState, logger: logger, dryRun: dryRun}
}

// EnsureLabels creates every label referenced by an accept/update decision,
// in decision order. Runs as its own phase so label creation is complete
// before any filter refers to a label id.
func (m *Materializer) EnsureLabels(ctx context.Context, decisions []model.Decision) error {
	rs := m.runState.State()
	m.labels.Seed(rs.CreatedLabels)

	for _, d := range decisions {
		if d.Action != model.ActionAccept && d.Action != model.ActionUpdateExisting {
			continue
		}
		if d.Label == "" {
			continue
		}
		if m.dryRun {
			m.logger.Info("dry-run: would ensure label", "path", d.Label)
			continue
		}
		id, err := m.labels.EnsureLabel(ctx, d.Label)
		if err != nil {
			return fmt.Errorf("ensure label %q: %w", d.Label, err)
		}
		if rs.CreatedLabels[d.Label] != id {
			rs.CreatedLabels[d.Label] = id
			if err := m.runState.Checkpoint(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Apply walks the decision map in order and issues the remote filter
// operations each decision calls for. Already-satisfied work is skipped:
// deletions of filters that no longer exist, creations whose predicate and
// action already exist remotely, and anything recorded in the run state's
// created-filter map. Per-decision failures are logged and counted; the
// pass continues.
func (m *Materializer) Apply(ctx context.Context, decisions []model.Decision) (Result, error) {
	var res Result

	existing, err := m.client.ListFilters(ctx)
	if err != nil {
		return res, fmt.Errorf("list filters: %w", err)
	}
	existingByID := map[string]model.ServerFilter{}
	for _, sf := range existing {
		existingByID[sf.ID] = sf
	}

	for _, d := range decisions {
		switch d.Action {
		case model.ActionAccept, model.ActionUpdateExisting:
			if err := m.applyCreate(ctx, d, existingByID, &res); err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				m.logger.Warn("filter operation failed", "cluster", d.ClusterKey, "err", err)
				res.Failed++
			}
		case model.ActionDeleteExisting:
			if err := m.applyDelete(ctx, d.ExistingFilterID, existingByID, &res); err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				m.logger.Warn("filter delete failed", "cluster", d.ClusterKey, "err", err)
				res.Failed++
			}
		case model.ActionExclude:
			// A permanent exclusion also tears down any existing filter for
			// the predicate.
			if d.ExistingFilterID != "" {
				if err := m.applyDelete(ctx, d.ExistingFilterID, existingByID, &res); err != nil {
					if ctx.Err() != nil {
						return res, ctx.Err()
					}
					m.logger.Warn("filter delete failed", "cluster", d.ClusterKey, "err", err)
					res.Failed++
				}
			}
		default:
			// Reject, Skip, Defer, KeepExisting: nothing to materialise.
		}
	}
	return res, nil
}

func (m *Materializer) applyCreate(ctx context.Context, d model.Decision, existingByID map[string]model.ServerFilter, res *Result) error {
	rs := m.runState.State()

	if _, done := rs.CreatedFilters[d.ClusterKey]; done {
		res.Skipped++
		return nil
	}

	labelID := ""
	if !m.dryRun {
		var err error
		labelID, err = m.labels.EnsureLabel(ctx, d.Label)
		if err != nil {
			return fmt.Errorf("resolve label %q: %w", d.Label, err)
		}
	}
	rule := RuleFromDecision(d, labelID)

	// UpdateExisting replaces the old rule; the provider has no in-place
	// mutation, so delete first, then create.
	if d.Action == model.ActionUpdateExisting && d.ExistingFilterID != "" {
		if m.dryRun {
			m.logger.Info("dry-run: would delete filter", "id", d.ExistingFilterID)
		} else if _, present := existingByID[d.ExistingFilterID]; present {
			if err := m.client.DeleteFilter(ctx, d.ExistingFilterID); err != nil {
				return fmt.Errorf("delete filter %s: %w", d.ExistingFilterID, err)
			}
			delete(existingByID, d.ExistingFilterID)
			res.Deleted++
		}
	}

	// Deep-equality dedup against what is already on the server.
	for _, sf := range existingByID {
		if sf.Rule.Equal(rule) {
			m.logger.Debug("filter already exists", "cluster", d.ClusterKey, "id", sf.ID)
			rs.CreatedFilters[d.ClusterKey] = sf.ID
			res.Skipped++
			return m.runState.Checkpoint()
		}
	}

	if m.dryRun {
		m.logger.Info("dry-run: would create filter", "query", gmail.BuildQuery(rule), "archive", rule.ShouldArchive)
		res.Created++
		return nil
	}

	id, err := m.client.CreateFilter(ctx, rule)
	if err != nil {
		return fmt.Errorf("create filter: %w", err)
	}
	m.logger.Info("created filter", "id", id, "query", gmail.BuildQuery(rule))
	existingByID[id] = model.ServerFilter{ID: id, Rule: rule}
	rs.CreatedFilters[d.ClusterKey] = id
	res.Created++
	return m.runState.Checkpoint()
}

func (m *Materializer) applyDelete(ctx context.Context, filterID string, existingByID map[string]model.ServerFilter, res *Result) error {
	if filterID == "" {
		return nil
	}
	if _, present := existingByID[filterID]; !present {
		// Already gone; deletion is idempotent by id.
		res.Skipped++
		return nil
	}
	if m.dryRun {
		m.logger.Info("dry-run: would delete filter", "id", filterID)
		res.Deleted++
		return nil
	}
	if err := m.client.DeleteFilter(ctx, filterID); err != nil {
		return fmt.Errorf("delete filter %s: %w", filterID, err)
	}
	delete(existingByID, filterID)
	res.Deleted++
	return m.runState.Checkpoint()
}
