// Package apply retroactively labels (and optionally archives) the messages
// that matched each accepted cluster during the current run.
package apply

import (
	"context"
	"fmt"
	"log/slog"

	"mailgroom/internal/gmail"
	"mailgroom/internal/label"
	"mailgroom/internal/model"
	"mailgroom/internal/state"
)

// Applier drives the ApplyingLabels phase.
type Applier struct {
	client   gmail.Client
	labels   *label.Manager
	runState *state.Store
	logger   *slog.Logger
	dryRun   bool
}

// Result counts message-level outcomes.
type Result struct {
	Modified     int
	FailedChunks int
}

// New wires an Applier.
func New(client gmail.Client, labels *label.Manager, runState *state.Store, logger *slog.Logger, dryRun bool) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{client: client, labels: labels, runState: runState, logger: logger, dryRun: dryRun}
}

// Apply batch-modifies the member messages of every accept/update decision:
// add the target label, and remove INBOX when the decision archives. Failed
// chunks are recorded in the run state and not retried; later runs re-derive
// membership anyway.
func (a *Applier) Apply(ctx context.Context, decisions []model.Decision) (Result, error) {
	var res Result
	rs := a.runState.State()

	for _, d := range decisions {
		if d.Action != model.ActionAccept && d.Action != model.ActionUpdateExisting {
			continue
		}
		if len(d.MessageIDs) == 0 {
			continue
		}

		labelID, ok := a.labels.LookupID(d.Label)
		if !ok && !a.dryRun {
			var err error
			labelID, err = a.labels.EnsureLabel(ctx, d.Label)
			if err != nil {
				a.logger.Warn("skipping retroactive apply, label unresolved", "label", d.Label, "err", err)
				continue
			}
		}

		var remove []string
		if d.ShouldArchive {
			remove = []string{"INBOX"}
		}

		for start := 0; start < len(d.MessageIDs); start += gmail.BatchModifyChunk {
			end := start + gmail.BatchModifyChunk
			if end > len(d.MessageIDs) {
				end = len(d.MessageIDs)
			}
			chunk := d.MessageIDs[start:end]

			if a.dryRun {
				a.logger.Info("dry-run: would batch modify",
					"cluster", d.ClusterKey, "messages", len(chunk), "label", d.Label, "archive", d.ShouldArchive)
				continue
			}

			if err := a.client.BatchModify(ctx, chunk, []string{labelID}, remove); err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				a.logger.Warn("batch modify failed", "cluster", d.ClusterKey, "size", len(chunk), "err", err)
				res.FailedChunks++
				rs.FailedBatchIDs = append(rs.FailedBatchIDs, fmt.Sprintf("%s[%d:%d]", d.ClusterKey, start, end))
				continue
			}
			res.Modified += len(chunk)
			rs.MessagesModified += len(chunk)
			if err := a.runState.Checkpoint(); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}
