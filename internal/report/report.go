// Package report renders the human-readable run summary.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mailgroom/internal/model"
	"mailgroom/internal/state"
)

// Summary collects everything the report needs.
type Summary struct {
	State          *state.RunState
	Decisions      []model.Decision
	CreatedLabels  []string
	FiltersCreated int
	FiltersDeleted int
	Applied        int
	DryRun         bool
}

// Write renders report-<run_id>.md into dir and returns the path.
func Write(dir string, s Summary) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("report-%s.md", s.State.RunID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# mailgroom run %s\n\n", s.State.RunID)
	if s.DryRun {
		b.WriteString("**Dry run** — no remote changes were made.\n\n")
	}
	fmt.Fprintf(&b, "- Started: %s\n", s.State.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Finished: %s\n", s.State.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Messages scanned: %d\n", s.State.MessagesScanned)
	fmt.Fprintf(&b, "- Messages modified: %d\n", s.State.MessagesModified)
	fmt.Fprintf(&b, "- Filters created: %d\n", s.FiltersCreated)
	fmt.Fprintf(&b, "- Filters deleted: %d\n", s.FiltersDeleted)
	fmt.Fprintf(&b, "- Fetch failures: %d\n\n", len(s.State.FailedMessageIDs))

	counts := map[model.DecisionAction]int{}
	for _, d := range s.Decisions {
		counts[d.Action]++
	}
	if len(counts) > 0 {
		b.WriteString("## Decisions\n\n")
		actions := make([]string, 0, len(counts))
		for a := range counts {
			actions = append(actions, string(a))
		}
		sort.Strings(actions)
		for _, a := range actions {
			fmt.Fprintf(&b, "- %s: %d\n", a, counts[model.DecisionAction(a)])
		}
		b.WriteString("\n")
	}

	if len(s.CreatedLabels) > 0 {
		b.WriteString("## Labels created\n\n")
		for _, l := range s.CreatedLabels {
			fmt.Fprintf(&b, "- %s\n", l)
		}
		b.WriteString("\n")
	}

	if len(s.State.FailedMessageIDs) > 0 {
		b.WriteString("## Failed message ids\n\n")
		for _, id := range s.State.FailedMessageIDs {
			fmt.Fprintf(&b, "- %s\n", id)
		}
		b.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
