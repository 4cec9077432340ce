package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"mailgroom/internal/config"
	"mailgroom/internal/gmail/gmailtest"
	"mailgroom/internal/model"
	"mailgroom/internal/review"
	"mailgroom/internal/state"
)

func seededFake(t *testing.T) *gmailtest.Fake {
	t.Helper()
	fake := &gmailtest.Fake{Messages: map[string]model.MessageMetadata{}, PageSize: 50}
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("n%d", i)
		fake.Messages[id] = model.MessageMetadata{
			ID:             id,
			SenderEmail:    "newsletter@example.com",
			SenderDomain:   "example.com",
			Subject:        fmt.Sprintf("Weekly newsletter — issue %d", 100+i),
			HasUnsubscribe: true,
		}
	}
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("p%d", i)
		fake.Messages[id] = model.MessageMetadata{
			ID:           id,
			SenderEmail:  "friend@gmail.com",
			SenderDomain: "gmail.com",
			Subject:      fmt.Sprintf("catching up %d", i),
		}
	}
	return fake
}

func baseOptions(t *testing.T, fake *gmailtest.Fake, dir string) Options {
	t.Helper()
	return Options{
		Config:   config.Default(),
		DataDir:  dir,
		Client:   fake,
		NoReview: true,
	}
}

func TestFullRunNoReview(t *testing.T) {
	fake := seededFake(t)
	dir := t.TempDir()

	if err := Run(context.Background(), baseOptions(t, fake, dir)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// One cluster (the newsletter sender) crosses the threshold; the three
	// personal messages do not.
	if len(fake.CreatedFilters) != 1 {
		t.Fatalf("created filters = %+v, want 1", fake.CreatedFilters)
	}
	rule := fake.CreatedFilters[0]
	if rule.FromPattern != "newsletter@example.com" {
		t.Errorf("from = %q", rule.FromPattern)
	}
	if rule.TargetLabelID != fake.LabelID("AutoManaged/newsletters/example-com") {
		t.Errorf("filter label = %q", rule.TargetLabelID)
	}

	// Retroactive application covered the cluster's 8 members.
	if len(fake.BatchCalls) != 1 || len(fake.BatchCalls[0].MessageIDs) != 8 {
		t.Errorf("batch calls = %+v", fake.BatchCalls)
	}

	st, err := state.Load(filepath.Join(dir, StateFile))
	if err != nil {
		t.Fatal(err)
	}
	if !st.State().Completed {
		t.Error("run not marked complete")
	}

	if _, err := os.Stat(filepath.Join(dir, fmt.Sprintf("report-%s.md", st.State().RunID))); err != nil {
		t.Errorf("report missing: %v", err)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	fake := seededFake(t)
	dir := t.TempDir()
	ctx := context.Background()

	if err := Run(ctx, baseOptions(t, fake, dir)); err != nil {
		t.Fatal(err)
	}
	created, deleted := len(fake.CreatedFilters), len(fake.DeletedFilters)

	// Second full run: the recorded accept decision is replayed and the
	// materialiser finds an identical filter on the server, so nothing new
	// is created.
	if err := Run(ctx, baseOptions(t, fake, dir)); err != nil {
		t.Fatal(err)
	}
	if len(fake.CreatedFilters) != created || len(fake.DeletedFilters) != deleted {
		t.Errorf("second run changed remote filters: %d -> %d created", created, len(fake.CreatedFilters))
	}
}

func TestDryRunTouchesNothing(t *testing.T) {
	fake := seededFake(t)
	dir := t.TempDir()
	opts := baseOptions(t, fake, dir)
	opts.DryRun = true

	if err := Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	if len(fake.CreatedLabels)+len(fake.CreatedFilters)+len(fake.BatchCalls) != 0 {
		t.Error("dry run made remote changes")
	}
}

func TestLabelsOnlySkipsFiltersAndApply(t *testing.T) {
	fake := seededFake(t)
	dir := t.TempDir()
	opts := baseOptions(t, fake, dir)
	opts.LabelsOnly = true

	if err := Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	if len(fake.CreatedLabels) == 0 {
		t.Error("labels-only run created no labels")
	}
	if len(fake.CreatedFilters) != 0 || len(fake.BatchCalls) != 0 {
		t.Error("labels-only run created filters or modified messages")
	}
}

// Exclude during review keeps the cluster out of later runs until
// --ignore-exclusions clears the decision and resurfaces it.
func TestExcludeAndIgnoreExclusions(t *testing.T) {
	fake := seededFake(t)
	dir := t.TempDir()
	ctx := context.Background()

	sawCluster := 0
	opts := baseOptions(t, fake, dir)
	opts.NoReview = false
	opts.RunReview = func(s *review.Session, _ func(string) (string, bool)) (bool, error) {
		for {
			if _, ok := s.Current(); !ok {
				return true, nil
			}
			sawCluster++
			if err := s.Decide(model.ActionExclude, "", false); err != nil {
				return false, err
			}
		}
	}
	if err := Run(ctx, opts); err != nil {
		t.Fatal(err)
	}
	if sawCluster != 1 {
		t.Fatalf("first run reviewed %d clusters, want 1", sawCluster)
	}
	if len(fake.CreatedFilters) != 0 {
		t.Error("excluded cluster still produced a filter")
	}

	// Second run: the exclusion suppresses the cluster before review.
	sawCluster = 0
	if err := Run(ctx, opts); err != nil {
		t.Fatal(err)
	}
	if sawCluster != 0 {
		t.Errorf("second run resurfaced %d excluded clusters", sawCluster)
	}

	// Third run with --ignore-exclusions: the cluster is back, decision
	// cleared.
	sawCluster = 0
	opts.IgnoreExclusions = true
	if err := Run(ctx, opts); err != nil {
		t.Fatal(err)
	}
	if sawCluster != 1 {
		t.Errorf("ignore-exclusions run reviewed %d clusters, want 1", sawCluster)
	}
}

func TestResumeAfterReviewInterrupt(t *testing.T) {
	fake := seededFake(t)
	dir := t.TempDir()
	ctx := context.Background()

	opts := baseOptions(t, fake, dir)
	opts.NoReview = false
	opts.RunReview = func(s *review.Session, _ func(string) (string, bool)) (bool, error) {
		return false, nil // user quit immediately
	}
	if err := Run(ctx, opts); err != nil {
		t.Fatal(err)
	}
	if len(fake.CreatedFilters) != 0 {
		t.Error("interrupted run materialised filters")
	}
	st, _ := state.Load(filepath.Join(dir, StateFile))
	if st.State().Completed {
		t.Fatal("interrupted run marked complete")
	}
	fetched := fake.GetCalls

	// Resume and finish the review this time.
	opts.Resume = true
	opts.RunReview = func(s *review.Session, _ func(string) (string, bool)) (bool, error) {
		return true, s.AcceptAll()
	}
	if err := Run(ctx, opts); err != nil {
		t.Fatal(err)
	}
	if len(fake.CreatedFilters) != 1 {
		t.Errorf("resumed run created %d filters, want 1", len(fake.CreatedFilters))
	}
	// The resume reused the cached scan instead of refetching.
	if fake.GetCalls != fetched {
		t.Errorf("resumed run fetched %d messages again, want 0", fake.GetCalls-fetched)
	}
	st2, _ := state.Load(filepath.Join(dir, StateFile))
	if !st2.State().Completed {
		t.Error("resumed run not complete")
	}
}

func TestInteractiveConfirmStopsAtBoundary(t *testing.T) {
	fake := seededFake(t)
	dir := t.TempDir()
	opts := baseOptions(t, fake, dir)
	opts.Confirm = func(p state.Phase) bool { return p != state.PhaseCreatingFilters }

	if err := Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}
	if len(fake.CreatedLabels) == 0 {
		t.Error("labels phase should have run")
	}
	if len(fake.CreatedFilters) != 0 {
		t.Error("declined phase still ran")
	}
	st, _ := state.Load(filepath.Join(dir, StateFile))
	if st.State().Completed {
		t.Error("declined run marked complete")
	}
}
