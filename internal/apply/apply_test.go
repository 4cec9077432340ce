package apply

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"mailgroom/internal/gmail/gmailtest"
	"mailgroom/internal/label"
	"mailgroom/internal/model"
	"mailgroom/internal/state"
)

func harness(t *testing.T, fake *gmailtest.Fake, dryRun bool) (*Applier, *state.Store) {
	t.Helper()
	rs, err := state.Load(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatal(err)
	}
	labels := label.NewManager(fake, "AutoManaged", nil)
	return New(fake, labels, rs, nil, dryRun), rs
}

func TestApplyChunksAndArchives(t *testing.T) {
	fake := &gmailtest.Fake{}
	a, rs := harness(t, fake, false)
	ctx := context.Background()

	ids := make([]string, 1500)
	for i := range ids {
		ids[i] = fmt.Sprintf("m%04d", i)
	}
	decisions := []model.Decision{{
		ClusterKey:    "sender|news@example.com||",
		Action:        model.ActionAccept,
		Label:         "AutoManaged/newsletters/example-com",
		ShouldArchive: true,
		MessageIDs:    ids,
	}}

	res, err := a.Apply(ctx, decisions)
	if err != nil {
		t.Fatal(err)
	}
	if res.Modified != 1500 {
		t.Errorf("modified = %d, want 1500", res.Modified)
	}
	if len(fake.BatchCalls) != 2 {
		t.Fatalf("batch calls = %d, want 2 (1000 + 500)", len(fake.BatchCalls))
	}
	if len(fake.BatchCalls[0].MessageIDs) != 1000 || len(fake.BatchCalls[1].MessageIDs) != 500 {
		t.Errorf("chunk sizes = %d, %d", len(fake.BatchCalls[0].MessageIDs), len(fake.BatchCalls[1].MessageIDs))
	}
	if got := fake.BatchCalls[0].RemoveLabels; len(got) != 1 || got[0] != "INBOX" {
		t.Errorf("archive should remove INBOX, got %v", got)
	}
	if rs.State().MessagesModified != 1500 {
		t.Errorf("run state modified = %d", rs.State().MessagesModified)
	}
}

func TestApplyWithoutArchiveKeepsInbox(t *testing.T) {
	fake := &gmailtest.Fake{}
	a, _ := harness(t, fake, false)

	decisions := []model.Decision{{
		ClusterKey: "k", Action: model.ActionAccept,
		Label: "AutoManaged/receipts/shop-com", MessageIDs: []string{"m1"},
	}}
	if _, err := a.Apply(context.Background(), decisions); err != nil {
		t.Fatal(err)
	}
	if len(fake.BatchCalls) != 1 || len(fake.BatchCalls[0].RemoveLabels) != 0 {
		t.Errorf("batch calls = %+v", fake.BatchCalls)
	}
}

func TestApplySkipsNonAcceptDecisions(t *testing.T) {
	fake := &gmailtest.Fake{}
	a, _ := harness(t, fake, false)
	decisions := []model.Decision{
		{ClusterKey: "r", Action: model.ActionReject, MessageIDs: []string{"m1"}},
		{ClusterKey: "e", Action: model.ActionExclude, MessageIDs: []string{"m2"}},
	}
	if _, err := a.Apply(context.Background(), decisions); err != nil {
		t.Fatal(err)
	}
	if len(fake.BatchCalls) != 0 {
		t.Error("non-accept decisions must not modify messages")
	}
}

func TestApplyDryRun(t *testing.T) {
	fake := &gmailtest.Fake{}
	a, _ := harness(t, fake, true)
	decisions := []model.Decision{{
		ClusterKey: "k", Action: model.ActionAccept,
		Label: "AutoManaged/x", MessageIDs: []string{"m1", "m2"},
	}}
	res, err := a.Apply(context.Background(), decisions)
	if err != nil {
		t.Fatal(err)
	}
	if len(fake.BatchCalls) != 0 || res.Modified != 0 {
		t.Errorf("dry run touched the server: %+v", res)
	}
}
