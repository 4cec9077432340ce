package store

import (
	"context"
	"testing"
	"time"

	"mailgroom/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}

func TestUpsertAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msgs := []model.MessageMetadata{
		{
			ID:             "m1",
			ThreadID:       "t1",
			SenderEmail:    "news@example.com",
			SenderDomain:   "example.com",
			SenderName:     "Example News",
			Subject:        "Weekly roundup",
			Recipients:     []string{"me@gmail.com"},
			DateReceived:   time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC),
			LabelIDs:       []string{"INBOX", "UNREAD"},
			HasUnsubscribe: true,
			IsAutomated:    true,
		},
		{
			ID:           "m2",
			SenderEmail:  "friend@example.com",
			SenderDomain: "example.com",
			Subject:      "hi",
		},
	}
	if err := s.UpsertMessages(ctx, msgs); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	loaded, err := s.LoadAllMessages(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d messages, want 2", len(loaded))
	}
	byID := map[string]model.MessageMetadata{}
	for _, m := range loaded {
		byID[m.ID] = m
	}
	m1 := byID["m1"]
	if m1.Subject != "Weekly roundup" || !m1.HasUnsubscribe || !m1.IsAutomated {
		t.Errorf("m1 mismatch: %+v", m1)
	}
	if len(m1.LabelIDs) != 2 || m1.LabelIDs[0] != "INBOX" {
		t.Errorf("m1 labels mismatch: %v", m1.LabelIDs)
	}
	if !m1.DateReceived.Equal(msgs[0].DateReceived) {
		t.Errorf("m1 date = %v, want %v", m1.DateReceived, msgs[0].DateReceived)
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := model.MessageMetadata{ID: "m1", SenderEmail: "a@b.com", SenderDomain: "b.com", Subject: "one"}
	if err := s.UpsertMessages(ctx, []model.MessageMetadata{msg}); err != nil {
		t.Fatal(err)
	}
	msg.Subject = "two"
	if err := s.UpsertMessages(ctx, []model.MessageMetadata{msg}); err != nil {
		t.Fatal(err)
	}

	count, err := s.CountMessages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	loaded, _ := s.LoadAllMessages(ctx)
	if loaded[0].Subject != "two" {
		t.Errorf("subject = %q, want updated value", loaded[0].Subject)
	}
}

func TestClearAndRunID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetRunID(ctx, "run-1"); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetRunID(ctx)
	if err != nil || got != "run-1" {
		t.Fatalf("GetRunID = %q, %v", got, err)
	}

	s.UpsertMessages(ctx, []model.MessageMetadata{{ID: "m1", SenderEmail: "a@b.com", SenderDomain: "b.com"}})
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	count, _ := s.CountMessages(ctx)
	if count != 0 {
		t.Errorf("count after clear = %d", count)
	}
	got, _ = s.GetRunID(ctx)
	if got != "" {
		t.Errorf("run id after clear = %q", got)
	}
}
