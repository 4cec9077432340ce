// Package scan enumerates the mailbox for a time window and fetches message
// metadata concurrently, checkpointing so an interrupted scan resumes from
// its pagination cursor.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mailgroom/internal/errs"
	"mailgroom/internal/gmail"
	"mailgroom/internal/model"
	"mailgroom/internal/state"
	"mailgroom/internal/store"
)

// checkpointEvery is the intra-page checkpoint cadence.
const checkpointEvery = 100

// Scanner drives the Scanning phase.
type Scanner struct {
	client   gmail.Client
	cache    *store.Store
	runState *state.Store
	logger   *slog.Logger
	workers  int
}

// Options configures a Scanner.
type Options struct {
	Client   gmail.Client
	Cache    *store.Store
	RunState *state.Store
	Logger   *slog.Logger
	// Workers bounds the per-page fetch fan-out; it should equal the
	// client's semaphore width.
	Workers int
}

// New builds a Scanner.
func New(opts Options) *Scanner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 40
	}
	return &Scanner{
		client:   opts.Client,
		cache:    opts.Cache,
		runState: opts.RunState,
		logger:   logger,
		workers:  workers,
	}
}

// Query renders the date-bounded search expression for a scan window ending
// now.
func Query(now time.Time, periodDays int) string {
	cutoff := now.AddDate(0, 0, -periodDays)
	return "after:" + cutoff.Format("2006/01/02")
}

// Scan pages through the window and fetches metadata for every listed id.
// It resumes from the persisted pagination cursor, writes fetched metadata
// through to the cache, and records unfetchable ids in the run state. The
// returned slice is the full cache contents, including messages fetched by
// an earlier interrupted attempt.
func (s *Scanner) Scan(ctx context.Context, periodDays int) ([]model.MessageMetadata, error) {
	rs := s.runState.State()
	query := Query(time.Now(), periodDays)
	pageToken := rs.PageToken

	s.logger.Info("scanning mailbox", "query", query, "resume_cursor", pageToken != "")

	for {
		ids, next, err := s.client.ListMessageIDs(ctx, query, pageToken)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}

		page, failed := s.fetchPage(ctx, ids)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if len(page) > 0 {
			if err := s.cache.UpsertMessages(ctx, page); err != nil {
				return nil, fmt.Errorf("cache page: %w", err)
			}
		}

		rs.FailedMessageIDs = append(rs.FailedMessageIDs, failed...)
		rs.MessagesScanned += len(page)
		if len(page) > 0 {
			rs.LastMessageID = page[len(page)-1].ID
		}
		rs.PageToken = next
		if err := s.runState.Checkpoint(); err != nil {
			return nil, err
		}

		s.logger.Debug("page complete", "fetched", len(page), "failed", len(failed), "total", rs.MessagesScanned)

		if next == "" {
			break
		}
		pageToken = next
	}

	return s.cache.LoadAllMessages(ctx)
}

// fetchPage fans the page's ids across the worker pool. Transient failures
// are already retried inside the client; whatever still fails is recorded
// and skipped. Output order is arbitrary.
func (s *Scanner) fetchPage(ctx context.Context, ids []string) (fetched []model.MessageMetadata, failed []string) {
	type result struct {
		meta model.MessageMetadata
		id   string
		err  error
	}

	jobs := make(chan string, len(ids))
	results := make(chan result, len(ids))

	workers := s.workers
	if workers > len(ids) {
		workers = len(ids)
	}
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for id := range jobs {
				meta, err := s.client.GetMessageMetadata(ctx, id)
				results <- result{meta: meta, id: id, err: err}
			}
		}()
	}
	for _, id := range ids {
		jobs <- id
	}
	close(jobs)
	go func() {
		wg.Wait()
		close(results)
	}()

	done := 0
	for r := range results {
		if r.err != nil {
			if errors.Is(r.err, context.Canceled) {
				continue
			}
			s.logger.Warn("message fetch failed", "id", r.id, "kind", errs.KindOf(r.err).String(), "err", r.err)
			failed = append(failed, r.id)
			continue
		}
		fetched = append(fetched, r.meta)
		done++
		if done%checkpointEvery == 0 {
			// Scanned totals are settled at page end; the intra-page
			// checkpoint just pins the latest id and timestamps progress.
			s.runState.State().LastMessageID = r.meta.ID
			if err := s.runState.Checkpoint(); err != nil {
				s.logger.Warn("checkpoint failed", "err", err)
			}
		}
	}
	return fetched, failed
}
