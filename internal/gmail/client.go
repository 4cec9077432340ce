// Package gmail wraps the Gmail REST API behind a rate-limited, retrying
// client. All pipeline phases that touch the provider go through Client.
package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	gmailv1 "google.golang.org/api/gmail/v1"

	"mailgroom/internal/errs"
	"mailgroom/internal/model"
	"mailgroom/internal/util"
)

// Label pairs a full hierarchical label path with its server-side id.
type Label struct {
	Path string
	ID   string
}

// Client is the capability set the pipeline needs from the mail provider.
type Client interface {
	ListMessageIDs(ctx context.Context, query, pageToken string) (ids []string, nextToken string, err error)
	GetMessageMetadata(ctx context.Context, id string) (model.MessageMetadata, error)
	ListLabels(ctx context.Context) ([]Label, error)
	CreateLabel(ctx context.Context, path string) (string, error)
	ListFilters(ctx context.Context) ([]model.ServerFilter, error)
	CreateFilter(ctx context.Context, rule model.FilterRule) (string, error)
	DeleteFilter(ctx context.Context, id string) error
	BatchModify(ctx context.Context, messageIDs, addLabelIDs, removeLabelIDs []string) error
}

// Quota unit costs per Gmail's published accounting.
const (
	unitsRead  = 5
	unitsWrite = 50
	unitsBatch = 50
)

// BatchModifyChunk is the provider's cap on ids per batchModify call.
const BatchModifyChunk = 1000

// Backoff parameters for transient failures.
const (
	retryInitialDelay = 100 * time.Millisecond
	retryMaxDelay     = 30 * time.Second
	retryMaxElapsed   = 300 * time.Second
)

// QuotaStats is a point-in-time snapshot of client usage.
type QuotaStats struct {
	Operations    uint64
	UnitsConsumed uint64
	Retries       uint64
}

// Options tunes the live client.
type Options struct {
	// MaxConcurrent bounds in-flight requests regardless of caller fan-out.
	MaxConcurrent int
	// TargetUnitsPerSecond is the quota ceiling the width is validated
	// against: MaxConcurrent*unitsRead must not exceed it.
	TargetUnitsPerSecond int
	Logger               *slog.Logger
}

// liveClient talks to the real API. Retries hold the acquired semaphore
// permit, so backoff never inflates concurrency.
type liveClient struct {
	svc    *gmailv1.Service
	sem    *semaphore.Weighted
	logger *slog.Logger

	ops     atomic.Uint64
	units   atomic.Uint64
	retries atomic.Uint64
}

// NewClient wraps a Gmail service in the rate-limited client.
func NewClient(svc *gmailv1.Service, opts Options) (Client, error) {
	width := opts.MaxConcurrent
	if width <= 0 {
		width = 40
	}
	target := opts.TargetUnitsPerSecond
	if target <= 0 {
		target = 200
	}
	if width*unitsRead > target {
		return nil, errs.Newf(errs.KindInvalidInput,
			"concurrency %d would consume %d units/s, above the %d units/s target", width, width*unitsRead, target)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &liveClient{
		svc:    svc,
		sem:    semaphore.NewWeighted(int64(width)),
		logger: logger,
	}, nil
}

// Stats reports cumulative usage counters of a live client; ok is false for
// any other Client implementation.
func Stats(c Client) (QuotaStats, bool) {
	lc, ok := c.(*liveClient)
	if !ok {
		return QuotaStats{}, false
	}
	return QuotaStats{
		Operations:    lc.ops.Load(),
		UnitsConsumed: lc.units.Load(),
		Retries:       lc.retries.Load(),
	}, true
}

// call acquires a permit and runs fn with exponential backoff on transient
// failures: initial 100ms, doubling with jitter, capped at 30s per wait and
// 300s total elapsed.
func (c *liveClient) call(ctx context.Context, op string, units uint64, fn func() error) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	c.ops.Add(1)
	deadline := time.Now().Add(retryMaxElapsed)
	delay := retryInitialDelay

	for {
		c.units.Add(units)
		err := errs.FromGoogleAPI(fn())
		if err == nil {
			return nil
		}
		if !errs.Retryable(err) || time.Now().After(deadline) {
			return fmt.Errorf("%s: %w", op, err)
		}

		c.retries.Add(1)
		wait := delay + time.Duration(rand.Int63n(int64(delay)/2+1))
		if wait > retryMaxDelay {
			wait = retryMaxDelay
		}
		c.logger.Debug("retrying after transient failure", "op", op, "wait", wait, "err", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
}

func (c *liveClient) ListMessageIDs(ctx context.Context, query, pageToken string) ([]string, string, error) {
	var ids []string
	var next string
	err := c.call(ctx, "messages.list", unitsRead, func() error {
		call := c.svc.Users.Messages.List("me").Q(query).MaxResults(500)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return err
		}
		ids = ids[:0]
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		next = resp.NextPageToken
		return nil
	})
	return ids, next, err
}

func (c *liveClient) GetMessageMetadata(ctx context.Context, id string) (model.MessageMetadata, error) {
	var meta model.MessageMetadata
	err := c.call(ctx, "messages.get", unitsRead, func() error {
		msg, err := c.svc.Users.Messages.Get("me", id).
			Format("metadata").
			MetadataHeaders("From", "Subject", "To", "Cc", "List-Unsubscribe").
			Context(ctx).Do()
		if err != nil {
			return err
		}
		meta = metadataFromMessage(msg)
		return nil
	})
	return meta, err
}

func (c *liveClient) ListLabels(ctx context.Context) ([]Label, error) {
	var labels []Label
	err := c.call(ctx, "labels.list", unitsRead, func() error {
		resp, err := c.svc.Users.Labels.List("me").Context(ctx).Do()
		if err != nil {
			return err
		}
		labels = labels[:0]
		for _, l := range resp.Labels {
			labels = append(labels, Label{Path: l.Name, ID: l.Id})
		}
		return nil
	})
	return labels, err
}

func (c *liveClient) CreateLabel(ctx context.Context, path string) (string, error) {
	var id string
	err := c.call(ctx, "labels.create", unitsWrite, func() error {
		created, err := c.svc.Users.Labels.Create("me", &gmailv1.Label{
			Name:                  path,
			LabelListVisibility:   "labelShow",
			MessageListVisibility: "show",
		}).Context(ctx).Do()
		if err != nil {
			return err
		}
		id = created.Id
		return nil
	})
	return id, err
}

func (c *liveClient) ListFilters(ctx context.Context) ([]model.ServerFilter, error) {
	var filters []model.ServerFilter
	err := c.call(ctx, "filters.list", unitsRead, func() error {
		resp, err := c.svc.Users.Settings.Filters.List("me").Context(ctx).Do()
		if err != nil {
			return err
		}
		filters = filters[:0]
		for _, f := range resp.Filter {
			rule, ok := ruleFromFilter(f)
			if !ok {
				continue
			}
			filters = append(filters, model.ServerFilter{ID: f.Id, Rule: rule})
		}
		return nil
	})
	return filters, err
}

func (c *liveClient) CreateFilter(ctx context.Context, rule model.FilterRule) (string, error) {
	var id string
	err := c.call(ctx, "filters.create", unitsWrite, func() error {
		created, err := c.svc.Users.Settings.Filters.Create("me", filterFromRule(rule)).Context(ctx).Do()
		if err != nil {
			return err
		}
		id = created.Id
		return nil
	})
	return id, err
}

func (c *liveClient) DeleteFilter(ctx context.Context, id string) error {
	return c.call(ctx, "filters.delete", unitsWrite, func() error {
		return c.svc.Users.Settings.Filters.Delete("me", id).Context(ctx).Do()
	})
}

func (c *liveClient) BatchModify(ctx context.Context, messageIDs, addLabelIDs, removeLabelIDs []string) error {
	if len(messageIDs) > BatchModifyChunk {
		return errs.Newf(errs.KindInvalidInput, "batch of %d exceeds %d ids", len(messageIDs), BatchModifyChunk)
	}
	return c.call(ctx, "messages.batchModify", unitsBatch, func() error {
		return c.svc.Users.Messages.BatchModify("me", &gmailv1.BatchModifyMessagesRequest{
			Ids:            messageIDs,
			AddLabelIds:    addLabelIDs,
			RemoveLabelIds: removeLabelIDs,
		}).Context(ctx).Do()
	})
}

// metadataFromMessage converts an API message (metadata format) to the
// pipeline's metadata record.
func metadataFromMessage(msg *gmailv1.Message) model.MessageMetadata {
	var from, subject, listUnsub string
	var recipients []string
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "from":
				from = h.Value
			case "subject":
				subject = h.Value
			case "to", "cc":
				for _, part := range strings.Split(h.Value, ",") {
					if addr := util.NormalizeAddress(part); addr != "" {
						recipients = append(recipients, addr)
					}
				}
			case "list-unsubscribe":
				listUnsub = h.Value
			}
		}
	}

	email := util.NormalizeAddress(from)
	meta := model.MessageMetadata{
		ID:             msg.Id,
		ThreadID:       msg.ThreadId,
		SenderEmail:    email,
		SenderDomain:   util.RegistrableDomain(domainOf(email)),
		SenderName:     displayName(from),
		Subject:        subject,
		Recipients:     recipients,
		LabelIDs:       msg.LabelIds,
		HasUnsubscribe: listUnsub != "",
	}
	if msg.InternalDate > 0 {
		meta.DateReceived = time.UnixMilli(msg.InternalDate).UTC()
	}
	return meta
}

func domainOf(email string) string {
	if at := strings.LastIndexByte(email, '@'); at >= 0 {
		return email[at+1:]
	}
	return ""
}

func displayName(fromHeader string) string {
	if idx := strings.Index(fromHeader, "<"); idx > 0 {
		name := strings.TrimSpace(fromHeader[:idx])
		name = strings.Trim(name, `"'`)
		return name
	}
	return ""
}
