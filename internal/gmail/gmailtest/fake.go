// Package gmailtest provides an in-memory Client for package tests.
package gmailtest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"mailgroom/internal/errs"
	"mailgroom/internal/gmail"
	"mailgroom/internal/model"
)

// BatchCall records one BatchModify invocation.
type BatchCall struct {
	MessageIDs   []string
	AddLabels    []string
	RemoveLabels []string
}

// Fake is an in-memory gmail.Client. The zero value is usable; populate
// Messages/Labels/Filters before handing it to the code under test.
type Fake struct {
	mu sync.Mutex

	Messages map[string]model.MessageMetadata
	Labels   []gmail.Label
	Filters  []model.ServerFilter

	// PageSize bounds ids per ListMessageIDs page (default 100).
	PageSize int

	// GetErr, when set, is consulted per fetch attempt; returning a non-nil
	// error makes that attempt fail. attempt starts at 1.
	GetErr func(id string, attempt int) error

	// CreateLabelErr, when set, can inject failures into label creation.
	CreateLabelErr func(path string) error

	CreatedLabels  []string
	CreatedFilters []model.FilterRule
	DeletedFilters []string
	BatchCalls     []BatchCall

	ListCalls      int
	GetCalls       int
	ListLabelCalls int

	getAttempts map[string]int
	nextID      int
}

var _ gmail.Client = (*Fake)(nil)

func (f *Fake) ListMessageIDs(ctx context.Context, query, pageToken string) ([]string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListCalls++

	ids := make([]string, 0, len(f.Messages))
	for id := range f.Messages {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	size := f.PageSize
	if size <= 0 {
		size = 100
	}
	start := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return nil, "", errs.Newf(errs.KindRemotePermanent, "bad page token %q", pageToken)
		}
		start = n
	}
	if start >= len(ids) {
		return nil, "", nil
	}
	end := start + size
	next := ""
	if end < len(ids) {
		next = strconv.Itoa(end)
	} else {
		end = len(ids)
	}
	return ids[start:end], next, nil
}

func (f *Fake) GetMessageMetadata(ctx context.Context, id string) (model.MessageMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetCalls++

	if f.GetErr != nil {
		if f.getAttempts == nil {
			f.getAttempts = make(map[string]int)
		}
		f.getAttempts[id]++
		if err := f.GetErr(id, f.getAttempts[id]); err != nil {
			return model.MessageMetadata{}, err
		}
	}

	meta, ok := f.Messages[id]
	if !ok {
		return model.MessageMetadata{}, errs.Newf(errs.KindRemotePermanent, "message %s not found", id)
	}
	return meta, nil
}

func (f *Fake) ListLabels(ctx context.Context) ([]gmail.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListLabelCalls++
	return append([]gmail.Label(nil), f.Labels...), nil
}

func (f *Fake) CreateLabel(ctx context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CreateLabelErr != nil {
		if err := f.CreateLabelErr(path); err != nil {
			return "", err
		}
	}
	for _, l := range f.Labels {
		if strings.EqualFold(l.Path, path) {
			return "", errs.Newf(errs.KindConflict, "label %q already exists", path)
		}
	}
	f.nextID++
	id := fmt.Sprintf("Label_%d", f.nextID)
	f.Labels = append(f.Labels, gmail.Label{Path: path, ID: id})
	f.CreatedLabels = append(f.CreatedLabels, path)
	return id, nil
}

func (f *Fake) ListFilters(ctx context.Context) ([]model.ServerFilter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ServerFilter(nil), f.Filters...), nil
}

func (f *Fake) CreateFilter(ctx context.Context, rule model.FilterRule) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("Filter_%d", f.nextID)
	f.Filters = append(f.Filters, model.ServerFilter{ID: id, Rule: rule.Canonical()})
	f.CreatedFilters = append(f.CreatedFilters, rule.Canonical())
	return id, nil
}

func (f *Fake) DeleteFilter(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, sf := range f.Filters {
		if sf.ID == id {
			f.Filters = append(f.Filters[:i], f.Filters[i+1:]...)
			f.DeletedFilters = append(f.DeletedFilters, id)
			return nil
		}
	}
	// Deleting an already-absent filter stays idempotent.
	f.DeletedFilters = append(f.DeletedFilters, id)
	return nil
}

func (f *Fake) BatchModify(ctx context.Context, messageIDs, addLabelIDs, removeLabelIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(messageIDs) > gmail.BatchModifyChunk {
		return errs.Newf(errs.KindInvalidInput, "batch of %d exceeds %d", len(messageIDs), gmail.BatchModifyChunk)
	}
	f.BatchCalls = append(f.BatchCalls, BatchCall{
		MessageIDs:   append([]string(nil), messageIDs...),
		AddLabels:    append([]string(nil), addLabelIDs...),
		RemoveLabels: append([]string(nil), removeLabelIDs...),
	})
	return nil
}

// LabelID returns the id of the label at path, or "".
func (f *Fake) LabelID(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.Labels {
		if strings.EqualFold(l.Path, path) {
			return l.ID
		}
	}
	return ""
}
