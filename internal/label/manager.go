// Package label owns the hierarchical label namespace under the configured
// prefix and the path-to-id cache.
package label

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"mailgroom/internal/errs"
	"mailgroom/internal/gmail"
)

// Manager creates labels idempotently. Lookups are case-insensitive while
// stored paths keep their original casing.
type Manager struct {
	client gmail.Client
	prefix string
	logger *slog.Logger

	// cache maps lowercase path -> id.
	cache map[string]string
	// casing maps lowercase path -> server casing.
	casing    map[string]string
	refreshed bool
	created   []string
}

// NewManager builds a Manager for the given prefix (e.g. "AutoManaged").
func NewManager(client gmail.Client, prefix string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		client: client,
		prefix: prefix,
		logger: logger,
		cache:  map[string]string{},
		casing: map[string]string{},
	}
}

// Refresh replaces the cache with the server's label listing.
func (m *Manager) Refresh(ctx context.Context) error {
	labels, err := m.client.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("list labels: %w", err)
	}
	m.cache = map[string]string{}
	m.casing = map[string]string{}
	for _, l := range labels {
		key := strings.ToLower(l.Path)
		m.cache[key] = l.ID
		m.casing[key] = l.Path
	}
	m.refreshed = true
	return nil
}

// Seed primes the cache with already-created paths from a previous attempt
// (the run state's created-label map), so resume never recreates them.
func (m *Manager) Seed(created map[string]string) {
	for path, id := range created {
		key := strings.ToLower(path)
		m.cache[key] = id
		m.casing[key] = path
	}
}

// EnsureLabel returns the id for path, creating it (and any missing parent
// segments, in order) when necessary. Paths outside the managed prefix are
// refused so the system never touches user-created hierarchies.
func (m *Manager) EnsureLabel(ctx context.Context, path string) (string, error) {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return "", errs.Newf(errs.KindInvalidInput, "empty label path")
	}
	if !strings.EqualFold(firstSegment(path), m.prefix) {
		return "", errs.Newf(errs.KindInvalidInput, "label %q is outside the %s prefix", path, m.prefix)
	}

	if id, ok := m.cache[strings.ToLower(path)]; ok {
		return id, nil
	}

	// Parents first, root to leaf.
	segments := strings.Split(path, "/")
	var id string
	for i := 1; i <= len(segments); i++ {
		partial := strings.Join(segments[:i], "/")
		var err error
		id, err = m.ensureSegment(ctx, partial)
		if err != nil {
			return "", err
		}
	}
	return id, nil
}

func (m *Manager) ensureSegment(ctx context.Context, path string) (string, error) {
	key := strings.ToLower(path)
	if id, ok := m.cache[key]; ok {
		return id, nil
	}

	// Check the server listing once per run before creating.
	if !m.refreshed {
		if err := m.Refresh(ctx); err != nil {
			return "", err
		}
		if id, ok := m.cache[key]; ok {
			return id, nil
		}
	}

	id, err := m.client.CreateLabel(ctx, path)
	if err != nil {
		if errs.Is(err, errs.KindConflict) {
			// Raced with an existing label; resolve case-insensitively
			// from a fresh listing.
			if err := m.Refresh(ctx); err != nil {
				return "", err
			}
			if id, ok := m.cache[key]; ok {
				return id, nil
			}
		}
		return "", fmt.Errorf("create label %q: %w", path, err)
	}

	m.logger.Info("created label", "path", path, "id", id)
	m.cache[key] = id
	m.casing[key] = path
	m.created = append(m.created, path)
	return id, nil
}

// LookupID returns the cached id for path without touching the server.
func (m *Manager) LookupID(path string) (string, bool) {
	id, ok := m.cache[strings.ToLower(path)]
	return id, ok
}

// PathFor returns the server-side casing for a path, resolving case-insensitively.
func (m *Manager) PathFor(path string) string {
	if canonical, ok := m.casing[strings.ToLower(path)]; ok {
		return canonical
	}
	return path
}

// NameByID reverse-maps a label id to its path, for review display.
func (m *Manager) NameByID(id string) (string, bool) {
	for key, cached := range m.cache {
		if cached == id {
			return m.casing[key], true
		}
	}
	return "", false
}

// Created lists paths created this run, sorted.
func (m *Manager) Created() []string {
	out := append([]string(nil), m.created...)
	sort.Strings(out)
	return out
}

func firstSegment(path string) string {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}
