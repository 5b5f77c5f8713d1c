package validator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"wardrobe-storage/internal/database"
	"wardrobe-storage/internal/filesystem"
	"wardrobe-storage/internal/logging"
	"wardrobe-storage/internal/metrics"
	"wardrobe-storage/internal/registry"
)

var valLog = logging.Component("validator")

// ItemStore is the part of the clothing item store the validator mutates.
type ItemStore interface {
	ListItems(ctx context.Context) ([]database.Item, error)
	GetItem(ctx context.Context, id string) (*database.Item, error)
	UpdateImageState(ctx context.Context, id string, patch database.ImageStatePatch) error
	RemoveItem(ctx context.Context, id string) error
}

// candidate is one place an item's displayable image may live.
type candidate struct {
	source string
	path   string
}

// strategy yields a candidate path from the registry entry or the item's
// legacy fields. Either argument may be nil.
type strategy struct {
	name string
	path func(entry *registry.Entry, item *database.Item) string
}

// displayStrategies is the resolution order: the registry thumbnail is the
// cheapest to render, legacy item fields come last.
var displayStrategies = []strategy{
	{"registry_thumbnail", func(e *registry.Entry, _ *database.Item) string {
		if e == nil {
			return ""
		}
		return e.ThumbnailPath
	}},
	{"registry_original", func(e *registry.Entry, _ *database.Item) string {
		if e == nil {
			return ""
		}
		return e.OriginalPath
	}},
	{"legacy_thumbnail", func(_ *registry.Entry, it *database.Item) string {
		if it == nil {
			return ""
		}
		return it.ThumbnailImageURI
	}},
	{"legacy_original", func(_ *registry.Entry, it *database.Item) string {
		if it == nil {
			return ""
		}
		return it.OriginalImageURI
	}},
}

// Validator checks stored images against the disk and keeps the items'
// isImageMissing flags honest.
type Validator struct {
	resolver *filesystem.Resolver
	layout   filesystem.Layout
	registry *registry.Registry
	items    ItemStore

	reconciled atomic.Bool
	running    atomic.Bool
}

// New creates a validator.
func New(resolver *filesystem.Resolver, layout filesystem.Layout, reg *registry.Registry, items ItemStore) *Validator {
	return &Validator{resolver: resolver, layout: layout, registry: reg, items: items}
}

// candidates lists the strategy paths for an item in resolution order,
// skipping strategies with nothing recorded.
func candidates(entry *registry.Entry, item *database.Item) []candidate {
	var out []candidate
	for _, s := range displayStrategies {
		if p := s.path(entry, item); p != "" {
			out = append(out, candidate{source: s.name, path: p})
		}
	}
	return out
}

// firstExisting returns the absolute path of the first candidate that is a
// non-empty file.
func (v *Validator) firstExisting(cands []candidate) (string, string) {
	for _, c := range cands {
		abs := v.resolver.Locate(c.path)
		if _, ok := filesystem.NonEmptyFileSize(abs); ok {
			return abs, c.source
		}
	}
	return "", ""
}

// ResolveDisplayPath returns the absolute path of the best image to display
// for itemID, or "" when none exists.
func (v *Validator) ResolveDisplayPath(ctx context.Context, itemID string) (string, error) {
	var entry *registry.Entry
	if e, ok, err := v.registry.Get(ctx, itemID); err != nil {
		return "", err
	} else if ok {
		entry = &e
	}

	item, err := v.items.GetItem(ctx, itemID)
	if err != nil && !errors.Is(err, database.ErrItemNotFound) {
		return "", fmt.Errorf("failed to load item %s: %w", itemID, err)
	}

	p, source := v.firstExisting(candidates(entry, item))
	if p != "" {
		valLog.Debug("item %s resolved via %s", itemID, source)
	}
	return p, nil
}

// Report summarizes one reconciliation pass.
type Report struct {
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}

// state is an item's position in the present -> flagged -> removed machine.
type state int

const (
	statePresent state = iota
	stateFlagged
	stateRemoved
)

// transition returns the next state of an item given whether its image
// exists and whether it is currently flagged missing.
func transition(exists, flagged bool) state {
	switch {
	case exists:
		return statePresent
	case !flagged:
		return stateFlagged
	default:
		return stateRemoved
	}
}

// ReconcileAll checks every item with a recorded image once per session.
// A missing image is flagged on first detection and the item is removed when
// it is still missing on the next pass; an image that reappears clears the
// flag. Calls after a completed pass, or while one is running, return a zero
// report until Reset is called.
func (v *Validator) ReconcileAll(ctx context.Context) (Report, error) {
	var report Report
	if v.reconciled.Load() {
		return report, nil
	}
	if !v.running.CompareAndSwap(false, true) {
		valLog.Debug("reconciliation already in progress")
		return report, nil
	}
	defer v.running.Store(false)

	items, err := v.items.ListItems(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list items: %w", err)
	}
	entries, err := v.registry.Load(ctx)
	if err != nil {
		return report, err
	}

	var removedIDs []string
	var leftovers []string
	for i := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		item := &items[i]

		var entry *registry.Entry
		if e, ok := entries[item.ID]; ok {
			entry = &e
		}
		cands := candidates(entry, item)
		if len(cands) == 0 {
			// No image recorded, so there is nothing to be missing.
			if item.IsImageMissing {
				if err := v.setMissing(ctx, item.ID, false); err != nil {
					valLog.Warn("failed to clear missing flag for %s: %v", item.ID, err)
					continue
				}
				report.Updated++
				metrics.ReconcileItemsTotal.WithLabelValues("cleared").Inc()
			}
			continue
		}
		path, _ := v.firstExisting(cands)

		switch transition(path != "", item.IsImageMissing) {
		case statePresent:
			if !item.IsImageMissing {
				continue
			}
			if err := v.setMissing(ctx, item.ID, false); err != nil {
				valLog.Warn("failed to clear missing flag for %s: %v", item.ID, err)
				continue
			}
			report.Updated++
			metrics.ReconcileItemsTotal.WithLabelValues("cleared").Inc()
		case stateFlagged:
			if err := v.setMissing(ctx, item.ID, true); err != nil {
				valLog.Warn("failed to flag %s as missing: %v", item.ID, err)
				continue
			}
			report.Updated++
			metrics.ReconcileItemsTotal.WithLabelValues("flagged").Inc()
			valLog.Info("image missing for item %s, flagged", item.ID)
		case stateRemoved:
			if err := v.items.RemoveItem(ctx, item.ID); err != nil {
				valLog.Warn("failed to remove item %s: %v", item.ID, err)
				continue
			}
			report.Removed++
			removedIDs = append(removedIDs, item.ID)
			leftovers = append(leftovers, v.layout.ThumbnailPath(item.ID))
			if entry != nil {
				leftovers = append(leftovers, entry.OriginalPath, entry.ThumbnailPath)
			}
			metrics.ReconcileItemsTotal.WithLabelValues("removed").Inc()
			valLog.Info("image still missing for item %s, item removed", item.ID)
		}
	}

	if len(removedIDs) > 0 {
		if _, err := v.registry.DeleteMany(ctx, removedIDs); err != nil {
			valLog.Warn("failed to drop registry entries of removed items: %v", err)
		}
		for _, rel := range leftovers {
			if rel == "" {
				continue
			}
			if _, err := filesystem.RemoveFile(v.resolver.Locate(rel)); err != nil {
				valLog.Warn("failed to remove leftover file %s: %v", rel, err)
			}
		}
	}

	v.reconciled.Store(true)
	valLog.Info("reconciliation complete: %d updated, %d removed", report.Updated, report.Removed)
	return report, nil
}

// Reset allows ReconcileAll to run again.
func (v *Validator) Reset() {
	v.reconciled.Store(false)
}

func (v *Validator) setMissing(ctx context.Context, id string, missing bool) error {
	return v.items.UpdateImageState(ctx, id, database.ImageStatePatch{IsImageMissing: &missing})
}
