// Package query resolves spatial event-listing queries through the grid
// cache with fallback to the backing store.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/spotmeet/spotmeet/internal/cache"
	"github.com/spotmeet/spotmeet/internal/geo"
	"github.com/spotmeet/spotmeet/internal/model"
	"github.com/spotmeet/spotmeet/internal/observability"
	"github.com/spotmeet/spotmeet/internal/store"
)

const DefaultTTL = 10 * time.Minute

type Service struct {
	log   *slog.Logger
	cache cache.Store
	store store.EventStore
	ttl   time.Duration
}

func New(log *slog.Logger, c cache.Store, s store.EventStore, ttl time.Duration) *Service {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{log: log, cache: c, store: s, ttl: ttl}
}

// FindInBoundingBox returns the events inside the box whose category set
// intersects categories (no filter when categories is empty). The cache
// is a performance optimization only: any cache failure degrades to a
// backing-store read. A backing-store failure fails the query; an empty
// result is never substituted for an outage. Result ordering is
// unspecified.
func (s *Service) FindInBoundingBox(ctx context.Context, bbox model.BBox, categories []string) ([]model.Event, error) {
	start := time.Now()
	cellIDs := geo.CellIDsForBBox(bbox)
	if len(cellIDs) == 0 {
		return []model.Event{}, nil
	}

	cached, err := s.cache.MGet(cellIDs)
	if err != nil {
		// fail open: treat every cell as a miss
		s.log.Warn("cache mget failed, falling back to store", "err", err, "cells", len(cellIDs))
		cached = map[string][]byte{}
	}

	candidates := make(map[string]model.Event)
	var missed []string
	for _, id := range cellIDs {
		body, ok := cached[id]
		if !ok {
			missed = append(missed, id)
			continue
		}
		entry, err := decodeEntry(body)
		if err != nil {
			// corrupt entry behaves like a miss and gets overwritten
			s.log.Warn("corrupt cached grid entry", "grid_id", id, "err", err)
			missed = append(missed, id)
			continue
		}
		for _, ev := range entry {
			candidates[ev.ID] = ev
		}
	}
	observability.AddCacheHits(len(cellIDs) - len(missed))
	observability.AddCacheMisses(len(missed))

	if len(missed) > 0 {
		fetched, err := s.store.FindByGridIDIn(ctx, missed)
		if err != nil {
			return nil, fmt.Errorf("backing store read (%d cells): %w", len(missed), err)
		}

		grouped := make(map[string][]model.Event, len(missed))
		for _, id := range missed {
			grouped[id] = []model.Event{} // negative entry unless events arrive below
		}
		for _, ev := range fetched {
			grouped[ev.GridID] = append(grouped[ev.GridID], ev)
			candidates[ev.ID] = ev
		}

		s.repopulate(grouped)
	}

	out := make([]model.Event, 0, len(candidates))
	for _, ev := range candidates {
		if !geo.InArea(bbox, ev.Latitude, ev.Longitude) {
			continue
		}
		if !ev.HasAnyCategory(categories) {
			continue
		}
		out = append(out, ev)
	}

	s.log.Debug("grid query served",
		"cells", len(cellIDs), "misses", len(missed),
		"results", len(out), "dur", time.Since(start).String())
	return out, nil
}

// repopulate writes fetched cells back, including explicit empty entries
// so legitimately empty cells do not miss repeatedly.
func (s *Service) repopulate(grouped map[string][]model.Event) {
	kv := make(map[string][]byte, len(grouped))
	for id, events := range grouped {
		body, err := json.Marshal(events)
		if err != nil {
			s.log.Error("encode grid entry", "grid_id", id, "err", err)
			continue
		}
		kv[id] = body
	}
	if err := s.cache.MSetWithTTL(kv, s.ttl); err != nil {
		// swallowed: staleness is bounded by TTL
		s.log.Warn("cache repopulation failed", "err", err, "cells", len(kv))
	}
}

func decodeEntry(body []byte) ([]model.Event, error) {
	var entry []model.Event
	if err := json.Unmarshal(body, &entry); err != nil {
		return nil, fmt.Errorf("decode grid entry: %w", err)
	}
	return entry, nil
}
