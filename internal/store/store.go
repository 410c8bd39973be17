// Package store defines the authoritative event store consumed by the
// cache core. The store is the source of truth; the cache only ever
// repopulates from it.
package store

import (
	"context"
	"errors"

	"github.com/spotmeet/spotmeet/internal/model"
)

var (
	ErrNotFound  = errors.New("event not found")
	ErrEventFull = errors.New("event is full")
)

// EventStore is implemented by the memory-backed and the Postgres-backed
// stores; the implementation is chosen by configuration at composition
// time. Every returned Event carries a GridID consistent with the geo
// package's cell indexing.
type EventStore interface {
	FindByGridIDIn(ctx context.Context, gridIDs []string) ([]model.Event, error)
	GetEvent(ctx context.Context, id string) (model.Event, error)
	CreateEvent(ctx context.Context, ev model.Event) (model.Event, error)
	// UpdateEvent returns the updated event and the grid cell it
	// occupied before the update, captured atomically with the write so
	// concurrent moves cannot lose an old-cell invalidation.
	UpdateEvent(ctx context.Context, ev model.Event) (updated model.Event, prevGridID string, err error)
	DeleteEvent(ctx context.Context, id string) (model.Event, error)
	Join(ctx context.Context, id string, userID int64) (model.Event, error)
	Leave(ctx context.Context, id string, userID int64) (model.Event, error)
	ChatroomMembers(ctx context.Context, chatroomID int64) ([]int64, error)
}
