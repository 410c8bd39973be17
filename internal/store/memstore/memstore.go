// Package memstore is the memory-backed EventStore used in development
// and tests.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/spotmeet/spotmeet/internal/geo"
	"github.com/spotmeet/spotmeet/internal/model"
	"github.com/spotmeet/spotmeet/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	events       map[string]model.Event
	members      map[string]map[int64]struct{} // event id -> joined user ids
	nextChatroom int64
}

func New() *Store {
	return &Store{
		events:  make(map[string]model.Event),
		members: make(map[string]map[int64]struct{}),
	}
}

func (s *Store) FindByGridIDIn(_ context.Context, gridIDs []string) ([]model.Event, error) {
	wanted := make(map[string]struct{}, len(gridIDs))
	for _, id := range gridIDs {
		wanted[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Event
	for _, ev := range s.events {
		if _, ok := wanted[ev.GridID]; ok {
			out = append(out, s.withCount(ev))
		}
	}
	return out, nil
}

func (s *Store) GetEvent(_ context.Context, id string) (model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return model.Event{}, store.ErrNotFound
	}
	return s.withCount(ev), nil
}

func (s *Store) CreateEvent(_ context.Context, ev model.Event) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	s.nextChatroom++
	ev.ChatroomID = s.nextChatroom
	ev.GridID = geo.CellID(ev.Latitude, ev.Longitude)

	s.events[ev.ID] = ev
	s.members[ev.ID] = map[int64]struct{}{ev.Host.UserID: {}}
	return s.withCount(ev), nil
}

func (s *Store) UpdateEvent(_ context.Context, ev model.Event) (model.Event, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.events[ev.ID]
	if !ok {
		return model.Event{}, "", store.ErrNotFound
	}
	prevGrid := cur.GridID
	cur.Title = ev.Title
	cur.Description = ev.Description
	cur.MaxParticipants = ev.MaxParticipants
	cur.Latitude = ev.Latitude
	cur.Longitude = ev.Longitude
	cur.IsPublic = ev.IsPublic
	cur.Categories = ev.Categories
	cur.GridID = geo.CellID(cur.Latitude, cur.Longitude)

	s.events[ev.ID] = cur
	return s.withCount(cur), prevGrid, nil
}

func (s *Store) DeleteEvent(_ context.Context, id string) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return model.Event{}, store.ErrNotFound
	}
	deleted := s.withCount(ev)
	delete(s.events, id)
	delete(s.members, id)
	return deleted, nil
}

func (s *Store) Join(_ context.Context, id string, userID int64) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return model.Event{}, store.ErrNotFound
	}
	m := s.members[id]
	if _, already := m[userID]; !already {
		if ev.MaxParticipants > 0 && len(m) >= ev.MaxParticipants {
			return model.Event{}, store.ErrEventFull
		}
		m[userID] = struct{}{}
	}
	return s.withCount(ev), nil
}

func (s *Store) Leave(_ context.Context, id string, userID int64) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return model.Event{}, store.ErrNotFound
	}
	delete(s.members[id], userID)
	return s.withCount(ev), nil
}

func (s *Store) ChatroomMembers(_ context.Context, chatroomID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, ev := range s.events {
		if ev.ChatroomID == chatroomID {
			out := make([]int64, 0, len(s.members[id]))
			for u := range s.members[id] {
				out = append(out, u)
			}
			return out, nil
		}
	}
	return nil, store.ErrNotFound
}

// caller must hold s.mu
func (s *Store) withCount(ev model.Event) model.Event {
	ev.Participants = len(s.members[ev.ID])
	return ev
}
