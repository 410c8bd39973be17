package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/spotmeet/spotmeet/internal/chat"
	"github.com/spotmeet/spotmeet/internal/model"
	"github.com/spotmeet/spotmeet/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, store.ErrEventFull):
		writeError(w, http.StatusConflict, "event is full")
	default:
		s.log.Error("store error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseCoord(r *http.Request, name string, min, max float64) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, fmt.Errorf("missing required parameter: %s", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: not a number", name)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s: must be in [%g,%g]", name, min, max)
	}
	return v, nil
}

func parseBBox(r *http.Request) (model.BBox, error) {
	swLat, err := parseCoord(r, "swLat", -90, 90)
	if err != nil {
		return model.BBox{}, err
	}
	swLng, err := parseCoord(r, "swLng", -180, 180)
	if err != nil {
		return model.BBox{}, err
	}
	neLat, err := parseCoord(r, "neLat", -90, 90)
	if err != nil {
		return model.BBox{}, err
	}
	neLng, err := parseCoord(r, "neLng", -180, 180)
	if err != nil {
		return model.BBox{}, err
	}
	return model.BBox{SWLat: swLat, SWLng: swLng, NELat: neLat, NELng: neLng}, nil
}

func parseCategories(r *http.Request) []string {
	raw := strings.TrimSpace(r.URL.Query().Get("categories"))
	if raw == "" {
		return nil
	}
	var out []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// GET /events?swLat=&swLng=&neLat=&neLng=&categories=EAT,TALKING
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	bbox, err := parseBBox(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := s.query.FindInBoundingBox(r.Context(), bbox, parseCategories(r))
	if err != nil {
		s.log.Error("bounding box query failed", "err", err)
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusServiceUnavailable, "query timed out")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.store.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

type eventPayload struct {
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	MaxParticipants int        `json:"maxParticipants"`
	Latitude        *float64   `json:"latitude"`
	Longitude       *float64   `json:"longitude"`
	IsPublic        bool       `json:"isPublic"`
	Host            model.Host `json:"host"`
	Categories      []string   `json:"categories"`
}

func (p eventPayload) validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return errors.New("title is required")
	}
	if p.MaxParticipants < 1 {
		return errors.New("maxParticipants must be at least 1")
	}
	if p.Latitude == nil || p.Longitude == nil {
		return errors.New("latitude and longitude are required")
	}
	if *p.Latitude < -90 || *p.Latitude > 90 {
		return errors.New("latitude must be in [-90,90]")
	}
	if *p.Longitude < -180 || *p.Longitude > 180 {
		return errors.New("longitude must be in [-180,180]")
	}
	return nil
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var p eventPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if err := p.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ev, err := s.store.CreateEvent(r.Context(), model.Event{
		Title:           p.Title,
		Description:     p.Description,
		MaxParticipants: p.MaxParticipants,
		Latitude:        *p.Latitude,
		Longitude:       *p.Longitude,
		IsPublic:        p.IsPublic,
		Host:            p.Host,
		Categories:      p.Categories,
	})
	if err != nil {
		s.storeError(w, err)
		return
	}

	s.inval.PublishInvalidation(ev.GridID)
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var p eventPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if err := p.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ev, prevGrid, err := s.store.UpdateEvent(r.Context(), model.Event{
		ID:              id,
		Title:           p.Title,
		Description:     p.Description,
		MaxParticipants: p.MaxParticipants,
		Latitude:        *p.Latitude,
		Longitude:       *p.Longitude,
		IsPublic:        p.IsPublic,
		Host:            p.Host,
		Categories:      p.Categories,
	})
	if err != nil {
		s.storeError(w, err)
		return
	}

	// A moved event dirties both the cell it left and the one it entered.
	if prevGrid != ev.GridID {
		s.inval.PublishInvalidation(prevGrid)
	}
	s.inval.PublishInvalidation(ev.GridID)
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.store.DeleteEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.inval.PublishInvalidation(ev.GridID)
	w.WriteHeader(http.StatusNoContent)
}

type membershipPayload struct {
	UserID int64 `json:"userId"`
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	s.handleMembership(w, r, s.store.Join)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	s.handleMembership(w, r, s.store.Leave)
}

func (s *Server) handleMembership(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, id string, userID int64) (model.Event, error)) {

	var p membershipPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.UserID == 0 {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	ev, err := op(r.Context(), chi.URLParam(r, "id"), p.UserID)
	if err != nil {
		s.storeError(w, err)
		return
	}

	// Participant counts live inside the cached entries.
	s.inval.PublishInvalidation(ev.GridID)
	writeJSON(w, http.StatusOK, ev)
}

// GET /ws/chat?userId=7&name=mina&imgUrl=...
// Identity must be present before the upgrade; afterwards the socket
// speaks binary JSON frames only.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	rawID := strings.TrimSpace(r.URL.Query().Get("userId"))
	userID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	name := r.URL.Query().Get("name")
	imgURL := r.URL.Query().Get("imgUrl")

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response.
		s.log.Debug("ws upgrade failed", "err", err)
		return
	}

	conn := chat.NewConn(s.log, ws, s.hub, s.chatPub, userID, name, imgURL)
	conn.Run()
}
