// Package server wires the HTTP surface: event queries and mutations,
// the WebSocket chat endpoint, health and metrics.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spotmeet/spotmeet/internal/chat"
	"github.com/spotmeet/spotmeet/internal/health"
	"github.com/spotmeet/spotmeet/internal/invalidation"
	imw "github.com/spotmeet/spotmeet/internal/middleware"
	"github.com/spotmeet/spotmeet/internal/query"
	"github.com/spotmeet/spotmeet/internal/store"
)

type Server struct {
	log      *slog.Logger
	query    *query.Service
	store    store.EventStore
	inval    invalidation.Publisher
	hub      *chat.Hub
	chatPub  chat.MessagePublisher
	upgrader websocket.Upgrader
}

func New(log *slog.Logger, q *query.Service, st store.EventStore, inval invalidation.Publisher, hub *chat.Hub, chatPub chat.MessagePublisher) *Server {
	if log == nil {
		log = slog.Default()
	}
	if inval == nil {
		inval = invalidation.NopPublisher{}
	}
	return &Server{
		log:     log,
		query:   q,
		store:   st,
		inval:   inval,
		hub:     hub,
		chatPub: chatPub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(imw.Recover(s.log))
	r.Use(imw.Logging(s.log))
	r.Use(imw.CORS())

	r.Get("/healthz", health.Liveness())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/events", func(r chi.Router) {
		r.Get("/", s.handleListEvents)
		r.Post("/", s.handleCreateEvent)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetEvent)
			r.Put("/", s.handleUpdateEvent)
			r.Delete("/", s.handleDeleteEvent)
			r.Post("/join", s.handleJoin)
			r.Post("/leave", s.handleLeave)
		})
	})

	r.Get("/ws/chat", s.handleChatSocket)

	return r
}

// Run serves handler on addr until ctx is canceled, then drains with a
// 10s grace period.
func Run(ctx context.Context, log *slog.Logger, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http listen", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
