// Package httpserver exposes the webhook transport: it unwraps inbound event
// envelopes, drives the orchestrator, routes the resulting notification and
// hands it off for delivery.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pipewatch/pipewatch/internal/bot"
	"github.com/pipewatch/pipewatch/internal/event"
	"github.com/pipewatch/pipewatch/internal/journal"
	"github.com/pipewatch/pipewatch/internal/models"
	"github.com/pipewatch/pipewatch/internal/route"
	"github.com/pipewatch/pipewatch/internal/store"
)

// Notifier delivers a notification to a channel.
type Notifier interface {
	Send(ctx context.Context, channel string, n models.Notification) error
}

type Server struct {
	bot      *bot.Bot
	router   *route.Router
	notifier Notifier
	store    store.Store
	journal  *journal.Journal
	secret   string
	log      *zap.SugaredLogger
}

func New(b *bot.Bot, router *route.Router, notifier Notifier, st store.Store, jrnl *journal.Journal, ingestSecret string, log *zap.SugaredLogger) *Server {
	return &Server{
		bot:      b,
		router:   router,
		notifier: notifier,
		store:    st,
		journal:  jrnl,
		secret:   ingestSecret,
		log:      log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.secret != "" {
			r.Use(bearerAuth(s.secret))
		}
		r.Post("/events", s.handleEvent)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.store.Ping(ctx); err != nil {
		status["ok"] = false
		status["store"] = "down"
		status["error"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	status["store"] = "up"
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev event.Event
	if err := decodeJSON(w, r, &ev); err != nil {
		respondError(w, http.StatusBadRequest, "PIPEWATCH_BAD_REQUEST", err.Error())
		return
	}
	ctx := r.Context()
	s.journal.RecordEvent(ctx, ev)

	res, err := s.bot.Handle(ctx, ev)
	if err != nil {
		s.log.Errorw("event handling failed",
			"execution", ev.Detail.ExecutionID, "error", err)
		respondError(w, http.StatusInternalServerError, "PIPEWATCH_INTERNAL", err.Error())
		return
	}
	if res == nil || res.Notification == nil {
		respondJSON(w, http.StatusAccepted, map[string]interface{}{"notified": false})
		return
	}

	attrs := route.Attributes(res.Notification)
	channel, matched := s.router.Evaluate(attrs)
	if matched {
		if err := s.notifier.Send(ctx, channel, res.Notification); err != nil {
			// Leave the record un-notified so the next event retries.
			s.log.Errorw("notification delivery failed",
				"execution", ev.Detail.ExecutionID, "channel", channel, "error", err)
			respondError(w, http.StatusBadGateway, "PIPEWATCH_DELIVERY", err.Error())
			return
		}
	} else {
		s.log.Infow("no route matched notification",
			"execution", ev.Detail.ExecutionID, "type", res.Notification.NotificationKind())
	}

	if err := s.bot.NotificationSent(ctx, res); err != nil {
		if errors.Is(err, store.ErrAlreadyNotified) {
			s.log.Warnw("notification race lost, message may have been duplicated",
				"execution", ev.Detail.ExecutionID)
		} else {
			respondError(w, http.StatusInternalServerError, "PIPEWATCH_INTERNAL", err.Error())
			return
		}
	}
	s.journal.RecordNotification(ctx, ev.Detail.ExecutionID, channel, attrs)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"notified": matched,
		"channel":  channel,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
		"code":  code,
	})
}
