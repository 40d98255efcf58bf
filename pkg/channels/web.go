package channels

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mschweiger/twin/pkg/agent"
	"github.com/mschweiger/twin/pkg/logger"
	"github.com/mschweiger/twin/pkg/persona"
	"github.com/mschweiger/twin/pkg/transcribe"
)

// maxAudioBytes bounds one uploaded recording (a short spoken utterance).
const maxAudioBytes = 10 << 20

// Web exposes the session as a JSON API for the chat page.
type Web struct {
	addr    string
	session *agent.Session
	log     *slog.Logger
}

func NewWeb(addr string, session *agent.Session) *Web {
	return &Web{addr: addr, session: session, log: logger.Component("web")}
}

func (w *Web) Name() string { return "web" }

// Router wires the API routes.
func (w *Web) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", w.handleHealth)
		api.Get("/messages", w.handleListMessages)
		api.Post("/messages", w.handlePostMessage)
		api.Post("/audio", w.handlePostAudio)
		api.Get("/facts", w.handleListFacts)
		api.Post("/reset", w.handleReset)
	})

	return r
}

// Run serves until ctx is cancelled, then drains with a shutdown grace
// period.
func (w *Web) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              w.addr,
		Handler:           w.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	w.log.Info("web channel listening", "addr", w.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (w *Web) handleHealth(rw http.ResponseWriter, r *http.Request) {
	messages, facts, err := w.session.Counts(r.Context())
	if err != nil {
		respondError(rw, http.StatusInternalServerError, "store unavailable")
		return
	}
	respondJSON(rw, http.StatusOK, map[string]any{
		"status":   "ok",
		"messages": messages,
		"facts":    facts,
	})
}

func (w *Web) handleListMessages(rw http.ResponseWriter, _ *http.Request) {
	respondJSON(rw, http.StatusOK, map[string]any{"messages": w.session.Messages()})
}

type postMessageRequest struct {
	Text string `json:"text"`
	Mode string `json:"mode"`
}

func (w *Web) handlePostMessage(rw http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(rw, http.StatusBadRequest, "invalid JSON body")
		return
	}

	turn, err := w.session.HandleText(r.Context(), req.Text, persona.ParseMode(req.Mode))
	if err != nil {
		if errors.Is(err, agent.ErrEmptyInput) {
			respondError(rw, http.StatusBadRequest, "text is required")
			return
		}
		w.log.Error("text turn failed", "error", err)
		respondError(rw, http.StatusInternalServerError, "conversation turn failed")
		return
	}
	respondJSON(rw, http.StatusOK, turn)
}

func (w *Web) handlePostAudio(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		respondError(rw, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		respondError(rw, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, maxAudioBytes))
	if err != nil {
		respondError(rw, http.StatusBadRequest, "reading audio failed")
		return
	}

	mode := persona.ParseMode(r.FormValue("mode"))
	if method := r.FormValue("voice_method"); method != "" {
		// Both selector values route through the same ordered strategy.
		w.log.Info("audio turn", "voice_method", method, "bytes", len(audio))
	}

	turn, err := w.session.HandleAudio(r.Context(), audio, mode)
	if err != nil {
		switch {
		case errors.Is(err, agent.ErrEmptyInput):
			respondError(rw, http.StatusBadRequest, "audio payload is empty")
		case errors.Is(err, agent.ErrDuplicateAudio):
			respondError(rw, http.StatusConflict, "audio already processed")
		default:
			// No turn was recorded; the page shows the notice in place
			// of a reply.
			w.log.Warn("audio turn failed", "error", err)
			respondError(rw, http.StatusUnprocessableEntity, transcribe.FailureNotice)
		}
		return
	}
	respondJSON(rw, http.StatusOK, turn)
}

func (w *Web) handleListFacts(rw http.ResponseWriter, r *http.Request) {
	facts, err := w.session.Facts(r.Context(), 200)
	if err != nil {
		respondError(rw, http.StatusInternalServerError, "listing facts failed")
		return
	}
	respondJSON(rw, http.StatusOK, map[string]any{"facts": facts})
}

func (w *Web) handleReset(rw http.ResponseWriter, r *http.Request) {
	if err := w.session.Reset(r.Context()); err != nil {
		w.log.Error("reset failed", "error", err)
		respondError(rw, http.StatusInternalServerError, "reset failed")
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func respondJSON(rw http.ResponseWriter, status int, payload any) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(payload)
}

func respondError(rw http.ResponseWriter, status int, message string) {
	respondJSON(rw, status, map[string]string{"error": message})
}
