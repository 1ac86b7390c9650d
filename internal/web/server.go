package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/conorfennell/kanadeck/internal/domain"
	"github.com/conorfennell/kanadeck/internal/logger"
	"github.com/conorfennell/kanadeck/internal/scheduler"
	"github.com/conorfennell/kanadeck/internal/sm2"
	"github.com/conorfennell/kanadeck/internal/storage"
	"github.com/conorfennell/kanadeck/internal/sync"
)

const maxBodyBytes = 8 << 20

// Server holds the dependencies for the HTTP API.
type Server struct {
	db     *storage.DB
	decks  *scheduler.Registry
	syncer *sync.Syncer
	log    *logger.Logger
	router *http.ServeMux
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, decks *scheduler.Registry, syncer *sync.Syncer, log *logger.Logger) *Server {
	s := &Server{
		db:     db,
		decks:  decks,
		syncer: syncer,
		log:    log,
		router: http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface and logs every request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.router.ServeHTTP(rec, r)
	s.log.Debug("Request served",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration", time.Since(start),
	)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	// Deck and review routes
	s.router.HandleFunc("GET /decks/{deck}/stats", s.handleGetStats())
	s.router.HandleFunc("GET /decks/{deck}/due", s.handleGetDue())
	s.router.HandleFunc("GET /decks/{deck}/review", s.handleGetReview())
	s.router.HandleFunc("POST /decks/{deck}/review", s.handlePostReview())
	s.router.HandleFunc("POST /decks/{deck}/review/reveal", s.handlePostReveal())

	// Session routes
	s.router.HandleFunc("POST /decks/{deck}/session/start", s.handleStartSession())
	s.router.HandleFunc("POST /decks/{deck}/session/end", s.handleEndSession())
	s.router.HandleFunc("GET /decks/{deck}/sessions", s.handleGetSessions())

	// Card management routes
	s.router.HandleFunc("GET /decks/{deck}/cards", s.handleGetCards())
	s.router.HandleFunc("POST /decks/{deck}/cards", s.handlePostCard())
	s.router.HandleFunc("PATCH /decks/{deck}/cards/{id}", s.handlePatchCard())
	s.router.HandleFunc("DELETE /decks/{deck}/cards/{id}", s.handleDeleteCard())
	s.router.HandleFunc("POST /decks/{deck}/cards/{id}/reset", s.handleResetCard())
	s.router.HandleFunc("GET /decks/{deck}/export", s.handleExport())
	s.router.HandleFunc("POST /decks/{deck}/import", s.handleImport())

	// Source management routes
	s.router.HandleFunc("GET /sources", s.handleGetSources())
	s.router.HandleFunc("POST /sources", s.handlePostSource())
	s.router.HandleFunc("DELETE /sources/{id}", s.handleDeleteSource())
	s.router.HandleFunc("POST /sync", s.handlePostSync())
}

// deck resolves the {deck} path value to its scheduler.
func (s *Server) deck(r *http.Request) (*scheduler.Scheduler, error) {
	return s.decks.Deck(r.Context(), r.PathValue("deck"))
}

// reviewView is what the review screen shows: the back stays hidden until revealed.
type reviewView struct {
	Card     *domain.Card   `json:"card"`
	Revealed bool           `json:"revealed"`
	Due      int            `json:"due"`
	Session  domain.Session `json:"session"`
}

func currentView(sched *scheduler.Scheduler) reviewView {
	v := sched.View()
	if v.Card != nil && !v.Revealed {
		v.Card.Back = ""
	}
	return reviewView{
		Card:     v.Card,
		Revealed: v.Revealed,
		Due:      v.Due,
		Session:  v.Session,
	}
}

func (s *Server) handleGetStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sched, err := s.deck(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, sched.Stats())
	}
}

func (s *Server) handleGetDue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sched, err := s.deck(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, sched.DueCards())
	}
}

// handleGetReview renders the current card, hiding its back unless revealed.
func (s *Server) handleGetReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sched, err := s.deck(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, currentView(sched))
	}
}

// handlePostReview grades a card (the current one unless an id is given) and
// returns it together with the next card to show.
func (s *Server) handlePostReview() http.HandlerFunc {
	type request struct {
		ID      string `json:"id"`
		Quality *int   `json:"quality"`
	}
	type response struct {
		Reviewed domain.Card `json:"reviewed"`
		Next     reviewView  `json:"next"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		sched, err := s.deck(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		var req request
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		if req.Quality == nil {
			s.writeError(w, badRequest("quality is required"))
			return
		}

		q := sm2.Quality(*req.Quality)
		var reviewed domain.Card
		if req.ID != "" {
			reviewed, err = sched.Review(req.ID, q)
		} else {
			reviewed, err = sched.Rate(q)
		}
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, response{Reviewed: reviewed, Next: currentView(sched)})
	}
}

func (s *Server) handlePostReveal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sched, err := s.deck(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		sched.ToggleReveal()
		s.writeJSON(w, http.StatusOK, currentView(sched))
	}
}

func (s *Server) handleStartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sched, err := s.deck(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, sched.StartSession())
	}
}

func (s *Server) handleEndSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sched, err := s.deck(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, sched.EndSession())
	}
}

func (s *Server) handleGetSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sched, err := s.deck(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, sched.Sessions())
	}
}

func (s *Server) handleGetCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sched, err := s.deck(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, sched.Cards())
	}
}

func (s *Server) handlePostCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sched, err := s.deck(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		var in scheduler.NewCard
		if err := decodeJSON(w, r, &in); err != nil {
			s.writeError(w, err)
			return
		}
		card, err := sched.AddCard(in)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, card)
	}
}

func (s *Server) handlePatchCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sched, err := s.deck(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		var patch scheduler.CardPatch
		if err := decodeJSON(w, r, &patch); err != nil {
			s.writeError(w, err)
			return
		}
		card, err := sched.UpdateCard(r.PathValue("id"), patch)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, card)
	}
}

func (s *Server) handleDeleteCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sched, err := s.deck(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if err := sched.DeleteCard(r.PathValue("id")); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleResetCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sched, err := s.deck(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		card, err := sched.ResetCard(r.PathValue("id"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, card)
	}
}

func (s *Server) handleExport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sched, err := s.deck(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		data, err := sched.Export()
		if err != nil {
			s.writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sched.Deck()+".json"))
		_, _ = w.Write(data)
	}
}

// handleImport loads a JSON card export; ?replace=true swaps the whole deck.
func (s *Server) handleImport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sched, err := s.deck(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		replace := false
		if v := r.URL.Query().Get("replace"); v != "" {
			if replace, err = strconv.ParseBool(v); err != nil {
				s.writeError(w, badRequest("invalid replace flag"))
				return
			}
		}
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			s.writeError(w, badRequest("failed to read body"))
			return
		}
		n, err := sched.Import(data, replace)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]int{"imported": n})
	}
}

func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.db.GetAllSources(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		if sources == nil {
			sources = []domain.Source{}
		}
		s.writeJSON(w, http.StatusOK, sources)
	}
}

func (s *Server) handlePostSource() http.HandlerFunc {
	type request struct {
		Deck string `json:"deck"`
		Path string `json:"path"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		if req.Deck == "" || req.Path == "" {
			s.writeError(w, badRequest("deck and path are required"))
			return
		}
		src, err := s.syncer.AddSource(r.Context(), req.Deck, req.Path)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, src)
	}
}

func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			s.writeError(w, badRequest("invalid source ID"))
			return
		}
		deleted, err := s.db.DeleteSource(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if !deleted {
			s.writeError(w, errSourceNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePostSync runs a sync in the foreground and returns the per-source results.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := s.syncer.RunSync(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		if results == nil {
			results = []sync.Result{}
		}
		s.writeJSON(w, http.StatusOK, results)
	}
}

var errSourceNotFound = errors.New("source not found")

type badRequest string

func (e badRequest) Error() string { return string(e) }

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("Failed to encode response", "error", err)
	}
}

// writeError maps domain errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var br badRequest
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &br),
		errors.Is(err, sm2.ErrInvalidQuality),
		errors.Is(err, scheduler.ErrInvalidCard),
		errors.Is(err, scheduler.ErrInvalidDeck),
		errors.Is(err, sync.ErrInvalidSource):
		status = http.StatusBadRequest
	case errors.Is(err, scheduler.ErrNotFound), errors.Is(err, errSourceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, scheduler.ErrNothingDue):
		status = http.StatusConflict
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", "error", err)
		msg = "internal server error"
	}
	s.writeJSON(w, status, map[string]string{"error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
