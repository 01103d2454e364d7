package users

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const (
	MessageInvalidID         = "Not valid user id"
	MessageUserNotFound      = "User not found"
	MessageResourceNotExist  = "Resource doesn`t exist"
	MessageMissingFields     = "Missing required fields"
	MessageInternalServerErr = "Internal Server Error"
)

type api struct {
	store  *Store
	logger *slog.Logger
}

// NewRouter serves the users API backed by store.
func NewRouter(store *Store, logger *slog.Logger) http.Handler {
	a := &api{store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(a.requestLogger, a.recoverer, commonHeaders)

	r.NotFound(a.notFound)
	r.MethodNotAllowed(a.notFound)

	// Everything after "/api/users/" is the id, so an empty or nested
	// remainder is an invalid id rather than an unknown resource.
	r.Get("/api/users", a.list)
	r.Post("/api/users", a.create)
	r.Get("/api/users/*", a.get)
	r.Put("/api/users/*", a.update)
	r.Delete("/api/users/*", a.remove)

	return r
}

func commonHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func (a *api) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			a.logger.Error("Handler panicked",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Any("panic", rec))
			a.writeError(w, http.StatusInternalServerError, MessageInternalServerErr)
		}()

		next.ServeHTTP(w, r)
	})
}

func (a *api) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		a.logger.Info("Handled request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)))
	})
}

func (a *api) list(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.store.List())
}

func (a *api) get(w http.ResponseWriter, r *http.Request) {
	id, ok := a.userID(w, r)
	if !ok {
		return
	}

	user, found := a.store.Get(id)
	if !found {
		a.writeError(w, http.StatusNotFound, MessageUserNotFound)
		return
	}
	a.writeJSON(w, http.StatusOK, user)
}

func (a *api) create(w http.ResponseWriter, r *http.Request) {
	p, err := decodePayload(r.Body)
	if err != nil {
		a.internalError(w, r, err)
		return
	}

	req := newCreateRequest(p)
	if err := req.Validate(); err != nil {
		a.logger.Debug("Rejected user", slog.Any("err", err))
		a.writeError(w, http.StatusBadRequest, MessageMissingFields)
		return
	}

	user := User{
		ID:       uuid.New(),
		Username: req.Username,
		Age:      req.Age,
		Hobbies:  req.Hobbies,
	}
	a.store.Add(user)

	a.writeJSON(w, http.StatusCreated, user)
}

func (a *api) update(w http.ResponseWriter, r *http.Request) {
	id, ok := a.userID(w, r)
	if !ok {
		return
	}

	p, err := decodePayload(r.Body)
	if err != nil {
		a.internalError(w, r, err)
		return
	}

	current, found := a.store.Get(id)
	if !found {
		a.writeError(w, http.StatusNotFound, MessageUserNotFound)
		return
	}

	updated := merge(current, p)
	if !a.store.Update(updated) {
		a.writeError(w, http.StatusNotFound, MessageUserNotFound)
		return
	}

	a.writeJSON(w, http.StatusOK, updated)
}

func (a *api) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := a.userID(w, r)
	if !ok {
		return
	}

	if _, found := a.store.Delete(id); !found {
		a.writeError(w, http.StatusNotFound, MessageUserNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) notFound(w http.ResponseWriter, r *http.Request) {
	a.writeError(w, http.StatusNotFound, MessageResourceNotExist)
}

func (a *api) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "*")
	id, err := uuid.Parse(raw)
	// uuid.Parse also takes the urn and braced forms; only the canonical one is an id here.
	if err != nil || len(raw) != 36 {
		a.writeError(w, http.StatusBadRequest, MessageInvalidID)
		return uuid.UUID{}, false
	}
	return id, true
}

func (a *api) internalError(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.Warn("Request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("err", err))
	a.writeError(w, http.StatusInternalServerError, MessageInternalServerErr)
}

func (a *api) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, map[string]string{"message": message})
}

func (a *api) writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Warn("Failed to write response", slog.Any("err", err))
	}
}
