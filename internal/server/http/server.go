// Package httpserver exposes the catalog HTTP API.
package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/and161185/libcatalog/internal/csrf"
	"github.com/and161185/libcatalog/internal/errs"
	"github.com/and161185/libcatalog/internal/service"
)

// Config tunes request handling.
type Config struct {
	CSRFMaxAge time.Duration
	MaxUpload  int64
	// SecureCookie marks the session cookie Secure (HTTPS deployments).
	SecureCookie bool
	// Ping checks dependencies for /healthz; nil means always healthy.
	Ping func(ctx context.Context) error
}

// Server wires services into HTTP handlers.
type Server struct {
	log     *zap.Logger
	auth    service.AuthService
	catalog service.CatalogService
	uploads service.UploadService
	guard   *csrf.Guard
	cfg     Config
}

// New constructs a Server with injected services.
func New(
	log *zap.Logger,
	auth service.AuthService,
	catalog service.CatalogService,
	uploads service.UploadService,
	guard *csrf.Guard,
	cfg Config,
) *Server {
	if cfg.CSRFMaxAge <= 0 {
		cfg.CSRFMaxAge = time.Hour
	}
	if cfg.MaxUpload <= 0 {
		cfg.MaxUpload = service.DefaultMaxUpload
	}
	return &Server{log: log, auth: auth, catalog: catalog, uploads: uploads, guard: guard, cfg: cfg}
}

// Handler builds the router. CSRF runs for every route; Auth only for
// protected ones.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.Use(Recover(s.log), Logging(s.log), s.CSRF)

	protected := func(h http.HandlerFunc) http.Handler { return s.Auth(h) }

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	r.HandleFunc("/auth/csrf", s.issueCSRF).Methods(http.MethodGet)
	r.HandleFunc("/auth/register", s.register).Methods(http.MethodPost)
	r.HandleFunc("/auth/token", s.login).Methods(http.MethodPost)
	r.Handle("/users/me", protected(s.me)).Methods(http.MethodGet)

	r.HandleFunc("/authors", s.listAuthors).Methods(http.MethodGet)
	r.Handle("/authors", protected(s.createAuthor)).Methods(http.MethodPost)
	r.HandleFunc("/authors/{id:[0-9]+}", s.getAuthor).Methods(http.MethodGet)

	r.HandleFunc("/books", s.listBooks).Methods(http.MethodGet)
	r.Handle("/books", protected(s.createBook)).Methods(http.MethodPost)
	r.HandleFunc("/books/{id:[0-9]+}", s.getBook).Methods(http.MethodGet)
	r.Handle("/books/{id:[0-9]+}", protected(s.updateBook)).Methods(http.MethodPut)
	r.Handle("/books/{id:[0-9]+}", protected(s.deleteBook)).Methods(http.MethodDelete)

	r.Handle("/uploads", protected(s.upload)).Methods(http.MethodPost)
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Ping != nil {
		if err := s.cfg.Ping(r.Context()); err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			writeDetail(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// --- Auth ---

type csrfResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// issueCSRF returns a token bound to the caller's session, starting a new
// session when the cookie is absent or unusable.
func (s *Server) issueCSRF(w http.ResponseWriter, r *http.Request) {
	var sid string
	if c, err := r.Cookie(SessionCookie); err == nil && csrf.ValidSessionID(c.Value) {
		sid = c.Value
	} else {
		id, err := uuid.NewV4()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		sid = id.String()
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sid,
			Path:     "/",
			HttpOnly: true,
			Secure:   s.cfg.SecureCookie,
			SameSite: http.SameSiteLaxMode,
		})
	}
	tok, err := s.guard.Generate(sid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, csrfResponse{CSRFToken: tok})
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// readCredentials accepts a JSON body or an urlencoded/multipart form.
func readCredentials(w http.ResponseWriter, r *http.Request) (credentials, error) {
	var c credentials
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err := decodeJSON(r, &c)
		return c, err
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := r.ParseForm(); err != nil {
		return c, errs.ErrInvalidInput
	}
	c.Username = r.PostForm.Get("username")
	c.Password = r.PostForm.Get("password")
	return c, nil
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	c, err := readCredentials(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.auth.Register(r.Context(), c.Username, c.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{ID: u.ID.String(), Username: u.Username, CreatedAt: u.CreatedAt})
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	c, err := readCredentials(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tok, err := s.auth.Login(r.Context(), c.Username, c.Password, r.RemoteAddr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresIn:   int64(tok.ExpiresIn / time.Second),
	})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	u, ok := UserFromCtx(r.Context())
	if !ok {
		s.writeError(w, r, errs.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: u.ID.String(), Username: u.Username, CreatedAt: u.CreatedAt})
}
