package httpserver

import (
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/libcatalog/internal/errs"
	"github.com/and161185/libcatalog/internal/token"
)

const (
	// CSRFHeader carries the token issued by GET /auth/csrf.
	CSRFHeader = "X-CSRF-Token"
	// SessionCookie names the opaque session the CSRF token is bound to.
	SessionCookie = "session_id"

	// Markers set on responses that passed the CSRF check.
	safeMarkHeader   = "GET-SECURE"
	unsafeMarkHeader = "POST-SECURE"

	csrfRejected = "CSRF token missing or invalid"
	authRejected = "invalid or expired credentials"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Logging writes one line per request.
func Logging(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			// metadata only, never bodies or headers
			log.Info("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("dur", time.Since(start)),
				zap.String("remote", r.RemoteAddr),
			)
		})
	}
}

// Recover turns a handler panic into a 500.
func Recover(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					log.Error("panic",
						zap.Any("reason", v),
						zap.ByteString("stack", debug.Stack()),
						zap.String("path", r.URL.Path),
					)
					writeDetail(w, http.StatusInternalServerError, "internal")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func safeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}

// CSRF rejects state-changing requests whose X-CSRF-Token does not verify
// against the session cookie. GET, HEAD and OPTIONS pass through. Passing
// responses carry GET-SECURE or POST-SECURE.
func (s *Server) CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if safeMethod(r.Method) {
			w.Header().Set(safeMarkHeader, "true")
			next.ServeHTTP(w, r)
			return
		}
		tok := r.Header.Get(CSRFHeader)
		var sid string
		if c, err := r.Cookie(SessionCookie); err == nil {
			sid = c.Value
		}
		if !s.guard.Verify(tok, sid, s.cfg.CSRFMaxAge) {
			s.log.Info("csrf rejected",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("reason", s.guard.Reason(tok, sid, s.cfg.CSRFMaxAge)),
			)
			writeDetail(w, http.StatusForbidden, csrfRejected)
			return
		}
		w.Header().Set(unsafeMarkHeader, "true")
		next.ServeHTTP(w, r)
	})
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, raw, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(raw)
}

// Auth resolves the bearer token to a user and stores it in the request context.
// Every token failure gets the same 401.
func (s *Server) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearer(r)
		if raw == "" {
			s.unauthorized(w, r, "missing")
			return
		}
		u, err := s.auth.Authenticate(r.Context(), raw)
		if err != nil {
			if errors.Is(err, errs.ErrUnauthorized) {
				s.unauthorized(w, r, token.Kind(err))
				return
			}
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, kind string) {
	s.log.Info("auth rejected", zap.String("path", r.URL.Path), zap.String("kind", kind))
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeDetail(w, http.StatusUnauthorized, authRejected)
}
