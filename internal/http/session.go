package http

import (
	"net/http"
	"strings"
	"sync/atomic"

	"caretaker/internal/auth"
	"caretaker/internal/core"
)

// sessionHandler is a handler with the resolved session in hand.
type sessionHandler func(w http.ResponseWriter, r *http.Request, session auth.Session)

// session resolves the bearer token and rejects requests without a
// live session.
func (s *Server) session(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			atomic.AddInt64(&s.metrics.authFailures, 1)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		session, ok := s.auth.SessionFromToken(token)
		if !ok {
			atomic.AddInt64(&s.metrics.authFailures, 1)
			writeError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}
		next(w, r, session)
	}
}

// admin additionally requires the admin role. Caretakers only get the
// worklog and payslip read paths plus worklog activity writes.
func (s *Server) admin(next sessionHandler) http.HandlerFunc {
	return s.session(func(w http.ResponseWriter, r *http.Request, session auth.Session) {
		if session.Role != core.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next(w, r, session)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
