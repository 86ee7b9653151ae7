// Package http is the JSON API surface. Handlers stay thin: decode,
// gate by role, call a service, encode. Every route below /api except
// auth itself requires a bearer session.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"caretaker/internal/actionlog"
	"caretaker/internal/auth"
	"caretaker/internal/ledger"
	"caretaker/internal/log"
	"caretaker/internal/services"
	"caretaker/internal/store"
)

type Server struct {
	http.Server

	auth     *auth.Service
	stores   *store.Manager
	worklog  *ledger.Worklog
	shevah   *ledger.Shevah
	elder    *ledger.Elder
	payslips *services.PayslipService
	settings *services.SettingsService
	actions  *actionlog.Logger

	rateLimiter *rateLimiter
	metrics     *securityMetrics
	logger      *log.Logger

	shutdownOnce sync.Once
}

// Deps carries everything the server routes to.
type Deps struct {
	Auth     *auth.Service
	Stores   *store.Manager
	Worklog  *ledger.Worklog
	Shevah   *ledger.Shevah
	Elder    *ledger.Elder
	Payslips *services.PayslipService
	Settings *services.SettingsService
	Actions  *actionlog.Logger
	Logger   *log.Logger
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		auth:        deps.Auth,
		stores:      deps.Stores,
		worklog:     deps.Worklog,
		shevah:      deps.Shevah,
		elder:       deps.Elder,
		payslips:    deps.Payslips,
		settings:    deps.Settings,
		actions:     deps.Actions,
		rateLimiter: newRateLimiter(),
		metrics:     &securityMetrics{},
		logger:      logger,
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /api/auth/register", s.with(s.handleRegister))
	mux.HandleFunc("POST /api/auth/login", s.with(s.handleLogin))
	mux.HandleFunc("POST /api/auth/logout", s.with(s.handleLogout))
	mux.HandleFunc("GET /api/auth/me", s.with(s.session(s.handleMe)))

	mux.HandleFunc("GET /api/users", s.with(s.admin(s.handleListUsers)))
	mux.HandleFunc("POST /api/users", s.with(s.admin(s.handleAddUser)))
	mux.HandleFunc("DELETE /api/users/{id}", s.with(s.admin(s.handleDeleteUser)))

	mux.HandleFunc("GET /api/worklog/{month}", s.with(s.session(s.handleWorklogMonth)))
	mux.HandleFunc("POST /api/worklog/activities", s.with(s.session(s.handleAddActivity)))
	mux.HandleFunc("DELETE /api/worklog/activities/{id}", s.with(s.session(s.handleDeleteActivity)))
	mux.HandleFunc("GET /api/worklog/allowances", s.with(s.session(s.handleAllowances)))

	mux.HandleFunc("GET /api/shevah/{month}", s.with(s.admin(s.handleShevahMonth)))
	mux.HandleFunc("POST /api/shevah/{month}", s.with(s.admin(s.handleAddShevah)))
	mux.HandleFunc("DELETE /api/shevah/{month}/{id}", s.with(s.admin(s.handleDeleteShevah)))

	mux.HandleFunc("GET /api/payslips/{month}", s.with(s.session(s.handlePayslipMonth)))
	mux.HandleFunc("PUT /api/payslips/{month}/status", s.with(s.admin(s.handleMonthlyStatus)))
	mux.HandleFunc("PUT /api/payslips/{month}/paid-amount", s.with(s.admin(s.handleMonthlyPaidAmount)))
	mux.HandleFunc("PUT /api/payslips/{month}/payments/{paymentID}/status", s.with(s.admin(s.handlePaymentStatus)))
	mux.HandleFunc("PUT /api/payslips/{month}/payments/{paymentID}/paid-amount", s.with(s.admin(s.handlePaymentPaidAmount)))
	mux.HandleFunc("PUT /api/payslips/{month}/yearly/{yearKey}/{paymentKey}/status", s.with(s.admin(s.handleYearlyStatus)))
	mux.HandleFunc("PUT /api/payslips/{month}/yearly/{yearKey}/{paymentKey}/paid-amount", s.with(s.admin(s.handleYearlyPaidAmount)))

	mux.HandleFunc("GET /api/settings", s.with(s.admin(s.handleGetSettings)))
	mux.HandleFunc("PUT /api/settings", s.with(s.admin(s.handleUpdateSettings)))
	mux.HandleFunc("GET /api/settings/charges", s.with(s.admin(s.handleGetCharges)))
	mux.HandleFunc("PUT /api/settings/charges", s.with(s.admin(s.handleUpdateCharges)))
	mux.HandleFunc("GET /api/settings/calc-params", s.with(s.admin(s.handleGetCalcParams)))
	mux.HandleFunc("PUT /api/settings/calc-params", s.with(s.admin(s.handleUpdateCalcParams)))
	mux.HandleFunc("GET /api/settings/yearly-payments", s.with(s.admin(s.handleYearlyPayments)))
	mux.HandleFunc("PUT /api/settings/yearly-payments/{yearKey}", s.with(s.admin(s.handleUpdateYearlyPaymentSet)))
	mux.HandleFunc("GET /api/contract-years", s.with(s.admin(s.handleContractYears)))
	mux.HandleFunc("GET /api/expected-expenses/{yearKey}", s.with(s.admin(s.handleExpectedExpenses)))

	mux.HandleFunc("GET /api/elder/financials/{month}", s.with(s.admin(s.handleElderFinancials)))
	mux.HandleFunc("POST /api/elder/financials/{month}", s.with(s.admin(s.handleAddElderFinancial)))
	mux.HandleFunc("DELETE /api/elder/financials/{month}/{id}", s.with(s.admin(s.handleDeleteElderFinancial)))
	mux.HandleFunc("GET /api/elder/expenses/{month}", s.with(s.admin(s.handleElderExpenses)))
	mux.HandleFunc("POST /api/elder/expenses/{month}", s.with(s.admin(s.handleAddElderExpense)))
	mux.HandleFunc("DELETE /api/elder/expenses/{month}/{id}", s.with(s.admin(s.handleDeleteElderExpense)))
	mux.HandleFunc("GET /api/elder/balance/{month}", s.with(s.admin(s.handleElderBalance)))

	mux.HandleFunc("GET /api/action-log", s.with(s.admin(s.handleActionLog)))
	mux.HandleFunc("DELETE /api/action-log", s.with(s.admin(s.handleClearActionLog)))

	mux.HandleFunc("GET /api/storage/self-test", s.with(s.admin(s.handleSelfTest)))
	mux.HandleFunc("POST /api/storage/sync", s.with(s.admin(s.handleSyncAll)))

	return s
}

// Shutdown stops the rate limiter's cleanup goroutine and the HTTP
// server. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// with adds security headers, rate limiting, a request ID and duration
// logging around a handler.
func (s *Server) with(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP, s.metrics) {
			s.logger.WarnContext(ctx, "Rate limit exceeded",
				log.FieldRequestID, requestID,
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.logger.InfoContext(ctx, "Request completed",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatus, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds(),
			log.FieldClientIP, clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
