package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
)

// TransactionService is what the transaction handlers need. *services.TransactionService implements it.
type TransactionService interface {
	ListTransactions(ctx context.Context, sess core.Session, f core.Filter) ([]core.Transaction, error)
	AddTransaction(ctx context.Context, sess core.Session, in core.TransactionInput) (core.Transaction, error)
	EditTransaction(ctx context.Context, sess core.Session, id string, in core.TransactionInput) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	History(ctx context.Context, sess core.Session, id string) ([]core.AuditEvent, error)
}

// UserService is what the user handlers need. *services.UserService implements it.
type UserService interface {
	Register(ctx context.Context, reg core.Registration) (core.User, error)
	Login(ctx context.Context, email, password string) (core.User, error)
	ResolveSession(ctx context.Context, userID string) (core.Session, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps wires the server to its collaborators.
type Deps struct {
	Transactions TransactionService
	Users        UserService
	Store        Pinger
	// Sessions is optional; when set its stats appear on /metrics and it is purged periodically.
	Sessions           *cache.LRUCache[core.Session]
	Logger             *log.Logger
	RateLimitPerMinute int
}

// Server is the REST API server.
type Server struct {
	http.Server

	transactions TransactionService
	users        UserService
	store        Pinger
	sessions     *cache.LRUCache[core.Session]

	logger           *log.Logger
	structured       *log.StructuredLogger
	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	cacheManager     *cache.Manager

	appMetrics   *appMetrics
	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime              time.Time
	transactionsCreated int64
	transactionsUpdated int64
	transactionsDeleted int64
	listRequests        int64
	analyticsRequests   int64
	usersRegistered     int64
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	detector := security.NewDetector()
	s := &Server{
		transactions:     deps.Transactions,
		users:            deps.Users,
		store:            deps.Store,
		sessions:         deps.Sessions,
		logger:           logger,
		structured:       log.NewStructuredLogger(logger),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(logger, detector.ExtractClientIP),
		cacheManager:     cache.NewManager(),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}

	if s.sessions != nil {
		s.cacheManager.Register(s.sessions)
		s.cacheManager.StartCleanup(5 * time.Minute)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/v1/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/v1/transactions", s.handleCreateTransaction)
	mux.HandleFunc("PUT /api/v1/transactions", s.handleEditTransaction)
	mux.HandleFunc("DELETE /api/v1/transactions", s.handleDeleteTransaction)
	mux.HandleFunc("GET /api/v1/transactions/analytics", s.handleAnalytics)
	mux.HandleFunc("GET /api/v1/transactions/events", s.handleHistory)

	mux.HandleFunc("POST /api/v1/users/register", s.handleRegister)
	mux.HandleFunc("POST /api/v1/users/login", s.handleLogin)

	// Outermost first: trace, headers, scan detection, rate limiting.
	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(detector.ExtractClientIP, s.onRateLimited)(handler)
	handler = s.detectSuspicious(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// detectSuspicious logs scan-like requests. They are still served.
func (s *Server) detectSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason := s.securityDetector.Inspect(r); reason != security.ReasonNone {
			log.FromContext(r.Context()).WithComponent(log.ComponentSecurity).WarnContext(r.Context(), "Suspicious request detected",
				log.FieldReason, string(reason),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
				log.FieldUserAgent, r.UserAgent())
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(errRateLimited).Write(w)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		s.cacheManager.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
