package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nkkko/verse/internal/api/models"
	"github.com/nkkko/verse/internal/logging"
	"github.com/nkkko/verse/internal/metrics"
	"github.com/nkkko/verse/internal/notifier"
	"github.com/nkkko/verse/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config contains API configuration
type Config struct {
	// Server address
	Addr string

	// Timeouts
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Origins allowed to call the API from a browser
	CORSOrigins []string

	// Serve Prometheus metrics at MetricsPath
	MetricsEnabled bool
	MetricsPath    string

	// Service name recorded on request spans
	ServiceName string
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Addr:           "127.0.0.1:9090",
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    120 * time.Second,
		CORSOrigins:    []string{"*"},
		MetricsEnabled: true,
		MetricsPath:    "/metrics",
		ServiceName:    "verse",
	}
}

// Session is the signed-in client session the API drives
type Session interface {
	Status() models.Status

	LikePoem(ctx context.Context, poemID int64) error
	UnlikePoem(ctx context.Context, poemID int64) error
	BookmarkPoem(ctx context.Context, poemID int64) error
	UnbookmarkPoem(ctx context.Context, poemID int64) error
	MarkBookRead(ctx context.Context, bookID int64) error
	MarkBookUnread(ctx context.Context, bookID int64) error
	ToggleBookRead(ctx context.Context, bookID int64) error
	IsMember(set string, id int64) bool

	SendFriendRequest(ctx context.Context, username string) error
	AcceptFriendRequest(ctx context.Context, requestID int64) error
	RejectFriendRequest(ctx context.Context, requestID int64) error
	CancelFriendRequest(ctx context.Context, requestID int64) error
	RemoveFriend(ctx context.Context, friendshipID int64) error
	Friends() models.FriendsResponse
	RefreshFriends(ctx context.Context) error

	Notification() notifier.Notification
}

// API serves the daemon's local control surface
type API struct {
	config  Config
	session Session
	router  chi.Router
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	server *http.Server
}

// NewAPI creates a new API instance
func NewAPI(config Config, session Session) *API {
	defaults := DefaultConfig()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	if config.MetricsPath == "" {
		config.MetricsPath = defaults.MetricsPath
	}
	if config.ServiceName == "" {
		config.ServiceName = defaults.ServiceName
	}

	a := &API{
		config:  config,
		session: session,
		logger:  log.With().Str("component", "api").Logger(),
		metrics: metrics.GetMetrics(),
	}
	a.router = a.newRouter()
	return a
}

// Handler returns the routed handler
func (a *API) Handler() http.Handler {
	return a.router
}

// Start serves until ctx is done, then shuts the server down
func (a *API) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.config.Addr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve is Start on an existing listener
func (a *API) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:      a.router,
		ReadTimeout:  a.config.ReadTimeout,
		WriteTimeout: a.config.WriteTimeout,
		IdleTimeout:  a.config.IdleTimeout,
	}
	a.mu.Lock()
	a.server = server
	a.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()
	a.logger.Info().Str("addr", ln.Addr().String()).Msg("API server started")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Shutdown stops the server
func (a *API) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	server := a.server
	a.mu.Unlock()
	if server == nil {
		return nil
	}
	a.logger.Info().Msg("Shutting down API server")
	return server.Shutdown(ctx)
}

func (a *API) newRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(telemetry.HTTPMiddleware(a.config.ServiceName))
	r.Use(logging.HTTPMiddleware())
	r.Use(a.metricsMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.config.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	a.registerRoutes(r)
	return r
}

// registerRoutes sets up all API endpoints
func (a *API) registerRoutes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/readyz", a.handleReady)

	if a.config.MetricsEnabled {
		r.Handle(a.config.MetricsPath, promhttp.Handler())
	}

	r.Get("/status", a.handleStatus)
	r.Get("/notification", a.handleNotification)

	r.Route("/poems/{id}", func(r chi.Router) {
		r.Post("/like", a.membershipHandler(setLiked, a.session.LikePoem))
		r.Delete("/like", a.membershipHandler(setLiked, a.session.UnlikePoem))
		r.Post("/bookmark", a.membershipHandler(setBookmarked, a.session.BookmarkPoem))
		r.Delete("/bookmark", a.membershipHandler(setBookmarked, a.session.UnbookmarkPoem))
	})

	r.Route("/books/{id}", func(r chi.Router) {
		r.Post("/read", a.membershipHandler(setRead, a.session.MarkBookRead))
		r.Delete("/read", a.membershipHandler(setRead, a.session.MarkBookUnread))
		r.Post("/read/toggle", a.membershipHandler(setRead, a.session.ToggleBookRead))
	})

	r.Route("/friends", func(r chi.Router) {
		r.Get("/", a.handleListFriends)
		r.Post("/refresh", a.handleRefreshFriends)
		r.Delete("/{id}", a.friendHandler(a.session.RemoveFriend))
		r.Post("/requests", a.handleSendFriendRequest)
		r.Put("/requests/{id}/accept", a.friendHandler(a.session.AcceptFriendRequest))
		r.Delete("/requests/{id}", a.friendHandler(a.session.RejectFriendRequest))
		r.Delete("/sent/{id}", a.friendHandler(a.session.CancelFriendRequest))
	})
}

// metricsMiddleware counts requests by route pattern so ids never become labels
func (a *API) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		a.metrics.APIRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		a.metrics.APIRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
