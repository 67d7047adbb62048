// Package api assembles the HTTP surface of the accelerator server: the
// management API and the upload relay.
package api

import (
	"log/slog"
	"net/http"

	"github.com/kuhlman-labs/migration-accelerator/internal/api/handlers"
	"github.com/kuhlman-labs/migration-accelerator/internal/api/middleware"
	"github.com/kuhlman-labs/migration-accelerator/internal/auth"
	"github.com/kuhlman-labs/migration-accelerator/internal/config"
	"github.com/kuhlman-labs/migration-accelerator/internal/notify"
	"github.com/kuhlman-labs/migration-accelerator/internal/relay"
	"github.com/kuhlman-labs/migration-accelerator/internal/storage"
)

// loginPath stays reachable without a token
const loginPath = "/api/users/login"

// Server holds the management handlers, the upload relay and the auth
// layer in front of the API routes.
type Server struct {
	config  *config.Config
	logger  *slog.Logger
	handler *handlers.Handler
	relay   *relay.Handler
	authMW  *auth.Middleware
}

// Option customizes a Server
type Option func(*Server)

// WithLogLevels exposes runtime log level control under /api/settings/log-level
func WithLogLevels(levels handlers.LevelController) Option {
	return func(s *Server) {
		s.handler.SetLogLevels(levels)
	}
}

// NewServer wires the management handlers and the upload relay
func NewServer(cfg *config.Config, store storage.Store, jwtManager *auth.JWTManager, logger *slog.Logger, opts ...Option) *Server {
	sender := notify.NewSender(cfg.Notifications, logger.With("component", "notify"))
	forwarder := relay.NewForwarder(cfg.Relay, logger.With("component", "relay"))

	s := &Server{
		config:  cfg,
		logger:  logger,
		handler: handlers.NewHandler(store, jwtManager, sender, logger),
		relay:   relay.NewHandler(forwarder, cfg.Relay.MaxUploadBytes, logger.With("component", "relay")),
		authMW:  auth.NewMiddleware(jwtManager, logger, cfg.Auth.RequireToken),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the root handler. The relay routes answer their own
// preflight requests and sit outside the API CORS and auth layers.
func (s *Server) Router() http.Handler {
	apiMux := http.NewServeMux()
	s.handler.Register(apiMux)

	cors := middleware.CORSWithOrigins(s.config.Server.Origins())
	authenticated := s.authMW.Authenticate(apiMux)
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == loginPath {
			apiMux.ServeHTTP(w, r)
			return
		}
		authenticated.ServeHTTP(w, r)
	})

	root := http.NewServeMux()
	root.Handle("/api/", cors(api))
	root.Handle("/health", cors(apiMux))
	s.relay.Register(root)

	return middleware.Recovery(s.logger)(middleware.Logging(s.logger)(root))
}
