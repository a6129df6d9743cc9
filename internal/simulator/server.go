package simulator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/threatflux/scangate/internal/auth"
	"github.com/threatflux/scangate/internal/middleware"
	"github.com/threatflux/scangate/internal/models"
	"github.com/threatflux/scangate/pkg/client"
	"golang.org/x/crypto/bcrypt"
)

// Server is the simulated scanning service
type Server struct {
	router *gin.Engine
	config Config
	logger *logrus.Logger
	users  *auth.UserStore
	tokens *auth.JWTService
	authMW *middleware.AuthMiddleware

	mu      sync.Mutex
	probes  int
	pending map[string]int
	scans   int
}

// NewServer creates the simulator and registers its routes
func NewServer(cfg Config, logger *logrus.Logger) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid simulator config: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}

	passwordConfig := auth.DefaultPasswordConfig()
	if cfg.BcryptCost != 0 {
		passwordConfig.HashCost = cfg.BcryptCost
	}
	users := auth.NewUserStore(auth.NewPasswordService(passwordConfig))
	for username, password := range cfg.Users {
		if err := users.Add(username, password); err != nil {
			return nil, fmt.Errorf("failed to add user %q: %w", username, err)
		}
	}

	jwtConfig := auth.DefaultJWTConfig()
	jwtConfig.Secret = cfg.Secret
	jwtConfig.TokenExpiry = cfg.TokenExpiry
	tokens := auth.NewJWTService(jwtConfig, auth.NewRevocationStore(), logger)

	s := &Server{
		config:  cfg,
		logger:  logger,
		users:   users,
		tokens:  tokens,
		authMW:  middleware.NewAuthMiddleware(tokens),
		pending: make(map[string]int),
	}
	s.setupRouter()
	return s, nil
}

// NewTestConfig returns a config with a cheap bcrypt cost for tests
func NewTestConfig() Config {
	cfg := DefaultConfig()
	cfg.BcryptCost = bcrypt.MinCost
	return cfg
}

func (s *Server) setupRouter() {
	router := gin.New()
	router.Use(
		middleware.RequestIDMiddleware(),
		middleware.NewLoggingMiddleware(s.logger).Logger(),
		middleware.Recovery(s.logger),
	)

	router.POST(client.APIPathAuth, s.login)
	router.GET(client.APIPathAuth, s.probe)
	router.DELETE(client.APIPathAuth, s.authMW.RequireToken(), s.logout)
	router.POST(client.APIPathScanRepository, s.authMW.RequireToken(), s.scanRepository)

	router.NoRoute(func(c *gin.Context) {
		middleware.AbortWithError(c, http.StatusNotFound, middleware.CodeInvalidRequest, "Not found", c.Request.URL.Path)
	})

	s.router = router
}

// Router returns the gin engine, e.g. for httptest servers
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Stats reports how many probes and completed scans the simulator served
func (s *Server) Stats() (probes, scans int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probes, s.scans
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is cancelled
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("address", listener.Addr().String()).Info("Starting scanning service simulator")
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down scanning service simulator...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error during simulator shutdown: %w", err)
	}
	s.logger.Info("Simulator shutdown complete")
	return nil
}

func (s *Server) report(repository, tag string) *models.VulnerabilityReport {
	if report, ok := s.config.Reports[repository+":"+tag]; ok {
		copied := *report
		return &copied
	}
	return SampleReport(repository, tag)
}
