package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"visionpanel/internal/auth"
	"visionpanel/internal/config"
	"visionpanel/internal/logger"
	"visionpanel/internal/store"
	"visionpanel/internal/stream"
	"visionpanel/internal/vision"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Server is the HTTP front of the application: the HTML panel, the camera
// CRUD endpoints, and the live MJPEG stream endpoint.
type Server struct {
	config     *config.Config
	logger     *logger.Logger
	store      *store.Store
	auth       *auth.Authenticator
	registry   *stream.Registry
	prober     *vision.Prober
	router     *gin.Engine
	httpServer *http.Server
}

// NewServer creates the web server and wires its routes.
func NewServer(cfg *config.Config, st *store.Store, authn *auth.Authenticator, registry *stream.Registry, prober *vision.Prober, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	s := &Server{
		config:   cfg,
		logger:   log,
		store:    st,
		auth:     authn,
		registry: registry,
		prober:   prober,
		router:   router,
	}

	router.SetHTMLTemplate(template.Must(template.ParseFS(templateFiles, "templates/*.html")))
	s.setupRoutes()
	return s
}

// Start runs the HTTP server until the context is cancelled or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Write and idle timeouts stay disabled: the MJPEG endpoint holds
		// its connection open for the lifetime of the stream.
		WriteTimeout: 0,
		IdleTimeout:  0,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting web server", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		s.logger.Info("Web server started", "address", addr)
		return nil
	}
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Stopping web server")
	return s.httpServer.Shutdown(ctx)
}

// setupRoutes sets up all routes.
func (s *Server) setupRoutes() {
	s.router.GET("/register", s.handleRegisterForm)
	s.router.POST("/register", s.handleRegister)
	s.router.GET("/login", s.handleLoginForm)
	s.router.POST("/login", s.handleLogin)
	s.router.GET("/logout", s.handleLogout)

	authed := s.router.Group("/")
	authed.Use(s.authRequired())
	{
		authed.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusFound, "/panel")
		})
		authed.GET("/panel", s.handlePanel)

		cameras := authed.Group("/cameras")
		{
			cameras.POST("/add", s.handleAddCamera)
			cameras.POST("/update", s.handleUpdateCamera)
			cameras.POST("/delete", s.handleDeleteCamera)
			cameras.POST("/settings/get", s.handleGetCameraSettings)
			cameras.POST("/settings/set", s.handleSetCameraSettings)
		}

		authed.GET("/stream/:camera_id", s.handleStream)
	}
}

// authRequired resolves the access_token cookie to a user and aborts the
// request otherwise. Browsers get a redirect to the login form; form posts
// get a JSON 401.
func (s *Server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie("access_token")
		if err != nil || token == "" {
			s.rejectUnauthenticated(c)
			return
		}

		user, err := s.auth.CurrentUser(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if user == nil {
			s.rejectUnauthenticated(c)
			return
		}

		c.Set("user", user)
		c.Next()
	}
}

func (s *Server) rejectUnauthenticated(c *gin.Context) {
	if c.Request.Method == http.MethodGet {
		c.Redirect(http.StatusFound, "/login")
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   "authentication required",
	})
}

// currentUser returns the user resolved by authRequired.
func currentUser(c *gin.Context) *store.User {
	user, _ := c.MustGet("user").(*store.User)
	return user
}

// ginLogger creates a Gin middleware for request logging.
func ginLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", latency,
			"client_ip", c.ClientIP(),
		)
	}
}
