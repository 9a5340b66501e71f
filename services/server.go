package services

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"

	"github.com/avelkar/aria/backend/repository"
	ws "github.com/avelkar/aria/backend/websocket"
)

// Server holds all server dependencies
type Server struct {
	config           *Config
	gormDB           *repository.GORMRepository
	rawDB            *gorm.DB
	chatRepo         *repository.ChatLogRepository
	personas         *PersonaStore
	agentClient      *AgentClient
	relay            *ChatRelay
	websocketHandler *WebSocketHandler
	authService      *AuthService
	authEndpoints    *AuthEndpoints
	profileEndpoints *ProfileEndpoints
	proxyEndpoints   *ProxyEndpoints
	wsHub            *ws.Hub
	upgrader         websocket.Upgrader
}

// NewServer creates a new server instance
func NewServer(config *Config) *Server {
	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return CheckOrigin(r, config.WebSocket.AllowedOrigins)
			},
		},
	}
}

// SetDatabases sets the relational and document database handles. Must be
// called before InitializeServices.
func (s *Server) SetDatabases(db *repository.GORMRepository, rawDB *gorm.DB, mongoDB *mongo.Database) {
	s.gormDB = db
	s.rawDB = rawDB
	if mongoDB != nil {
		s.chatRepo = repository.NewChatLogRepository(mongoDB)
	}
}

// InitializeServices initializes all server services
func (s *Server) InitializeServices() error {
	personas, err := LoadPersonas(s.config.Personas.File)
	if err != nil {
		return err
	}
	s.personas = personas

	if s.config.Agent.BaseURL != "" {
		s.agentClient = NewAgentClient(
			s.config.Agent.BaseURL,
			s.config.Agent.APIKey,
			time.Duration(s.config.Agent.TimeoutMS)*time.Millisecond,
		)
		slog.Info("Agent service client initialized", "base_url", s.config.Agent.BaseURL)
	} else {
		slog.Warn("Agent base URL not configured, chat replies disabled")
	}

	geoService := NewGeoService(s.config.Weather.APIKey, s.config.Google.APIKey)
	weatherService := NewWeatherService(s.config.Weather.APIKey)
	searchService := NewSearchService(s.config.Google.APIKey, s.config.Search.EngineID)

	if s.config.JWT.Secret != "" && s.gormDB != nil {
		s.authService = NewAuthService(s.gormDB, geoService, s.personas, s.config.JWT.Secret)
		s.authEndpoints = NewAuthEndpoints(s.authService)
		slog.Info("Authentication service initialized")
	}

	if s.gormDB != nil && s.chatRepo != nil {
		s.profileEndpoints = NewProfileEndpoints(s.gormDB, s.chatRepo, s.agentClient, s.personas)

		gate := NewCalendarTokenGate(s.config.Google.ClientID, s.config.Google.ClientSecret)
		calendarService := NewCalendarService(s.gormDB, gate)
		s.proxyEndpoints = NewProxyEndpoints(weatherService, searchService, calendarService, geoService)

		streamDelay := time.Duration(s.config.WebSocket.StreamDelayMS) * time.Millisecond
		s.relay = NewChatRelay(s.chatRepo, s.agentClient, s.gormDB, s.personas, streamDelay)
		s.websocketHandler = NewWebSocketHandler(s.relay)
		slog.Info("Chat relay initialized", "stream_delay", streamDelay)
	}

	s.wsHub = ws.NewHub()
	go s.wsHub.Run()

	return nil
}

// Personas exposes the loaded persona catalog, available after
// InitializeServices.
func (s *Server) Personas() *PersonaStore {
	return s.personas
}

// SetupRoutes configures all HTTP routes
func (s *Server) SetupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health endpoint
	r.Get("/health", s.healthHandler)

	// API v1 route group
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.apiV1Handler)

		// WebSocket route (protected)
		if s.authService != nil {
			r.Group(func(r chi.Router) {
				r.Use(s.authService.Middleware)
				r.Get("/ws", s.websocketHandlerFunc)
			})
		}

		// Authentication routes
		if s.authEndpoints != nil {
			s.authEndpoints.RegisterRoutes(r)
		}

		// Profile, preference and chat routes (protected)
		if s.profileEndpoints != nil && s.authService != nil {
			r.Group(func(r chi.Router) {
				r.Use(s.authService.Middleware)
				s.profileEndpoints.RegisterRoutes(r)
			})
		}

		// External data proxies (protected)
		if s.proxyEndpoints != nil && s.authService != nil {
			r.Group(func(r chi.Router) {
				r.Use(s.authService.Middleware)
				s.proxyEndpoints.RegisterRoutes(r)
			})
		}
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() {
	port := s.config.Server.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: s.SetupRoutes(),
	}

	// Graceful shutdown
	go func() {
		slog.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exited")
}

// CheckOrigin validates the origin of WebSocket connections to prevent CSRF attacks
func CheckOrigin(r *http.Request, allowedOriginsStr string) bool {
	origin := r.Header.Get("Origin")

	// If no allowed origins are configured, deny all requests for security
	if allowedOriginsStr == "" {
		slog.Warn("WebSocket connection rejected: no allowed origins configured", "origin", origin)
		return false
	}

	allowedOrigins := strings.Split(allowedOriginsStr, ",")
	for i := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
	}

	for _, allowed := range allowedOrigins {
		if allowed == origin {
			return true
		}
	}

	slog.Warn("WebSocket connection rejected: origin not allowed", "origin", origin, "allowed_origins", allowedOriginsStr)
	return false
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "not configured"

	if s.rawDB != nil {
		if sqlDB, err := s.rawDB.DB(); err == nil {
			if err := sqlDB.Ping(); err != nil {
				dbStatus = "down"
				status = "degraded"
			} else {
				dbStatus = "up"
			}
		} else {
			dbStatus = "down"
			status = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"` + status + `","database":"` + dbStatus + `"}`))
}

func (s *Server) apiV1Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message":"API v1","version":"1.0.0"}`))
}

func (s *Server) websocketHandlerFunc(w http.ResponseWriter, r *http.Request) {
	user := contextUser(r)
	if user == nil {
		slog.Error("WebSocket connection failed - user not found in context")
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	slog.Info("WebSocket connection established", "user_id", user.ID, "username", user.Username)

	client := s.wsHub.RegisterClient(conn, user.ID, user.DisplayName())

	if s.websocketHandler != nil {
		client.MessageHandler = s.websocketHandler.HandleEvent
		client.CloseHandler = s.websocketHandler.HandleClose
	}

	go client.ReadPump()
	go client.WritePump()
}
