// Package server wires the HTTP surface: REST routes, the chat WebSocket,
// and the assistant pipeline behind them.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/staffsense/staffsense/internal/profile"
	"github.com/staffsense/staffsense/plugin/assist"
	"github.com/staffsense/staffsense/plugin/assist/llm"
	"github.com/staffsense/staffsense/plugin/forecastapi"
	"github.com/staffsense/staffsense/server/chatws"
	"github.com/staffsense/staffsense/server/router/apiv1"
	"github.com/staffsense/staffsense/store"
	"github.com/staffsense/staffsense/store/cache"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	assistant  *assist.Assistant
	cache      *cache.Service
}

// NewServer builds the full server: backend client, LLM provider (when
// configured), assistant pipeline, REST routes, and the chat WebSocket.
func NewServer(ctx context.Context, profile *profile.Profile, st *store.Store) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(requestLogger())

	backendTimeout := time.Duration(profile.BackendTimeout) * time.Second
	backend := forecastapi.NewClient(profile.BackendBaseURL, &http.Client{Timeout: backendTimeout})

	var llmService assist.LLMService
	if profile.IsLLMEnabled() {
		provider, err := llm.NewProvider(llm.ConfigFromProfile(profile))
		if err != nil {
			slog.Warn("llm provider unavailable, running rule-based only", slog.Any("error", err))
		} else if provider.Enabled() {
			llmService = provider
		}
	}

	cacheService := cache.NewService(cache.DefaultConfig())
	assistant := assist.New(st, backend, llmService, cacheService)

	s := &Server{
		Profile:    profile,
		Store:      st,
		echoServer: e,
		assistant:  assistant,
		cache:      cacheService,
	}

	apiv1.NewAPIV1Service(profile.JWTSecret, profile, st).RegisterRoutes(e)
	e.GET("/ws/chat", chatws.New(st, assistant, profile.JWTSecret).Handle)

	return s, nil
}

func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	slog.Info("server started",
		slog.String("address", address),
		slog.String("mode", s.Profile.Mode),
		slog.Bool("llm_enabled", s.Profile.IsLLMEnabled()))
	return s.echoServer.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shut down server", slog.Any("error", err))
	}
	s.cache.Close()
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", slog.Any("error", err))
	}
	slog.Info("server shut down")
}

// requestLogger logs one line per request through slog, skipping the
// websocket endpoint whose lifetime is connection-scoped.
func requestLogger() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/ws/chat"
		},
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			slog.Info("http request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status))
			return nil
		},
	})
}
