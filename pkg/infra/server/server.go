// Package server runs the gin HTTP server with a graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	apierrors "github.com/kart-io/docqa/pkg/errors"
	"github.com/kart-io/docqa/pkg/infra/middleware"
	options "github.com/kart-io/docqa/pkg/options/server"
	"github.com/kart-io/docqa/pkg/utils/response"
)

// Option setters re-exported so callers only import this package.
var (
	WithHTTPOptions     = options.WithHTTPOptions
	WithMiddleware      = options.WithMiddleware
	WithShutdownTimeout = options.WithShutdownTimeout
)

// Manager owns the gin engine and the HTTP server serving it.
type Manager struct {
	opts   *options.Options
	engine *gin.Engine
	http   *http.Server

	mu       sync.Mutex
	started  bool
	listener net.Listener
	serveErr chan error
}

// NewManager creates a new server manager with the given options.
func NewManager(opts ...options.Option) *Manager {
	serverOpts := options.NewOptions()
	for _, opt := range opts {
		opt(serverOpts)
	}
	_ = serverOpts.Complete()

	engine := gin.New()
	engine.Use(middleware.Chain(serverOpts.Middleware)...)
	engine.NoRoute(func(c *gin.Context) {
		response.Fail(c, apierrors.ErrRouteNotFound)
	})
	engine.NoMethod(func(c *gin.Context) {
		response.Fail(c, apierrors.ErrRouteNotFound)
	})

	return &Manager{
		opts:   serverOpts,
		engine: engine,
		http: &http.Server{
			Addr:              serverOpts.HTTP.Addr,
			Handler:           engine,
			ReadHeaderTimeout: serverOpts.HTTP.ReadHeaderTimeout,
			ReadTimeout:       serverOpts.HTTP.ReadTimeout,
			WriteTimeout:      serverOpts.HTTP.WriteTimeout,
			IdleTimeout:       serverOpts.HTTP.IdleTimeout,
			MaxHeaderBytes:    serverOpts.HTTP.MaxHeaderBytes,
		},
		serveErr: make(chan error, 1),
	}
}

// Engine returns the gin engine routes are registered on.
func (m *Manager) Engine() *gin.Engine {
	return m.engine
}

// Addr returns the bound listen address once started, otherwise the configured one.
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.opts.HTTP.Addr
}

// Start binds the listener and serves in the background.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("server manager already started")
	}
	m.started = true
	m.mu.Unlock()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", m.opts.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	m.mu.Lock()
	m.listener = ln
	m.mu.Unlock()

	go func() {
		if err := m.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.serveErr <- err
		}
	}()
	logger.Infow("HTTP server started", "addr", ln.Addr().String())
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return nil
	}

	if err := m.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}

// Run serves until ctx is cancelled or serving fails,
// then shuts down within ShutdownTimeout.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Server shutting down...")
	case runErr = <-m.serveErr:
		logger.Errorw("HTTP server failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.ShutdownTimeout)
	defer cancel()

	return errors.Join(runErr, m.Stop(shutdownCtx))
}
