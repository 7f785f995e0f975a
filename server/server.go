// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package server exposes question answering over HTTP.
//
// Routes:
//
//	GET  /health           liveness
//	GET  /ready            index reachable, with entry count
//	POST /v1/ask           {"question": "...", "k": 5} -> answer, citations, images
//	POST /v1/retrieve      same request, ranked chunks and images without synthesis
//	GET  /v1/images/*path  stored image bytes
//	GET  /v1/stats         index statistics
//
// Invalid questions map to 400, asking before anything was ingested to 409,
// and upstream model failures to 503.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/imagestore"
	"github.com/poiesic/docqa/storage"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":7860"

	shutdownTimeout = 10 * time.Second
)

// ErrBackendRequired is returned when New is called without a backend.
var ErrBackendRequired = errors.New("backend required")

// Backend answers the queries served over HTTP. A k of zero selects the
// backend's default.
type Backend interface {
	Retrieve(ctx context.Context, question string, k int) (*core.RetrievalResult, error)
	Ask(ctx context.Context, question string, k int) (*core.Answer, error)
	Stats(ctx context.Context) (storage.Stats, error)
}

// Server is the HTTP front end of a Backend.
type Server struct {
	backend Backend
	images  *imagestore.Store
	addr    string
	router  *gin.Engine
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) error {
		if addr == "" {
			addr = DefaultAddr
		}
		s.addr = addr
		return nil
	}
}

// WithImageStore serves stored images from store. Without it the image route
// answers 404.
func WithImageStore(store *imagestore.Store) Option {
	return func(s *Server) error {
		s.images = store
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New creates a server for backend.
func New(backend Backend, opts ...Option) (*Server, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}

	s := &Server{
		backend: backend,
		addr:    DefaultAddr,
		logger:  slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	s.router = s.setupRouter()
	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(Logger(s.logger))

	r.GET("/health", s.health)
	r.GET("/ready", s.ready)

	v1 := r.Group("/v1")
	{
		v1.POST("/ask", s.ask)
		v1.POST("/retrieve", s.retrieve)
		v1.GET("/images/*path", s.image)
		v1.GET("/stats", s.stats)
	}
	return r
}
