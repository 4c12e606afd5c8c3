// Copyright 2026 Blink Labs Software
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

// Package api serves the admin HTTP interface: community layout, the
// contract flow, ritual control, circle moderation and record export.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"connectrpc.com/grpcreflect"
	"github.com/blinklabs-io/wilhelmina/contract"
	"github.com/blinklabs-io/wilhelmina/database"
	"github.com/blinklabs-io/wilhelmina/eventlog"
	"github.com/blinklabs-io/wilhelmina/lang"
	"github.com/blinklabs-io/wilhelmina/ritual"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	DefaultPort = 8480
	// ServiceName is reported by the gRPC health and reflection handlers
	ServiceName = "wilhelmina.admin.v1.AdminService"

	maxBodyBytes = 1 << 20
)

type ServerConfig struct {
	Logger       *slog.Logger
	DB           *database.Database
	Log          *eventlog.Log
	Machine      *contract.Machine
	Engine       *ritual.Engine
	Lang         *lang.Store
	PromRegistry prometheus.Registerer
	// Location is the zone used for communities without their own
	Location  *time.Location
	Now       func() time.Time
	Host      string
	JwtSecret string
	Port      uint
}

type Server struct {
	config   ServerConfig
	logger   *slog.Logger
	metrics  *apiMetrics
	server   *http.Server
	listener net.Listener
	mu       sync.Mutex
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.DB == nil || cfg.Log == nil || cfg.Machine == nil || cfg.Engine == nil {
		return nil, errors.New("api: database, journal, contract machine and ritual engine are required")
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Lang == nil {
		cfg.Lang = lang.NewStore("", cfg.Logger)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	return &Server{
		config:  cfg,
		logger:  cfg.Logger.With("component", "api"),
		metrics: newApiMetrics(cfg.PromRegistry),
	}, nil
}

// Handler returns the full route table. The gRPC health and reflection
// endpoints skip authentication.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "PUT /v1/communities/{community}/config", s.handlePutConfig)
	s.handle(mux, "POST /v1/communities/{community}/members/{member}/join", s.handleMemberJoin)
	s.handle(mux, "GET /v1/communities/{community}/members/{member}", s.handleGetMember)
	s.handle(mux, "POST /v1/communities/{community}/members/{member}/contract/send", s.handleContractSend)
	s.handle(mux, "POST /v1/communities/{community}/members/{member}/contract/sign", s.handleContractSign)
	s.handle(mux, "POST /v1/communities/{community}/members/{member}/contract/decline", s.handleContractDecline)
	s.handle(mux, "POST /v1/communities/{community}/members/{member}/contract/revoke", s.handleContractRevoke)
	s.handle(mux, "POST /v1/communities/{community}/ritual", s.handleRitualStart)
	s.handle(mux, "DELETE /v1/communities/{community}/ritual", s.handleRitualAbort)
	s.handle(mux, "GET /v1/communities/{community}/ritual", s.handleRitualStatus)
	s.handle(mux, "POST /v1/communities/{community}/messages", s.handleCircleMessage)
	s.handle(mux, "GET /v1/communities/{community}/export", s.handleExport)
	compress1KB := connect.WithCompressMinBytes(1024)
	mux.Handle(
		grpchealth.NewHandler(
			newHealthChecker(s.config.DB),
			compress1KB,
		),
	)
	mux.Handle(
		grpcreflect.NewHandlerV1(
			grpcreflect.NewStaticReflector(ServiceName),
			compress1KB,
		),
	)
	mux.Handle(
		grpcreflect.NewHandlerV1Alpha(
			grpcreflect.NewStaticReflector(ServiceName),
			compress1KB,
		),
	)
	return mux
}

func (s *Server) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(pattern, s.authenticate(fn)))
}

// Start binds the listener and serves in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("api server already started")
	}
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.logger.Info("starting admin API listener on " + listener.Addr().String())
	if s.config.JwtSecret == "" {
		s.logger.Warn("admin API authentication is disabled")
	}
	server := &http.Server{
		// Use h2c so we can serve HTTP/2 without TLS
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.server = server
	s.listener = listener
	go func() {
		if err := server.Serve(listener); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin API listener failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
