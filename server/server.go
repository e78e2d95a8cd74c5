// Package server implements the remcp-serv transfer endpoint.
//
// The server accepts one TCP connection per transfer, reads a single
// GET or PUT command line, and drives the chunked payload exchange under
// the shared rate controller. Admission is a soft cap: connections beyond
// the configured maximum are answered with "ERR Server is busy" and
// closed without spawning a handler.
package server

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/remcp/protocol"
	"github.com/opd-ai/remcp/rate"
)

// ErrServerClosed is returned by Serve after Close has been called.
var ErrServerClosed = errors.New("server closed")

// Config carries the startup parameters of a Server. Zero values select
// the protocol defaults.
type Config struct {
	// Addr is the listen address, defaulting to ":7878".
	Addr string
	// MaxClients caps concurrently served connections.
	MaxClients int64
	// RateBudget is the nominal total transfer rate in bytes per second.
	RateBudget uint64
}

// Server owns the listener, the active-client registry, and the rate
// controller shared by all connection handlers.
type Server struct {
	addr       string
	maxClients int64
	registry   *rate.Registry
	controller *rate.Controller

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	handlers sync.WaitGroup
}

// New creates a server from cfg, applying protocol defaults for zero
// fields.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = fmt.Sprintf(":%d", protocol.DefaultPort)
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = protocol.DefaultMaxClients
	}
	if cfg.RateBudget == 0 {
		cfg.RateBudget = protocol.DefaultTransferRate
	}

	registry := rate.NewRegistry()
	return &Server{
		addr:       cfg.Addr,
		maxClients: cfg.MaxClients,
		registry:   registry,
		controller: rate.NewController(cfg.RateBudget, registry),
	}
}

// Controller returns the shared rate controller, exposed so callers can
// inject a test sleeper or adjust the budget at runtime.
func (s *Server) Controller() *rate.Controller {
	return s.controller
}

// Registry returns the shared active-client registry.
func (s *Server) Registry() *rate.Registry {
	return s.registry
}

// Addr returns the bound listen address, or the configured address before
// ListenAndServe has bound it. Useful with ":0" listeners in tests.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ListenAndServe binds the configured address and serves until Close.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections from ln until the listener fails or the
// server is closed. Per-connection failures never reach the accept loop.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":    "Serve",
		"addr":        ln.Addr().String(),
		"max_clients": s.maxClients,
		"rate_budget": s.controller.Budget(),
	}).Info("Server listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		// Soft admission gate: the count is checked before Add without
		// a lock, so a concurrent burst can transiently admit one extra
		// connection.
		if s.registry.Count() >= s.maxClients {
			logrus.WithFields(logrus.Fields{
				"function":    "Serve",
				"remote_addr": conn.RemoteAddr().String(),
				"max_clients": s.maxClients,
			}).Warn("Maximum clients reached, rejecting connection")
			conn.Write([]byte(protocol.EncodeError(&protocol.WireError{Kind: protocol.ErrorKindBusy})))
			conn.Close()
			continue
		}

		s.registry.Add()
		s.handlers.Add(1)
		go func(c net.Conn) {
			defer s.handlers.Done()
			defer s.registry.Done()
			defer c.Close()
			s.handleConn(c)
		}(conn)
	}
}

// Close stops accepting connections and waits for in-flight handlers.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.handlers.Wait()
	return err
}
