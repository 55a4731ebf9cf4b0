// Package web is the HTTP surface of callroom: a chi server that the
// signaling provider's webhooks land on.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leaseline/callroom/core/calls"
	"github.com/leaseline/callroom/runtime"
)

// MaxRequestBytes is the max body size our web server will accept
const MaxRequestBytes int64 = 1048576

// SignatureValidator checks the provider's signature on incoming webhooks
type SignatureValidator interface {
	ValidateRequestSignature(r *http.Request) error
}

// Handler is a webhook handler with the server's collaborators in scope
type Handler func(ctx context.Context, s *Server, r *http.Request, w http.ResponseWriter) error

type route struct {
	method  string
	pattern string
	handler Handler
}

var routes = make([]*route, 0)

// RegisterRoute adds a handler for the passed in method and pattern
func RegisterRoute(method string, pattern string, handler Handler) {
	routes = append(routes, &route{method, pattern, handler})
}

// Server is our HTTP server and the collaborators handlers reach through it
type Server struct {
	rt        *runtime.Runtime
	engine    *calls.Engine
	validator SignatureValidator

	wg         *sync.WaitGroup
	httpServer *http.Server
}

// NewServer creates a new web server, it will need to be started after being created
func NewServer(rt *runtime.Runtime, engine *calls.Engine, validator SignatureValidator, wg *sync.WaitGroup) *Server {
	s := &Server{rt: rt, engine: engine, validator: validator, wg: wg}

	router := chi.NewRouter()
	router.Use(middleware.Compress(5))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(panicRecovery)
	router.Use(middleware.Timeout(60 * time.Second))

	router.NotFound(s.wrapHandler(handle404))
	router.MethodNotAllowed(s.wrapHandler(handle405))
	router.Get("/", s.wrapHandler(handleIndex))

	for _, route := range routes {
		router.Method(route.method, route.pattern, s.wrapHandler(route.handler))
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", rt.Config.Address, rt.Config.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// Runtime returns the server's runtime services
func (s *Server) Runtime() *runtime.Runtime { return s.rt }

// Engine returns the call engine handlers dispatch into
func (s *Server) Engine() *calls.Engine { return s.engine }

// ValidateSignature checks the provider signature on the passed in request
func (s *Server) ValidateSignature(r *http.Request) error {
	if s.validator == nil {
		return nil
	}
	return s.validator.ValidateRequestSignature(r)
}

// wrapHandler wraps a Handler, taking care of error logging and responses
func (s *Server) wrapHandler(handler Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)

		start := time.Now()
		err := handler(r.Context(), s, r, w)
		elapsed := time.Since(start)

		log := slog.With("comp", "server", "method", r.Method, "url", r.URL.String(), "elapsed", elapsed)
		if err != nil {
			log.Error("error handling request", "error", err)
			WriteError(w, http.StatusInternalServerError, err)
			return
		}
		log.Debug("request handled")
	}
}

// Start starts our web server, listening for new requests
func (s *Server) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			slog.Error("error listening", "comp", "server", "error", err)
		}
	}()

	slog.Info("server started", "comp", "server", "address", s.rt.Config.Address, "port", s.rt.Config.Port)
}

// Stop stops our web server
func (s *Server) Stop() {
	if err := s.httpServer.Shutdown(context.Background()); err != nil {
		slog.Error("error shutting down server", "comp", "server", "error", err)
	}
}

func panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("recovered from panic in request handling", "comp", "server", "url", r.URL.String(), "panic", rec)
				WriteError(w, http.StatusInternalServerError, fmt.Errorf("panic handling request"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func handleIndex(ctx context.Context, s *Server, r *http.Request, w http.ResponseWriter) error {
	response := map[string]string{
		"url":       r.URL.String(),
		"component": "callroom",
		"version":   s.rt.Config.Version,
	}
	return WriteJSON(w, http.StatusOK, response)
}

func handle404(ctx context.Context, s *Server, r *http.Request, w http.ResponseWriter) error {
	return WriteError(w, http.StatusNotFound, fmt.Errorf("not found: %s", r.URL.String()))
}

func handle405(ctx context.Context, s *Server, r *http.Request, w http.ResponseWriter) error {
	return WriteError(w, http.StatusMethodNotAllowed, fmt.Errorf("illegal method: %s", r.Method))
}

// WriteJSON serializes the passed in value as the response body
func WriteJSON(w http.ResponseWriter, status int, value any) error {
	serialized, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(serialized)
	return err
}
