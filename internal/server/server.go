package server

import (
	"context"
	"net/http"
	"time"
)

type Server struct {
	http *http.Server
}

func New(addr string, h http.Handler) *Server {
	return &Server{http: &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

// Stop shuts the listener down gracefully. Hijacked websocket connections
// are not waited on; the hub closes those when its context is cancelled.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
