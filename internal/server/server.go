package server

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/loykin/procstream/internal/config"
	ptls "github.com/loykin/procstream/internal/tls"
)

// NewServer builds an http.Server for cfg serving h. TLS is configured from
// cfg.TLS when enabled. There is no write timeout: /events responses are
// long-lived.
func NewServer(cfg config.ServerConfig, h http.Handler) (*http.Server, error) {
	tlsCfg, err := ptls.SetupTLS(cfg)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              cfg.Listen,
		Handler:           h,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}, nil
}

// Serve listens on srv.Addr (TLS when srv.TLSConfig is set) and blocks until
// the server is shut down. http.ErrServerClosed is reported as nil.
func Serve(srv *http.Server) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	return ServeListener(srv, ln)
}

// ServeListener is Serve on an existing listener.
func ServeListener(srv *http.Server, ln net.Listener) error {
	slog.Info("HTTP API listening", "addr", ln.Addr().String(), "tls", srv.TLSConfig != nil)
	var err error
	if srv.TLSConfig != nil {
		err = srv.ServeTLS(ln, "", "")
	} else {
		err = srv.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
