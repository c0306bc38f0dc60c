// serve.go - Server-Start und Lifecycle-Management
// Enthaelt: Serve() - Hauptfunktion zum Starten des HTTP-Servers

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/7blacky7/tensorbatch/envconfig"
	"github.com/7blacky7/tensorbatch/logutil"
	"github.com/7blacky7/tensorbatch/version"
)

// Serve startet den HTTP-Server auf ln und blockiert bis zum Shutdown
func Serve(ln net.Listener) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	s := NewServer()
	defer s.Close()

	srvr := &http.Server{
		Handler: s.GenerateRoutes(),
	}

	ctx, done := context.WithCancel(context.Background())
	defer done()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			slog.Info("shutting down")
			srvr.Shutdown(ctx) //nolint:errcheck
			done()
		case <-ctx.Done():
		}
	}()

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	if err := srvr.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-ctx.Done()
	return nil
}
