package runtime

import (
	"context"
	"errors"
	"net/http"
	"time"

	loggingpkg "github.com/drblury/railflow/internal/runtime/logging"
)

// ShutdownTimeout bounds how long ServeHTTP waits for in-flight requests.
const ShutdownTimeout = 10 * time.Second

// ServeHTTP serves handler on addr until ctx is cancelled, then shuts the
// server down gracefully.
func ServeHTTP(ctx context.Context, addr string, handler http.Handler, logger loggingpkg.ServiceLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Error("HTTP server failed", err, loggingpkg.LogFields{"address": addr})
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("HTTP server stopped", loggingpkg.LogFields{"address": addr})
	return nil
}
