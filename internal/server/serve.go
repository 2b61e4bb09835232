package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Serve runs srv on listener until ctx is cancelled, then shuts the server
// down gracefully within shutdownTimeout and runs the hooks. Shutdown does not
// interrupt active handlers: long-lived streams (server-sent events) must
// watch their request context, and srv.BaseContext should return ctx so those
// contexts are cancelled as soon as shutdown is requested. Handlers still
// running when the timeout elapses have their connections closed.
func Serve(ctx context.Context, srv *http.Server, listener net.Listener, shutdownTimeout time.Duration, hooks *ShutdownHooks) error {
	serverErr := make(chan error, 1)

	go func() {
		log.Info().Str("addr", listener.Addr().String()).Msg("channel: listening")
		serverErr <- srv.Serve(listener)
	}()

	var err error
	select {
	case err = <-serverErr:
		// failed before shutdown was requested
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		log.Info().Msg("channel: shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warn().Err(shutdownErr).Msg("channel: graceful shutdown incomplete, closing")
		err = errors.Join(err, srv.Close())
	}

	if hooks != nil {
		if hookErr := hooks.Execute(shutdownCtx); hookErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown hooks: %w", hookErr))
		}
	}

	log.Info().Msg("channel: stopped")
	return err
}
