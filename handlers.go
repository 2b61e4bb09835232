package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"

	"github.com/plandesk/plandesk/internal/apiclient"
	"github.com/plandesk/plandesk/internal/broadcast"
	"github.com/plandesk/plandesk/internal/session"
	"github.com/plandesk/plandesk/internal/swr"
	"github.com/rs/zerolog/log"
)

// ChannelServer answers resource requests from presentation windows.
type ChannelServer interface {
	Serve(ctx context.Context, name string, filter swr.Filter) (iter.Seq[swr.Reply], error)
	Delete(ctx context.Context, name, id string) (bool, error)
}

// Authenticator drives the session lifecycle.
type Authenticator interface {
	Login(ctx context.Context, client *apiclient.Client, creds session.Credentials) *apiclient.Error
	Logout(ctx context.Context) error
	Authenticated(ctx context.Context) bool
}

// Subscriber hands out broadcast subscriptions.
type Subscriber interface {
	Subscribe() (<-chan broadcast.Event, func())
}

// SessionResponse is the body of every /session reply.
type SessionResponse struct {
	IsAuthenticated bool `json:"isAuthenticated"`
}

// DeleteResponse is the body of a channel delete reply.
type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// handleChannelGet streams the replies for a resource as NDJSON, one line per
// reply, flushed as soon as it is produced. Zero lines means neither the cache
// nor the API had a value.
func handleChannelGet(channel ChannelServer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		name := r.PathValue("resource")
		filter := swr.FilterFromQuery(r.URL.Query())

		replies, err := channel.Serve(r.Context(), name, filter)
		if err != nil {
			log.Ctx(r.Context()).Info().Err(err).Str("resource", name).Msg("channel request rejected")
			status := http.StatusBadRequest
			if errors.Is(err, swr.ErrUnknownResource) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)

		flusher, _ := w.(http.Flusher)
		enc := json.NewEncoder(w)

		for reply := range replies {
			if err := enc.Encode(reply); err != nil {
				// the window went away; the sequence still revalidates the cache
				log.Ctx(r.Context()).Info().Err(err).Str("resource", name).Msg("failed to write reply")
				continue
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	})
}

func handleChannelDelete(channel ChannelServer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		name := r.PathValue("resource")
		id := r.PathValue("id")

		deleted, err := channel.Delete(r.Context(), name, id)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, DeleteResponse{Deleted: deleted})
	})
}

// handleEvents streams broadcasts as server-sent events until the window
// disconnects.
func handleEvents(hub Subscriber) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			requestError(w, http.StatusInternalServerError)
			return
		}

		events, unsubscribe := hub.Subscribe()
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, ": connected\n\n")
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case ev, open := <-events:
				if !open {
					return
				}
				if err := writeEvent(w, ev); err != nil {
					log.Ctx(r.Context()).Info().Err(err).Msg("failed to write event")
					return
				}
				flusher.Flush()
			}
		}
	})
}

func writeEvent(w io.Writer, ev broadcast.Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
	return err
}

func handleLogin(auth Authenticator, client *apiclient.Client) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		var creds session.Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			log.Ctx(r.Context()).Info().Err(err).Msg("invalid login request")
			writeJSONError(w, http.StatusBadRequest, "invalid login request")
			return
		}

		if apiErr := auth.Login(r.Context(), client, creds); apiErr != nil {
			writeJSONError(w, loginStatus(apiErr), apiErr.Message)
			return
		}

		writeJSON(w, http.StatusOK, SessionResponse{IsAuthenticated: true})
	})
}

// loginStatus maps a failed login onto the channel reply status.
func loginStatus(err *apiclient.Error) int {
	switch err.Kind {
	case apiclient.KindNetwork:
		return http.StatusBadGateway
	case apiclient.KindSetup:
		return http.StatusInternalServerError
	default:
		return http.StatusUnauthorized
	}
}

func handleLogout(auth Authenticator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		if err := auth.Logout(r.Context()); err != nil {
			log.Ctx(r.Context()).Error().Err(err).Msg("logout incomplete")
			writeJSONError(w, http.StatusInternalServerError, "logout incomplete")
			return
		}

		writeJSON(w, http.StatusOK, SessionResponse{IsAuthenticated: false})
	})
}

func handleSessionStatus(auth Authenticator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		writeJSON(w, http.StatusOK, SessionResponse{IsAuthenticated: auth.Authenticated(r.Context())})
	})
}

func handleHealthCheck() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

func maxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, limit)
	}
}

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// At this point the status code has been written, so we can only log
		log.Info().Msgf("failed to write JSON response: %v", err)
	}
}

// writeJSONError writes a JSON error response with the given status code and message.
func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}

func requestError(w http.ResponseWriter, statusCode int) {
	http.Error(w, http.StatusText(statusCode), statusCode)
}

// drainRequestBody drains the request body by reading and discarding the contents.
// This is useful to ensure the request body is fully consumed, which is important
// for connection reuse in HTTP/1 clients.
func drainRequestBody(r *http.Request) {
	if r.Body != nil {
		// 5kb max: after this we'll assume the client is broken or malicious
		// and close the connection
		_, _ = io.CopyN(io.Discard, r.Body, 5*1024)
	}
}
