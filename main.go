package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/justinas/alice"
	"github.com/plandesk/plandesk/internal/apiclient"
	"github.com/plandesk/plandesk/internal/authguard"
	"github.com/plandesk/plandesk/internal/broadcast"
	"github.com/plandesk/plandesk/internal/cache"
	"github.com/plandesk/plandesk/internal/config"
	"github.com/plandesk/plandesk/internal/folders"
	"github.com/plandesk/plandesk/internal/observe"
	"github.com/plandesk/plandesk/internal/server"
	"github.com/plandesk/plandesk/internal/session"
	"github.com/plandesk/plandesk/internal/store"
	"github.com/plandesk/plandesk/internal/swr"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

// eventBuffer is the number of broadcasts a slow window may fall behind by
// before it starts missing events.
const eventBuffer = 16

// services are the long-lived collaborators behind the channel routes.
type services struct {
	client  *apiclient.Client
	guard   *authguard.Guard
	hub     *broadcast.Hub
	channel *swr.Handler
}

func newServices(cfg config.Config, s store.Store, httpClient *http.Client, index *folders.Index) services {
	responses := cache.New(s)
	sess := session.New(s)
	hub := broadcast.NewHub(eventBuffer)
	guard := authguard.New(sess, responses, hub)

	client := apiclient.New(
		cache.NewKeys(cfg.API.BaseURL, cfg.API.Prefix),
		sess,
		apiclient.WithHTTPClient(httpClient),
		apiclient.WithResponseCache(responses),
		apiclient.WithUnauthorizedHandler(guard),
	)

	return services{
		client:  client,
		guard:   guard,
		hub:     hub,
		channel: swr.NewHandler(client, responses, hub, swr.DefaultResources(index)...),
	}
}

func configureServerRoutes(svc services) http.Handler {
	// wrap a mux such that HTTP telemetry is configured by default
	muxWithoutTelemetry := http.NewServeMux()
	mux := observe.NewMux(muxWithoutTelemetry)

	// Requests from windows are small: resource names, filters and
	// credentials. This is not configurable.
	requestLimitBytes := int64(20 << 10) // 20 KB
	requestLimiter := maxRequestSize(requestLimitBytes)

	routeMiddleware := alice.New(
		requestLimiter,
		hlog.NewHandler(log.Logger),
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Debug().
				Str("method", r.Method).
				Stringer("url", r.URL).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("channel request")
		}),
	)

	mux.Handle("GET /channel/{resource}", routeMiddleware.Then(handleChannelGet(svc.channel)))
	mux.Handle("DELETE /channel/{resource}/{id}", routeMiddleware.Then(handleChannelDelete(svc.channel)))
	mux.Handle("GET /events", routeMiddleware.Then(handleEvents(svc.hub)))
	mux.Handle("POST /session", routeMiddleware.Then(handleLogin(svc.guard, svc.client)))
	mux.Handle("DELETE /session", routeMiddleware.Then(handleLogout(svc.guard)))
	mux.Handle("GET /session", routeMiddleware.Then(handleSessionStatus(svc.guard)))

	// healthchecks are not included in telemetry
	muxWithoutTelemetry.Handle("GET /healthcheck", alice.New(requestLimiter).Then(handleHealthCheck()))

	return mux
}

func main() {
	configureLogging()

	logBuildInfo()

	err := launchServer()
	if err != nil {
		log.Fatal().Err(err).Msg("control process failed")
	}
}

func launchServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	hooks := &server.ShutdownHooks{}

	// configure telemetry, including wrapping the outgoing HTTP transport
	shutdownTelemetry, err := observe.Configure(ctx, cfg.Observe)
	if err != nil {
		return fmt.Errorf("telemetry bootstrap failed: %w", err)
	}
	hooks.AddContext("telemetry", shutdownTelemetry)

	httpClient := &http.Client{
		Transport: observe.HTTPTransport(configureHTTPTransport(cfg.API), cfg.Observe),
		Timeout:   time.Duration(cfg.API.TimeoutSeconds) * time.Second,
	}

	s, err := store.NewFromConfig(cfg.Store)
	if err != nil {
		return fmt.Errorf("store configuration failed: %w", err)
	}
	hooks.AddCloser("store", s)

	index, err := folders.Load(cfg.Folders.IndexPath)
	if err != nil {
		return fmt.Errorf("folder index load failed: %w", err)
	}

	handler := configureServerRoutes(newServices(cfg, s, httpClient, index))

	// the channel is for local windows only
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Channel.Port))
	if err != nil {
		return fmt.Errorf("channel listen failed: %w", err)
	}

	srv := &http.Server{
		Handler:           handler,
		MaxHeaderBytes:    20 << 10,         // 20 KB
		ReadHeaderTimeout: 20 * time.Second, // Prevent Slowloris attacks
		// event streams end as soon as shutdown is requested
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	err = server.Serve(ctx, srv, listener, time.Duration(cfg.Channel.ShutdownTimeoutSeconds)*time.Second, hooks)
	if err != nil {
		return fmt.Errorf("channel server failed: %w", err)
	}

	return nil
}

func configureLogging() {
	// Set global level to the minimum: allows the Open Telemetry logging to be
	// configured separately. However, it means that any logger that sets its
	// level will log as this effectively disables the global level.
	zerolog.SetGlobalLevel(zerolog.Level(-128))

	// default level is Info
	log.Logger = log.Level(zerolog.InfoLevel)

	if os.Getenv("ENV") == "development" {
		log.Logger = log.
			Output(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(zerolog.DebugLevel)
	}

	zerolog.DefaultContextLogger = &log.Logger
}

func logBuildInfo() {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	ev := log.Info()
	for _, v := range buildInfo.Settings {
		if strings.HasPrefix(v.Key, "vcs.") ||
			strings.HasPrefix(v.Key, "GO") ||
			v.Key == "CGO_ENABLED" {
			ev = ev.Str(v.Key, v.Value)
		}
	}

	ev.Msg("build information")
}

func configureHTTPTransport(cfg config.APIConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = cfg.OutgoingHTTPMaxIdleConns
	transport.MaxConnsPerHost = cfg.OutgoingHTTPMaxConnsPerHost

	return transport
}
