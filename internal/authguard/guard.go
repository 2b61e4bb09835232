// Package authguard keeps the local state consistent with the user's
// authentication: it resets every user-scoped store entry when credentials
// are rejected or the user signs out, and announces each transition to the
// presentation windows.
package authguard

import (
	"context"
	"errors"

	"github.com/plandesk/plandesk/internal/apiclient"
	"github.com/plandesk/plandesk/internal/broadcast"
	"github.com/plandesk/plandesk/internal/session"
	"github.com/rs/zerolog/log"
)

// Broadcaster delivers events to every open window.
type Broadcaster interface {
	Broadcast(ctx context.Context, ev broadcast.Event) int
}

// ResponseCache is the CacheStore, cleared as a unit on reset.
type ResponseCache interface {
	Clear(ctx context.Context) error
}

type Guard struct {
	session     *session.Session
	cache       ResponseCache
	broadcaster Broadcaster
}

func New(sess *session.Session, rc ResponseCache, b Broadcaster) *Guard {
	return &Guard{
		session:     sess,
		cache:       rc,
		broadcaster: b,
	}
}

// OnUnauthorized runs after the API answered 401. The token, the CacheStore
// and the user id are deleted and a single unauthenticated event is sent.
func (g *Guard) OnUnauthorized(ctx context.Context) {
	log.Ctx(ctx).Info().Msg("auth: credentials rejected, resetting session")

	if err := g.reset(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("auth: session reset incomplete")
	}
}

// Logout performs the same reset as a rejected credential. The event is sent
// even when a store delete fails, so windows never stay signed in.
func (g *Guard) Logout(ctx context.Context) error {
	log.Ctx(ctx).Info().Msg("auth: logout")
	return g.reset(ctx)
}

// Login authenticates against the API, persists the grant and announces the
// signed-in state.
func (g *Guard) Login(ctx context.Context, client *apiclient.Client, creds session.Credentials) *apiclient.Error {
	grant, apiErr := session.Login(ctx, client, creds)
	if apiErr != nil {
		log.Ctx(ctx).Info().Str("error", apiErr.Message).Msg("auth: login failed")
		return apiErr
	}

	if err := g.session.Establish(ctx, grant.AccessToken, grant.UserID); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("auth: persisting session failed")
		return &apiclient.Error{Kind: apiclient.KindSetup, Message: err.Error()}
	}

	log.Ctx(ctx).Info().Str("user_id", grant.UserID).Msg("auth: login")
	g.broadcaster.Broadcast(ctx, broadcast.AuthEvent(true))

	return nil
}

// Authenticated reports whether a token is present.
func (g *Guard) Authenticated(ctx context.Context) bool {
	return g.session.Authenticated(ctx)
}

func (g *Guard) reset(ctx context.Context) error {
	err := errors.Join(
		g.session.ClearToken(ctx),
		g.cache.Clear(ctx),
		g.session.ClearUserID(ctx),
	)

	g.broadcaster.Broadcast(ctx, broadcast.AuthEvent(false))

	return err
}
