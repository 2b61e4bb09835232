package session

import (
	"context"

	"github.com/plandesk/plandesk/internal/apiclient"
	"github.com/plandesk/plandesk/internal/cache/merge"
	"github.com/rs/zerolog/log"
)

// LoginEndpoint is the API path accepting credentials.
const LoginEndpoint = "/auth/login"

// Credentials are posted to LoginEndpoint.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Grant is the accepted login.
type Grant struct {
	AccessToken string
	UserID      string
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
	User        *struct {
		ID any `json:"id"`
	} `json:"user,omitempty"`
}

// Login exchanges credentials for an access token. The user id comes from the
// response when present, otherwise from the token's subject. Nothing is
// persisted.
func Login(ctx context.Context, client *apiclient.Client, creds Credentials) (Grant, *apiclient.Error) {
	result := apiclient.Post[loginResponse](ctx, client, LoginEndpoint, creds)
	if result.Error != nil {
		return Grant{}, result.Error
	}

	if result.Data == nil || result.Data.AccessToken == "" {
		return Grant{}, &apiclient.Error{
			Kind:    apiclient.KindServer,
			Message: "login response has no access token",
			Code:    "ERR_BAD_RESPONSE",
		}
	}

	grant := Grant{AccessToken: result.Data.AccessToken}

	if result.Data.User != nil {
		if id, ok := merge.IDString(result.Data.User.ID); ok && id != "" {
			grant.UserID = id
			return grant, nil
		}
	}

	subject, err := SubjectFromToken(grant.AccessToken)
	if err != nil {
		// opaque tokens are allowed; the user id stays unknown
		log.Ctx(ctx).Info().Err(err).Msg("session: user id not derivable from token")
		return grant, nil
	}
	grant.UserID = subject

	return grant, nil
}
