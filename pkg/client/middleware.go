package client

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/tendant/simple-lms/pkg/account"
	lmserrors "github.com/tendant/simple-lms/pkg/errors"
	"github.com/tendant/simple-lms/pkg/tokengenerator"
)

// NewJWTAuth returns the HS256 verifier matching tokengenerator.JwtTokenGenerator.
// Non-empty issuer and audience are required on every token, as ParseToken does.
func NewJWTAuth(secret, issuer, audience string) *jwtauth.JWTAuth {
	var opts []jwt.ValidateOption
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return jwtauth.New("HS256", []byte(secret), nil, opts...)
}

// Verifier verifies the bearer token (header first, then cookie) and stores the result in the context
func Verifier(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return jwtauth.Verify(ja, jwtauth.TokenFromHeader, TokenFromCookie)
}

func TokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(ACCESS_TOKEN_NAME)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// AuthUserMiddleware turns verified access token claims into an AuthUser.
// Refresh tokens and tokens without a usable subject are rejected.
func AuthUserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil {
			slog.Debug("Missing or invalid bearer token", "error", err)
			lmserrors.RenderError(w, r, lmserrors.ErrUnauthorized)
			return
		}

		user, err := authUserFromClaims(claims)
		if err != nil {
			slog.Warn("Rejected access token claims", "error", err)
			lmserrors.RenderError(w, r, lmserrors.ErrTokenInvalid)
			return
		}

		slog.Debug("authenticated user", "user", user)
		next.ServeHTTP(w, r.WithContext(WithAuthUser(r.Context(), user)))
	})
}

func authUserFromClaims(claims map[string]interface{}) (*AuthUser, error) {
	if typ, _ := claims["typ"].(string); typ != tokengenerator.TokenTypeAccess {
		return nil, tokengenerator.ErrWrongTokenType
	}

	sub, _ := claims["sub"].(string)
	accountID, err := uuid.Parse(sub)
	if err != nil {
		return nil, err
	}

	roleClaim, _ := claims["role"].(string)
	role, err := account.ParseRole(roleClaim)
	if err != nil {
		return nil, err
	}

	fp, _ := claims["fp"].(string)
	jti, _ := claims["jti"].(string)
	return &AuthUser{
		AccountID:   accountID,
		Role:        role,
		Fingerprint: fp,
		TokenID:     jti,
	}, nil
}

// Authenticator chains Verifier and AuthUserMiddleware
func Authenticator(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	verify := Verifier(ja)
	return func(next http.Handler) http.Handler {
		return verify(AuthUserMiddleware(next))
	}
}

// RequireRole rejects requests whose subject holds none of roles
func RequireRole(roles ...account.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := AuthUserFromContext(r.Context())
			if !ok {
				lmserrors.RenderError(w, r, lmserrors.ErrUnauthorized)
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			slog.Warn("Role not permitted", "user", user, "path", r.URL.Path)
			lmserrors.RenderError(w, r, lmserrors.ErrForbidden)
		})
	}
}

// MustAuthUser returns the subject stored by AuthUserMiddleware. It panics when
// called outside the authenticated route group.
func MustAuthUser(ctx context.Context) *AuthUser {
	u, ok := AuthUserFromContext(ctx)
	if !ok {
		panic("client: no authenticated user in context")
	}
	return u
}
