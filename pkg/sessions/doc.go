// Package sessions issues access and refresh credentials and tracks refresh
// credentials server side so they can be revoked.
//
// Refresh tokens are JWTs, but a structurally valid token is only honoured while its
// row exists, is not revoked and has not passed its stored expiry. Revocation is
// therefore effective immediately for already issued tokens.
//
//	issuer := sessions.NewIssuer(sessions.NewPostgresRepository(pool), tokens,
//		sessions.WithAccessTokenExpiry(15*time.Minute),
//		sessions.WithRefreshTokenExpiry(7*24*time.Hour),
//	)
//	pair, err := issuer.Issue(ctx, accountID, account.RoleStudent, fingerprint)
//	access, err := issuer.Renew(ctx, pair.RefreshToken)
package sessions
