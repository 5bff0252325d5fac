// Package auth validates client credentials at connection handshake.
//
// The SessionAuthenticator boundary is consulted exactly once per connection,
// before registration; a failure closes the connection with an HTTP 401.
//
// Two implementations exist:
//
//   - JWTVerifier: HS256 signed JWTs carrying the user id in the "sub" claim.
//     The same verifier mints tokens for the token subcommand.
//
//   - Anonymous: credential pass-through for development deployments without
//     a configured jwt_secret.
package auth
