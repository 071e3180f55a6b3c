// Package auth0 verifies passwords with the Auth0 password-realm grant.
//
// The verifier maps Auth0 authentication API errors into the closed set of
// auth.VerifierErrorKind values consumed by the lockout guard.
package auth0
