// Package auth provides JWT authentication for the chat API.
//
// Tokens are signed with HS256 using the configured jwt_secret. The
// HTTP middleware extracts a bearer token from the Authorization
// header, verifies it, and attaches the principal to the request
// context:
//
//	verifier := auth.NewJWTVerifier(secret)
//	mux.Handle("/bots", auth.HTTPAuthMiddleware(verifier)(botHandler))
//
// Handlers retrieve the identity with FromContext:
//
//	authCtx := auth.FromContext(r.Context())
//
// Token generation (for CLI login and tests) uses the same verifier:
//
//	token, err := verifier.Generate("user-42", 24*time.Hour)
//
// Authentication is optional: when no secret is configured the server
// skips the middleware entirely.
package auth
