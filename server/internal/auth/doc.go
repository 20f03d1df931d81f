// Package auth provides authentication middleware for the kalfix server.
//
// APIKeyMiddleware(mode, header, key) returns HTTP middleware that validates
// the API key carried in the named request header. The server wraps the
// administrative write routes (goals, losses, sync, device commands) with it;
// the device endpoint and read-only views stay open.
//
// When mode != "apikey" or key == "", all requests pass through (useful for
// local development with auth disabled). When the key is incorrect or
// absent, the middleware answers 401 immediately.
package auth
