// Package main runs the development authority over HTTP. It registers one
// application from the authmsg config, approves verification requests
// according to the dev settings, and redeems key tokens once.
//
// HTTP API
//
//	POST /v1/bind
//	    Exchange client id, secret and scopes for an access credential.
//
//	POST /v1/rebind
//	    Replace the bearer credential while inside the rebind window.
//
//	POST /v1/verify
//	    Block until the user approves or denies; on approval the result
//	    carries a single-use key token.
//
//	POST /v1/identity
//	    Redeem a key token and register the caller's X25519 public key.
//
//	GET /healthz
//	GET /metrics
//
// Behaviour
//
//   - Credentials are HS256 JWTs signed with a key generated at start-up, so
//     a restart invalidates every credential.
//   - With --ledger the redeemed-token set survives restarts.
//   - The default listen address is :8080.
package main
