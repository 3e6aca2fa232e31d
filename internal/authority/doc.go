// Package authority provides the collaborators that stand in for the central
// authentication service.
//
// Three pieces live here:
//   - Memory: an in-process development authority. It registers
//     applications, issues HS256 access credentials, resolves verification
//     requests through a pluggable Approver, mints single-use key tokens and
//     binds public keys to them.
//   - Server: an http.Handler exposing any Backend (Memory in practice) as a
//     small JSON API with Prometheus request metrics.
//   - HTTP: the client for that API, implementing domain.Authority and
//     domain.IdentityIssuer.
//
// # HTTP API
//
//	POST /v1/bind       {client_id, client_secret, scopes} -> AccessCredential
//	POST /v1/rebind     Authorization: Bearer <token>       -> AccessCredential
//	POST /v1/verify     Authorization: Bearer <token>, VerificationRequest
//	                    -> VerificationResult (blocks until resolved)
//	POST /v1/identity   {key_token, public_key}             -> IdentityGrant
//	GET  /healthz
//
// Errors are JSON {code, message}; the client maps codes back onto the
// domain sentinels. Connection failures and 5xx answers surface as
// domain.ErrTransientNetwork.
package authority
