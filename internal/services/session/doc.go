// Package session binds the application to the authentication authority and
// refreshes the resulting access credential.
//
// Transient failures are retried with exponential backoff; an authentication
// failure is terminal. The service never stores credentials itself; callers
// decide where the returned credential lives.
package session
