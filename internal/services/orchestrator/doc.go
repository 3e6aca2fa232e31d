// Package orchestrator drives the end-to-end messaging workflow.
//
// States:
//
//	Unbound -> Bound -> Verifying(sender) -> Verifying(receiver) -> BothVerified
//	        -> Exchanging -> Done
//
// and Failed(reason) from any of them, where reason is AuthFailure,
// VerificationFailure or CryptoFailure.
//
// Ordering guarantees:
//   - Bind completes before any verification is requested.
//   - The access credential is rebound when stale or inside the refresh
//     margin before each verification request.
//   - Both verifications finish before either identity is bootstrapped.
//   - An identity that comes back already expired gets exactly one fresh
//     verification and one bootstrap with the new token.
//   - After a CryptoFailure during the exchange the identities are kept and
//     RetryExchange reruns only the exchange.
//
// Every transition is appended to the status history, logged, and counted
// in Prometheus.
package orchestrator
