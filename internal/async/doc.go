// Package async provides one-shot futures for single-result operations.
//
// A Future resolves exactly once, either with a value or with an error.
// Later resolutions are ignored, so racing producers (the operation itself,
// a timeout, a caller's Cancel) cannot deliver two outcomes. Waiters block on
// Done or Await; nothing is ever left unresolved once the producing goroutine
// returns or Cancel is called.
package async
