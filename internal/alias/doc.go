// Package alias implements the identity resolver that maps
// human-chosen names to canonical device identifiers.
//
// # Resolution
//
// Any client-supplied identifier resolves canonical-first: a string
// matching a cached device's canonical ID wins outright, otherwise the
// alias table is consulted with an exact, case-sensitive lookup. No
// fuzzy or partial matching exists; ambiguity is never silently
// resolved. Aliases hold only weak references, so an alias whose
// device has been removed degrades to a lookup miss rather than an
// error deeper in the stack.
//
// # Uniqueness
//
// Each alias maps to exactly one canonical ID. Assignment is atomic
// under a single table-wide guard: of two concurrent requests for the
// same new alias, exactly one wins and the other observes ErrConflict.
// Re-assigning an alias to the device it already names is an
// idempotent success. A device may carry any number of aliases; they
// form an ordered sequence in assignment order.
//
// Names shaped like canonical IDs (dev_{node}_{endpoint}) are
// reserved: accepting one would let the alias table shadow a future
// device, so assignment rejects them up front.
//
// # Persistence
//
// The table persists through the same write-behind pattern as the
// device cache: mutations mark the resolver dirty and a background
// persister rewrites the aliases table in one transaction. Failures
// are logged and retried, never surfaced to a naming request.
package alias
