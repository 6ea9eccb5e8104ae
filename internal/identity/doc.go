// Package identity resolves the current MPID against the identity service
// and keeps per-MPID user state consistent while it changes.
//
// # Flow
//
// Identify, Login, Logout and Modify validate the caller's identities, build
// a request envelope and post it on a goroutine. At most one request is in
// flight per Resolver; a second call while one is pending is rejected with
// common.ErrBusy and never queued.
//
// When a 200 response arrives the Resolver, holding its mutex:
//
//  1. merges identities (modify), or adopts the returned MPID, recording it
//     in the session history and swapping the working set when it changed;
//  2. runs the cookie-sync hook;
//  3. flushes events queued while no identity was known, tagged with the
//     resolved MPID;
//  4. applies one-time migration data, or merges the call's identities;
//  5. persists and reconciles previously stored records;
//  6. adopts the returned context.
//
// It then releases the mutex, runs the alias hook, propagates identities to
// forwarders and invokes the callback. Callbacks and alias hooks may call
// back into the Resolver.
//
// # Results
//
// Every call returns a *Pending that completes exactly once. Failures never
// change state and are not retried: validation (StatusNotSent), busy
// (StatusRequestInFlight), transport (StatusTransportError) and non-200
// responses (*ServerError).
package identity
