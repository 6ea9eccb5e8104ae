// Package persistence moves identity state between a session.State and a
// durable store.Store.
//
// The session working set always belongs to the current MPID. Writes for other
// MPIDs go straight to the store and never touch the working set.
package persistence
