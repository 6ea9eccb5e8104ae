// Package models defines the identity data shared by idsync components:
// MPIDs, per-MPID records, the durable global state, cart products, and
// analytics events.
//
// Maps and slices held by these types are never shared between records:
// every Clone/Copy helper returns storage the caller may mutate freely.
package models
