// Package user exposes per-MPID views over identity state: attributes,
// tags, identities and the shopping cart.
//
// A User is bound to one MPID when it is created. When that MPID is the
// current one, changes are applied to the in-memory working set and
// persisted; otherwise they go to durable storage only. All access is
// serialized through Session.
package user
