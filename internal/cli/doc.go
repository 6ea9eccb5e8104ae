// Package cli implements idctl, a command-line client that drives the
// identity resolver against durable local state.
//
// Every invocation loads the stored session, performs one operation, waits
// for it to complete and exits. Identity calls (identify, login, logout,
// modify, migrate import) reach the identity service; attribute, tag and
// cart commands only touch local state and configured forwarders.
package cli
