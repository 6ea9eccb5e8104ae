// Package stubserver is a small in-memory identity service speaking the same
// JSON protocol as the production one. It backs local development and the
// integration tests of the identity resolver.
//
// Routes:
//
//	POST /v1/identify
//	POST /v1/login
//	POST /v1/logout
//	POST /v1/:mpid/modify
//	GET  /health
//	GET  /metrics
//
// Every /v1 route requires the x-mp-key header to match Config.APIKey.
package stubserver
