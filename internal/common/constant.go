// Package common contains shared constants and sentinel errors used across
// idsync components.
package common

// APIKeyHeaderName is the HTTP header carrying the workspace key on identity
// requests.
const APIKeyHeaderName = "x-mp-key"

// Status values reported in a request result when no HTTP status exists.
const (
	// StatusNotSent means the request never left the process (validation,
	// disabled logging, native bridge).
	StatusNotSent = 0
	// StatusTransportError means building or sending the request failed.
	StatusTransportError = -1
	// StatusRequestInFlight means another identity request is still pending.
	StatusRequestInFlight = -2
)

// DeviceStampKey is the known-identities key carrying the device stamp.
const DeviceStampKey = "device_application_stamp"

// Client descriptor sent with every identity request.
const (
	Platform   = "web"
	SDKVendor  = "idsync"
	SDKVersion = "1.4.0"
)
