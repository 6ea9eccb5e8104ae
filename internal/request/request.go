// Package request builds the envelopes sent to the identity service and
// merges identity sets the way the service does.
package request

import (
	"sort"
	"time"

	"github.com/dmitrijs2005/idsync/internal/common"
	"github.com/dmitrijs2005/idsync/internal/identitytype"
	"github.com/dmitrijs2005/idsync/internal/models"
	"github.com/google/uuid"
)

// ClientSDK describes the client issuing the request.
type ClientSDK struct {
	Platform   string `json:"platform"`
	SDKVendor  string `json:"sdk_vendor"`
	SDKVersion string `json:"sdk_version"`
}

// IdentityRequest is the body of identify, login and logout calls.
type IdentityRequest struct {
	ClientSDK          ClientSDK         `json:"client_sdk"`
	Context            *string           `json:"context"`
	Environment        string            `json:"environment"`
	RequestID          string            `json:"request_id"`
	RequestTimestampMs int64             `json:"request_timestamp_ms"`
	PreviousMPID       *models.MPID      `json:"previous_mpid"`
	KnownIdentities    map[string]string `json:"known_identities"`
}

// IdentityChange is one entry of a modify request.
type IdentityChange struct {
	OldValue     *string `json:"old_value"`
	NewValue     string  `json:"new_value"`
	IdentityType string  `json:"identity_type"`
}

// ModifyRequest is the body of a modify call.
type ModifyRequest struct {
	ClientSDK          ClientSDK        `json:"client_sdk"`
	Context            *string          `json:"context"`
	Environment        string           `json:"environment"`
	RequestID          string           `json:"request_id"`
	RequestTimestampMs int64            `json:"request_timestamp_ms"`
	IdentityChanges    []IdentityChange `json:"identity_changes"`
}

// ResponseError is one entry of the errors list returned by the service.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// IdentityResponse is the decoded body of an identity response.
type IdentityResponse struct {
	Context           string            `json:"context,omitempty"`
	MPID              models.MPID       `json:"mpid"`
	IsEphemeral       bool              `json:"is_ephemeral"`
	IsLoggedIn        bool              `json:"is_logged_in"`
	MatchedIdentities map[string]string `json:"matched_identities,omitempty"`
	Errors            []ResponseError   `json:"errors,omitempty"`
}

// Builder produces request envelopes. The zero value is not usable; use
// NewBuilder.
type Builder struct {
	ClientSDK       ClientSDK
	DevelopmentMode bool

	now   func() time.Time
	newID func() string
}

// NewBuilder returns a builder stamping requests with the package client
// descriptor.
func NewBuilder(developmentMode bool) *Builder {
	return &Builder{
		ClientSDK: ClientSDK{
			Platform:   common.Platform,
			SDKVendor:  common.SDKVendor,
			SDKVersion: common.SDKVersion,
		},
		DevelopmentMode: developmentMode,
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

func (b *Builder) environment() string {
	if b.DevelopmentMode {
		return "development"
	}
	return "production"
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// KnownIdentities copies the caller identities and adds the device stamp.
func KnownIdentities(ids map[string]string, deviceID string) map[string]string {
	out := make(map[string]string, len(ids)+1)
	for k, v := range ids {
		out[k] = v
	}
	out[common.DeviceStampKey] = deviceID
	return out
}

// BuildIdentityRequest builds an identify/login/logout envelope. currentMPID
// is sent as previous_mpid; NoMPID is sent as null.
func (b *Builder) BuildIdentityRequest(ids map[string]string, deviceID, context string, currentMPID models.MPID) *IdentityRequest {
	var prev *models.MPID
	if !currentMPID.IsZero() {
		m := currentMPID
		prev = &m
	}
	return &IdentityRequest{
		ClientSDK:          b.ClientSDK,
		Context:            optional(context),
		Environment:        b.environment(),
		RequestID:          b.newID(),
		RequestTimestampMs: b.now().UnixMilli(),
		PreviousMPID:       prev,
		KnownIdentities:    KnownIdentities(ids, deviceID),
	}
}

// BuildModifyRequest builds a modify envelope from the stored identities and
// the requested ones.
func (b *Builder) BuildModifyRequest(previous models.UserIdentities, next map[string]string, context string) *ModifyRequest {
	return &ModifyRequest{
		ClientSDK:          b.ClientSDK,
		Context:            optional(context),
		Environment:        b.environment(),
		RequestID:          b.newID(),
		RequestTimestampMs: b.now().UnixMilli(),
		IdentityChanges:    IdentityChanges(previous, next),
	}
}

// IdentityChanges diffs previous against next. One change is emitted per key
// of next, in ascending key order.
func IdentityChanges(previous models.UserIdentities, next map[string]string) []IdentityChange {
	keys := make([]string, 0, len(next))
	for k := range next {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	changes := make([]IdentityChange, 0, len(keys))
	for _, k := range keys {
		var old *string
		if t, ok := identitytype.FromName(k); ok {
			if v := previous[t]; v != "" {
				old = &v
			}
		}
		changes = append(changes, IdentityChange{OldValue: old, NewValue: next[k], IdentityType: k})
	}
	return changes
}

// MergeIdentities canonicalizes incoming and fills the gaps from previous.
// Incoming values always win. Names that are not identity types are skipped.
// Neither input is modified.
func MergeIdentities(previous models.UserIdentities, incoming map[string]string) models.UserIdentities {
	merged := make(models.UserIdentities, len(previous)+len(incoming))
	for k, v := range incoming {
		if t, ok := identitytype.FromName(k); ok {
			merged[t] = v
		}
	}
	for t, v := range previous {
		if _, ok := merged[t]; !ok {
			merged[t] = v
		}
	}
	return merged
}
