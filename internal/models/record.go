package models

import (
	"strings"

	"github.com/dmitrijs2005/idsync/internal/identitytype"
)

// UserIdentities is the persisted identity set, keyed by identity code.
type UserIdentities map[identitytype.IdentityType]string

// Clone returns an independent copy; a nil receiver yields an empty map.
func (u UserIdentities) Clone() UserIdentities {
	out := make(UserIdentities, len(u))
	for k, v := range u {
		out[k] = v
	}
	return out
}

// ByName converts the set to canonical-name keys. Unknown codes are dropped.
func (u UserIdentities) ByName() map[string]string {
	out := make(map[string]string, len(u))
	for k, v := range u {
		if name, ok := identitytype.IdentityName(k); ok {
			out[name] = v
		}
	}
	return out
}

// Attributes holds user attributes. Values are scalars or []any lists.
type Attributes map[string]any

// Clone returns a copy with list values copied as well.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = CopyAttributeValue(v)
	}
	return out
}

// FindKey returns the stored key that equals key ignoring case.
func (a Attributes) FindKey(key string) (string, bool) {
	if _, ok := a[key]; ok {
		return key, true
	}
	for k := range a {
		if strings.EqualFold(k, key) {
			return k, true
		}
	}
	return "", false
}

// CopyAttributeValue copies list values; scalars are returned as is.
func CopyAttributeValue(v any) any {
	switch l := v.(type) {
	case []any:
		return append([]any(nil), l...)
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	default:
		return v
	}
}

// CookieSyncDates maps a partner module id to the last sync time in
// milliseconds since the epoch.
type CookieSyncDates map[string]int64

func (c CookieSyncDates) Clone() CookieSyncDates {
	out := make(CookieSyncDates, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Record is the durable per-MPID user record. Cart products are stored
// separately.
type Record struct {
	MPID            MPID            `json:"mpid"`
	UserIdentities  UserIdentities  `json:"ui"`
	UserAttributes  Attributes      `json:"ua"`
	CookieSyncDates CookieSyncDates `json:"csd"`
}

// Clone deep-copies r. A nil receiver yields nil.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	return &Record{
		MPID:            r.MPID,
		UserIdentities:  r.UserIdentities.Clone(),
		UserAttributes:  r.UserAttributes.Clone(),
		CookieSyncDates: r.CookieSyncDates.Clone(),
	}
}

// GlobalState is the durable process-wide state shared by all MPIDs.
type GlobalState struct {
	CurrentMPID         MPID   `json:"cgid"`
	SessionID           string `json:"sid"`
	CurrentSessionMPIDs []MPID `json:"csm"`
	Context             string `json:"ctx"`
	DeviceID            string `json:"das"`
}

func (g *GlobalState) Clone() *GlobalState {
	if g == nil {
		return nil
	}
	c := *g
	c.CurrentSessionMPIDs = append([]MPID(nil), g.CurrentSessionMPIDs...)
	return &c
}

// MigrationData is a snapshot imported from a legacy storage layout.
type MigrationData struct {
	UserIdentities  UserIdentities  `json:"userIdentities"`
	UserAttributes  Attributes      `json:"userAttributes"`
	CookieSyncDates CookieSyncDates `json:"cookieSyncDates"`
}

// IsEmpty reports whether the snapshot carries nothing to apply.
func (m *MigrationData) IsEmpty() bool {
	return m == nil || (len(m.UserIdentities) == 0 && len(m.UserAttributes) == 0 && len(m.CookieSyncDates) == 0)
}
