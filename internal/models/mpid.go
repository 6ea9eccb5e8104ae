package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MPID is the opaque "most recent participant id" naming a user identity.
// The identity service may encode it as a JSON number or string; it is kept
// as a string either way.
type MPID string

// NoMPID is the only value meaning "no identity resolved yet".
const NoMPID MPID = ""

// IsZero reports whether m names no identity. "0" is accepted as a legacy
// spelling of NoMPID.
func (m MPID) IsZero() bool {
	return m == NoMPID || m == "0"
}

func (m MPID) String() string { return string(m) }

// UnmarshalJSON accepts a JSON string, a JSON number, or null.
func (m *MPID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*m = NoMPID
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*m = MPID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("mpid must be a string or number: %w", err)
	}
	*m = MPID(n.String())
	return nil
}
