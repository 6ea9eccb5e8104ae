// Package identitytype maps identity kinds between their numeric codes and
// canonical names. All functions are pure lookups.
package identitytype

import "strconv"

// IdentityType is the numeric code of an identity kind.
type IdentityType int

const (
	Other                    IdentityType = 0
	CustomerID               IdentityType = 1
	Facebook                 IdentityType = 2
	Twitter                  IdentityType = 3
	Google                   IdentityType = 4
	Microsoft                IdentityType = 5
	Yahoo                    IdentityType = 6
	Email                    IdentityType = 7
	FacebookCustomAudienceID IdentityType = 9
	Other1                   IdentityType = 10
	Other2                   IdentityType = 11
	Other3                   IdentityType = 12
	Other4                   IdentityType = 13
)

// names holds canonical lowercase names in code order.
var names = []struct {
	t    IdentityType
	name string
}{
	{Other, "other"},
	{CustomerID, "customerid"},
	{Facebook, "facebook"},
	{Twitter, "twitter"},
	{Google, "google"},
	{Microsoft, "microsoft"},
	{Yahoo, "yahoo"},
	{Email, "email"},
	{FacebookCustomAudienceID, "facebookcustomaudienceid"},
	{Other1, "other1"},
	{Other2, "other2"},
	{Other3, "other3"},
	{Other4, "other4"},
}

var (
	byCode = make(map[IdentityType]string, len(names))
	byName = make(map[string]IdentityType, len(names))
)

func init() {
	for _, n := range names {
		byCode[n.t] = n.name
		byName[n.name] = n.t
	}
}

// All returns every known identity type in ascending code order.
func All() []IdentityType {
	out := make([]IdentityType, len(names))
	for i, n := range names {
		out[i] = n.t
	}
	return out
}

// IsValid reports whether t is one of the enumerated codes.
func IsValid(t IdentityType) bool {
	_, ok := byCode[t]
	return ok
}

// Name returns the display name of t. Unknown codes and the generic Other
// slots fall back to "Other ID".
func Name(t IdentityType) string {
	switch t {
	case CustomerID:
		return "Customer ID"
	case Facebook:
		return "Facebook ID"
	case Twitter:
		return "Twitter ID"
	case Google:
		return "Google ID"
	case Microsoft:
		return "Microsoft ID"
	case Yahoo:
		return "Yahoo ID"
	case Email:
		return "Email"
	case FacebookCustomAudienceID:
		return "Facebook App User ID"
	default:
		return "Other ID"
	}
}

// IdentityName returns the canonical lowercase name of t, or false when t is
// not a known code.
func IdentityName(t IdentityType) (string, bool) {
	n, ok := byCode[t]
	return n, ok
}

// FromName resolves a canonical name to its code. Matching is exact; callers
// pass the lowercase names used on the wire.
func FromName(name string) (IdentityType, bool) {
	t, ok := byName[name]
	return t, ok
}

// String implements fmt.Stringer with the canonical name, or the numeric code
// for unknown values.
func (t IdentityType) String() string {
	if n, ok := byCode[t]; ok {
		return n
	}
	return "identitytype(" + strconv.Itoa(int(t)) + ")"
}
