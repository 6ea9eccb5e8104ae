// Package bridge describes the hand-off to a host native SDK when the
// library runs embedded in a web view.
package bridge

// Path names a native SDK entry point.
type Path string

const (
	LogEvent                Path = "logEvent"
	SetUserTag              Path = "setUserTag"
	RemoveUserTag           Path = "removeUserTag"
	SetUserAttribute        Path = "setUserAttribute"
	RemoveUserAttribute     Path = "removeUserAttribute"
	SetUserAttributeList    Path = "setUserAttributeList"
	RemoveAllUserAttributes Path = "removeAllUserAttributes"
	AddToCart               Path = "addToCart"
	RemoveFromCart          Path = "removeFromCart"
	ClearCart               Path = "clearCart"
	Identify                Path = "identify"
	Login                   Path = "login"
	Logout                  Path = "logout"
	Modify                  Path = "modify"
)

// NativeBridge forwards calls to a native host.
type NativeBridge interface {
	// TryNativeSdk hands payload to the host and reports whether it took it.
	TryNativeSdk(path Path, payload string) bool
	IsWebViewEmbedded() bool
}

// None is the bridge used outside a web view; it accepts nothing.
type None struct{}

func (None) TryNativeSdk(Path, string) bool { return false }
func (None) IsWebViewEmbedded() bool        { return false }
