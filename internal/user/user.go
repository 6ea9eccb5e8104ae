package user

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/idsync/internal/bridge"
	"github.com/dmitrijs2005/idsync/internal/common"
	"github.com/dmitrijs2005/idsync/internal/forwarders"
	"github.com/dmitrijs2005/idsync/internal/logging"
	"github.com/dmitrijs2005/idsync/internal/models"
	"github.com/dmitrijs2005/idsync/internal/persistence"
	"github.com/dmitrijs2005/idsync/internal/session"
	"github.com/dmitrijs2005/idsync/internal/validate"
)

// DefaultMaxProducts caps a cart when Deps.MaxProducts is unset.
const DefaultMaxProducts = 20

// Session runs fn with exclusive access to the identity state and returns
// its error.
type Session interface {
	Update(fn func(st *session.State) error) error
}

// EventLogger accepts analytics events produced by cart changes.
type EventLogger interface {
	LogEvent(ctx context.Context, ev *models.Event)
}

// ActivityTimer is reset by every user mutation.
type ActivityTimer interface {
	Reset()
}

// NoopTimer ignores resets.
type NoopTimer struct{}

func (NoopTimer) Reset() {}

// Deps are the collaborators shared by every User.
type Deps struct {
	Session     Session
	Persistence *persistence.Manager
	Forwarders  *forwarders.Registry
	Bridge      bridge.NativeBridge
	Events      EventLogger
	Timer       ActivityTimer
	Log         logging.Logger
	MaxProducts int
	// CanLog gates attribute and cart writes; nil means always allowed.
	CanLog func() bool
	Now    func() time.Time
}

func (d *Deps) maxProducts() int {
	if d.MaxProducts <= 0 {
		return DefaultMaxProducts
	}
	return d.MaxProducts
}

func (d *Deps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// User is the view of one MPID.
type User struct {
	mpid models.MPID
	d    *Deps
}

// New binds a view to mpid. Nil collaborators in d get inert defaults.
func New(mpid models.MPID, d *Deps) *User {
	if d.Bridge == nil {
		d.Bridge = bridge.None{}
	}
	if d.Timer == nil {
		d.Timer = NoopTimer{}
	}
	if d.Log == nil {
		d.Log = logging.Discard()
	}
	if d.Forwarders == nil {
		d.Forwarders = forwarders.NewRegistry(d.Log)
	}
	return &User{mpid: mpid, d: d}
}

// MPID returns the identity this view is bound to.
func (u *User) MPID() models.MPID { return u.mpid }

// Cart returns the cart of this user.
func (u *User) Cart() *Cart { return &Cart{u: u} }

func (u *User) isCurrent(st *session.State) bool {
	return !u.mpid.IsZero() && st.MPID == u.mpid
}

// GetUserIdentities returns identities keyed by canonical name.
func (u *User) GetUserIdentities(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	err := u.d.Session.Update(func(st *session.State) error {
		if u.isCurrent(st) {
			out = st.UserIdentities.ByName()
			return nil
		}
		ids, err := u.d.Persistence.UserIdentities(ctx, u.mpid)
		if err != nil {
			return err
		}
		out = ids.ByName()
		return nil
	})
	return out, err
}

// GetAllUserAttributes returns a copy of every attribute, lists included.
func (u *User) GetAllUserAttributes(ctx context.Context) (models.Attributes, error) {
	var out models.Attributes
	err := u.d.Session.Update(func(st *session.State) error {
		var err error
		out, err = u.attributes(ctx, st)
		return err
	})
	return out, err
}

// GetUserAttributesLists returns only list-valued attributes.
func (u *User) GetUserAttributesLists(ctx context.Context) (map[string][]any, error) {
	attrs, err := u.GetAllUserAttributes(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]any)
	for k, v := range attrs {
		if l, ok := v.([]any); ok {
			out[k] = l
		}
	}
	return out, nil
}

// SetUserAttribute stores value under key, replacing any key that differs
// only in case.
func (u *User) SetUserAttribute(ctx context.Context, key string, value any) error {
	u.d.Timer.Reset()
	if err := u.allowed(ctx, "set attribute"); err != nil {
		return err
	}
	if err := validate.AttributeValue(value); err != nil {
		u.d.Log.Debug(ctx, "bad attribute value", "key", key, "err", err)
		return err
	}
	if err := validate.Key(key); err != nil {
		u.d.Log.Debug(ctx, "bad attribute key", "err", err)
		return err
	}
	if err := u.mutate(ctx, func(attrs models.Attributes) {
		if existing, ok := attrs.FindKey(key); ok {
			delete(attrs, existing)
		}
		attrs[key] = value
	}); err != nil {
		return err
	}

	if !u.tryNative(ctx, bridge.SetUserAttribute, map[string]any{"key": key, "value": value}) {
		u.logOutcomes(ctx, u.d.Forwarders.SetUserAttribute(ctx, key, value))
	}
	return nil
}

// SetUserAttributeList stores a copy of values under key.
func (u *User) SetUserAttributeList(ctx context.Context, key string, values []any) error {
	u.d.Timer.Reset()
	if err := u.allowed(ctx, "set attribute list"); err != nil {
		return err
	}
	if err := validate.Key(key); err != nil {
		u.d.Log.Debug(ctx, "bad attribute key", "err", err)
		return err
	}
	if values == nil {
		return &validate.ValidationError{Field: "value", Message: "attribute list must not be nil"}
	}
	list := append([]any(nil), values...)
	if err := u.mutate(ctx, func(attrs models.Attributes) {
		if existing, ok := attrs.FindKey(key); ok {
			delete(attrs, existing)
		}
		attrs[key] = list
	}); err != nil {
		return err
	}

	if !u.tryNative(ctx, bridge.SetUserAttributeList, map[string]any{"key": key, "value": list}) {
		u.logOutcomes(ctx, u.d.Forwarders.SetUserAttribute(ctx, key, append([]any(nil), list...)))
	}
	return nil
}

// RemoveUserAttribute deletes key, matched case-insensitively.
func (u *User) RemoveUserAttribute(ctx context.Context, key string) error {
	u.d.Timer.Reset()
	if err := u.allowed(ctx, "remove attribute"); err != nil {
		return err
	}
	if err := validate.Key(key); err != nil {
		u.d.Log.Debug(ctx, "bad attribute key", "err", err)
		return err
	}
	if err := u.mutate(ctx, func(attrs models.Attributes) {
		if existing, ok := attrs.FindKey(key); ok {
			key = existing
		}
		delete(attrs, key)
	}); err != nil {
		return err
	}

	if !u.tryNative(ctx, bridge.RemoveUserAttribute, map[string]any{"key": key, "value": nil}) {
		u.logOutcomes(ctx, u.d.Forwarders.RemoveUserAttribute(ctx, key))
	}
	return nil
}

// RemoveAllUserAttributes clears every attribute of this user.
func (u *User) RemoveAllUserAttributes(ctx context.Context) error {
	u.d.Timer.Reset()
	if err := u.allowed(ctx, "remove all attributes"); err != nil {
		return err
	}
	var removed []string
	if err := u.mutate(ctx, func(attrs models.Attributes) {
		for k := range attrs {
			removed = append(removed, k)
			delete(attrs, k)
		}
	}); err != nil {
		return err
	}

	if !u.tryNative(ctx, bridge.RemoveAllUserAttributes, nil) {
		for _, k := range removed {
			u.logOutcomes(ctx, u.d.Forwarders.RemoveUserAttribute(ctx, k))
		}
	}
	return nil
}

// SetUserTag stores tag as an attribute without a value.
func (u *User) SetUserTag(ctx context.Context, tag string) error {
	return u.SetUserAttribute(ctx, tag, nil)
}

// RemoveUserTag deletes tag like any other attribute.
func (u *User) RemoveUserTag(ctx context.Context, tag string) error {
	return u.RemoveUserAttribute(ctx, tag)
}

// allowed reports common.ErrDisabled when writes are switched off.
func (u *User) allowed(ctx context.Context, op string) error {
	if u.d.CanLog != nil && !u.d.CanLog() {
		u.d.Log.Debug(ctx, "logging disabled, write dropped", "op", op, "mpid", u.mpid)
		return common.ErrDisabled
	}
	return nil
}

func (u *User) attributes(ctx context.Context, st *session.State) (models.Attributes, error) {
	if u.isCurrent(st) {
		return st.UserAttributes.Clone(), nil
	}
	return u.d.Persistence.UserAttributes(ctx, u.mpid)
}

// mutate applies fn to a copy of the attributes and writes the result back.
func (u *User) mutate(ctx context.Context, fn func(attrs models.Attributes)) error {
	return u.d.Session.Update(func(st *session.State) error {
		attrs, err := u.attributes(ctx, st)
		if err != nil {
			return err
		}
		fn(attrs)

		if u.isCurrent(st) {
			st.UserAttributes = attrs
			if err := u.d.Persistence.Update(ctx, st); err != nil {
				return fmt.Errorf("persist attributes: %w", err)
			}
			return nil
		}
		if err := u.d.Persistence.UpdateUserAttributes(ctx, u.mpid, attrs); err != nil {
			return fmt.Errorf("persist attributes: %w", err)
		}
		return nil
	})
}

func (u *User) tryNative(ctx context.Context, path bridge.Path, payload any) bool {
	var body string
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			u.d.Log.Warn(ctx, "native payload", "path", path, "err", err)
			return false
		}
		body = string(b)
	}
	return u.d.Bridge.TryNativeSdk(path, body)
}

func (u *User) logOutcomes(ctx context.Context, outcomes []forwarders.Outcome) {
	if failed := forwarders.Failed(outcomes); len(failed) > 0 {
		u.d.Log.Debug(ctx, "forwarders failed", "mpid", u.mpid, "failed", len(failed), "total", len(outcomes))
	}
}
