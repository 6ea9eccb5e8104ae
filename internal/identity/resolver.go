package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/idsync/internal/bridge"
	"github.com/dmitrijs2005/idsync/internal/cookiesync"
	"github.com/dmitrijs2005/idsync/internal/events"
	"github.com/dmitrijs2005/idsync/internal/forwarders"
	"github.com/dmitrijs2005/idsync/internal/logging"
	"github.com/dmitrijs2005/idsync/internal/metrics"
	"github.com/dmitrijs2005/idsync/internal/models"
	"github.com/dmitrijs2005/idsync/internal/persistence"
	"github.com/dmitrijs2005/idsync/internal/request"
	"github.com/dmitrijs2005/idsync/internal/session"
	"github.com/dmitrijs2005/idsync/internal/transport"
	"github.com/dmitrijs2005/idsync/internal/user"
	"github.com/dmitrijs2005/idsync/internal/validate"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dmitrijs2005/idsync/internal/identity"

// AliasHook is called after a successful response with the user before and
// after it. Either may be nil.
type AliasHook func(previous, current *user.User)

// Request is one identity call.
type Request struct {
	// UserIdentities is keyed by canonical identity name ("email",
	// "customerid", ...).
	UserIdentities map[string]string
	OnUserAlias    AliasHook
	Callback       Callback
}

// Config holds the settings the resolver reads.
type Config struct {
	APIKey          string
	DevelopmentMode bool
	MaxProducts     int
	OptOut          bool
}

// Deps are the resolver's collaborators. Transport and Persistence are
// required; the rest default to inert implementations.
type Deps struct {
	Transport   transport.Poster
	Persistence *persistence.Manager
	Forwarders  *forwarders.Registry
	CookieSync  cookiesync.Syncer
	Bridge      bridge.NativeBridge
	// Sink receives events; it is called with the resolver locked and must
	// not call back into it.
	Sink    events.Sink
	Timer   user.ActivityTimer
	Log     logging.Logger
	Tracer  trace.Tracer
	Builder *request.Builder
	Now     func() time.Time
	NewID   func() string
}

type flightState int

const (
	idle flightState = iota
	inFlight
)

// Resolver owns the session state of one SDK instance.
type Resolver struct {
	cfg  Config
	deps Deps

	mu     sync.Mutex
	flight flightState
	st     *session.State

	userDeps *user.Deps
}

// NewResolver builds a resolver with an empty session. Call Start to load
// durable state and identify.
func NewResolver(cfg Config, deps Deps) *Resolver {
	if deps.Log == nil {
		deps.Log = logging.Discard()
	}
	if deps.Forwarders == nil {
		deps.Forwarders = forwarders.NewRegistry(deps.Log)
	}
	if deps.CookieSync == nil {
		deps.CookieSync = cookiesync.Noop{}
	}
	if deps.Bridge == nil {
		deps.Bridge = bridge.None{}
	}
	if deps.Sink == nil {
		deps.Sink = events.NewLogSink(deps.Log)
	}
	if deps.Timer == nil {
		deps.Timer = user.NoopTimer{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	if deps.Builder == nil {
		deps.Builder = request.NewBuilder(cfg.DevelopmentMode)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	r := &Resolver{cfg: cfg, deps: deps, st: session.New()}
	r.userDeps = &user.Deps{
		Session:     r,
		Persistence: deps.Persistence,
		Forwarders:  deps.Forwarders,
		Bridge:      deps.Bridge,
		Events:      r,
		Timer:       deps.Timer,
		Log:         deps.Log,
		MaxProducts: cfg.MaxProducts,
		CanLog:      r.canLog,
		Now:         deps.Now,
	}
	return r
}

// SetMigrationData registers legacy data to apply on the first successful
// response. It is dropped by Start when durable state already exists.
func (r *Resolver) SetMigrationData(m *models.MigrationData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.MigrationData = m
}

// Load reads durable state and fills in a device stamp and a session id when
// missing. Migration data is dropped when durable state already exists.
func (r *Resolver) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existed, err := r.deps.Persistence.Load(ctx, r.st)
	if err != nil {
		return fmt.Errorf("load identity state: %w", err)
	}
	if existed && r.st.MigrationData != nil {
		r.deps.Log.Debug(ctx, "durable state present, skipping migration")
		r.st.MigrationData = nil
	}
	r.stampLocked()
	r.persist(ctx)
	return nil
}

// stampLocked fills in a missing device stamp and session id. A new session
// starts with an empty MPID history. Callers hold r.mu.
func (r *Resolver) stampLocked() {
	if r.st.DeviceID == "" {
		r.st.DeviceID = r.deps.NewID()
	}
	if r.st.SessionID == "" {
		r.st.SessionID = r.deps.NewID()
		r.st.CurrentSessionMPIDs = nil
	}
}

// Start loads durable state, then identifies with req.
func (r *Resolver) Start(ctx context.Context, req Request) (*Pending, error) {
	if err := r.Load(ctx); err != nil {
		return nil, err
	}
	return r.Identify(ctx, req), nil
}

// Update runs fn with the state locked. It lets user views share the
// resolver's state.
func (r *Resolver) Update(fn func(st *session.State) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.st)
}

// Snapshot returns the durable view of the current state.
func (r *Resolver) Snapshot() *models.GlobalState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.GlobalState()
}

// CurrentMPID returns the MPID in force, NoMPID before the first response.
func (r *Resolver) CurrentMPID() models.MPID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.MPID
}

// CurrentUser returns a view of the current MPID, or nil when there is none.
func (r *Resolver) CurrentUser() *user.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentUserLocked()
}

// User returns a view bound to mpid.
func (r *Resolver) User(mpid models.MPID) *user.User {
	return user.New(mpid, r.userDeps)
}

func (r *Resolver) currentUserLocked() *user.User {
	if r.st.MPID.IsZero() {
		return nil
	}
	return user.New(r.st.MPID, r.userDeps)
}

func (r *Resolver) canLog() bool {
	if r.cfg.OptOut {
		return false
	}
	return r.cfg.APIKey != "" || r.deps.Bridge.IsWebViewEmbedded()
}

// LogEvent sends ev tagged with the current MPID and session. While no MPID
// is known or a request is in flight the event is queued instead; the queue
// is sent, in order, as soon as the request ends with an MPID in force.
func (r *Resolver) LogEvent(ctx context.Context, ev *models.Event) {
	if !r.canLog() {
		r.deps.Log.Debug(ctx, "logging disabled, event dropped", "name", ev.Name)
		return
	}
	r.deps.Timer.Reset()

	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.SessionID == "" {
		ev.SessionID = r.st.SessionID
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = r.deps.Now().UnixMilli()
	}
	if r.st.MPID.IsZero() || r.flight == inFlight {
		r.st.Enqueue(ev)
		r.deps.Log.Debug(ctx, "event queued", "name", ev.Name, "queued", len(r.st.EventQueue))
		return
	}
	r.flushQueueLocked(ctx)
	ev.MPID = r.st.MPID
	if err := r.deps.Sink.Send(ctx, ev); err != nil {
		r.deps.Log.Warn(ctx, "send event", "name", ev.Name, "err", err)
	}
}

// QueuedEvents reports how many events wait for an identity.
func (r *Resolver) QueuedEvents() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.st.EventQueue)
}

// Identify resolves the identity of the current device.
func (r *Resolver) Identify(ctx context.Context, req Request) *Pending {
	return r.dispatch(ctx, validate.OpIdentify, req)
}

// Login switches to the user owning req's identities.
func (r *Resolver) Login(ctx context.Context, req Request) *Pending {
	return r.dispatch(ctx, validate.OpLogin, req)
}

// Logout returns to an anonymous identity.
func (r *Resolver) Logout(ctx context.Context, req Request) *Pending {
	return r.dispatch(ctx, validate.OpLogout, req)
}

// Modify changes the identities of the current MPID.
func (r *Resolver) Modify(ctx context.Context, req Request) *Pending {
	return r.dispatch(ctx, validate.OpModify, req)
}

var nativePaths = map[validate.Operation]bridge.Path{
	validate.OpLogin:  bridge.Login,
	validate.OpLogout: bridge.Logout,
	validate.OpModify: bridge.Modify,
}

func (r *Resolver) nativePayload(ctx context.Context, req Request) string {
	if len(req.UserIdentities) == 0 {
		return ""
	}
	b, err := json.Marshal(map[string]any{"UserIdentities": req.UserIdentities})
	if err != nil {
		r.deps.Log.Warn(ctx, "native payload", "err", err)
		return ""
	}
	return string(b)
}

// persist writes the working set and global state; failures are logged.
// Callers hold r.mu.
func (r *Resolver) persist(ctx context.Context) {
	if err := r.deps.Persistence.Update(ctx, r.st); err != nil {
		r.deps.Log.Error(ctx, "persist identity state", "mpid", r.st.MPID, "err", err)
	}
}

// rejected completes p without sending anything.
func (r *Resolver) rejected(ctx context.Context, c *call, res Result, status string) *Pending {
	metrics.RecordRejected(string(c.op), status)
	r.endSpan(c, res)
	r.deliver(ctx, c, res)
	return c.pending
}

// swapIdentity moves the working set from one MPID to another. Callers hold
// r.mu.
func (r *Resolver) swapIdentity(ctx context.Context, from, to models.MPID) {
	if !from.IsZero() {
		if err := r.deps.Persistence.Update(ctx, r.st); err != nil {
			r.deps.Log.Error(ctx, "persist before swap", "mpid", from, "err", err)
		}
	}
	r.st.MPID = to
	if err := r.deps.Persistence.StoreDataInMemory(ctx, r.st, to); err != nil {
		r.deps.Log.Error(ctx, "load swapped identity", "mpid", to, "err", err)
		r.st.ResetWorkingSet()
	}
	metrics.RecordSwap()
	r.deps.Log.Info(ctx, "mpid changed", "from", from, "to", to)
}

var (
	_ user.Session     = (*Resolver)(nil)
	_ user.EventLogger = (*Resolver)(nil)
)
