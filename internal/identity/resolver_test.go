package identity

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/idsync/internal/bridge"
	"github.com/dmitrijs2005/idsync/internal/common"
	"github.com/dmitrijs2005/idsync/internal/forwarders"
	"github.com/dmitrijs2005/idsync/internal/identitytype"
	"github.com/dmitrijs2005/idsync/internal/logging"
	"github.com/dmitrijs2005/idsync/internal/models"
	"github.com/dmitrijs2005/idsync/internal/persistence"
	"github.com/dmitrijs2005/idsync/internal/request"
	"github.com/dmitrijs2005/idsync/internal/store"
	"github.com/dmitrijs2005/idsync/internal/transport"
	"github.com/dmitrijs2005/idsync/internal/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- fakes ----

type reply struct {
	status int
	body   string
	err    error
	block  chan struct{}
}

type postCall struct {
	path string
	body any
}

type fakePoster struct {
	mu      sync.Mutex
	replies []reply
	calls   []postCall
}

func (f *fakePoster) push(rs ...reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, rs...)
}

func (f *fakePoster) Post(ctx context.Context, path string, body any) (*transport.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, postCall{path: path, body: body})
	rep := reply{status: http.StatusOK, body: `{"mpid":"1"}`}
	if len(f.replies) > 0 {
		rep = f.replies[0]
		f.replies = f.replies[1:]
	}
	f.mu.Unlock()

	if rep.block != nil {
		<-rep.block
	}
	if rep.err != nil {
		return nil, rep.err
	}
	return &transport.Response{Status: rep.status, StatusText: http.StatusText(rep.status), Body: []byte(rep.body)}, nil
}

func (f *fakePoster) Calls() []postCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]postCall(nil), f.calls...)
}

type sinkRecorder struct {
	mu     sync.Mutex
	events []*models.Event
}

func (s *sinkRecorder) Send(ctx context.Context, ev *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *sinkRecorder) Events() []*models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Event(nil), s.events...)
}

type fakeForwarder struct {
	mu      sync.Mutex
	ids     []map[string]string
	logouts []*models.Event
}

func (f *fakeForwarder) Name() string { return "fake" }
func (f *fakeForwarder) SetUserAttribute(context.Context, string, any) error {
	return nil
}
func (f *fakeForwarder) RemoveUserAttribute(context.Context, string) error { return nil }
func (f *fakeForwarder) SetUserIdentities(ctx context.Context, ids map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, ids)
	return nil
}
func (f *fakeForwarder) LogOut(ctx context.Context, ev *models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts = append(f.logouts, ev)
	return nil
}

type fakeSyncer struct {
	mu    sync.Mutex
	pairs [][2]models.MPID
}

func (s *fakeSyncer) AttemptCookieSync(ctx context.Context, previous, next models.MPID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs = append(s.pairs, [2]models.MPID{previous, next})
}

type acceptingBridge struct{ paths []bridge.Path }

func (b *acceptingBridge) TryNativeSdk(path bridge.Path, payload string) bool {
	b.paths = append(b.paths, path)
	return true
}
func (b *acceptingBridge) IsWebViewEmbedded() bool { return true }

// ---- helpers ----

type env struct {
	r      *Resolver
	poster *fakePoster
	store  *store.Memory
	sink   *sinkRecorder
	fwd    *fakeForwarder
	sync   *fakeSyncer
}

func newEnv(t *testing.T, mutate ...func(*Config, *Deps)) *env {
	t.Helper()
	e := &env{
		poster: &fakePoster{},
		store:  store.NewMemory(),
		sink:   &sinkRecorder{},
		fwd:    &fakeForwarder{},
		sync:   &fakeSyncer{},
	}
	cfg := Config{APIKey: "key", MaxProducts: 20}
	ids := 0
	deps := Deps{
		Transport:   e.poster,
		Persistence: persistence.NewManager(e.store, logging.Discard()),
		Forwarders:  forwarders.NewRegistry(logging.Discard(), e.fwd),
		CookieSync:  e.sync,
		Sink:        e.sink,
		Log:         logging.Discard(),
		NewID: func() string {
			ids++
			return "id-" + string(rune('0'+ids))
		},
	}
	for _, m := range mutate {
		m(&cfg, &deps)
	}
	e.r = NewResolver(cfg, deps)
	return e
}

func wait(t *testing.T, p *Pending) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := p.Wait(ctx)
	require.NoError(t, err, "identity call did not complete")
	return res
}

func seedCurrent(t *testing.T, s *store.Memory, rec *models.Record) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.PutState(ctx, &models.GlobalState{CurrentMPID: rec.MPID, SessionID: "sid", DeviceID: "dev"}))
	require.NoError(t, s.PutRecord(ctx, rec))
}

// ---- tests ----

func TestLogin_ResolvesMPIDAndFlushesQueue(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.poster.push(reply{status: 200, body: `{"mpid":42,"context":"ctx-1"}`})

	e.r.LogEvent(ctx, &models.Event{Name: "first"})
	e.r.LogEvent(ctx, &models.Event{Name: "second"})
	require.Equal(t, 2, e.r.QueuedEvents())

	res := wait(t, e.r.Login(ctx, Request{UserIdentities: map[string]string{"email": "a@b.com"}}))
	require.NoError(t, res.Err)
	assert.Equal(t, http.StatusOK, res.HTTPCode)
	require.NotNil(t, res.Body)
	assert.Equal(t, models.MPID("42"), res.Body.MPID)

	assert.Equal(t, models.MPID("42"), e.r.CurrentMPID())
	ids, err := e.r.CurrentUser().GetUserIdentities(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"email": "a@b.com"}, ids)

	sent := e.sink.Events()
	require.Len(t, sent, 2)
	assert.Equal(t, "first", sent[0].Name)
	assert.Equal(t, "second", sent[1].Name)
	for _, ev := range sent {
		assert.Equal(t, models.MPID("42"), ev.MPID)
	}
	assert.Zero(t, e.r.QueuedEvents())

	calls := e.poster.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "login", calls[0].path)
	body := calls[0].body.(*request.IdentityRequest)
	assert.Nil(t, body.PreviousMPID)
	assert.Equal(t, "a@b.com", body.KnownIdentities["email"])
	assert.Contains(t, body.KnownIdentities, common.DeviceStampKey)

	rec, err := e.store.GetRecord(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "a@b.com", rec.UserIdentities[identitytype.Email])
	assert.Equal(t, "ctx-1", e.r.Snapshot().Context)

	// later events go straight to the sink
	e.r.LogEvent(ctx, &models.Event{Name: "third"})
	require.Len(t, e.sink.Events(), 3)
	assert.Equal(t, models.MPID("42"), e.sink.Events()[2].MPID)
}

func TestModify_SendsChangesAndKeepsMPID(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	seedCurrent(t, e.store, &models.Record{
		MPID:           "7",
		UserIdentities: models.UserIdentities{identitytype.Email: "old@b.com", identitytype.CustomerID: "c7"},
	})
	e.poster.push(
		reply{status: 200, body: `{"mpid":"7"}`},
		reply{status: 200, body: `{}`},
	)

	p, err := e.r.Start(ctx, Request{})
	require.NoError(t, err)
	require.NoError(t, wait(t, p).Err)

	res := wait(t, e.r.Modify(ctx, Request{UserIdentities: map[string]string{"email": "new@b.com"}}))
	require.NoError(t, res.Err)

	calls := e.poster.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "7/modify", calls[1].path)
	mod := calls[1].body.(*request.ModifyRequest)
	require.Len(t, mod.IdentityChanges, 1)
	ch := mod.IdentityChanges[0]
	assert.Equal(t, "email", ch.IdentityType)
	require.NotNil(t, ch.OldValue)
	assert.Equal(t, "old@b.com", *ch.OldValue)
	assert.Equal(t, "new@b.com", ch.NewValue)

	assert.Equal(t, models.MPID("7"), e.r.CurrentMPID())
	ids, err := e.r.CurrentUser().GetUserIdentities(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"email": "new@b.com", "customerid": "c7"}, ids)

	rec, err := e.store.GetRecord(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "new@b.com", rec.UserIdentities[identitytype.Email])
}

func TestSwap_IsolatesUserData(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	seedCurrent(t, e.store, &models.Record{
		MPID:           "A",
		UserIdentities: models.UserIdentities{identitytype.CustomerID: "ca"},
		UserAttributes: models.Attributes{"plan": "gold"},
	})
	require.NoError(t, e.store.SetProducts(ctx, "A", []models.Product{{Sku: "a-sku"}}))
	e.poster.push(
		reply{status: 200, body: `{"mpid":"A"}`},
		reply{status: 200, body: `{"mpid":"B"}`},
	)

	p, err := e.r.Start(ctx, Request{})
	require.NoError(t, err)
	require.NoError(t, wait(t, p).Err)

	// unsaved change on A must survive the swap
	require.NoError(t, e.r.CurrentUser().SetUserAttribute(ctx, "seen", true))

	require.NoError(t, wait(t, e.r.Identify(ctx, Request{})).Err)
	require.Equal(t, models.MPID("B"), e.r.CurrentMPID())

	b := e.r.CurrentUser()
	attrs, err := b.GetAllUserAttributes(ctx)
	require.NoError(t, err)
	assert.Empty(t, attrs)
	ids, err := b.GetUserIdentities(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
	cart, err := b.Cart().GetCartProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, cart)

	require.NoError(t, b.SetUserAttribute(ctx, "plan", "free"))

	a := e.r.User("A")
	attrs, err = a.GetAllUserAttributes(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Attributes{"plan": "gold", "seen": true}, attrs)
	ids, err = a.GetUserIdentities(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"customerid": "ca"}, ids)
	cart, err = a.Cart().GetCartProducts(ctx)
	require.NoError(t, err)
	require.Len(t, cart, 1)

	assert.Equal(t, []models.MPID{"B"}, e.r.Snapshot().CurrentSessionMPIDs)
}

func TestBusy_RejectsSecondCall(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	release := make(chan struct{})
	e.poster.push(reply{status: 200, body: `{"mpid":"5"}`, block: release})

	first := e.r.Identify(ctx, Request{})

	var cbRes Result
	second := e.r.Login(ctx, Request{
		UserIdentities: map[string]string{"email": "x@y.z"},
		Callback:       func(r Result) { cbRes = r },
	})
	res, done := second.Result()
	require.True(t, done, "busy result is immediate")
	assert.Equal(t, common.StatusRequestInFlight, res.HTTPCode)
	assert.ErrorIs(t, res.Err, common.ErrBusy)
	assert.Equal(t, res, cbRes, "callback runs synchronously")

	// no MPID yet, so the event waits for the in-flight call
	e.r.LogEvent(ctx, &models.Event{Name: "during"})
	assert.Equal(t, 1, e.r.QueuedEvents())

	close(release)
	require.NoError(t, wait(t, first).Err)
	assert.Len(t, e.poster.Calls(), 1, "busy call is never sent")
	assert.Zero(t, e.r.QueuedEvents())
	require.Len(t, e.sink.Events(), 1)
	assert.Equal(t, models.MPID("5"), e.sink.Events()[0].MPID)

	// guard is idle again
	require.NoError(t, wait(t, e.r.Identify(ctx, Request{})).Err)
}

func TestQueueFlushedWhenRequestEnds(t *testing.T) {
	tests := []struct {
		name   string
		reply  reply
		call   func(r *Resolver, ctx context.Context) *Pending
		failed bool
	}{
		{
			name:  "modify succeeds",
			reply: reply{status: 200, body: `{}`},
			call: func(r *Resolver, ctx context.Context) *Pending {
				return r.Modify(ctx, Request{UserIdentities: map[string]string{"email": "n@b.com"}})
			},
		},
		{
			name:  "login rejected by server",
			reply: reply{status: 400, body: `{"errors":[{"code":"LOOKUP_ERROR","message":"bad"}]}`},
			call: func(r *Resolver, ctx context.Context) *Pending {
				return r.Login(ctx, Request{UserIdentities: map[string]string{"email": "a@b.com"}})
			},
			failed: true,
		},
		{
			name:  "login transport error",
			reply: reply{err: errors.New("connection refused")},
			call: func(r *Resolver, ctx context.Context) *Pending {
				return r.Login(ctx, Request{UserIdentities: map[string]string{"email": "a@b.com"}})
			},
			failed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := newEnv(t)
			seedCurrent(t, e.store, &models.Record{MPID: "7"})
			require.NoError(t, e.r.Load(ctx))

			release := make(chan struct{})
			rep := tt.reply
			rep.block = release
			e.poster.push(rep)

			p := tt.call(e.r, ctx)
			e.r.LogEvent(ctx, &models.Event{Name: "during"})
			assert.Equal(t, 1, e.r.QueuedEvents(), "held while the request is in flight")

			close(release)
			res := wait(t, p)
			if tt.failed {
				require.Error(t, res.Err)
			} else {
				require.NoError(t, res.Err)
			}
			assert.Zero(t, e.r.QueuedEvents())

			e.r.LogEvent(ctx, &models.Event{Name: "after"})
			sent := e.sink.Events()
			require.Len(t, sent, 2)
			assert.Equal(t, "during", sent[0].Name)
			assert.Equal(t, "after", sent[1].Name)
			assert.Equal(t, models.MPID("7"), sent[0].MPID)
			assert.Equal(t, "sid", sent[0].SessionID)
		})
	}
}

func TestQueueKeptWhileNoMPID(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.poster.push(reply{status: 500}, reply{status: 200, body: `{"mpid":"9"}`})

	e.r.LogEvent(ctx, &models.Event{Name: "early"})
	require.Error(t, wait(t, e.r.Identify(ctx, Request{})).Err)
	assert.Equal(t, 1, e.r.QueuedEvents(), "no MPID to tag the event with yet")

	require.NoError(t, wait(t, e.r.Identify(ctx, Request{})).Err)
	assert.Zero(t, e.r.QueuedEvents())
	require.Len(t, e.sink.Events(), 1)
	assert.Equal(t, models.MPID("9"), e.sink.Events()[0].MPID)
}

func TestValidationFailure_NothingSent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	called := false
	p := e.r.Login(ctx, Request{
		UserIdentities: map[string]string{"nickname": "x"},
		Callback:       func(Result) { called = true },
	})
	res, done := p.Result()
	require.True(t, done)
	assert.True(t, called)
	assert.Equal(t, common.StatusNotSent, res.HTTPCode)
	assert.ErrorIs(t, res.Err, common.ErrValidation)
	assert.Empty(t, e.poster.Calls())

	res = wait(t, e.r.Modify(ctx, Request{}))
	assert.ErrorIs(t, res.Err, common.ErrValidation)
}

func TestDisabled(t *testing.T) {
	ctx := context.Background()
	for name, mutate := range map[string]func(*Config, *Deps){
		"no api key": func(c *Config, _ *Deps) { c.APIKey = "" },
		"opted out":  func(c *Config, _ *Deps) { c.OptOut = true },
	} {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t, mutate)
			res := wait(t, e.r.Identify(ctx, Request{}))
			assert.Equal(t, common.StatusNotSent, res.HTTPCode)
			assert.ErrorIs(t, res.Err, common.ErrDisabled)
			assert.Empty(t, e.poster.Calls())

			e.r.LogEvent(ctx, &models.Event{Name: "dropped"})
			assert.Zero(t, e.r.QueuedEvents())
		})
	}
}

func TestNativeBridge_TakesLoginButNotIdentify(t *testing.T) {
	ctx := context.Background()
	b := &acceptingBridge{}
	e := newEnv(t, func(c *Config, d *Deps) {
		c.APIKey = ""
		d.Bridge = b
	})

	res := wait(t, e.r.Login(ctx, Request{UserIdentities: map[string]string{"email": "a@b.c"}}))
	assert.True(t, res.Native)
	assert.NoError(t, res.Err)
	assert.Equal(t, []bridge.Path{bridge.Login}, b.paths)
	assert.Empty(t, e.poster.Calls())

	res = wait(t, e.r.Identify(ctx, Request{}))
	assert.False(t, res.Native)
	assert.Len(t, e.poster.Calls(), 1, "embedded hosts still allow identify")
}

func TestTransportError(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.poster.push(reply{err: errors.New("connection refused")})

	res := wait(t, e.r.Identify(ctx, Request{}))
	assert.Equal(t, common.StatusTransportError, res.HTTPCode)
	assert.ErrorIs(t, res.Err, common.ErrTransport)
	var te *TransportError
	require.ErrorAs(t, res.Err, &te)
	assert.EqualError(t, te.Err, "connection refused")
	assert.True(t, e.r.CurrentMPID().IsZero())

	require.NoError(t, wait(t, e.r.Identify(ctx, Request{})).Err, "guard cleared after transport error")
}

func TestServerError_NoStateChange(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.poster.push(reply{status: 400, body: `{"errors":[{"code":"LOOKUP_ERROR","message":"bad identity"}]}`})

	res := wait(t, e.r.Login(ctx, Request{UserIdentities: map[string]string{"email": "a@b.c"}}))
	assert.Equal(t, 400, res.HTTPCode)
	assert.ErrorIs(t, res.Err, common.ErrServer)
	var se *ServerError
	require.ErrorAs(t, res.Err, &se)
	require.Len(t, se.Errors, 1)
	assert.Equal(t, "LOOKUP_ERROR", se.Errors[0].Code)
	assert.Contains(t, se.Error(), "bad identity")
	assert.True(t, e.r.CurrentMPID().IsZero())

	recs, err := e.store.ListRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestMalformedResponse(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.poster.push(reply{status: 200, body: `{not json`}, reply{status: 200, body: ``})

	done := make(chan Result, 1)
	wait(t, e.r.Identify(ctx, Request{Callback: func(r Result) { done <- r }}))
	res := <-done
	assert.Equal(t, 200, res.HTTPCode)
	assert.Error(t, res.Err)
	assert.Equal(t, `{not json`, string(res.Raw))
	assert.True(t, e.r.CurrentMPID().IsZero())

	res = wait(t, e.r.Identify(ctx, Request{}))
	assert.ErrorContains(t, res.Err, "empty body")
}

func TestAliasHook(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.poster.push(
		reply{status: 200, body: `{"mpid":"1"}`},
		reply{status: 200, body: `{"mpid":"2"}`},
	)
	require.NoError(t, wait(t, e.r.Identify(ctx, Request{})).Err)

	var prev, cur *user.User
	hooked := make(chan struct{})
	cb := make(chan Result, 1)
	e.r.Login(ctx, Request{
		UserIdentities: map[string]string{"customerid": "c2"},
		OnUserAlias: func(p, c *user.User) {
			prev, cur = p, c
			close(hooked)
			panic("hook bug")
		},
		Callback: func(r Result) { cb <- r },
	})

	<-hooked
	res := <-cb
	require.NoError(t, res.Err, "a panicking hook does not fail the call")
	require.NotNil(t, prev)
	require.NotNil(t, cur)
	assert.Equal(t, models.MPID("1"), prev.MPID())
	assert.Equal(t, models.MPID("2"), cur.MPID())
}

func TestCallbackPanicRecovered(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	p := e.r.Identify(ctx, Request{Callback: func(Result) { panic("callback bug") }})
	require.NoError(t, wait(t, p).Err)

	// the resolver keeps working
	require.NoError(t, wait(t, e.r.Identify(ctx, Request{})).Err)
}

func TestMigration_AppliedOnceOnFreshState(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.r.SetMigrationData(&models.MigrationData{
		UserIdentities:  models.UserIdentities{identitytype.CustomerID: "legacy"},
		UserAttributes:  models.Attributes{"old": "yes"},
		CookieSyncDates: models.CookieSyncDates{"3": 99},
	})
	e.poster.push(
		reply{status: 200, body: `{"mpid":"9"}`},
		reply{status: 200, body: `{"mpid":"9"}`},
	)

	p, err := e.r.Start(ctx, Request{UserIdentities: map[string]string{"email": "ignored@x"}})
	require.NoError(t, err)
	require.NoError(t, wait(t, p).Err)

	u := e.r.CurrentUser()
	ids, err := u.GetUserIdentities(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"customerid": "legacy"}, ids, "migration wins over the call's identities")
	attrs, err := u.GetAllUserAttributes(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Attributes{"old": "yes"}, attrs)
	rec, err := e.store.GetRecord(ctx, "9")
	require.NoError(t, err)
	assert.Equal(t, int64(99), rec.CookieSyncDates["3"])

	require.NoError(t, wait(t, e.r.Login(ctx, Request{UserIdentities: map[string]string{"email": "now@x"}})).Err)
	ids, err = u.GetUserIdentities(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"customerid": "legacy", "email": "now@x"}, ids)
}

func TestMigration_SkippedWhenStateExists(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	seedCurrent(t, e.store, &models.Record{MPID: "1", UserAttributes: models.Attributes{"mine": 1}})
	e.r.SetMigrationData(&models.MigrationData{UserAttributes: models.Attributes{"legacy": 1}})
	e.poster.push(reply{status: 200, body: `{"mpid":"1"}`})

	p, err := e.r.Start(ctx, Request{})
	require.NoError(t, err)
	require.NoError(t, wait(t, p).Err)

	attrs, err := e.r.CurrentUser().GetAllUserAttributes(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Attributes{"mine": 1}, attrs)
}

func TestStart_StampsDeviceAndSession(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	p, err := e.r.Start(ctx, Request{})
	require.NoError(t, err)
	require.NoError(t, wait(t, p).Err)

	gs := e.r.Snapshot()
	assert.Equal(t, "id-1", gs.DeviceID)
	assert.Equal(t, "id-2", gs.SessionID)
	body := e.poster.Calls()[0].body.(*request.IdentityRequest)
	assert.Equal(t, "id-1", body.KnownIdentities[common.DeviceStampKey])

	stored, err := e.store.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "id-1", stored.DeviceID)
	assert.Equal(t, models.MPID("1"), stored.CurrentMPID)
}

func TestStart_LoadError(t *testing.T) {
	e := newEnv(t, func(_ *Config, d *Deps) {
		d.Persistence = persistence.NewManager(brokenStore{Memory: store.NewMemory()}, nil)
	})
	_, err := e.r.Start(context.Background(), Request{})
	require.ErrorContains(t, err, "load identity state")
}

type brokenStore struct{ *store.Memory }

func (brokenStore) GetState(context.Context) (*models.GlobalState, error) {
	return nil, errors.New("disk gone")
}

func TestSessionHistoryAndPreviousMPID(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.poster.push(
		reply{status: 200, body: `{"mpid":"1"}`},
		reply{status: 200, body: `{"mpid":"2"}`},
	)
	p, err := e.r.Start(ctx, Request{})
	require.NoError(t, err)
	require.NoError(t, wait(t, p).Err)
	require.NoError(t, wait(t, e.r.Login(ctx, Request{UserIdentities: map[string]string{"email": "a@b"}})).Err)

	assert.Equal(t, []models.MPID{"1", "2"}, e.r.Snapshot().CurrentSessionMPIDs)
	stored, err := e.store.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.MPID{"1", "2"}, stored.CurrentSessionMPIDs)

	second := e.poster.Calls()[1].body.(*request.IdentityRequest)
	require.NotNil(t, second.PreviousMPID)
	assert.Equal(t, models.MPID("1"), *second.PreviousMPID)

	e.sync.mu.Lock()
	defer e.sync.mu.Unlock()
	assert.Equal(t, [][2]models.MPID{{models.NoMPID, "1"}, {"1", "2"}}, e.sync.pairs)
}

func TestForwarders_IdentitiesAndLogout(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.poster.push(
		reply{status: 200, body: `{"mpid":"1"}`},
		reply{status: 200, body: `{"mpid":"0"}`},
	)

	require.NoError(t, wait(t, e.r.Login(ctx, Request{UserIdentities: map[string]string{"email": "a@b"}})).Err)
	require.NoError(t, wait(t, e.r.Logout(ctx, Request{})).Err)

	e.fwd.mu.Lock()
	defer e.fwd.mu.Unlock()
	require.Len(t, e.fwd.ids, 1, "only calls with identities reach forwarders")
	assert.Equal(t, map[string]string{"email": "a@b"}, e.fwd.ids[0])
	require.Len(t, e.fwd.logouts, 1)
	assert.Equal(t, 14, e.fwd.logouts[0].MessageType)
	assert.Equal(t, 3, e.fwd.logouts[0].ProfileMessageType)
	assert.Equal(t, models.MPID("1"), e.fwd.logouts[0].MPID)

	assert.Equal(t, models.MPID("1"), e.r.CurrentMPID(), "a zero mpid in the response does not swap")
}

func TestCurrentUser_NilBeforeIdentity(t *testing.T) {
	e := newEnv(t)
	assert.Nil(t, e.r.CurrentUser())
	assert.Equal(t, models.MPID("x"), e.r.User("x").MPID())
}

func TestCart_EventRoutesThroughResolver(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, wait(t, e.r.Identify(ctx, Request{})).Err)

	cart := e.r.CurrentUser().Cart()
	require.NoError(t, cart.Add(ctx, []models.Product{{Sku: "s", Price: 1}}, true))

	sent := e.sink.Events()
	require.Len(t, sent, 1)
	assert.Equal(t, 16, sent[0].MessageType)
	assert.Equal(t, models.MPID("1"), sent[0].MPID)
	assert.Equal(t, "id-2", sent[0].SessionID)
}

func TestIdentify_WithoutLoadStampsDeviceAndSession(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	require.NoError(t, wait(t, e.r.Identify(ctx, Request{})).Err)

	body := e.poster.Calls()[0].body.(*request.IdentityRequest)
	assert.Equal(t, "id-1", body.KnownIdentities[common.DeviceStampKey])
	gs := e.r.Snapshot()
	assert.Equal(t, "id-1", gs.DeviceID)
	assert.Equal(t, "id-2", gs.SessionID)
}

func TestPending_WaitHonorsContext(t *testing.T) {
	p := newPending()
	_, ok := p.Result()
	assert.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	p.resolve(Result{HTTPCode: 200})
	<-p.Done()
	res, ok := p.Result()
	assert.True(t, ok)
	assert.Equal(t, 200, res.HTTPCode)
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "not_sent", statusLabel(common.StatusNotSent))
	assert.Equal(t, "transport_error", statusLabel(common.StatusTransportError))
	assert.Equal(t, "busy", statusLabel(common.StatusRequestInFlight))
	assert.Equal(t, "404", statusLabel(404))
}

func TestLoad_WithoutNetwork(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	seedCurrent(t, e.store, &models.Record{MPID: "3", UserAttributes: models.Attributes{"a": "b"}})

	require.NoError(t, e.r.Load(ctx))
	assert.Empty(t, e.poster.Calls())
	assert.Equal(t, models.MPID("3"), e.r.CurrentMPID())
	assert.Equal(t, "dev", e.r.Snapshot().DeviceID, "stored stamp is kept")

	require.NoError(t, e.r.CurrentUser().SetUserAttribute(ctx, "c", "d"))
	rec, err := e.store.GetRecord(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, models.Attributes{"a": "b", "c": "d"}, rec.UserAttributes)
}
