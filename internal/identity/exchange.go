package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/idsync/internal/common"
	"github.com/dmitrijs2005/idsync/internal/events"
	"github.com/dmitrijs2005/idsync/internal/metrics"
	"github.com/dmitrijs2005/idsync/internal/models"
	"github.com/dmitrijs2005/idsync/internal/request"
	"github.com/dmitrijs2005/idsync/internal/user"
	"github.com/dmitrijs2005/idsync/internal/validate"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// call carries one identity request through its lifecycle.
type call struct {
	op      validate.Operation
	req     Request
	path    string
	body    any
	pending *Pending
	span    trace.Span

	// previous is the MPID captured at send time; NoMPID on first run.
	previous models.MPID
}

type aliasPair struct {
	previous, current *user.User
}

func (r *Resolver) dispatch(ctx context.Context, op validate.Operation, req Request) *Pending {
	ctx, span := r.deps.Tracer.Start(ctx, "identity."+string(op),
		trace.WithAttributes(attribute.String("identity.operation", string(op))))
	c := &call{op: op, req: req, pending: newPending(), span: span}

	r.deps.Log.Debug(ctx, "identity call", "op", op)

	warning, err := validate.Identities(req.UserIdentities, op)
	if err != nil {
		r.deps.Log.Debug(ctx, "identity request rejected", "op", op, "err", err)
		return r.rejected(ctx, c, Result{HTTPCode: common.StatusNotSent, Err: err}, "invalid")
	}
	if warning != "" {
		r.deps.Log.Debug(ctx, "identity request warning", "op", op, "warning", warning)
	}

	if !r.canLog() {
		r.deps.Log.Debug(ctx, "logging disabled, identity call abandoned", "op", op)
		return r.rejected(ctx, c, Result{HTTPCode: common.StatusNotSent, Err: common.ErrDisabled}, "disabled")
	}

	if path, ok := nativePaths[op]; ok && r.deps.Bridge.TryNativeSdk(path, r.nativePayload(ctx, req)) {
		return r.rejected(ctx, c, Result{HTTPCode: common.StatusNotSent, Native: true}, "native")
	}

	r.mu.Lock()
	if r.flight == inFlight {
		r.mu.Unlock()
		r.deps.Log.Debug(ctx, "identity request already in flight", "op", op)
		return r.rejected(ctx, c, Result{HTTPCode: common.StatusRequestInFlight, Err: common.ErrBusy}, "busy")
	}
	r.flight = inFlight
	r.stampLocked()

	st := r.st
	if !st.IsFirstRun && !st.MPID.IsZero() {
		c.previous = st.MPID
	}
	if op == validate.OpModify {
		c.path = string(st.MPID) + "/modify"
		c.body = r.deps.Builder.BuildModifyRequest(st.UserIdentities, req.UserIdentities, st.Context)
	} else {
		c.path = string(op)
		c.body = r.deps.Builder.BuildIdentityRequest(req.UserIdentities, st.DeviceID, st.Context, st.MPID)
	}
	mpid, sid := st.MPID, st.SessionID
	r.mu.Unlock()

	go r.run(ctx, c)

	if op == validate.OpLogout {
		ev := events.NewLogout(mpid, sid, r.deps.Now())
		r.deps.Forwarders.LogOut(ctx, ev)
	}
	return c.pending
}

// run performs the exchange and completes c.pending.
func (r *Resolver) run(ctx context.Context, c *call) {
	start := r.deps.Now()
	res, alias := r.send(ctx, c)
	metrics.RecordRequest(string(c.op), statusLabel(res.HTTPCode), r.deps.Now().Sub(start).Seconds())
	r.endSpan(c, res)

	if res.HTTPCode == http.StatusOK && res.Err == nil {
		if alias != nil {
			r.runAliasHook(ctx, c.req.OnUserAlias, alias)
		}
		if len(c.req.UserIdentities) > 0 {
			r.deps.Forwarders.SetUserIdentities(ctx, c.req.UserIdentities)
		}
	}
	r.deliver(ctx, c, res)
}

// send posts the request and applies a successful response. The flight
// guard is idle again when it returns, panics included.
func (r *Resolver) send(ctx context.Context, c *call) (res Result, alias *aliasPair) {
	defer func() {
		if p := recover(); p != nil {
			r.finish(ctx)
			r.deps.Log.Error(ctx, "identity exchange panicked", "op", c.op, "panic", p)
			res = Result{HTTPCode: res.HTTPCode, Raw: res.Raw, Err: fmt.Errorf("identity exchange panicked: %v", p)}
			if res.HTTPCode == 0 {
				res.HTTPCode = common.StatusTransportError
			}
			alias = nil
		}
	}()

	resp, err := r.deps.Transport.Post(ctx, c.path, c.body)
	if err != nil {
		r.finish(ctx)
		r.deps.Log.Error(ctx, "identity request failed", "op", c.op, "err", err)
		return Result{HTTPCode: common.StatusTransportError, Err: &TransportError{Err: err}}, nil
	}
	r.deps.Log.Debug(ctx, "identity response", "op", c.op, "status", resp.Status, "text", resp.StatusText)

	res = Result{HTTPCode: resp.Status, Raw: resp.Body}
	var parseErr error
	if len(resp.Body) > 0 {
		var body request.IdentityResponse
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			parseErr = err
		} else {
			res.Body = &body
		}
	}

	if resp.Status != http.StatusOK {
		r.finish(ctx)
		se := &ServerError{Status: resp.Status}
		if res.Body != nil {
			se.Errors = res.Body.Errors
		}
		res.Err = se
		return res, nil
	}
	if parseErr != nil {
		r.finish(ctx)
		r.deps.Log.Error(ctx, "decode identity response", "op", c.op, "err", parseErr)
		res.Err = fmt.Errorf("decode identity response: %w", parseErr)
		return res, nil
	}
	if res.Body == nil && c.op != validate.OpModify {
		r.finish(ctx)
		res.Err = errors.New("decode identity response: empty body")
		return res, nil
	}

	return res, r.apply(ctx, c, res.Body)
}

// finish releases the flight guard after a failed exchange. Events queued
// behind the request go out under the MPID still in force.
func (r *Resolver) finish(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flight = idle
	r.flushQueueLocked(ctx)
}

// apply updates the session from a 200 response.
func (r *Resolver) apply(ctx context.Context, c *call, body *request.IdentityResponse) *aliasPair {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flight = idle

	st := r.st
	previousUser := r.currentUserLocked()

	if c.op == validate.OpModify {
		st.UserIdentities = request.MergeIdentities(st.UserIdentities, c.req.UserIdentities)
		r.persist(ctx)
		r.flushQueueLocked(ctx)
	} else {
		r.applyIdentity(ctx, c, body)
	}

	if c.req.OnUserAlias == nil {
		return nil
	}
	return &aliasPair{previous: previousUser, current: r.currentUserLocked()}
}

// applyIdentity handles identify, login and logout responses. Callers hold
// r.mu.
func (r *Resolver) applyIdentity(ctx context.Context, c *call, body *request.IdentityResponse) {
	st := r.st
	next := body.MPID

	if st.SessionID != "" && !next.IsZero() && c.previous != next && st.AddSessionMPID(next) {
		r.persist(ctx)
	}
	if !next.IsZero() && next != st.MPID {
		r.swapIdentity(ctx, st.MPID, next)
	}

	r.deps.CookieSync.AttemptCookieSync(ctx, c.previous, st.MPID)

	r.flushQueueLocked(ctx)

	if m := st.TakeMigration(); m != nil {
		st.UserIdentities = m.UserIdentities.Clone()
		st.UserAttributes = m.UserAttributes.Clone()
		st.CookieSyncDates = m.CookieSyncDates.Clone()
		r.deps.Log.Info(ctx, "migration data applied", "mpid", st.MPID)
	} else if len(c.req.UserIdentities) > 0 {
		st.UserIdentities = request.MergeIdentities(st.UserIdentities, c.req.UserIdentities)
	}
	st.IsFirstRun = false

	r.persist(ctx)
	r.reconcile(ctx, c.req.UserIdentities)

	if body.Context != "" {
		st.Context = body.Context
		r.persist(ctx)
	}
}

// flushQueueLocked sends queued events tagged with the current MPID. It does
// nothing while no MPID is known. Callers hold r.mu.
func (r *Resolver) flushQueueLocked(ctx context.Context) {
	st := r.st
	if len(st.EventQueue) == 0 || st.MPID.IsZero() {
		return
	}
	queued := st.DrainQueue(st.MPID)
	for _, ev := range queued {
		if err := r.deps.Sink.Send(ctx, ev); err != nil {
			r.deps.Log.Warn(ctx, "send queued event", "name", ev.Name, "err", err)
		}
	}
	metrics.RecordFlushed(len(queued))
	r.deps.Log.Debug(ctx, "queued events flushed", "mpid", st.MPID, "count", len(queued))
}

// reconcile looks for stored records sharing an identity with the call.
// Only the current MPID's working set is ever refreshed.
func (r *Resolver) reconcile(ctx context.Context, ids map[string]string) {
	if len(ids) == 0 {
		return
	}
	matched, ok, err := r.deps.Persistence.FindPrevRecordsByIdentities(ctx, request.MergeIdentities(nil, ids))
	if err != nil {
		r.deps.Log.Warn(ctx, "reconcile previous records", "err", err)
		return
	}
	if !ok {
		return
	}
	if matched != r.st.MPID {
		r.deps.Log.Debug(ctx, "identity known under another mpid", "mpid", r.st.MPID, "matched", matched)
		return
	}
	if err := r.deps.Persistence.StoreDataInMemory(ctx, r.st, matched); err != nil {
		r.deps.Log.Warn(ctx, "refresh working set", "mpid", matched, "err", err)
	}
}

func (r *Resolver) runAliasHook(ctx context.Context, hook AliasHook, p *aliasPair) {
	defer func() {
		if rec := recover(); rec != nil {
			r.deps.Log.Error(ctx, "user alias hook panicked", "panic", rec)
		}
	}()
	hook(p.previous, p.current)
}

// deliver completes the pending result and runs the callback.
func (r *Resolver) deliver(ctx context.Context, c *call, res Result) {
	c.pending.resolve(res)

	if c.req.Callback == nil {
		var se *ServerError
		if errors.As(res.Err, &se) && len(se.Errors) > 0 {
			r.deps.Log.Warn(ctx, "identity response error", "op", c.op, "status", se.Status, "message", se.Errors[0].Message)
		}
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.deps.Log.Error(ctx, "identity callback panicked", "op", c.op, "err", fmt.Errorf("%w: %v", common.ErrCallback, rec))
		}
	}()
	c.req.Callback(res)
}

func (r *Resolver) endSpan(c *call, res Result) {
	c.span.SetAttributes(attribute.Int("http.status_code", res.HTTPCode))
	if res.Err != nil {
		c.span.RecordError(res.Err)
		c.span.SetStatus(codes.Error, res.Err.Error())
	}
	c.span.End()
}

func statusLabel(code int) string {
	switch code {
	case common.StatusNotSent:
		return "not_sent"
	case common.StatusTransportError:
		return "transport_error"
	case common.StatusRequestInFlight:
		return "busy"
	default:
		return strconv.Itoa(code)
	}
}
