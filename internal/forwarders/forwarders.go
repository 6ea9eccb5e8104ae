// Package forwarders broadcasts user changes to third-party integrations.
//
// Every broadcast returns one Outcome per forwarder reached. A failing or
// panicking forwarder never stops the others.
package forwarders

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/idsync/internal/logging"
	"github.com/dmitrijs2005/idsync/internal/metrics"
	"github.com/dmitrijs2005/idsync/internal/models"
)

// Forwarder is one integration.
type Forwarder interface {
	Name() string
	SetUserAttribute(ctx context.Context, key string, value any) error
	RemoveUserAttribute(ctx context.Context, key string) error
	SetUserIdentities(ctx context.Context, ids map[string]string) error
}

// LogOuter is implemented by forwarders that care about logouts.
type LogOuter interface {
	LogOut(ctx context.Context, ev *models.Event) error
}

// Outcome is the result of one forwarder call.
type Outcome struct {
	Forwarder string
	Err       error
}

// Failed returns the outcomes that carry an error.
func Failed(outcomes []Outcome) []Outcome {
	var out []Outcome
	for _, o := range outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Registry holds the active forwarders.
type Registry struct {
	mu   sync.RWMutex
	fwds []Forwarder
	log  logging.Logger
}

// NewRegistry returns a registry holding fwds in call order.
func NewRegistry(log logging.Logger, fwds ...Forwarder) *Registry {
	if log == nil {
		log = logging.Discard()
	}
	return &Registry{fwds: fwds, log: log}
}

// Register appends f; it receives calls made after it was added.
func (r *Registry) Register(f Forwarder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fwds = append(r.fwds, f)
}

// Len reports how many forwarders are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fwds)
}

// SetUserAttribute broadcasts an attribute write.
func (r *Registry) SetUserAttribute(ctx context.Context, key string, value any) []Outcome {
	return r.Apply(ctx, "setUserAttribute", func(f Forwarder) error {
		return f.SetUserAttribute(ctx, key, value)
	})
}

// RemoveUserAttribute broadcasts an attribute removal.
func (r *Registry) RemoveUserAttribute(ctx context.Context, key string) []Outcome {
	return r.Apply(ctx, "removeUserAttribute", func(f Forwarder) error {
		return f.RemoveUserAttribute(ctx, key)
	})
}

// SetUserIdentities broadcasts identities; each forwarder gets its own copy.
func (r *Registry) SetUserIdentities(ctx context.Context, ids map[string]string) []Outcome {
	return r.Apply(ctx, "setUserIdentities", func(f Forwarder) error {
		cp := make(map[string]string, len(ids))
		for k, v := range ids {
			cp[k] = v
		}
		return f.SetUserIdentities(ctx, cp)
	})
}

// LogOut reaches only forwarders implementing LogOuter.
func (r *Registry) LogOut(ctx context.Context, ev *models.Event) []Outcome {
	var outcomes []Outcome
	for _, f := range r.snapshot() {
		lo, ok := f.(LogOuter)
		if !ok {
			continue
		}
		outcomes = append(outcomes, r.call(ctx, "logOut", f, func(Forwarder) error {
			return lo.LogOut(ctx, ev)
		}))
	}
	return outcomes
}

// Apply runs fn against every forwarder; name labels logs and metrics.
func (r *Registry) Apply(ctx context.Context, name string, fn func(Forwarder) error) []Outcome {
	fwds := r.snapshot()
	outcomes := make([]Outcome, 0, len(fwds))
	for _, f := range fwds {
		outcomes = append(outcomes, r.call(ctx, name, f, fn))
	}
	return outcomes
}

func (r *Registry) snapshot() []Forwarder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Forwarder(nil), r.fwds...)
}

func (r *Registry) call(ctx context.Context, method string, f Forwarder, fn func(Forwarder) error) (o Outcome) {
	o.Forwarder = f.Name()
	defer func() {
		if p := recover(); p != nil {
			o.Err = fmt.Errorf("forwarder %s panicked: %v", o.Forwarder, p)
		}
		if o.Err != nil {
			metrics.RecordForwarderError(o.Forwarder, method)
			r.log.Warn(ctx, "forwarder call failed", "forwarder", o.Forwarder, "method", method, "err", o.Err)
		}
	}()
	o.Err = fn(f)
	return o
}

// LogForwarder writes every call it receives to a logger. It stands in for a
// real integration when debugging.
type LogForwarder struct {
	log logging.Logger
}

// NewLogForwarder logs through log tagged with forwarder=log.
func NewLogForwarder(log logging.Logger) *LogForwarder {
	return &LogForwarder{log: log.With("forwarder", "log")}
}

func (f *LogForwarder) Name() string { return "log" }

func (f *LogForwarder) SetUserAttribute(ctx context.Context, key string, value any) error {
	f.log.Info(ctx, "forward set user attribute", "key", key, "value", value)
	return nil
}

func (f *LogForwarder) RemoveUserAttribute(ctx context.Context, key string) error {
	f.log.Info(ctx, "forward remove user attribute", "key", key)
	return nil
}

func (f *LogForwarder) SetUserIdentities(ctx context.Context, ids map[string]string) error {
	f.log.Info(ctx, "forward set user identities", "identities", ids)
	return nil
}

func (f *LogForwarder) LogOut(ctx context.Context, ev *models.Event) error {
	f.log.Info(ctx, "forward logout", "mpid", ev.MPID)
	return nil
}
