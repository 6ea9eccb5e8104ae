package identity

import (
	"context"

	"github.com/dmitrijs2005/idsync/internal/request"
)

// Result is what a callback and a Pending receive.
type Result struct {
	// HTTPCode is the response status, or one of the common.Status* values
	// when nothing was received.
	HTTPCode int
	Body     *request.IdentityResponse
	Raw      []byte
	Err      error
	// Native is set when a native host took the call instead.
	Native bool
}

// Callback receives the result of one identity call.
type Callback func(Result)

// Pending is the future of one identity call.
type Pending struct {
	done chan struct{}
	res  Result
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) resolve(res Result) {
	p.res = res
	close(p.done)
}

// Done is closed once the result is available.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the call completes or ctx ends.
func (p *Pending) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		return p.res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Result returns the result and whether the call has completed.
func (p *Pending) Result() (Result, bool) {
	select {
	case <-p.done:
		return p.res, true
	default:
		return Result{}, false
	}
}
