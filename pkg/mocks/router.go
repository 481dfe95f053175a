package mocks

import (
	"context"
	"net/http"
	"time"

	"github.com/varmock/varmock/pkg/handler"
	"github.com/varmock/varmock/pkg/httputil"
	"github.com/varmock/varmock/pkg/route"
)

// DelayFunc returns the global response delay.
type DelayFunc func() time.Duration

// Router dispatches requests over an ordered, immutable list of variants.
type Router struct {
	variants []*route.Variant
	delay    DelayFunc
	observe  func(*route.Variant)
}

// NewRouter returns a router over variants. A nil delay means no global
// delay; observe, when set, is called for every variant about to respond.
func NewRouter(variants []*route.Variant, delay DelayFunc, observe func(*route.Variant)) *Router {
	return &Router{variants: variants, delay: delay, observe: observe}
}

// Len returns the number of variants.
func (rt *Router) Len() int { return len(rt.variants) }

// Dispatch serves r with the first matching variant. A handler that calls its
// continuation hands the request to the next matching variant; when none is
// left, next runs.
func (rt *Router) Dispatch(w http.ResponseWriter, r *http.Request, next http.Handler) {
	rt.dispatch(w, r, next, 0)
}

func (rt *Router) dispatch(w http.ResponseWriter, r *http.Request, next http.Handler, from int) {
	for i := from; i < len(rt.variants); i++ {
		v := rt.variants[i]
		params, ok := v.Match(r)
		if !ok {
			continue
		}
		if !wait(r.Context(), rt.delayFor(v)) {
			httputil.WriteError(w, http.StatusServiceUnavailable, "Delayed response cancelled")
			return
		}
		if rt.observe != nil {
			rt.observe(v)
		}
		cont := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rt.dispatch(w, r, next, i+1)
		})
		v.Handler.Handle(w, handler.WithParams(r, params), cont)
		return
	}
	if next != nil {
		next.ServeHTTP(w, r)
	}
}

func (rt *Router) delayFor(v *route.Variant) time.Duration {
	if v.Delay != nil {
		return *v.Delay
	}
	if rt.delay != nil {
		return rt.delay()
	}
	return 0
}

// wait blocks for d or until ctx is done. It reports whether the full delay
// elapsed.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
