package jpe

import (
	"encoding/json"
	"errors"
	"go/types"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/nasa-jpl/cpsc/comm"
	"github.com/nasa-jpl/cpsc/generichttp"

	"golang.org/x/time/rate"
)

// Dialer opens a new session with a controller
type Dialer func() (*CPSC, error)

// HTTPWrapper exposes a controller over HTTP.  Every request gets its own
// session from Dial; requests are handled one at a time and no faster than
// the limiter allows.
type HTTPWrapper struct {
	Dial Dialer

	RouteTable generichttp.RouteTable

	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewHTTPWrapper returns a new HTTP wrapper with the route table pre-configured.
// minInterval is the least time between two sessions, zero for no pacing.
func NewHTTPWrapper(dial Dialer, minInterval time.Duration) *HTTPWrapper {
	lim := rate.NewLimiter(rate.Inf, 1)
	if minInterval > 0 {
		lim = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	w := &HTTPWrapper{Dial: dial, limiter: lim}
	w.RouteTable = generichttp.RouteTable{
		{Method: http.MethodPost, Path: "/move"}: w.HTTPMove,
		{Method: http.MethodPost, Path: "/stop"}: w.HTTPStop,
		{Method: http.MethodPost, Path: "/raw"}:  w.HTTPRaw,
	}
	return w
}

// RT satisfies generichttp.HTTPer
func (h *HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// HTTPMove decodes MoveParams from the body, with defaults for any missing
// field, and moves the stage
func (h *HTTPWrapper) HTTPMove(w http.ResponseWriter, r *http.Request) {
	p := DefaultMoveParams()
	err := json.NewDecoder(r.Body).Decode(&p)
	defer r.Body.Close()
	if err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := p.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.do(w, r, func(c *CPSC) (string, error) { return c.MoveParams(p) })
}

// HTTPStop stops the stage
func (h *HTTPWrapper) HTTPStop(w http.ResponseWriter, r *http.Request) {
	h.do(w, r, (*CPSC).Stop)
}

// HTTPRaw sends {"str": command} to the controller and replies with its answer
func (h *HTTPWrapper) HTTPRaw(w http.ResponseWriter, r *http.Request) {
	str := generichttp.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !comm.IsASCII([]byte(str.Str)) {
		http.Error(w, comm.ErrNotASCII.Error(), http.StatusBadRequest)
		return
	}
	h.do(w, r, func(c *CPSC) (string, error) { return c.Raw(str.Str) })
}

func (h *HTTPWrapper) do(w http.ResponseWriter, r *http.Request, op func(*CPSC) (string, error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.limiter.Wait(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	c, err := h.Dial()
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	defer c.Close()
	resp, err := op(c)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	hp := generichttp.HumanPayload{T: types.String, String: resp}
	hp.EncodeAndRespond(w, r)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, comm.ErrConnectTimeout), errors.Is(err, comm.ErrReadTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
