package hue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dokzlo13/huebridge/internal/remote"
	"github.com/dokzlo13/huebridge/internal/transport"
)

// DefaultMaxConcurrent bounds the in-flight calls of one dispatch.
const DefaultMaxConcurrent = 10

type resourceKey struct {
	kind Kind
	id   string
}

// Dispatcher turns payloads for resolved ids into bridge calls. It owns the sticky
// transition times and the brightness remembered across an off-with-transition.
//
// Lights turned off with a transition time come back on at a wrong brightness, so
// the brightness cached before such an off is injected into the next plain "on".
type Dispatcher struct {
	transport     transport.Transport
	dir           *Directory
	maxConcurrent int

	mu          sync.Mutex
	transitions map[resourceKey]int
	restoreBri  map[resourceKey]int
}

// NewDispatcher creates a dispatcher. maxConcurrent <= 0 means DefaultMaxConcurrent.
func NewDispatcher(t transport.Transport, dir *Directory, maxConcurrent int) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Dispatcher{
		transport:     t,
		dir:           dir,
		maxConcurrent: maxConcurrent,
		transitions:   make(map[resourceKey]int),
		restoreBri:    make(map[resourceKey]int),
	}
}

// SetTransitionTime makes ds the default transition time of a resource.
func (d *Dispatcher) SetTransitionTime(kind Kind, id string, ds int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transitions[resourceKey{kind, id}] = ds
}

// ClearTransitionTime removes the default transition time of a resource.
func (d *Dispatcher) ClearTransitionTime(kind Kind, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.transitions, resourceKey{kind, id})
}

// TransitionTime returns the default transition time of a resource.
func (d *Dispatcher) TransitionTime(kind Kind, id string) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ds, ok := d.transitions[resourceKey{kind, id}]
	return ds, ok
}

// RememberedBrightness returns the brightness pending restore for a resource.
func (d *Dispatcher) RememberedBrightness(kind Kind, id string) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	bri, ok := d.restoreBri[resourceKey{kind, id}]
	return bri, ok
}

// Dispatch writes p to every id and returns one outcome per id in the same order.
// A failing id never stops the others. An invalid payload fails every outcome
// without any call.
func (d *Dispatcher) Dispatch(ctx context.Context, kind Kind, ids []string, p Payload) Result {
	cid := uuid.NewString()

	root, state, err := split(kind, p)
	if err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Str("dispatch", cid).Msg("Payload rejected")
		return failAll(kind, cid, ids, err)
	}

	start := time.Now()
	res := d.fanOut(kind, cid, ids, func(id string) Outcome {
		return d.dispatchOne(ctx, kind, id, root, state)
	})

	log.Debug().
		Str("dispatch", cid).
		Str("kind", string(kind)).
		Int("ids", len(ids)).
		Int("failed", len(res.Failed())).
		Dur("took", time.Since(start)).
		Msg("Dispatched")
	return res
}

// DispatchSection writes p verbatim to a nested section such as a sensor's
// "state" or "config", whose keys are defined by the device.
func (d *Dispatcher) DispatchSection(ctx context.Context, kind Kind, ids []string, section string, p Payload) Result {
	cid := uuid.NewString()
	if len(p) == 0 {
		return failAll(kind, cid, ids, fmt.Errorf("%w: empty payload", ErrUnknownAttribute))
	}

	return d.fanOut(kind, cid, ids, func(id string) Outcome {
		body := p.Clone()
		path := "/" + kind.Collection() + "/" + id + "/" + section
		success, err := d.write(ctx, http.MethodPut, path, body)
		if err == nil {
			d.dir.Apply(kind, id, section, body)
		}
		return Outcome{ID: id, Success: success, Err: err}
	})
}

func (d *Dispatcher) fanOut(kind Kind, cid string, ids []string, fn func(id string) Outcome) Result {
	res := Result{Kind: kind, CorrelationID: cid, Outcomes: make([]Outcome, len(ids))}

	var g errgroup.Group
	g.SetLimit(d.maxConcurrent)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			res.Outcomes[i] = fn(id)
			return nil
		})
	}
	_ = g.Wait()
	return res
}

func (d *Dispatcher) dispatchOne(ctx context.Context, kind Kind, id string, root, state Payload) Outcome {
	out := Outcome{ID: id, Success: make(map[string]any)}
	var errs []error

	if len(root) > 0 {
		body := root.Clone()
		success, err := d.write(ctx, http.MethodPut, kind.Path(id, EndpointRoot), body)
		for k, v := range success {
			out.Success[k] = v
		}
		if err != nil {
			errs = append(errs, err)
		} else {
			d.dir.Apply(kind, id, "", body)
		}
	}

	if len(state) > 0 {
		success, err := d.writeState(ctx, kind, id, state.Clone())
		for k, v := range success {
			out.Success[k] = v
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	out.Err = errors.Join(errs...)
	return out
}

func (d *Dispatcher) writeState(ctx context.Context, kind Kind, id string, body Payload) (map[string]any, error) {
	key := resourceKey{kind, id}

	if _, ok := body[attrTransitionTime]; !ok {
		if ds, ok := d.TransitionTime(kind, id); ok {
			body[attrTransitionTime] = ds
		}
	}

	on, hasOn := boolValue(body["on"])
	_, explicitBri := body["bri"]
	tt, _ := intValue(body[attrTransitionTime])

	// Capture the brightness before the off; the cache changes once it succeeds.
	var prevBri int
	var rememberOff bool
	if hasOn && !on && tt > 0 {
		prevBri, rememberOff = d.dir.Brightness(kind, id)
	}

	injected := false
	if hasOn && on && !explicitBri {
		if bri, ok := d.RememberedBrightness(kind, id); ok {
			body["bri"] = bri
			injected = true
			log.Debug().
				Str("kind", string(kind)).
				Str("id", id).
				Int("bri", bri).
				Msg("Restoring brightness after off with transition")
		}
	}

	success, err := d.write(ctx, http.MethodPut, kind.Path(id, EndpointState), body)
	if err != nil {
		if len(success) > 0 {
			d.dir.Apply(kind, id, kind.Section(), cacheable(body, success))
		}
		return success, err
	}

	d.mu.Lock()
	if explicitBri || injected {
		delete(d.restoreBri, key)
	}
	if rememberOff {
		d.restoreBri[key] = prevBri
	}
	d.mu.Unlock()

	d.dir.Apply(kind, id, kind.Section(), cacheable(body, nil))
	return success, nil
}

// cacheable returns the absolute state values of body worth merging into the
// directory. With echoed non-nil, only attributes the bridge confirmed are kept.
func cacheable(body Payload, echoed map[string]any) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		if k == attrTransitionTime || k == "scene" || strings.HasSuffix(k, "_inc") {
			continue
		}
		if echoed != nil {
			if _, ok := echoed[k]; !ok {
				continue
			}
		}
		out[k] = v
	}
	return out
}

// Fetched is the fresh document of one resource.
type Fetched struct {
	ID  string
	Doc Snapshot
	Err error
}

// Fetch reads every id from the bridge concurrently, in order, and refreshes the
// directory entries it got.
func (d *Dispatcher) Fetch(ctx context.Context, kind Kind, ids []string) []Fetched {
	out := make([]Fetched, len(ids))

	var g errgroup.Group
	g.SetLimit(d.maxConcurrent)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			var doc Snapshot
			err := d.Read(ctx, kind.Path(id, EndpointRoot), &doc)
			if err == nil && !isImplicit(kind, id) {
				d.dir.Put(kind, id, doc)
			}
			out[i] = Fetched{ID: id, Doc: doc, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Read performs a GET and decodes the document into out.
func (d *Dispatcher) Read(ctx context.Context, path string, out any) error {
	req := &transport.Request{Method: http.MethodGet, Path: path}
	resp, err := d.do(ctx, req)
	if err != nil {
		return err
	}
	return decodeDocument(req, resp, out)
}

// Call performs a single write outside the batch path, e.g. creating or deleting
// a resource. A nil body sends no body.
func (d *Dispatcher) Call(ctx context.Context, method, path string, body any) (map[string]any, error) {
	return d.write(ctx, method, path, body)
}

func (d *Dispatcher) write(ctx context.Context, method, path string, body any) (map[string]any, error) {
	req := &transport.Request{Method: method, Path: path}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode body for %s: %w", path, err)
		}
		req.Body = data
	}

	resp, err := d.do(ctx, req)
	if err != nil {
		return nil, err
	}

	success, err := parseReply(req, resp)
	if err != nil {
		log.Warn().Err(err).Str("method", method).Str("path", path).Msg("Bridge rejected command")
	}
	return success, err
}

// do keeps credential errors in their own category; everything else that stops a
// request from completing is a transport failure.
func (d *Dispatcher) do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	resp, err := d.transport.Do(ctx, req)
	if err != nil {
		if remote.IsCredentialError(err) {
			return nil, err
		}
		return nil, transport.Wrap(req, err)
	}
	return resp, nil
}
