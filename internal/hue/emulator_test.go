package hue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
	Auth   string
}

// emulator is a small in-memory bridge speaking the v1 API.
type emulator struct {
	mu       sync.Mutex
	state    map[string]map[string]any
	nextID   int
	requests []recordedRequest

	// allLights is group 0, addressable but never listed.
	allLights map[string]any
}

func newEmulator() *emulator {
	return &emulator{
		nextID: 100,
		state: map[string]map[string]any{
			"lights": {
				"1": map[string]any{"name": "Kitchen", "type": "Extended color light", "state": map[string]any{"on": true, "bri": 254.0, "reachable": true}},
				"2": map[string]any{"name": "Desk", "type": "Dimmable light", "state": map[string]any{"on": false, "bri": 100.0, "reachable": true}},
				"3": map[string]any{"name": "Hall", "type": "Dimmable light", "state": map[string]any{"on": true, "bri": 30.0, "reachable": false}},
			},
			"groups": {
				"1": map[string]any{"name": "Living", "lights": []any{"1", "2"}, "type": "Room", "action": map[string]any{"on": true, "bri": 200.0}},
				"2": map[string]any{"name": "Office", "lights": []any{"2"}, "type": "Room", "action": map[string]any{"on": false, "bri": 10.0}},
			},
			"scenes": {
				"abc": map[string]any{"name": "Relax", "lights": []any{"2", "1"}, "type": "LightScene"},
				"def": map[string]any{"name": "Relax", "lights": []any{"2"}, "type": "LightScene"},
				"ghi": map[string]any{"name": "Focus", "lights": []any{"1"}, "type": "LightScene"},
			},
			"sensors": {
				"1": map[string]any{"name": "Daylight", "type": "Daylight", "modelid": "PHDL00",
					"state":  map[string]any{"daylight": false, "lastupdated": "none"},
					"config": map[string]any{"on": true}},
			},
			"schedules": {},
			"config":    {"name": "Philips hue", "apiversion": "1.50.0"},
		},
		allLights: map[string]any{"name": "Group 0", "lights": []any{"1", "2", "3"}, "type": "LightGroup",
			"action": map[string]any{"on": false, "bri": 254.0}},
	}
}

func (e *emulator) server(t *testing.T, prefix string) *httptest.Server {
	t.Helper()

	r := chi.NewRouter()
	r.Use(e.record)
	r.Get(prefix+"/{user}", e.getAll)
	r.Get(prefix+"/{user}/{collection}", e.getCollection)
	r.Put(prefix+"/{user}/{collection}", e.putCollection)
	r.Post(prefix+"/{user}/{collection}", e.create)
	r.Get(prefix+"/{user}/{collection}/{id}", e.getOne)
	r.Put(prefix+"/{user}/{collection}/{id}", e.putRoot)
	r.Delete(prefix+"/{user}/{collection}/{id}", e.remove)
	r.Put(prefix+"/{user}/{collection}/{id}/{section}", e.putSection)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func (e *emulator) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(data))

		var body map[string]any
		if len(data) > 0 {
			_ = json.Unmarshal(data, &body)
		}

		e.mu.Lock()
		e.requests = append(e.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Body:   body,
			Auth:   r.Header.Get("Authorization"),
		})
		e.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (e *emulator) recorded() []recordedRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]recordedRequest, len(e.requests))
	copy(out, e.requests)
	return out
}

// writes returns the recorded non-GET requests.
func (e *emulator) writes() []recordedRequest {
	var out []recordedRequest
	for _, r := range e.recorded() {
		if r.Method != http.MethodGet {
			out = append(out, r)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func notAvailable(w http.ResponseWriter, address string) {
	writeJSON(w, []any{map[string]any{"error": map[string]any{
		"type":        3,
		"address":     address,
		"description": fmt.Sprintf("resource, %s, not available", address),
	}}})
}

func (e *emulator) getAll(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()
	writeJSON(w, e.state)
}

func (e *emulator) getCollection(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()

	coll, ok := e.state[chi.URLParam(r, "collection")]
	if !ok {
		notAvailable(w, "/"+chi.URLParam(r, "collection"))
		return
	}
	writeJSON(w, coll)
}

func (e *emulator) putCollection(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()

	collection := chi.URLParam(r, "collection")
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	coll := e.state[collection]
	var replies []any
	for k, v := range body {
		coll[k] = v
		replies = append(replies, map[string]any{"success": map[string]any{"/" + collection + "/" + k: v}})
	}
	writeJSON(w, replies)
}

func (e *emulator) create(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := strconv.Itoa(e.nextID)
	e.nextID++
	e.state[chi.URLParam(r, "collection")][id] = body
	writeJSON(w, []any{map[string]any{"success": map[string]any{"id": id}}})
}

func (e *emulator) getOne(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()

	collection, id := chi.URLParam(r, "collection"), chi.URLParam(r, "id")
	doc, ok := e.lookup(collection, id)
	if !ok {
		notAvailable(w, "/"+collection+"/"+id)
		return
	}
	writeJSON(w, doc)
}

func (e *emulator) lookup(collection, id string) (any, bool) {
	if collection == "groups" && id == "0" {
		return e.allLights, true
	}
	doc, ok := e.state[collection][id]
	return doc, ok
}

func (e *emulator) putRoot(w http.ResponseWriter, r *http.Request) {
	e.putInto(w, r, "")
}

func (e *emulator) putSection(w http.ResponseWriter, r *http.Request) {
	e.putInto(w, r, chi.URLParam(r, "section"))
}

func (e *emulator) putInto(w http.ResponseWriter, r *http.Request, section string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	collection, id := chi.URLParam(r, "collection"), chi.URLParam(r, "id")
	address := "/" + collection + "/" + id
	raw, ok := e.lookup(collection, id)
	if !ok {
		notAvailable(w, address)
		return
	}
	doc := raw.(map[string]any)

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	target := doc
	if section != "" {
		address += "/" + section
		sec, _ := doc[section].(map[string]any)
		if sec == nil {
			sec = map[string]any{}
			doc[section] = sec
		}
		target = sec
	}

	var replies []any
	for k, v := range body {
		if k == "bri" {
			if n, _ := v.(float64); n > 254 {
				replies = append(replies, map[string]any{"error": map[string]any{
					"type":        7,
					"address":     address + "/bri",
					"description": fmt.Sprintf("invalid value, %v, for parameter, bri", v),
				}})
				continue
			}
		}
		target[k] = v
		replies = append(replies, map[string]any{"success": map[string]any{address + "/" + k: v}})
	}
	writeJSON(w, replies)
}

func (e *emulator) remove(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	defer e.mu.Unlock()

	collection, id := chi.URLParam(r, "collection"), chi.URLParam(r, "id")
	address := "/" + collection + "/" + id
	if _, ok := e.state[collection][id]; !ok {
		notAvailable(w, address)
		return
	}
	delete(e.state[collection], id)
	writeJSON(w, []any{map[string]any{"success": address + " deleted"}})
}
