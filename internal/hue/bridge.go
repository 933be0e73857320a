package hue

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huebridge/internal/remote"
	"github.com/dokzlo13/huebridge/internal/transport"
)

// Mode is how the bridge is reached.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
	ModeCustom Mode = "custom"
)

type options struct {
	username      string
	namePolicy    NamePolicy
	maxConcurrent int
	rateLimit     float64
	timeout       time.Duration
	relayBaseURL  string
	httpOpts      []transport.HTTPOption
}

// Option configures a Bridge.
type Option func(*options)

// WithUsername sets the whitelisted username, needed for schedule commands when
// the bridge is built over a custom transport.
func WithUsername(username string) Option {
	return func(o *options) { o.username = username }
}

// WithNamePolicy sets how duplicate names resolve.
func WithNamePolicy(p NamePolicy) Option {
	return func(o *options) { o.namePolicy = p }
}

// WithMaxConcurrent bounds the in-flight calls of one dispatch.
func WithMaxConcurrent(n int) Option {
	return func(o *options) { o.maxConcurrent = n }
}

// WithRateLimit caps requests per second; negative disables limiting.
func WithRateLimit(rps float64) Option {
	return func(o *options) { o.rateLimit = rps }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRelayBaseURL overrides the cloud relay route.
func WithRelayBaseURL(url string) Option {
	return func(o *options) { o.relayBaseURL = url }
}

// WithHTTPOptions passes options to the HTTP transport.
func WithHTTPOptions(opts ...transport.HTTPOption) Option {
	return func(o *options) { o.httpOpts = append(o.httpOpts, opts...) }
}

func buildOptions(opts []Option) options {
	o := options{
		namePolicy:    NamePolicyFirst,
		maxConcurrent: DefaultMaxConcurrent,
		rateLimit:     transport.DefaultRateLimit,
		timeout:       transport.DefaultTimeout,
		relayBaseURL:  remote.DefaultRelayBaseURL,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Bridge is the public surface: it resolves identifiers, dispatches commands and
// keeps the resource directory.
type Bridge struct {
	mode       Mode
	username   string
	transport  transport.Transport
	dir        *Directory
	resolver   *Resolver
	dispatcher *Dispatcher
	closer     func() error
}

// NewLocal creates a bridge reached directly at address, e.g. "192.168.1.2".
func NewLocal(address, username string, opts ...Option) (*Bridge, error) {
	if address == "" {
		return nil, fmt.Errorf("bridge address is required")
	}
	if username == "" {
		return nil, fmt.Errorf("bridge username is required")
	}
	o := buildOptions(append([]Option{WithUsername(username)}, opts...))

	base := address
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	h := transport.NewHTTP(strings.TrimRight(base, "/")+"/api/"+username, o.timeout, o.httpOpts...)

	b := newBridge(ModeLocal, transport.NewLimited(h, o.rateLimit), o)
	b.closer = h.Close
	log.Debug().Str("base_url", h.BaseURL()).Msg("Local bridge configured")
	return b, nil
}

// NewRemote creates a bridge reached through the cloud relay. Every request first
// makes sure tokens holds a valid access token.
func NewRemote(username string, tokens remote.TokenSource, opts ...Option) (*Bridge, error) {
	if username == "" {
		return nil, fmt.Errorf("bridge username is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token source is required for remote access")
	}
	o := buildOptions(append([]Option{WithUsername(username)}, opts...))

	h := transport.NewHTTP(strings.TrimRight(o.relayBaseURL, "/")+"/"+username, o.timeout, o.httpOpts...)
	authorized := remote.NewAuthorizer(h, tokens)

	b := newBridge(ModeRemote, transport.NewLimited(authorized, o.rateLimit), o)
	b.closer = h.Close
	log.Debug().Str("base_url", h.BaseURL()).Msg("Remote bridge configured")
	return b, nil
}

// New creates a bridge over a caller-supplied transport, used as is.
func New(t transport.Transport, opts ...Option) *Bridge {
	return newBridge(ModeCustom, t, buildOptions(opts))
}

func newBridge(mode Mode, t transport.Transport, o options) *Bridge {
	b := &Bridge{
		mode:      mode,
		username:  o.username,
		transport: t,
		dir:       NewDirectory(),
	}
	b.dispatcher = NewDispatcher(t, b.dir, o.maxConcurrent)
	b.resolver = NewResolver(b.dir, b.RefreshKind, o.namePolicy)
	return b
}

// Mode returns how the bridge is reached.
func (b *Bridge) Mode() Mode {
	return b.mode
}

// Directory returns the resource cache.
func (b *Bridge) Directory() *Directory {
	return b.dir
}

// Dispatcher returns the command dispatcher.
func (b *Bridge) Dispatcher() *Dispatcher {
	return b.dispatcher
}

// Close releases idle connections.
func (b *Bridge) Close() error {
	if b.closer != nil {
		return b.closer()
	}
	return nil
}

// API returns the full state document of the bridge.
func (b *Bridge) API(ctx context.Context) (map[string]any, error) {
	var doc map[string]any
	if err := b.dispatcher.Read(ctx, "", &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Refresh reloads every kind from the full state document.
func (b *Bridge) Refresh(ctx context.Context) error {
	doc, err := b.API(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh directory: %w", err)
	}
	for _, kind := range kinds {
		b.dir.Replace(kind, snapshots(doc[kind.Collection()]))
	}
	return nil
}

// RefreshKind reloads one kind.
func (b *Bridge) RefreshKind(ctx context.Context, kind Kind) error {
	var docs map[string]Snapshot
	if err := b.dispatcher.Read(ctx, "/"+kind.Collection(), &docs); err != nil {
		return err
	}
	b.dir.Replace(kind, docs)
	return nil
}

func (b *Bridge) ensureLoaded(ctx context.Context, kind Kind) error {
	if b.dir.Loaded(kind) {
		return nil
	}
	return b.RefreshKind(ctx, kind)
}

func snapshots(v any) map[string]Snapshot {
	raw, _ := v.(map[string]any)
	out := make(map[string]Snapshot, len(raw))
	for id, doc := range raw {
		if m, ok := doc.(map[string]any); ok {
			out[id] = Snapshot(m)
		}
	}
	return out
}

// Resolve returns the ids ident addresses.
func (b *Bridge) Resolve(ctx context.Context, kind Kind, ident Identifier) ([]string, error) {
	return b.resolver.Resolve(ctx, kind, ident)
}

func (b *Bridge) resolveOne(ctx context.Context, kind Kind, ident Identifier) (string, error) {
	ids, err := b.Resolve(ctx, kind, ident)
	if err != nil {
		return "", err
	}
	if len(ids) != 1 {
		return "", fmt.Errorf("%w: %s %s addresses %d resources, expected one", ErrAmbiguousResource, kind, ident, len(ids))
	}
	return ids[0], nil
}

// Reading is one resource's value of an attribute.
type Reading struct {
	ID    string
	Value any
	Err   error
}

// Get reads attr from every resource ident addresses, fetching fresh documents.
// Root attributes win over the state section; an empty attr yields the whole document.
func (b *Bridge) Get(ctx context.Context, kind Kind, ident Identifier, attr string) ([]Reading, error) {
	ids, err := b.Resolve(ctx, kind, ident)
	if err != nil {
		return nil, err
	}

	fetched := b.dispatcher.Fetch(ctx, kind, ids)
	out := make([]Reading, len(fetched))
	for i, f := range fetched {
		out[i] = Reading{ID: f.ID, Err: f.Err}
		if f.Err != nil {
			continue
		}
		out[i].Value, out[i].Err = lookupAttr(kind, f.Doc, attr)
	}
	return out, nil
}

func lookupAttr(kind Kind, doc Snapshot, attr string) (any, error) {
	if attr == "" {
		return map[string]any(doc), nil
	}
	if v, ok := doc[attr]; ok {
		return v, nil
	}
	if v, ok := doc.Section(kind.Section())[attr]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %q is not present on %s", ErrUnknownAttribute, attr, kind)
}

// Set writes one attribute to every resource ident addresses. A resolve failure
// is returned as error; per-resource failures are in the Result.
func (b *Bridge) Set(ctx context.Context, kind Kind, ident Identifier, attr string, value any) (Result, error) {
	return b.SetRaw(ctx, kind, ident, Attr(attr, value))
}

// SetRaw writes a whole payload to every resource ident addresses.
func (b *Bridge) SetRaw(ctx context.Context, kind Kind, ident Identifier, p Payload) (Result, error) {
	ids, err := b.Resolve(ctx, kind, ident)
	if err != nil {
		return Result{Kind: kind}, err
	}
	return b.dispatcher.Dispatch(ctx, kind, ids, p), nil
}

// SetTransitionTime makes ds deciseconds the default transition of every resource
// ident addresses, until cleared.
func (b *Bridge) SetTransitionTime(ctx context.Context, kind Kind, ident Identifier, ds int) error {
	if kind.Section() == "" || kind == KindSensor {
		return fmt.Errorf("%s has no transitions", kind)
	}
	ids, err := b.Resolve(ctx, kind, ident)
	if err != nil {
		return err
	}
	for _, id := range ids {
		b.dispatcher.SetTransitionTime(kind, id, ds)
	}
	return nil
}

// ClearTransitionTime removes the default transition of every resource ident addresses.
func (b *Bridge) ClearTransitionTime(ctx context.Context, kind Kind, ident Identifier) error {
	ids, err := b.Resolve(ctx, kind, ident)
	if err != nil {
		return err
	}
	for _, id := range ids {
		b.dispatcher.ClearTransitionTime(kind, id)
	}
	return nil
}

// create posts doc to a collection and returns the new id.
func (b *Bridge) create(ctx context.Context, kind Kind, doc map[string]any) (string, error) {
	success, err := b.dispatcher.Call(ctx, http.MethodPost, "/"+kind.Collection(), doc)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", kind, err)
	}
	id, _ := success["id"].(string)
	if id == "" {
		return "", fmt.Errorf("%w: create %s returned no id", ErrBridgeRejected, kind)
	}

	b.dir.Put(kind, id, Snapshot(doc))
	log.Info().Str("kind", string(kind)).Str("id", id).Msg("Resource created")
	return id, nil
}

func (b *Bridge) remove(ctx context.Context, kind Kind, ident Identifier) error {
	id, err := b.resolveOne(ctx, kind, ident)
	if err != nil {
		return err
	}
	if _, err := b.dispatcher.Call(ctx, http.MethodDelete, kind.Path(id, EndpointRoot), nil); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", kind, id, err)
	}

	b.dir.Remove(kind, id)
	b.dispatcher.ClearTransitionTime(kind, id)
	log.Info().Str("kind", string(kind)).Str("id", id).Msg("Resource deleted")
	return nil
}

// CreateGroup creates a group of lights and returns its id.
func (b *Bridge) CreateGroup(ctx context.Context, name string, lightIDs []int) (string, error) {
	lights, _ := lightList(lightIDs)
	return b.create(ctx, KindGroup, map[string]any{"name": name, "lights": lights})
}

// DeleteGroup deletes one group.
func (b *Bridge) DeleteGroup(ctx context.Context, ident Identifier) error {
	return b.remove(ctx, KindGroup, ident)
}

// ScheduleSpec describes a schedule that writes a payload to one light or group.
type ScheduleSpec struct {
	Name        string
	Description string
	// Time is the bridge's time expression, e.g. "2026-10-18T07:00:00" or "W127/T07:00:00".
	Time       string
	Target     Identifier
	Payload    Payload
	AutoDelete *bool
}

// CreateSchedule schedules spec.Payload for one light and returns the schedule id.
func (b *Bridge) CreateSchedule(ctx context.Context, spec ScheduleSpec) (string, error) {
	return b.createSchedule(ctx, KindLight, spec)
}

// CreateGroupSchedule schedules spec.Payload for one group and returns the schedule id.
func (b *Bridge) CreateGroupSchedule(ctx context.Context, spec ScheduleSpec) (string, error) {
	return b.createSchedule(ctx, KindGroup, spec)
}

func (b *Bridge) createSchedule(ctx context.Context, kind Kind, spec ScheduleSpec) (string, error) {
	if b.username == "" {
		return "", fmt.Errorf("schedules need the bridge username")
	}
	if spec.Time == "" {
		return "", fmt.Errorf("schedule time is required")
	}

	id, err := b.resolveOne(ctx, kind, spec.Target)
	if err != nil {
		return "", err
	}
	_, state, err := split(kind, spec.Payload)
	if err != nil {
		return "", err
	}
	if len(state) == 0 {
		return "", fmt.Errorf("%w: schedule payload has no state attributes", ErrUnknownAttribute)
	}

	description := spec.Description
	if description == "" {
		description = " "
	}
	doc := map[string]any{
		"name":        spec.Name,
		"description": description,
		"time":        spec.Time,
		"command": map[string]any{
			"method":  http.MethodPut,
			"address": "/api/" + b.username + kind.Path(id, EndpointState),
			"body":    map[string]any(state),
		},
	}
	if spec.AutoDelete != nil {
		doc["autodelete"] = *spec.AutoDelete
	}
	return b.create(ctx, KindSchedule, doc)
}

// DeleteSchedule deletes one schedule.
func (b *Bridge) DeleteSchedule(ctx context.Context, ident Identifier) error {
	return b.remove(ctx, KindSchedule, ident)
}

// CreateScene stores the current state of lightIDs as a scene and returns its id.
func (b *Bridge) CreateScene(ctx context.Context, name string, lightIDs []int) (string, error) {
	lights, _ := lightList(lightIDs)
	return b.create(ctx, KindScene, map[string]any{"name": name, "lights": lights, "recycle": false})
}

// DeleteScene deletes one scene.
func (b *Bridge) DeleteScene(ctx context.Context, ident Identifier) error {
	return b.remove(ctx, KindScene, ident)
}

// ActivateScene recalls a scene on a group.
func (b *Bridge) ActivateScene(ctx context.Context, group, scene Identifier) error {
	groupID, err := b.resolveOne(ctx, KindGroup, group)
	if err != nil {
		return err
	}
	sceneID, err := b.resolveOne(ctx, KindScene, scene)
	if err != nil {
		return err
	}
	return b.activate(ctx, groupID, sceneID)
}

func (b *Bridge) activate(ctx context.Context, groupID, sceneID string) error {
	_, err := b.dispatcher.Call(ctx, http.MethodPut, KindGroup.Path(groupID, EndpointState), map[string]any{"scene": sceneID})
	if err != nil {
		return fmt.Errorf("failed to activate scene %s on group %s: %w", sceneID, groupID, err)
	}
	log.Debug().Str("group", groupID).Str("scene", sceneID).Msg("Scene activated")
	return nil
}

// RunScene recalls a scene by group and scene name. The group name must be unique.
// With several scenes of that name, the one covering exactly the group's lights runs.
func (b *Bridge) RunScene(ctx context.Context, groupName, sceneName string) error {
	if err := b.ensureLoaded(ctx, KindGroup); err != nil {
		return err
	}
	if err := b.ensureLoaded(ctx, KindScene); err != nil {
		return err
	}

	groups := b.dir.Lookup(KindGroup, groupName)
	switch len(groups) {
	case 0:
		return fmt.Errorf("%w: group named %q", ErrUnknownResource, groupName)
	case 1:
	default:
		return fmt.Errorf("%w: %d groups named %q", ErrAmbiguousResource, len(groups), groupName)
	}
	groupID := groups[0]

	scenes := b.dir.Lookup(KindScene, sceneName)
	switch len(scenes) {
	case 0:
		return fmt.Errorf("%w: scene named %q", ErrUnknownResource, sceneName)
	case 1:
		return b.activate(ctx, groupID, scenes[0])
	}

	group, _ := b.dir.Get(KindGroup, groupID)
	want := sortedLights(group["lights"])
	for _, sceneID := range scenes {
		scene, _ := b.dir.Get(KindScene, sceneID)
		if equalStrings(want, sortedLights(scene["lights"])) {
			return b.activate(ctx, groupID, sceneID)
		}
	}
	return fmt.Errorf("%w: no scene named %q covers the lights of group %q", ErrAmbiguousResource, sceneName, groupName)
}

func sortedLights(v any) []string {
	lights, err := lightList(v)
	if err != nil {
		return nil
	}
	sortIDs(lights)
	return lights
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SensorSpec describes a sensor to create, usually a CLIP sensor.
type SensorSpec struct {
	Name             string
	ModelID          string
	SwVersion        string
	Type             string
	UniqueID         string
	ManufacturerName string
	State            map[string]any
	Config           map[string]any
	Recycle          bool
}

// CreateSensor creates a sensor and returns its id.
func (b *Bridge) CreateSensor(ctx context.Context, spec SensorSpec) (string, error) {
	doc := map[string]any{
		"name":             spec.Name,
		"modelid":          spec.ModelID,
		"swversion":        spec.SwVersion,
		"type":             spec.Type,
		"uniqueid":         spec.UniqueID,
		"manufacturername": spec.ManufacturerName,
		"recycle":          spec.Recycle,
	}
	if len(spec.State) > 0 {
		doc["state"] = spec.State
	}
	if len(spec.Config) > 0 {
		doc["config"] = spec.Config
	}
	return b.create(ctx, KindSensor, doc)
}

// DeleteSensor deletes one sensor.
func (b *Bridge) DeleteSensor(ctx context.Context, ident Identifier) error {
	return b.remove(ctx, KindSensor, ident)
}

// SetSensorState writes device-defined keys to a sensor's state.
func (b *Bridge) SetSensorState(ctx context.Context, ident Identifier, p Payload) (Result, error) {
	return b.setSensorSection(ctx, ident, "state", p)
}

// SetSensorConfig writes device-defined keys to a sensor's config.
func (b *Bridge) SetSensorConfig(ctx context.Context, ident Identifier, p Payload) (Result, error) {
	return b.setSensorSection(ctx, ident, "config", p)
}

func (b *Bridge) setSensorSection(ctx context.Context, ident Identifier, section string, p Payload) (Result, error) {
	ids, err := b.Resolve(ctx, KindSensor, ident)
	if err != nil {
		return Result{Kind: KindSensor}, err
	}
	// The bridge owns lastupdated and rejects writes to it.
	body := p.Clone()
	delete(body, "lastupdated")
	return b.dispatcher.DispatchSection(ctx, KindSensor, ids, section, body), nil
}

// Name returns the bridge's configured name.
func (b *Bridge) Name(ctx context.Context) (string, error) {
	var cfg struct {
		Name string `json:"name"`
	}
	if err := b.dispatcher.Read(ctx, "/config", &cfg); err != nil {
		return "", err
	}
	return cfg.Name, nil
}

// SetName renames the bridge.
func (b *Bridge) SetName(ctx context.Context, name string) error {
	if _, err := b.dispatcher.Call(ctx, http.MethodPut, "/config", map[string]any{"name": name}); err != nil {
		return fmt.Errorf("failed to rename bridge: %w", err)
	}
	return nil
}

// Names returns id → name for a kind, in directory order.
func (b *Bridge) Names(ctx context.Context, kind Kind) ([]string, map[string]string, error) {
	if err := b.ensureLoaded(ctx, kind); err != nil {
		return nil, nil, err
	}
	ids := b.dir.IDs(kind)
	names := make(map[string]string, len(ids))
	for id, doc := range b.dir.All(kind) {
		names[id] = doc.Name()
	}
	return ids, names, nil
}
