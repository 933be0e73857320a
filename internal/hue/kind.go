package hue

import (
	"fmt"
	"sort"
	"strings"
)

// Kind is a resource collection on the bridge.
type Kind string

const (
	KindLight    Kind = "light"
	KindGroup    Kind = "group"
	KindSchedule Kind = "schedule"
	KindScene    Kind = "scene"
	KindSensor   Kind = "sensor"
)

// AllLightsGroup is the bridge's implicit group of every light. GET /groups never
// lists it, but it accepts reads and action writes like any other group.
const AllLightsGroup = "0"

// isImplicit reports whether id exists on the bridge without being listed, so it
// must stay out of the directory.
func isImplicit(kind Kind, id string) bool {
	return kind == KindGroup && id == AllLightsGroup
}

var kinds = []Kind{KindLight, KindGroup, KindSchedule, KindScene, KindSensor}

// Kinds returns every resource kind.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// ParseKind accepts singular and plural kind names, e.g. "light" or "lights".
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, k := range kinds {
		if s == string(k) || s == k.Collection() {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown resource kind %q", s)
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Collection is the kind's key in the full state document and its URL segment.
func (k Kind) Collection() string {
	return string(k) + "s"
}

// Section is the nested document holding the kind's current state: "state" for
// lights and sensors, "action" for groups, none for schedules and scenes.
func (k Kind) Section() string {
	switch k {
	case KindLight, KindSensor:
		return "state"
	case KindGroup:
		return "action"
	default:
		return ""
	}
}

// Endpoint is where an attribute is written.
type Endpoint int

const (
	// EndpointRoot is the resource itself, e.g. /lights/1.
	EndpointRoot Endpoint = iota
	// EndpointState is the state section, e.g. /lights/1/state or /groups/1/action.
	EndpointState
)

func (e Endpoint) String() string {
	if e == EndpointState {
		return "state"
	}
	return "root"
}

// Path returns the request path for resource id at endpoint e.
func (k Kind) Path(id string, e Endpoint) string {
	p := "/" + k.Collection() + "/" + id
	if e == EndpointState && k.Section() != "" {
		p += "/" + k.Section()
	}
	return p
}

// AttributeSetVersion versions the recognised attribute vocabulary.
const AttributeSetVersion = "1.0"

// AttributeSet is the closed set of writable attributes of one kind.
type AttributeSet struct {
	Kind    Kind
	Version string
	attrs   map[string]Endpoint
}

var (
	lightRoot  = []string{"name"}
	lightState = []string{
		"on", "bri", "hue", "sat", "xy", "ct", "alert", "effect", "transitiontime",
		"bri_inc", "sat_inc", "hue_inc", "ct_inc", "xy_inc",
	}
	groupRoot    = []string{"name", "lights", "class"}
	groupState   = append([]string{"scene"}, lightState...)
	scheduleRoot = []string{"name", "description", "command", "time", "localtime", "status", "autodelete"}
	sceneRoot    = []string{"name", "lights", "storelightstate"}
	sensorRoot   = []string{"name"}
)

var attributeSets = map[Kind]*AttributeSet{
	KindLight:    newAttributeSet(KindLight, lightRoot, lightState),
	KindGroup:    newAttributeSet(KindGroup, groupRoot, groupState),
	KindSchedule: newAttributeSet(KindSchedule, scheduleRoot, nil),
	KindScene:    newAttributeSet(KindScene, sceneRoot, nil),
	KindSensor:   newAttributeSet(KindSensor, sensorRoot, nil),
}

func newAttributeSet(k Kind, root, state []string) *AttributeSet {
	s := &AttributeSet{Kind: k, Version: AttributeSetVersion, attrs: make(map[string]Endpoint)}
	for _, a := range root {
		s.attrs[a] = EndpointRoot
	}
	for _, a := range state {
		s.attrs[a] = EndpointState
	}
	return s
}

// Attributes returns the attribute set of k, or nil for an unknown kind.
func Attributes(k Kind) *AttributeSet {
	return attributeSets[k]
}

// Endpoint returns where attr is written.
func (s *AttributeSet) Endpoint(attr string) (Endpoint, error) {
	e, ok := s.attrs[attr]
	if !ok {
		return 0, fmt.Errorf("%w: %q for %s (attribute set %s)", ErrUnknownAttribute, attr, s.Kind, s.Version)
	}
	return e, nil
}

// Has reports whether attr is recognised.
func (s *AttributeSet) Has(attr string) bool {
	_, ok := s.attrs[attr]
	return ok
}

// Names returns the recognised attributes, sorted.
func (s *AttributeSet) Names() []string {
	names := make([]string, 0, len(s.attrs))
	for a := range s.attrs {
		names = append(names, a)
	}
	sort.Strings(names)
	return names
}
