package hue

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Payload maps wire attribute names to values, e.g. {"on": true, "bri": 254}.
type Payload map[string]any

// Attr builds a single-attribute payload.
func Attr(name string, value any) Payload {
	return Payload{name: value}
}

// Clone returns a deep copy.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	return Payload(deepCopyMap(p))
}

const attrTransitionTime = "transitiontime"

// split validates p against the kind's attribute set and separates root attributes
// from state attributes. Values are normalised to their wire form.
func split(kind Kind, p Payload) (root, state Payload, err error) {
	set := Attributes(kind)
	if set == nil {
		return nil, nil, fmt.Errorf("unknown resource kind %q", kind)
	}
	if len(p) == 0 {
		return nil, nil, fmt.Errorf("%w: empty payload", ErrUnknownAttribute)
	}

	for name, value := range p {
		endpoint, err := set.Endpoint(name)
		if err != nil {
			return nil, nil, err
		}
		value, err = normalize(name, value)
		if err != nil {
			return nil, nil, err
		}

		if endpoint == EndpointState {
			if state == nil {
				state = Payload{}
			}
			state[name] = value
			continue
		}
		if root == nil {
			root = Payload{}
		}
		root[name] = value
	}
	return root, state, nil
}

func normalize(name string, value any) (any, error) {
	switch name {
	case attrTransitionTime:
		ds, err := Deciseconds(value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
		return ds, nil
	case "lights":
		return lightList(value)
	}
	return value, nil
}

// Deciseconds converts a transition time to the integer deciseconds the bridge
// expects. Numbers are taken as deciseconds and rounded; a time.Duration is converted.
func Deciseconds(v any) (int, error) {
	if d, ok := v.(time.Duration); ok {
		return int(math.Round(float64(d) / float64(100*time.Millisecond))), nil
	}
	f, ok := floatValue(v)
	if !ok {
		return 0, fmt.Errorf("not a number: %v", v)
	}
	if f < 0 {
		return 0, fmt.Errorf("negative: %v", v)
	}
	return int(math.Round(f)), nil
}

// lightList turns ids given as numbers or strings into the string list the bridge wants.
func lightList(v any) ([]string, error) {
	switch t := v.(type) {
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out, nil
	case []int:
		out := make([]string, len(t))
		for i, n := range t {
			out[i] = strconv.Itoa(n)
		}
		return out, nil
	case []any:
		out := make([]string, len(t))
		for i, e := range t {
			switch id := e.(type) {
			case string:
				out[i] = id
			default:
				n, ok := intValue(id)
				if !ok {
					return nil, fmt.Errorf("invalid light id %v", e)
				}
				out[i] = strconv.Itoa(n)
			}
		}
		return out, nil
	case int, int64, float64:
		n, _ := intValue(t)
		return []string{strconv.Itoa(n)}, nil
	case string:
		return []string{t}, nil
	default:
		return nil, fmt.Errorf("invalid light list %v", v)
	}
}

func floatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func intValue(v any) (int, bool) {
	if v == nil {
		return 0, false
	}
	if _, isString := v.(string); isString {
		return 0, false
	}
	f, ok := floatValue(v)
	if !ok {
		return 0, false
	}
	return int(math.Round(f)), true
}

func boolValue(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// Colour temperature range accepted in Kelvin.
const (
	MinKelvin = 2000
	MaxKelvin = 6500
)

// MiredsFromKelvin converts a colour temperature to the mired value of the ct
// attribute. k is clamped to MinKelvin-MaxKelvin.
func MiredsFromKelvin(k int) int {
	k = min(max(k, MinKelvin), MaxKelvin)
	return int(math.Round(1e6 / float64(k)))
}

// KelvinFromMireds converts a ct value back to Kelvin.
func KelvinFromMireds(m int) (int, error) {
	if m <= 0 {
		return 0, fmt.Errorf("invalid colour temperature %d mired", m)
	}
	return int(math.Round(1e6 / float64(m))), nil
}
