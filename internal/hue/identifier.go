package hue

import (
	"strconv"
	"strings"
)

type identForm int

const (
	formID identForm = iota
	formName
	formList
	formAll
)

// Identifier addresses one or more resources of a kind: an id, a name, a list of
// either, or every resource.
type Identifier struct {
	form  identForm
	value string
	items []Identifier
	// text is the unsplit input of a list parsed from "a,b". A resource whose
	// name is exactly text wins over the split items.
	text string
}

// ID addresses a resource by numeric id.
func ID(n int) Identifier {
	return Identifier{form: formID, value: strconv.Itoa(n)}
}

// RawID addresses a resource by its wire id, e.g. a scene id.
func RawID(id string) Identifier {
	return Identifier{form: formID, value: id}
}

// Name addresses resources by exact, case-sensitive name.
func Name(name string) Identifier {
	return Identifier{form: formName, value: name}
}

// List addresses each item in order.
func List(items ...Identifier) Identifier {
	return Identifier{form: formList, items: items}
}

// IDs is shorthand for a list of numeric ids.
func IDs(ns ...int) Identifier {
	items := make([]Identifier, len(ns))
	for i, n := range ns {
		items[i] = ID(n)
	}
	return List(items...)
}

// All addresses every resource of the kind.
func All() Identifier {
	return Identifier{form: formAll}
}

// ParseIdentifier reads the textual form used by the CLI and scripts: "all",
// comma-separated lists, digits for ids and anything else as a name. A string
// with commas still addresses a resource named exactly like it.
func ParseIdentifier(s string) Identifier {
	s = strings.TrimSpace(s)
	if s == "all" {
		return All()
	}
	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		items := make([]Identifier, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, ParseIdentifier(p))
			}
		}
		list := List(items...)
		list.text = s
		return list
	}
	if isNumeric(s) {
		return RawID(s)
	}
	return Name(s)
}

// IsAll reports whether i addresses every resource.
func (i Identifier) IsAll() bool {
	return i.form == formAll
}

func (i Identifier) String() string {
	switch i.form {
	case formAll:
		return "all"
	case formName:
		return strconv.Quote(i.value)
	case formList:
		parts := make([]string, len(i.items))
		for n, item := range i.items {
			parts[n] = item.String()
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return "#" + i.value
	}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
