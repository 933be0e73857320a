package hue

import (
	"errors"
	"fmt"
)

// Outcome is the result of a command for one resource.
type Outcome struct {
	ID string
	// Success holds the attributes the bridge echoed, keyed by wire name.
	Success map[string]any
	Err     error
}

// OK reports whether the command succeeded for this resource.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Result holds one outcome per resolved id, in resolution order.
type Result struct {
	Kind Kind
	// CorrelationID ties the outcome to the dispatch log lines.
	CorrelationID string
	Outcomes      []Outcome
}

// OK reports whether every outcome succeeded.
func (r Result) OK() bool {
	for _, o := range r.Outcomes {
		if o.Err != nil {
			return false
		}
	}
	return true
}

// Failed returns the failed outcomes in order.
func (r Result) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Err joins the per-resource errors, each prefixed with its id, or returns nil.
func (r Result) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", r.Kind, o.ID, o.Err))
		}
	}
	return errors.Join(errs...)
}

// IDs returns the ids in outcome order.
func (r Result) IDs() []string {
	ids := make([]string, len(r.Outcomes))
	for i, o := range r.Outcomes {
		ids[i] = o.ID
	}
	return ids
}

func failAll(kind Kind, correlationID string, ids []string, err error) Result {
	res := Result{Kind: kind, CorrelationID: correlationID, Outcomes: make([]Outcome, len(ids))}
	for i, id := range ids {
		res.Outcomes[i] = Outcome{ID: id, Err: err}
	}
	return res
}
