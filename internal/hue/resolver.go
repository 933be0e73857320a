package hue

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// NamePolicy decides what a name matching several resources resolves to.
type NamePolicy int

const (
	// NamePolicyFirst picks the first match in directory order.
	NamePolicyFirst NamePolicy = iota
	// NamePolicyStrict fails with ErrAmbiguousResource.
	NamePolicyStrict
)

// ParseNamePolicy reads "first" (or "") and "strict".
func ParseNamePolicy(s string) (NamePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return NamePolicyFirst, nil
	case "strict":
		return NamePolicyStrict, nil
	default:
		return 0, fmt.Errorf("unknown name policy %q", s)
	}
}

func (p NamePolicy) String() string {
	if p == NamePolicyStrict {
		return "strict"
	}
	return "first"
}

// Loader populates one kind of the directory from the bridge.
type Loader func(ctx context.Context, kind Kind) error

// Resolver maps identifiers to resource ids against the directory.
type Resolver struct {
	dir    *Directory
	load   Loader
	policy NamePolicy
}

// NewResolver creates a resolver. load runs the first time a kind is resolved
// while still empty; it may be nil.
func NewResolver(dir *Directory, load Loader, policy NamePolicy) *Resolver {
	return &Resolver{dir: dir, load: load, policy: policy}
}

// Policy returns the name policy.
func (r *Resolver) Policy() NamePolicy {
	return r.policy
}

// Resolve returns the ids ident addresses, in order. A list fails as a whole on
// the first element that does not resolve.
func (r *Resolver) Resolve(ctx context.Context, kind Kind, ident Identifier) ([]string, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown resource kind %q", kind)
	}
	if !r.dir.Loaded(kind) && r.load != nil {
		if err := r.load(ctx, kind); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", kind.Collection(), err)
		}
	}
	return r.resolve(kind, ident)
}

func (r *Resolver) resolve(kind Kind, ident Identifier) ([]string, error) {
	switch ident.form {
	case formAll:
		return r.dir.IDs(kind), nil

	case formID:
		if isImplicit(kind, ident.value) {
			return []string{ident.value}, nil
		}
		if !r.dir.Has(kind, ident.value) {
			return nil, fmt.Errorf("%w: %s %s", ErrUnknownResource, kind, ident.value)
		}
		return []string{ident.value}, nil

	case formName:
		ids := r.dir.Lookup(kind, ident.value)
		switch {
		case len(ids) == 0:
			return nil, fmt.Errorf("%w: %s named %q", ErrUnknownResource, kind, ident.value)
		case len(ids) > 1 && r.policy == NamePolicyStrict:
			return nil, fmt.Errorf("%w: %d %s resources named %q (%s)",
				ErrAmbiguousResource, len(ids), kind, ident.value, strings.Join(ids, ", "))
		case len(ids) > 1:
			log.Debug().
				Str("kind", string(kind)).
				Str("name", ident.value).
				Strs("matches", ids).
				Str("picked", ids[0]).
				Msg("Ambiguous name, using first match")
		}
		return ids[:1], nil

	case formList:
		if ident.text != "" && len(r.dir.Lookup(kind, ident.text)) > 0 {
			return r.resolve(kind, Name(ident.text))
		}
		out := make([]string, 0, len(ident.items))
		for _, item := range ident.items {
			ids, err := r.resolve(kind, item)
			if err != nil {
				return nil, err
			}
			out = append(out, ids...)
		}
		return out, nil
	}

	return nil, fmt.Errorf("invalid identifier %s", ident)
}
