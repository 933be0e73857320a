package hue

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Snapshot is the raw attribute document of one resource as the bridge returns it,
// e.g. {"name":"Kitchen","state":{"on":true,"bri":254}}.
type Snapshot map[string]any

// Name returns the resource name, or "" if it has none.
func (s Snapshot) Name() string {
	name, _ := s["name"].(string)
	return name
}

// Section returns a nested document such as "state" or "action".
func (s Snapshot) Section(name string) map[string]any {
	if name == "" {
		return nil
	}
	sec, _ := s[name].(map[string]any)
	return sec
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	return Snapshot(deepCopyMap(s))
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case Snapshot:
		return Snapshot(deepCopyMap(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

// kindIndex is an immutable view of one kind. Writers build a new index and swap
// it in, so readers never observe a partial update.
type kindIndex struct {
	order    []string
	docs     map[string]Snapshot
	byName   map[string][]string
	loadedAt time.Time
}

func newKindIndex(docs map[string]Snapshot, loadedAt time.Time) *kindIndex {
	idx := &kindIndex{
		order:    make([]string, 0, len(docs)),
		docs:     make(map[string]Snapshot, len(docs)),
		byName:   make(map[string][]string),
		loadedAt: loadedAt,
	}
	for id, doc := range docs {
		idx.order = append(idx.order, id)
		idx.docs[id] = doc
	}
	sortIDs(idx.order)
	for _, id := range idx.order {
		if name := idx.docs[id].Name(); name != "" {
			idx.byName[name] = append(idx.byName[name], id)
		}
	}
	return idx
}

// with returns a copy of the index with doc stored under id. The document map is
// copied, the untouched snapshots are shared.
func (idx *kindIndex) with(id string, doc Snapshot) *kindIndex {
	docs := make(map[string]Snapshot, len(idx.docs)+1)
	for k, v := range idx.docs {
		docs[k] = v
	}
	if doc == nil {
		delete(docs, id)
	} else {
		docs[id] = doc
	}
	return newKindIndex(docs, idx.loadedAt)
}

// sortIDs orders numeric ids ascending, followed by non-numeric ids lexically.
func sortIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, aErr := strconv.Atoi(ids[i])
		b, bErr := strconv.Atoi(ids[j])
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		default:
			return ids[i] < ids[j]
		}
	})
}

// Directory caches the bridge's resources per kind. It is never the source of
// truth for writes: writes go to the bridge and are merged in afterwards.
type Directory struct {
	mu    sync.RWMutex
	kinds map[Kind]*kindIndex
	now   func() time.Time
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		kinds: make(map[Kind]*kindIndex),
		now:   time.Now,
	}
}

func (d *Directory) index(kind Kind) *kindIndex {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.kinds[kind]
}

// Replace swaps the whole kind for docs and marks it loaded.
func (d *Directory) Replace(kind Kind, docs map[string]Snapshot) {
	owned := make(map[string]Snapshot, len(docs))
	for id, doc := range docs {
		owned[id] = doc.Clone()
	}
	idx := newKindIndex(owned, d.now())

	d.mu.Lock()
	d.kinds[kind] = idx
	d.mu.Unlock()

	log.Debug().Str("kind", string(kind)).Int("count", len(idx.order)).Msg("Directory refreshed")
}

// Loaded reports whether kind was ever populated.
func (d *Directory) Loaded(kind Kind) bool {
	return d.index(kind) != nil
}

// LoadedAt returns when kind was last replaced.
func (d *Directory) LoadedAt(kind Kind) (time.Time, bool) {
	idx := d.index(kind)
	if idx == nil {
		return time.Time{}, false
	}
	return idx.loadedAt, true
}

// IDs returns the ids of kind in directory order.
func (d *Directory) IDs(kind Kind) []string {
	idx := d.index(kind)
	if idx == nil {
		return nil
	}
	out := make([]string, len(idx.order))
	copy(out, idx.order)
	return out
}

// Count returns the number of cached resources of kind.
func (d *Directory) Count(kind Kind) int {
	idx := d.index(kind)
	if idx == nil {
		return 0
	}
	return len(idx.order)
}

// Has reports whether id is cached for kind.
func (d *Directory) Has(kind Kind, id string) bool {
	idx := d.index(kind)
	if idx == nil {
		return false
	}
	_, ok := idx.docs[id]
	return ok
}

// Get returns a copy of the cached snapshot.
func (d *Directory) Get(kind Kind, id string) (Snapshot, bool) {
	idx := d.index(kind)
	if idx == nil {
		return nil, false
	}
	doc, ok := idx.docs[id]
	if !ok {
		return nil, false
	}
	return doc.Clone(), true
}

// All returns copies of every snapshot of kind keyed by id.
func (d *Directory) All(kind Kind) map[string]Snapshot {
	idx := d.index(kind)
	if idx == nil {
		return nil
	}
	out := make(map[string]Snapshot, len(idx.docs))
	for id, doc := range idx.docs {
		out[id] = doc.Clone()
	}
	return out
}

// Lookup returns the ids whose name equals name exactly, in directory order.
func (d *Directory) Lookup(kind Kind, name string) []string {
	idx := d.index(kind)
	if idx == nil {
		return nil
	}
	ids := idx.byName[name]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Brightness returns the cached "bri" of the resource's state section.
func (d *Directory) Brightness(kind Kind, id string) (int, bool) {
	idx := d.index(kind)
	if idx == nil {
		return 0, false
	}
	doc, ok := idx.docs[id]
	if !ok {
		return 0, false
	}
	return intValue(doc.Section(kind.Section())["bri"])
}

// Put stores a freshly fetched or created resource. It does not mark the kind loaded.
func (d *Directory) Put(kind Kind, id string, doc Snapshot) {
	doc = doc.Clone()

	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.kinds[kind]
	if idx == nil {
		return
	}
	d.kinds[kind] = idx.with(id, doc)
}

// Apply merges attrs written successfully into the cached resource. An empty
// section merges into the root document.
func (d *Directory) Apply(kind Kind, id, section string, attrs map[string]any) {
	if len(attrs) == 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.kinds[kind]
	if idx == nil {
		return
	}
	cur, ok := idx.docs[id]
	if !ok {
		return
	}

	doc := cur.Clone()
	target := map[string]any(doc)
	if section != "" {
		sec, _ := doc[section].(map[string]any)
		if sec == nil {
			sec = make(map[string]any)
			doc[section] = sec
		}
		target = sec
	}
	for k, v := range attrs {
		target[k] = deepCopyValue(v)
	}
	d.kinds[kind] = idx.with(id, doc)
}

// Remove drops a deleted resource.
func (d *Directory) Remove(kind Kind, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.kinds[kind]
	if idx == nil {
		return
	}
	if _, ok := idx.docs[id]; !ok {
		return
	}
	d.kinds[kind] = idx.with(id, nil)
}

// Clear forgets every kind.
func (d *Directory) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kinds = make(map[Kind]*kindIndex)
}
