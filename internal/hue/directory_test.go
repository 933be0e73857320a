package hue

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortIDs(t *testing.T) {
	ids := []string{"b", "10", "2", "a", "1", "0x1"}
	sortIDs(ids)
	assert.Equal(t, []string{"1", "2", "10", "0x1", "a", "b"}, ids)
}

func TestDirectory_SnapshotsAreCopies(t *testing.T) {
	dir := NewDirectory()
	src := map[string]Snapshot{"1": {"name": "Kitchen", "state": map[string]any{"bri": 254.0}}}
	dir.Replace(KindLight, src)

	src["1"].Section("state")["bri"] = 1.0

	doc, ok := dir.Get(KindLight, "1")
	require.True(t, ok)
	assert.Equal(t, 254.0, doc.Section("state")["bri"])

	doc.Section("state")["bri"] = 2.0
	again, _ := dir.Get(KindLight, "1")
	assert.Equal(t, 254.0, again.Section("state")["bri"])
}

func TestDirectory_Apply(t *testing.T) {
	dir := NewDirectory()
	dir.Replace(KindGroup, map[string]Snapshot{"1": {"name": "Living", "action": map[string]any{"on": false, "bri": 10.0}}})

	dir.Apply(KindGroup, "1", "action", map[string]any{"on": true, "bri": 99})
	dir.Apply(KindGroup, "1", "", map[string]any{"name": "Lounge"})
	dir.Apply(KindGroup, "9", "action", map[string]any{"on": true})

	doc, ok := dir.Get(KindGroup, "1")
	require.True(t, ok)
	want := Snapshot{"name": "Lounge", "action": map[string]any{"on": true, "bri": 99}}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("group mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, dir.Has(KindGroup, "9"))

	// Renames move the name index.
	assert.Empty(t, dir.Lookup(KindGroup, "Living"))
	assert.Equal(t, []string{"1"}, dir.Lookup(KindGroup, "Lounge"))

	bri, ok := dir.Brightness(KindGroup, "1")
	require.True(t, ok)
	assert.Equal(t, 99, bri)
}

func TestDirectory_PutAndRemove(t *testing.T) {
	dir := NewDirectory()

	dir.Put(KindScene, "abc", Snapshot{"name": "Relax"})
	assert.False(t, dir.Loaded(KindScene))

	dir.Replace(KindScene, nil)
	assert.True(t, dir.Loaded(KindScene))
	assert.Equal(t, 0, dir.Count(KindScene))

	dir.Put(KindScene, "abc", Snapshot{"name": "Relax"})
	dir.Put(KindScene, "12", Snapshot{"name": "Relax"})
	assert.Equal(t, []string{"12", "abc"}, dir.IDs(KindScene))
	assert.Equal(t, []string{"12", "abc"}, dir.Lookup(KindScene, "Relax"))

	dir.Remove(KindScene, "12")
	dir.Remove(KindScene, "missing")
	assert.Equal(t, []string{"abc"}, dir.IDs(KindScene))

	dir.Clear()
	assert.False(t, dir.Loaded(KindScene))
}

func TestDirectory_ConcurrentReadersSeeWholeIndexes(t *testing.T) {
	dir := NewDirectory()
	full := map[string]Snapshot{"1": {"name": "a"}, "2": {"name": "b"}, "3": {"name": "c"}}
	dir.Replace(KindLight, full)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for n := 0; n < 200; n++ {
				dir.Replace(KindLight, full)
				dir.Apply(KindLight, "2", "state", map[string]any{"bri": n})
			}
		}()
		go func() {
			defer wg.Done()
			for n := 0; n < 200; n++ {
				ids := dir.IDs(KindLight)
				assert.Len(t, ids, 3)
			}
		}()
	}
	wg.Wait()
}

func TestDeciseconds(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  int
		err   bool
	}{
		{"duration", 1500 * time.Millisecond, 15, false},
		{"int", 4, 4, false},
		{"float_rounds", 2.6, 3, false},
		{"negative", -1, 0, true},
		{"numeric_string", "4", 4, false},
		{"garbage", "soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Deciseconds(tt.input)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKelvinConversion(t *testing.T) {
	tests := []struct {
		kelvin int
		mireds int
	}{
		{2700, 370},
		{4000, 250},
		{6500, 154},
		{10000, 154},
		{1000, 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.mireds, MiredsFromKelvin(tt.kelvin), tt.kelvin)
	}

	k, err := KelvinFromMireds(370)
	require.NoError(t, err)
	assert.Equal(t, 2703, k)

	_, err = KelvinFromMireds(0)
	assert.Error(t, err)
}

func TestDirectory_LoadedAt(t *testing.T) {
	dir := NewDirectory()
	at := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	dir.now = func() time.Time { return at }

	_, ok := dir.LoadedAt(KindLight)
	assert.False(t, ok)

	dir.Replace(KindLight, map[string]Snapshot{"1": {"name": "Kitchen"}})
	got, ok := dir.LoadedAt(KindLight)
	require.True(t, ok)
	assert.Equal(t, at, got)

	// Put does not count as a load.
	dir.Put(KindGroup, "1", Snapshot{"name": "Living"})
	_, ok = dir.LoadedAt(KindGroup)
	assert.False(t, ok)
}
