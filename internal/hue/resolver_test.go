package hue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDirectory() *Directory {
	dir := NewDirectory()
	dir.Replace(KindLight, map[string]Snapshot{
		"10": {"name": "Porch"},
		"2":  {"name": "Lamp"},
		"1":  {"name": "Kitchen"},
		"7":  {"name": "Lamp"},
		"3":  {"name": "Desk"},
	})
	dir.Replace(KindScene, map[string]Snapshot{
		"b-scene": {"name": "Relax"},
		"a-scene": {"name": "Relax"},
		"12":      {"name": "Bright"},
	})
	return dir
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(testDirectory(), nil, NamePolicyFirst)

	tests := []struct {
		name     string
		kind     Kind
		ident    Identifier
		expected []string
		err      error
	}{
		{"known_id", KindLight, ID(3), []string{"3"}, nil},
		{"unknown_id", KindLight, ID(4), nil, ErrUnknownResource},
		{"raw_scene_id", KindScene, RawID("a-scene"), []string{"a-scene"}, nil},
		{"unique_name", KindLight, Name("Kitchen"), []string{"1"}, nil},
		{"name_is_case_sensitive", KindLight, Name("kitchen"), nil, ErrUnknownResource},
		{"duplicate_name_first_in_order", KindLight, Name("Lamp"), []string{"2"}, nil},
		{"duplicate_scene_name_lexical", KindScene, Name("Relax"), []string{"a-scene"}, nil},
		{"all_numeric_order", KindLight, All(), []string{"1", "2", "3", "7", "10"}, nil},
		{"all_mixed_ids", KindScene, All(), []string{"12", "a-scene", "b-scene"}, nil},
		{"list_keeps_order", KindLight, List(Name("Desk"), ID(1), Name("Porch")), []string{"3", "1", "10"}, nil},
		{"list_fails_fast", KindLight, List(ID(1), Name("Garage"), ID(2)), nil, ErrUnknownResource},
		{"ids_shorthand", KindLight, IDs(10, 2), []string{"10", "2"}, nil},
		{"empty_kind", KindGroup, All(), nil, nil},
		{"all_lights_group", KindGroup, ID(0), []string{"0"}, nil},
		{"zero_is_not_a_light", KindLight, ID(0), nil, ErrUnknownResource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := r.Resolve(context.Background(), tt.kind, tt.ident)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Nil(t, ids)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ids)
		})
	}
}

func TestResolver_DuplicateNamesAreDeterministic(t *testing.T) {
	r := NewResolver(testDirectory(), nil, NamePolicyFirst)

	first, err := r.Resolve(context.Background(), KindLight, Name("Lamp"))
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := r.Resolve(context.Background(), KindLight, Name("Lamp"))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestResolver_StrictPolicy(t *testing.T) {
	r := NewResolver(testDirectory(), nil, NamePolicyStrict)

	_, err := r.Resolve(context.Background(), KindLight, Name("Lamp"))
	assert.ErrorIs(t, err, ErrAmbiguousResource)
	assert.Contains(t, err.Error(), "2, 7")

	ids, err := r.Resolve(context.Background(), KindLight, Name("Kitchen"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids)
}

func TestResolver_AllMatchesDirectoryCount(t *testing.T) {
	dir := testDirectory()
	r := NewResolver(dir, nil, NamePolicyFirst)

	for _, kind := range []Kind{KindLight, KindScene} {
		ids, err := r.Resolve(context.Background(), kind, All())
		require.NoError(t, err)
		assert.Len(t, ids, dir.Count(kind))
	}
}

func TestResolver_LoadsKindOnce(t *testing.T) {
	dir := NewDirectory()
	loads := 0
	load := func(ctx context.Context, kind Kind) error {
		loads++
		dir.Replace(kind, map[string]Snapshot{"1": {"name": "Only"}})
		return nil
	}
	r := NewResolver(dir, load, NamePolicyFirst)

	for i := 0; i < 3; i++ {
		ids, err := r.Resolve(context.Background(), KindSensor, Name("Only"))
		require.NoError(t, err)
		assert.Equal(t, []string{"1"}, ids)
	}
	assert.Equal(t, 1, loads)
}

func TestResolver_LoadFailure(t *testing.T) {
	boom := errors.New("bridge unreachable")
	r := NewResolver(NewDirectory(), func(ctx context.Context, kind Kind) error { return boom }, NamePolicyFirst)

	_, err := r.Resolve(context.Background(), KindLight, ID(1))
	assert.ErrorIs(t, err, boom)
}

func TestResolver_CommaInName(t *testing.T) {
	dir := NewDirectory()
	dir.Replace(KindLight, map[string]Snapshot{
		"1": {"name": "Desk, left"},
		"2": {"name": "Desk"},
		"3": {"name": "left"},
	})
	r := NewResolver(dir, nil, NamePolicyFirst)

	tests := []struct {
		input    string
		expected []string
	}{
		{"Desk, left", []string{"1"}},
		{"Desk,left", []string{"2", "3"}},
		{"left, Desk", []string{"3", "2"}},
		{"3,1", []string{"3", "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ids, err := r.Resolve(context.Background(), KindLight, ParseIdentifier(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ids)
		})
	}
}

func TestParseIdentifier(t *testing.T) {
	tests := []struct {
		input    string
		expected Identifier
	}{
		{"all", All()},
		{"3", RawID("3")},
		{"Kitchen", Name("Kitchen")},
		{"1, 2,Desk", List(RawID("1"), RawID("2"), Name("Desk"))},
		{" Living Room ", Name("Living Room")},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseIdentifier(tt.input)
			assert.Equal(t, tt.expected.String(), got.String())
		})
	}
}

func TestParseNamePolicy(t *testing.T) {
	p, err := ParseNamePolicy("")
	require.NoError(t, err)
	assert.Equal(t, NamePolicyFirst, p)

	p, err = ParseNamePolicy("Strict")
	require.NoError(t, err)
	assert.Equal(t, NamePolicyStrict, p)

	_, err = ParseNamePolicy("random")
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	for _, in := range []string{"light", "lights", "LIGHTS"} {
		k, err := ParseKind(in)
		require.NoError(t, err)
		assert.Equal(t, KindLight, k)
	}
	_, err := ParseKind("bulb")
	assert.Error(t, err)

	assert.Equal(t, "/groups/4/action", KindGroup.Path("4", EndpointState))
	assert.Equal(t, "/scenes/abc", KindScene.Path("abc", EndpointState))
}
