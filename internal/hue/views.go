package hue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/amimof/huego"
)

// Typed read-only views decode cached snapshots into huego's wire types. They
// never touch the bridge unless the kind was never loaded.

// Lights returns the cached lights in directory order.
func (b *Bridge) Lights(ctx context.Context) ([]huego.Light, error) {
	return decodeView(ctx, b, KindLight, func(l *huego.Light, id string) {
		l.ID, _ = strconv.Atoi(id)
	})
}

// Groups returns the cached groups in directory order.
func (b *Bridge) Groups(ctx context.Context) ([]huego.Group, error) {
	return decodeView(ctx, b, KindGroup, func(g *huego.Group, id string) {
		g.ID, _ = strconv.Atoi(id)
	})
}

// Sensors returns the cached sensors in directory order.
func (b *Bridge) Sensors(ctx context.Context) ([]huego.Sensor, error) {
	return decodeView(ctx, b, KindSensor, func(s *huego.Sensor, id string) {
		s.ID, _ = strconv.Atoi(id)
	})
}

// Scenes returns the cached scenes in directory order.
func (b *Bridge) Scenes(ctx context.Context) ([]huego.Scene, error) {
	return decodeView(ctx, b, KindScene, func(s *huego.Scene, id string) {
		s.ID = id
	})
}

// Schedules returns the cached schedules in directory order.
func (b *Bridge) Schedules(ctx context.Context) ([]huego.Schedule, error) {
	return decodeView(ctx, b, KindSchedule, func(s *huego.Schedule, id string) {
		s.ID, _ = strconv.Atoi(id)
	})
}

func decodeView[T any](ctx context.Context, b *Bridge, kind Kind, setID func(*T, string)) ([]T, error) {
	if err := b.ensureLoaded(ctx, kind); err != nil {
		return nil, err
	}

	docs := b.dir.All(kind)
	out := make([]T, 0, len(docs))
	for _, id := range b.dir.IDs(kind) {
		doc, ok := docs[id]
		if !ok {
			continue
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s %s: %w", kind, id, err)
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s %s: %w", kind, id, err)
		}
		setID(&v, id)
		out = append(out, v)
	}
	return out, nil
}
