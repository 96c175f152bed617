package connections

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"finboard/internal/core"

	"github.com/google/uuid"
)

const (
	sourcePrefix   = "source:"
	snapshotPrefix = "snapshot:"
)

// Registry stores connected sources as JSON under "source:<id>".
type Registry struct {
	kv  KV
	now func() time.Time
}

func NewRegistry(kv KV) *Registry {
	return &Registry{kv: kv, now: time.Now}
}

// Add assigns an ID and creation time when missing and stores the source.
func (r *Registry) Add(ctx context.Context, src core.Source) (core.Source, error) {
	if err := src.Validate(); err != nil {
		return core.Source{}, err
	}
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = r.now().UTC()
	}
	src.Name = strings.TrimSpace(src.Name)
	data, err := json.Marshal(src)
	if err != nil {
		return core.Source{}, fmt.Errorf("encode source: %w", err)
	}
	if err := r.kv.Set(ctx, sourcePrefix+src.ID, data); err != nil {
		return core.Source{}, fmt.Errorf("store source: %w", err)
	}
	return src, nil
}

func (r *Registry) Get(ctx context.Context, id string) (core.Source, error) {
	data, err := r.kv.Get(ctx, sourcePrefix+id)
	if err != nil {
		return core.Source{}, err
	}
	var src core.Source
	if err := json.Unmarshal(data, &src); err != nil {
		return core.Source{}, fmt.Errorf("decode source %s: %w", id, err)
	}
	return src, nil
}

func (r *Registry) Remove(ctx context.Context, id string) error {
	return r.kv.Remove(ctx, sourcePrefix+id)
}

// List returns every source, oldest first. Entries that fail to decode are
// skipped so one bad record cannot hide the others.
func (r *Registry) List(ctx context.Context) ([]core.Source, error) {
	keys, err := r.kv.Keys(ctx, sourcePrefix)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	out := make([]core.Source, 0, len(keys))
	for _, k := range keys {
		src, err := r.Get(ctx, strings.TrimPrefix(k, sourcePrefix))
		if err != nil {
			continue
		}
		out = append(out, src)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SnapshotStore keeps the latest dashboard per view under "snapshot:<view key>".
type SnapshotStore struct {
	kv KV
}

func NewSnapshotStore(kv KV) *SnapshotStore {
	return &SnapshotStore{kv: kv}
}

func (s *SnapshotStore) Save(ctx context.Context, d core.Dashboard) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.kv.Set(ctx, snapshotPrefix+d.View.Key(), data)
}

func (s *SnapshotStore) Latest(ctx context.Context, v core.View) (core.Dashboard, error) {
	data, err := s.kv.Get(ctx, snapshotPrefix+v.Key())
	if err != nil {
		return core.Dashboard{}, err
	}
	var d core.Dashboard
	if err := json.Unmarshal(data, &d); err != nil {
		return core.Dashboard{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return d, nil
}

func (s *SnapshotStore) Delete(ctx context.Context, v core.View) error {
	err := s.kv.Remove(ctx, snapshotPrefix+v.Key())
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// DeleteSource drops every snapshot scoped to one source.
func (s *SnapshotStore) DeleteSource(ctx context.Context, sourceID string) (int, error) {
	keys, err := s.kv.Keys(ctx, snapshotPrefix+sourceID+"|")
	if err != nil {
		return 0, err
	}
	n := 0
	for _, k := range keys {
		if err := s.kv.Remove(ctx, k); err != nil && !errors.Is(err, ErrNotFound) {
			return n, err
		}
		n++
	}
	return n, nil
}
