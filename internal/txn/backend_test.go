package txn

import (
	"context"
	"sort"
	"sync"

	"github.com/roach88/friendsync/internal/ir"
)

// memBackend is a map-backed Backend for tests in this package.
type memBackend struct {
	mu      sync.Mutex
	records map[ir.RecordID]ir.Record
	commits int

	// beforeCommit runs under no lock just before validation; tests use it to
	// slip in a concurrent write.
	beforeCommit func()
}

func newMemBackend(records ...ir.Record) *memBackend {
	m := &memBackend{records: make(map[ir.RecordID]ir.Record)}
	for _, r := range records {
		if r.Version == 0 {
			r.Version = 1
		}
		r.Friends = ir.NormalizeIDs(r.Friends)
		m.records[r.ID] = r
	}
	return m
}

func (m *memBackend) Get(ctx context.Context, id ir.RecordID) (ir.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memView{m}.Get(ctx, id)
}

func (m *memBackend) FindByNumber(ctx context.Context, n ir.Number) ([]ir.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memView{m}.FindByNumber(ctx, n)
}

func (m *memBackend) FindByFriend(ctx context.Context, id ir.RecordID) ([]ir.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memView{m}.FindByFriend(ctx, id)
}

func (m *memBackend) Commit(ctx context.Context, rs *ReadSet, writes []Write) error {
	if m.beforeCommit != nil {
		m.beforeCommit()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := rs.Validate(ctx, memView{m}); err != nil {
		return err
	}
	staged := make(map[ir.RecordID]ir.Record)
	for _, w := range writes {
		rec, ok := staged[w.RecordID]
		if !ok {
			if rec, ok = m.records[w.RecordID]; !ok {
				return ErrNotFound
			}
		}
		changed, err := ApplyWrite(&rec, w)
		if err != nil {
			return err
		}
		if changed {
			rec.Version = m.records[w.RecordID].Version + 1
		}
		staged[w.RecordID] = rec
	}
	for id, rec := range staged {
		m.records[id] = rec
	}
	m.commits++
	return nil
}

// bump simulates an external write to id.
func (m *memBackend) bump(id ir.RecordID, n ir.Number) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[id]
	rec.ID = id
	rec.Number = n
	rec.Version++
	m.records[id] = rec
}

// memView reads without locking; callers hold m.mu.
type memView struct{ m *memBackend }

func (v memView) Get(_ context.Context, id ir.RecordID) (ir.Record, error) {
	rec, ok := v.m.records[id]
	if !ok {
		return ir.Record{}, ErrNotFound
	}
	return rec, nil
}

func (v memView) FindByNumber(_ context.Context, n ir.Number) ([]ir.Record, error) {
	return v.filter(func(r ir.Record) bool { return r.Number == n }), nil
}

func (v memView) FindByFriend(_ context.Context, id ir.RecordID) ([]ir.Record, error) {
	return v.filter(func(r ir.Record) bool { return r.HasFriend(id) }), nil
}

func (v memView) filter(keep func(ir.Record) bool) []ir.Record {
	var out []ir.Record
	for _, r := range v.m.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
