// Package memory implements storage.Storage in process memory. It backs the
// unit tests and `--db :memory:` runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jinzhu/copier"

	"github.com/steveyegge/illsync/internal/storage"
	"github.com/steveyegge/illsync/internal/types"
)

// MemoryStorage keeps every record in maps guarded by one lock. Records are
// copied on the way in and out so callers never share state with the store.
type MemoryStorage struct {
	mu sync.RWMutex

	requests   map[int64]*types.Request
	attributes map[int64][]*types.Attribute // by request id, insertion order
	items      map[int64]*types.Item
	holds      map[int64]*types.Hold
	partners   map[string]*types.Partner

	nextID int64
	closed bool
	now    func() time.Time
}

var _ storage.Storage = (*MemoryStorage)(nil)

// New returns an empty store.
func New() *MemoryStorage {
	return &MemoryStorage{
		requests:   make(map[int64]*types.Request),
		attributes: make(map[int64][]*types.Attribute),
		items:      make(map[int64]*types.Item),
		holds:      make(map[int64]*types.Hold),
		partners:   make(map[string]*types.Partner),
		now:        time.Now,
	}
}

func (m *MemoryStorage) id() int64 {
	m.nextID++
	return m.nextID
}

// copyOptions deep-copies records. time.Time has unexported fields, so it is
// copied by value through converters instead of field by field.
var copyOptions = copier.Option{
	DeepCopy: true,
	Converters: []copier.TypeConverter{
		{
			SrcType: time.Time{},
			DstType: time.Time{},
			Fn:      func(src interface{}) (interface{}, error) { return src.(time.Time), nil },
		},
		{
			SrcType: &time.Time{},
			DstType: &time.Time{},
			Fn: func(src interface{}) (interface{}, error) {
				t := src.(*time.Time)
				if t == nil {
					return (*time.Time)(nil), nil
				}
				c := *t
				return &c, nil
			},
		},
	},
}

func clone[T any](src *T) *T {
	dst := new(T)
	if err := copier.CopyWithOption(dst, src, copyOptions); err != nil {
		// Only fails on mismatched kinds, which cannot happen for T -> T.
		panic(fmt.Sprintf("memory: copy %T: %v", src, err))
	}
	return dst
}

func (m *MemoryStorage) checkOpen() error {
	if m.closed {
		return fmt.Errorf("memory storage is closed")
	}
	return nil
}

// ── Requests ────────────────────────────────────────────────────────────────

func (m *MemoryStorage) CreateRequest(ctx context.Context, r *types.Request) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	if r.OrderID != "" {
		for _, existing := range m.requests {
			if existing.OrderID == r.OrderID {
				return fmt.Errorf("%w: order id %s", storage.ErrDuplicate, r.OrderID)
			}
		}
	}
	r.ID = m.id()
	r.Updated = m.now()
	m.requests[r.ID] = clone(r)
	return nil
}

func (m *MemoryStorage) GetRequest(ctx context.Context, id int64) (*types.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %d: %w", id, storage.ErrNotFound)
	}
	return clone(r), nil
}

func (m *MemoryStorage) GetRequestByOrderID(ctx context.Context, orderID string) (*types.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.requests {
		if orderID != "" && r.OrderID == orderID {
			return clone(r), nil
		}
	}
	return nil, fmt.Errorf("order %s: %w", orderID, storage.ErrNotFound)
}

func (m *MemoryStorage) UpdateRequest(ctx context.Context, r *types.Request) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[r.ID]; !ok {
		return fmt.Errorf("request %d: %w", r.ID, storage.ErrNotFound)
	}
	r.Updated = m.now()
	m.requests[r.ID] = clone(r)
	return nil
}

func (m *MemoryStorage) ListRequests(ctx context.Context, filter types.RequestFilter) ([]*types.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exclude := make(map[string]bool, len(filter.Exclude))
	for _, s := range filter.Exclude {
		exclude[s] = true
	}

	var out []*types.Request
	for _, r := range m.requests {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Direction != "" && r.Direction != filter.Direction {
			continue
		}
		if exclude[r.Status] {
			continue
		}
		out = append(out, clone(r))
	}

	opts := filter.Sort
	if len(opts) == 0 {
		opts = types.DefaultRequestSortOptions()
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j], opts) })

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// less applies the sort options in order, falling back to id so results are
// deterministic.
func less(a, b *types.Request, opts []types.RequestSortOption) bool {
	for _, opt := range opts {
		c := compare(a, b, opt.Field)
		if c == 0 {
			continue
		}
		if opt.Direction == types.SortDesc {
			return c > 0
		}
		return c < 0
	}
	return a.ID < b.ID
}

func compare(a, b *types.Request, field types.RequestSortField) int {
	switch field {
	case types.SortFieldUpdated:
		return a.Updated.Compare(b.Updated)
	case types.SortFieldPlaced:
		return timeOrZero(a.Placed).Compare(timeOrZero(b.Placed))
	case types.SortFieldStatus:
		return strings.Compare(a.Status, b.Status)
	case types.SortFieldOrderID:
		return strings.Compare(a.OrderID, b.OrderID)
	}
	return 0
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// ── Attributes ──────────────────────────────────────────────────────────────

func (m *MemoryStorage) GetAttributes(ctx context.Context, requestID int64) ([]*types.Attribute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.attributes[requestID]
	out := make([]*types.Attribute, 0, len(src))
	for _, a := range src {
		out = append(out, clone(a))
	}
	return out, nil
}

func (m *MemoryStorage) AddAttribute(ctx context.Context, a *types.Attribute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[a.RequestID]; !ok {
		return fmt.Errorf("request %d: %w", a.RequestID, storage.ErrNotFound)
	}
	a.ID = m.id()
	m.attributes[a.RequestID] = append(m.attributes[a.RequestID], clone(a))
	return nil
}

func (m *MemoryStorage) UpdateAttribute(ctx context.Context, a *types.Attribute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.attributes[a.RequestID] {
		if existing.ID == a.ID {
			m.attributes[a.RequestID][i] = clone(a)
			return nil
		}
	}
	return fmt.Errorf("attribute %d: %w", a.ID, storage.ErrNotFound)
}

// ── Items ───────────────────────────────────────────────────────────────────

func (m *MemoryStorage) CreateItem(ctx context.Context, it *types.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it.ID = m.id()
	m.items[it.ID] = clone(it)
	return nil
}

func (m *MemoryStorage) GetItem(ctx context.Context, id int64) (*types.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("item %d: %w", id, storage.ErrNotFound)
	}
	return clone(it), nil
}

func (m *MemoryStorage) UpdateItem(ctx context.Context, it *types.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[it.ID]; !ok {
		return fmt.Errorf("item %d: %w", it.ID, storage.ErrNotFound)
	}
	m.items[it.ID] = clone(it)
	return nil
}

// ── Holds ───────────────────────────────────────────────────────────────────

func (m *MemoryStorage) CreateHold(ctx context.Context, h *types.Hold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h.ID = m.id()
	if h.Placed.IsZero() {
		h.Placed = m.now()
	}
	m.holds[h.ID] = clone(h)
	return nil
}

func (m *MemoryStorage) SearchHolds(ctx context.Context, biblioID int64) ([]*types.Hold, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Hold
	for _, h := range m.holds {
		if h.BiblioID == biblioID {
			out = append(out, clone(h))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStorage) DeleteHold(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.holds[id]; !ok {
		return fmt.Errorf("hold %d: %w", id, storage.ErrNotFound)
	}
	delete(m.holds, id)
	return nil
}

// ── Partners ────────────────────────────────────────────────────────────────

func (m *MemoryStorage) FindPartner(ctx context.Context, code string) (*types.Partner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.partners[code]
	if !ok {
		return nil, fmt.Errorf("partner %s: %w", code, storage.ErrNotFound)
	}
	return clone(p), nil
}

func (m *MemoryStorage) UpsertPartner(ctx context.Context, p *types.Partner) error {
	if p.Code == "" {
		return fmt.Errorf("partner code is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.partners[p.Code]; ok {
		p.ID = existing.ID
	} else {
		p.ID = m.id()
	}
	m.partners[p.Code] = clone(p)
	return nil
}

// Close marks the store closed. Reads keep working; creates fail.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
