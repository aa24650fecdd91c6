package docstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Calls counts backend operations issued against a Memory store.
type Calls struct {
	Queries int
	Gets    int
	Updates int
	Commits int
}

// Memory is an in-process Store. Results are deterministic: documents are
// ordered by the order-by field and then by ID.
type Memory struct {
	mu    sync.Mutex
	docs  map[string]map[string]map[string]any
	calls Calls
	newID func() string
}

func NewMemory() *Memory {
	return &Memory{
		docs:  make(map[string]map[string]map[string]any),
		newID: uuid.NewString,
	}
}

// Seed stores a document directly without counting a call.
func (m *Memory) Seed(ref Ref, data map[string]any) Ref {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ref.ID == "" {
		ref.ID = m.newID()
	}
	m.collection(ref.Collection)[ref.ID] = copyMap(data)
	return ref
}

// Calls returns the operation counters.
func (m *Memory) Calls() Calls {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Len reports how many documents a collection holds.
func (m *Memory) Len(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs[collection])
}

func (m *Memory) collection(name string) map[string]map[string]any {
	c, ok := m.docs[name]
	if !ok {
		c = make(map[string]map[string]any)
		m.docs[name] = c
	}
	return c
}

func (m *Memory) Query(ctx context.Context, q Query) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Queries++

	var matched []Document
	for id, data := range m.docs[q.Collection] {
		if !matches(data, q.Filters) {
			continue
		}
		if q.OrderBy != "" {
			if _, ok := data[q.OrderBy]; !ok {
				continue
			}
		}
		matched = append(matched, Document{
			Ref:  Ref{Collection: q.Collection, ID: id},
			Data: copyMap(data),
		})
	}

	less := func(a, b Document) bool {
		if q.OrderBy != "" {
			c := compareValues(a.Data[q.OrderBy], b.Data[q.OrderBy])
			if q.Descending {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return a.Ref.ID < b.Ref.ID
	}
	sort.Slice(matched, func(i, j int) bool { return less(matched[i], matched[j]) })

	if q.StartAfter != nil {
		mark := Document{Ref: q.StartAfter.ref, Data: map[string]any{}}
		if q.OrderBy != "" {
			mark.Data[q.OrderBy] = q.StartAfter.key[q.OrderBy]
		}
		start := sort.Search(len(matched), func(i int) bool { return less(mark, matched[i]) })
		matched = matched[start:]
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	page := &Page{Docs: matched}
	if n := len(matched); n > 0 {
		last := matched[n-1]
		key := map[string]any{"id": last.Ref.ID}
		if q.OrderBy != "" {
			key[q.OrderBy] = last.Data[q.OrderBy]
		}
		page.Last = &Cursor{ref: last.Ref, key: key}
	}
	return page, nil
}

func (m *Memory) Get(ctx context.Context, ref Ref) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Gets++

	data, ok := m.docs[ref.Collection][ref.ID]
	if !ok {
		return nil, nil
	}
	return &Document{Ref: ref, Data: copyMap(data)}, nil
}

func (m *Memory) Update(ctx context.Context, ref Ref, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Updates++

	data, ok := m.docs[ref.Collection][ref.ID]
	if !ok {
		return fmt.Errorf("update %s: %w", ref.Path(), ErrNotFound)
	}
	for k, v := range fields {
		data[k] = copyValue(v)
	}
	return nil
}

// Commit validates every operation before applying any of them.
func (m *Memory) Commit(ctx context.Context, ops []Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Commits++

	for i, op := range ops {
		if op.Ref.Collection == "" {
			return fmt.Errorf("op %d: collection is required", i)
		}
		switch op.Type {
		case OpSet:
		case OpUpdate, OpDelete:
			if op.Ref.ID == "" {
				return fmt.Errorf("op %d: %s requires a document id", i, op.Type)
			}
			if op.Type == OpUpdate {
				if _, ok := m.docs[op.Ref.Collection][op.Ref.ID]; !ok {
					return fmt.Errorf("op %d: update %s: %w", i, op.Ref.Path(), ErrNotFound)
				}
			}
		default:
			return fmt.Errorf("op %d: unknown operation type %d", i, op.Type)
		}
	}

	for _, op := range ops {
		switch op.Type {
		case OpSet:
			id := op.Ref.ID
			if id == "" {
				id = m.newID()
			}
			m.collection(op.Ref.Collection)[id] = copyMap(op.Data)
		case OpUpdate:
			data := m.docs[op.Ref.Collection][op.Ref.ID]
			for k, v := range op.Data {
				data[k] = copyValue(v)
			}
		case OpDelete:
			delete(m.docs[op.Ref.Collection], op.Ref.ID)
		}
	}
	return nil
}

func matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := data[f.Field]
		if !ok || !equalValues(v, f.Value) {
			return false
		}
	}
	return true
}

func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders nil < bool < numbers < strings < times < anything
// else, comparing within a kind by value.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch ra {
	case 1:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case 2:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 3:
		sa, sb := a.(string), b.(string)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
		return 0
	case 4:
		return a.(time.Time).Compare(b.(time.Time))
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case string:
		return 3
	case time.Time:
		return 4
	}
	if _, ok := toFloat(v); ok {
		return 2
	}
	return 5
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
