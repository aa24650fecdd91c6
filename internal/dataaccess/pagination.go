package dataaccess

import (
	"context"
	"fmt"
	"sync"

	"github.com/acessivel/mobility/internal/cache"
	"github.com/acessivel/mobility/internal/docstore"
	mobilityerrors "github.com/acessivel/mobility/internal/errors"
)

// Constraints narrow a paginated listing. The page cache key does not
// include them, so one collection should be listed with one set of
// constraints at a time.
type Constraints struct {
	Filters    []docstore.Filter
	OrderBy    string
	Descending bool
}

// PageResult is one page of a paginated listing.
type PageResult struct {
	Data        []Record `json:"data"`
	HasMore     bool     `json:"hasMore"`
	CurrentPage int      `json:"currentPage"`
	TotalPages  int      `json:"totalPages"`
}

func (r *PageResult) clone() *PageResult {
	out := *r
	out.Data = cloneRecords(r.Data)
	return &out
}

// Paginator remembers, per collection, the cursor after the last document
// of every page fetched so far.
type Paginator struct {
	h *Helpers

	mu      sync.Mutex
	cursors map[string][]*docstore.Cursor
}

func newPaginator(h *Helpers) *Paginator {
	return &Paginator{
		h:       h,
		cursors: make(map[string][]*docstore.Cursor),
	}
}

// Page returns page pageIndex (zero based). Page N starts after the cursor
// saved for page N-1; when that cursor is unknown it starts from the top.
func (p *Paginator) Page(ctx context.Context, collection string, c Constraints, pageSize, pageIndex int) (*PageResult, error) {
	if collection == "" {
		return nil, mobilityerrors.InvalidInput(mobilityerrors.ServiceBackend, "collection is required")
	}
	if pageIndex < 0 {
		return nil, mobilityerrors.InvalidInput(mobilityerrors.ServiceBackend, "page index must not be negative")
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	key := fmt.Sprintf("%s_page_%d_%d", collection, pageIndex, pageSize)
	if result, ok := cache.GetAs[*PageResult](p.h.cache(), key); ok {
		return result.clone(), nil
	}

	q := docstore.Query{
		Collection: collection,
		Filters:    c.Filters,
		OrderBy:    c.OrderBy,
		Descending: c.Descending,
		Limit:      pageSize,
	}
	if pageIndex > 0 {
		q.StartAfter = p.cursor(collection, pageIndex-1)
	}

	page, err := p.h.store.Query(ctx, q)
	if err != nil {
		return nil, mobilityerrors.Backend(fmt.Sprintf("failed to page %s", collection), err)
	}
	p.h.chargeReads(len(page.Docs))

	hasMore := len(page.Docs) == pageSize
	known := p.saveCursor(collection, pageIndex, page.Last)

	total := known
	if hasMore {
		total++
	}
	result := &PageResult{
		Data:        flatten(page.Docs),
		HasMore:     hasMore,
		CurrentPage: pageIndex,
		TotalPages:  total,
	}
	p.h.remember(key, result, DefaultTTL)
	return result.clone(), nil
}

// ClearCursors forgets the collection's cursors and invalidates every cached
// key mentioning it.
func (p *Paginator) ClearCursors(collection string) {
	p.mu.Lock()
	delete(p.cursors, collection)
	p.mu.Unlock()

	p.h.invalidate(collection)
}

// Cursors reports how many page cursors are known for collection.
func (p *Paginator) Cursors(collection string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cursors[collection])
}

func (p *Paginator) cursor(collection string, index int) *docstore.Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()

	cursors := p.cursors[collection]
	if index < len(cursors) {
		return cursors[index]
	}
	return nil
}

// saveCursor records last as the cursor of page index and returns the
// length of the collection's cursor list.
func (p *Paginator) saveCursor(collection string, index int, last *docstore.Cursor) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cursors := p.cursors[collection]
	if last != nil {
		for len(cursors) <= index {
			cursors = append(cursors, nil)
		}
		cursors[index] = last
		p.cursors[collection] = cursors
	}
	return len(cursors)
}
