package docstore

import (
	"context"
	"errors"
	"strings"
)

// Store is the backend document store used by the data-access helpers.
type Store interface {
	Query(ctx context.Context, q Query) (*Page, error)
	// Get returns nil, nil when the document does not exist.
	Get(ctx context.Context, ref Ref) (*Document, error)
	Update(ctx context.Context, ref Ref, fields map[string]any) error
	// Commit applies all operations atomically.
	Commit(ctx context.Context, ops []Op) error
}

var (
	// ErrNotFound is returned by Update when the target document is missing.
	ErrNotFound = errors.New("document not found")

	// ErrUnsupportedFilter is returned for filter operators other than "==".
	ErrUnsupportedFilter = errors.New("unsupported filter operator")
)

// Ref addresses a single document.
type Ref struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// Path returns "collection/id".
func (r Ref) Path() string {
	return r.Collection + "/" + r.ID
}

// ParseRef splits a "collection/id" path. A path without a slash names a
// collection and yields an empty ID.
func ParseRef(path string) Ref {
	path = strings.Trim(path, "/")
	collection, id, _ := strings.Cut(path, "/")
	return Ref{Collection: collection, ID: id}
}

// FilterOp is a query filter operator. Only equality is supported.
type FilterOp string

const OpEqual FilterOp = "=="

type Filter struct {
	Field string   `json:"field"`
	Op    FilterOp `json:"op"`
	Value any      `json:"value"`
}

// Where builds an equality filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	// Limit <= 0 means no limit.
	Limit      int
	StartAfter *Cursor
}

func (q Query) validate() error {
	if q.Collection == "" {
		return errors.New("query collection is required")
	}
	for _, f := range q.Filters {
		if f.Op != OpEqual && f.Op != "" {
			return ErrUnsupportedFilter
		}
	}
	return nil
}

// Document is a stored document. Data never contains the ID.
type Document struct {
	Ref  Ref            `json:"-"`
	Data map[string]any `json:"data"`
}

// Flatten returns the document fields merged with its "id", the shape
// callers cache and serve.
func (d Document) Flatten() map[string]any {
	out := make(map[string]any, len(d.Data)+1)
	for k, v := range d.Data {
		out[k] = v
	}
	out["id"] = d.Ref.ID
	return out
}

// Cursor marks a position in a query result. It is only meaningful to the
// Store that produced it.
type Cursor struct {
	ref Ref
	key map[string]any
}

// Ref is the document the cursor points after.
func (c *Cursor) Ref() Ref {
	if c == nil {
		return Ref{}
	}
	return c.ref
}

// Page is one query result.
type Page struct {
	Docs []Document
	// Last is the cursor after the final document, nil when Docs is empty.
	Last *Cursor
}

type OpType int

const (
	OpSet OpType = iota
	OpUpdate
	OpDelete
)

func (t OpType) String() string {
	switch t {
	case OpSet:
		return "set"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseOpType maps "set", "update" and "delete" to their OpType.
func ParseOpType(s string) (OpType, bool) {
	switch strings.ToLower(s) {
	case "set":
		return OpSet, true
	case "update":
		return OpUpdate, true
	case "delete":
		return OpDelete, true
	}
	return 0, false
}

// Op is a single write in a batch. A Set with an empty Ref.ID gets a
// generated ID.
type Op struct {
	Type OpType
	Ref  Ref
	Data map[string]any
}
