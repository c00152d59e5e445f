package types

import (
	"path"
	"strings"
)

// Data is the JSON-compatible body of a document.
type Data = map[string]any

// Document is a single record in the realtime store.
type Document struct {
	Path       string `json:"path"`
	Data       Data   `json:"data"`
	UpdateTime int64  `json:"updateTime"`
}

// ID returns the last path segment.
func (d Document) ID() string { return path.Base(d.Path) }

// SetOptions controls Set. With Merge, nested maps are merged key by key
// instead of replacing the document.
type SetOptions struct {
	Merge bool
}

// Query selects the direct children of a collection.
type Query struct {
	Collection string
	OrderBy    string
	Desc       bool
	Limit      int
}

// WatchTarget is what a subscription follows: one document, or a query.
type WatchTarget struct {
	Path  string
	Query *Query
}

// DocumentTarget watches a single document.
func DocumentTarget(p string) WatchTarget { return WatchTarget{Path: p} }

// QueryTarget watches a query.
func QueryTarget(q Query) WatchTarget { return WatchTarget{Query: &q} }

// IsQuery reports whether the target is a query.
func (t WatchTarget) IsQuery() bool { return t.Query != nil }

// String returns a stable description used for logging and listener ids.
func (t WatchTarget) String() string {
	if t.Query == nil {
		return "doc:" + t.Path
	}
	dir := "asc"
	if t.Query.Desc {
		dir = "desc"
	}
	return "query:" + t.Query.Collection + "|" + t.Query.OrderBy + "|" + dir
}

// Matches reports whether a write to docPath is visible through the target.
func (t WatchTarget) Matches(docPath string) bool {
	if t.Query == nil {
		return t.Path == docPath
	}
	return ParentPath(docPath) == strings.TrimSuffix(t.Query.Collection, "/")
}

// Snapshot is what a subscription delivers. Document targets fill Document
// (Exists=false when absent); query targets fill Documents in query order.
type Snapshot struct {
	Target    WatchTarget
	Exists    bool
	Document  Document
	Documents []Document
}

// ParentPath returns the collection that contains docPath.
func ParentPath(docPath string) string {
	i := strings.LastIndex(docPath, "/")
	if i < 0 {
		return ""
	}
	return docPath[:i]
}

// JoinPath joins path segments with "/".
func JoinPath(parts ...string) string { return strings.Join(parts, "/") }

// serverTimestamp is resolved by the store to its own clock at write time.
type serverTimestamp struct{}

// increment adds N to the stored numeric value at write time.
type increment struct{ N int64 }

// ServerTimestamp returns the write-time sentinel resolved by the store.
func ServerTimestamp() any { return serverTimestamp{} }

// Increment returns a sentinel that atomically adds n to a numeric field.
func Increment(n int64) any { return increment{N: n} }

// IsServerTimestamp reports whether v is the server timestamp sentinel.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// IncrementBy reports the delta of an increment sentinel.
func IncrementBy(v any) (int64, bool) {
	inc, ok := v.(increment)
	return inc.N, ok
}
