package store

import (
	"sort"
	"strings"

	"wellnest/internal/domain"
)

// applyQuery orders and limits the children of q.Collection. With OrderBy
// set, documents lacking the field are left out.
func applyQuery(docs []domain.Document, q domain.Query) []domain.Document {
	out := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		if q.OrderBy != "" {
			if _, ok := d.Data[q.OrderBy]; !ok {
				continue
			}
		}
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool {
		c := 0
		if q.OrderBy != "" {
			c = compareValues(out[i].Data[q.OrderBy], out[j].Data[q.OrderBy])
		}
		if c == 0 {
			c = strings.Compare(out[i].Path, out[j].Path)
		}
		if q.Desc {
			return c > 0
		}
		return c < 0
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// compareValues orders nil < bool < number < string; other types compare equal.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case string:
		return strings.Compare(x, b.(string))
	}
	if ra == 2 {
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64, int64, int:
		return 2
	case string:
		return 3
	}
	return 4
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

// isChild reports whether docPath is a direct child of collection.
func isChild(collection, docPath string) bool {
	return domain.ParentPath(docPath) == strings.TrimSuffix(collection, "/")
}
