package loader

import "fmt"

// normalizeKey maps a join-key value to a comparable bucket key. Drivers may
// return the same key as int64, string or []byte depending on the column, so
// keys compare by their printed form.
func normalizeKey(v any) string {
	switch k := v.(type) {
	case []byte:
		return string(k)
	case string:
		return k
	default:
		return fmt.Sprint(k)
	}
}

// pendingGroup holds the owners awaiting one relationship, grouped by key.
type pendingGroup struct {
	// keys are raw key values in first-seen order, one per bucket.
	keys    []any
	buckets map[string][]Owner
	order   []string
	// unkeyed owners have a nil join key and resolve to nothing.
	unkeyed []Owner
	size    int
}

func newPendingGroup() *pendingGroup {
	return &pendingGroup{buckets: make(map[string][]Owner)}
}

func (g *pendingGroup) add(owner Owner, key any, ok bool) {
	g.size++
	if !ok || key == nil {
		g.unkeyed = append(g.unkeyed, owner)
		return
	}
	k := normalizeKey(key)
	if _, seen := g.buckets[k]; !seen {
		g.keys = append(g.keys, key)
		g.order = append(g.order, k)
	}
	g.buckets[k] = append(g.buckets[k], owner)
}
