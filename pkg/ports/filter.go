package ports

import (
	"sort"
	"strings"
)

// Match evaluates the filter against a row held in memory.
func (f Filter) Match(r Row) bool {
	for _, c := range f {
		v, ok := r[c.Field]
		present := ok && v != nil
		switch c.Op {
		case OpIsNull:
			if present {
				return false
			}
		case OpNotNull:
			if !present {
				return false
			}
		default:
			if !present || !ValuesEqual(v, c.Value) {
				return false
			}
		}
	}
	return true
}

// SortRows orders rows in place according to opts and applies its limit.
func SortRows(rows []Row, opts ListOptions) []Row {
	field := opts.OrderBy
	if field == "" {
		field = "id"
	}
	sort.SliceStable(rows, func(i, j int) bool {
		c := compareValues(rows[i][field], rows[j][field])
		if opts.Desc {
			return c > 0
		}
		return c < 0
	})
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}
	return rows
}

// ValuesEqual compares two column values, treating all numeric types alike.
func ValuesEqual(a, b any) bool {
	if na, ok := toFloat(a); ok {
		if nb, ok := toFloat(b); ok {
			return na == nb
		}
		return false
	}
	return a == b
}

func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if na, ok := toFloat(a); ok {
		if nb, ok := toFloat(b); ok {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			}
			return 0
		}
	}
	sa, _ := a.(string)
	sb, _ := b.(string)
	return strings.Compare(sa, sb)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
