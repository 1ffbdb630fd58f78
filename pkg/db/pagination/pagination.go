package pagination

// Offset is a clamped limit/offset request.
type Offset struct {
	Limit  int
	Offset int
}

type PageInfo struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// Clamp applies the default when limit is unset and caps it at max.
func Clamp(limit, offset, def, max int) Offset {
	if limit <= 0 {
		limit = def
	}
	if max > 0 && limit > max {
		limit = max
	}
	if offset < 0 {
		offset = 0
	}
	return Offset{Limit: limit, Offset: offset}
}

// FetchLimit is the row count to request so that HasMore can be derived.
func (o Offset) FetchLimit() int {
	return o.Limit + 1
}

// Trim cuts the extra lookahead row and reports whether more rows exist.
func Trim[T any](rows []T, page Offset) ([]T, PageInfo) {
	info := PageInfo{Limit: page.Limit, Offset: page.Offset}
	if len(rows) > page.Limit {
		info.HasMore = true
		rows = rows[:page.Limit]
	}
	return rows, info
}
