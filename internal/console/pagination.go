package console

// DefaultPageSize is the rows per page of every table view.
const DefaultPageSize = 5

// Page is one page of a filtered list.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Paginate slices items into 1-based pages. TotalPages is at least 1 and
// page is clamped into range.
func Paginate[T any](items []T, page, size int) Page[T] {
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(items)
	totalPages := (total + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	start := (page - 1) * size
	end := start + size
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	out := make([]T, end-start)
	copy(out, items[start:end])
	return Page[T]{Items: out, Page: page, PageSize: size, Total: total, TotalPages: totalPages}
}

// Filter keeps the items whose search text contains search, ignoring case.
func Filter[T any](items []T, search string, text func(T) string) []T {
	if search == "" {
		out := make([]T, len(items))
		copy(out, items)
		return out
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		if containsFold(text(it), search) {
			out = append(out, it)
		}
	}
	return out
}
