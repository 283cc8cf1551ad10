package models

// ListQuery selects one page of a list.
type ListQuery struct {
	Page     int
	PerPage  int
	Search   string
	Category string
}

// Page is one page of results plus the totals the server reported.
type Page[T any] struct {
	Items      []T
	TotalPages int
	TotalCount int
}
