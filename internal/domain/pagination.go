package domain

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

type Pagination struct {
	CurrentPage  int  `json:"current_page"`
	PerPage      int  `json:"per_page"`
	TotalHotels  int  `json:"total_hotels"`
	TotalPages   int  `json:"total_pages"`
	HasNextPage  bool `json:"has_next_page"`
	HasPrevPage  bool `json:"has_prev_page"`
	HotelsOnPage int  `json:"hotels_on_page"`
}

// ClampPageSize keeps a page size within [1, MaxPageSize].
func ClampPageSize(size int) int {
	if size < 1 {
		return 1
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

func TotalPages(totalHotels, perPage int) int {
	if totalHotels <= 0 || perPage <= 0 {
		return 0
	}
	return (totalHotels + perPage - 1) / perPage
}

// ClampPage keeps page within [1, max(1, totalPages)].
func ClampPage(page, totalPages int) int {
	upper := totalPages
	if upper < 1 {
		upper = 1
	}
	if page < 1 {
		return 1
	}
	if page > upper {
		return upper
	}
	return page
}

// PageWindow returns the hotels of page (1-based) from an ordered hotel set.
func PageWindow(hotels []OfferedHotel, page, perPage int) []OfferedHotel {
	if page < 1 || perPage < 1 {
		return []OfferedHotel{}
	}
	start := (page - 1) * perPage
	if start >= len(hotels) {
		return []OfferedHotel{}
	}
	end := start + perPage
	if end > len(hotels) {
		end = len(hotels)
	}
	return append([]OfferedHotel(nil), hotels[start:end]...)
}

// NewPagination builds pagination metadata for a page that holds hotelsOnPage entries.
func NewPagination(page, perPage, totalHotels, hotelsOnPage int) Pagination {
	totalPages := TotalPages(totalHotels, perPage)
	return Pagination{
		CurrentPage:  page,
		PerPage:      perPage,
		TotalHotels:  totalHotels,
		TotalPages:   totalPages,
		HasNextPage:  page < totalPages,
		HasPrevPage:  page > 1,
		HotelsOnPage: hotelsOnPage,
	}
}
