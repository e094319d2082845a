package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// PaginationMeta defines the structure for pagination metadata.
type PaginationMeta struct {
	TotalItems  int64 `json:"total_items"`
	TotalPages  int   `json:"total_pages"`
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
}

// PaginatedResponse defines the structure for a paginated list of any type.
type PaginatedResponse[T any] struct {
	Data []T            `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

// NewPaginatedResponse creates a new PaginatedResponse.
func NewPaginatedResponse[T any](data []T, totalItems int64, page, limit int) PaginatedResponse[T] {
	if limit <= 0 {
		limit = 1
	}
	return PaginatedResponse[T]{
		Data: data,
		Meta: PaginationMeta{
			TotalItems:  totalItems,
			TotalPages:  pageCount(int(totalItems), limit),
			CurrentPage: page,
			PageSize:    limit,
		},
	}
}

// Paginate cuts one page out of an already loaded snapshot. Pages past the
// end are empty.
func Paginate[T any](items []T, page, limit int) PaginatedResponse[T] {
	if limit < 1 {
		limit = 1
	}
	if page < 1 {
		page = 1
	}

	data := make([]T, 0)
	// Compare page indexes rather than offsets; (page-1)*limit can overflow.
	if page-1 < pageCount(len(items), limit) {
		start := (page - 1) * limit
		end := start + min(limit, len(items)-start)
		data = append(data, items[start:end]...)
	}
	return NewPaginatedResponse(data, int64(len(items)), page, limit)
}

func pageCount(total, limit int) int {
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return pages
}

// pageParams reads page and limit with the usual defaults and a max limit of 100.
func pageParams(c *gin.Context) (page, limit int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	limit, err = strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100 // Max limit
	}
	return page, limit
}
