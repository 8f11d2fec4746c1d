package helpers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yigit/problemportal/internal/app/models/dto"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	DefaultPage     = 1
)

// ParsePaginationParams reads `page` and `size` from the query string. ok is
// false when the client did not ask for a page, in which case the caller
// returns the whole listing.
func ParsePaginationParams(c *gin.Context) (page, size int, ok bool) {
	pageStr, present := c.GetQuery("page")
	if !present {
		return 0, 0, false
	}

	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		page = DefaultPage
	}

	size, err = strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(DefaultPageSize)))
	if err != nil || size <= 0 || size > MaxPageSize {
		size = DefaultPageSize
	}

	return page, size, true
}

// Paginate returns one page of items with its metadata. Out-of-range pages
// yield an empty slice and report the last page as current.
func Paginate[T any](items []T, page, size int) ([]T, dto.PaginationInfo) {
	if size <= 0 {
		size = DefaultPageSize
	}
	if page < 1 {
		page = DefaultPage
	}

	total := len(items)
	totalPages := (total + size - 1) / size
	if totalPages == 0 {
		totalPages = 1
	}

	start := min((page-1)*size, total)
	end := min(start+size, total)

	return items[start:end], dto.PaginationInfo{
		CurrentPage: min(page, totalPages),
		TotalPages:  totalPages,
		PageSize:    size,
		TotalItems:  total,
	}
}
