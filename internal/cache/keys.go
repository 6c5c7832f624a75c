package cache

import (
	"fmt"

	"github.com/t3m14/tours-sub000/internal/domain"
)

// SearchParamsKey returns the key holding the criteria a job was submitted with.
func SearchParamsKey(id domain.SearchJobID) string {
	return "search_params:" + id.String()
}

// SearchResultsKey returns the key of one result page of a finished search.
func SearchResultsKey(id domain.SearchJobID, page, pageSize int) string {
	return fmt.Sprintf("search_results:%s:%d:%d", id, page, pageSize)
}
