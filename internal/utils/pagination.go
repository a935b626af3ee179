// Package utils provides small helpers shared by the HTTP and service layers:
// query parsing, page windows over in-memory slices and upload file naming.
// Nothing here knows about chats or messages.
package utils

import "strconv"

// Page size bounds for listing endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault converts s with strconv.Atoi and returns def when s is empty
// or not an integer. Surrounding spaces are not trimmed.
//
//	utils.AtoiDefault("42", 0) // 42
//	utils.AtoiDefault("x", 5)  // 5
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage normalizes a 1-based page number and a page size: page < 1
// becomes 1, size < 1 becomes DefaultPageSize and size is capped at
// MaxPageSize.
func ClampPage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// PageWindow returns the half-open [start, end) bounds of page within a
// slice of total items. A page past the end yields start == end == total.
// page and size must already be clamped.
func PageWindow(total, page, size int) (start, end int) {
	start = (page - 1) * size
	if start >= total {
		return total, total
	}
	end = start + size
	if end > total {
		end = total
	}
	return start, end
}

// TotalPages is the number of pages of the given size needed for total
// items; zero items means zero pages.
func TotalPages(total, size int) int {
	if size < 1 {
		return 0
	}
	return (total + size - 1) / size
}
