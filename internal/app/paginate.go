package app

import (
	"sort"
	"strings"

	"pecel/api/internal/store"
)

// Pagination is the metadata block of a paginated list response.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// PaginatedDocuments is the envelope returned when page and limit are both
// present on the list request.
type PaginatedDocuments struct {
	Data       []store.Document `json:"data"`
	Pagination Pagination       `json:"pagination"`
}

// paginate slices one page out of the already filtered and sorted list. Page
// is clamped into range so an overshoot returns the last page, not an empty
// one.
func paginate(documents []store.Document, page, limit int) PaginatedDocuments {
	if limit < 1 {
		limit = 10
	}
	total := len(documents)
	totalPages := (total + limit - 1) / limit

	if page < 1 {
		page = 1
	}
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}

	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return PaginatedDocuments{
		Data: documents[start:end],
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
			HasPrev:    page > 1,
		},
	}
}

// documentSortKey extracts the comparable value for one sortBy field. Unknown
// fields sort everything equal, leaving the input order intact.
func documentSortKey(doc store.Document, field string) string {
	switch field {
	case "tanggal":
		return doc.Tanggal
	case "nama":
		return strings.ToLower(doc.Nama)
	case "nomorRegister":
		return doc.NomorRegister
	case "jenisDokumen":
		return doc.JenisDokumen
	case "status":
		return doc.Status
	case "alamat":
		return doc.Alamat
	case "namaCS":
		return strings.ToLower(doc.NamaCS)
	case "namaOperator":
		return strings.ToLower(doc.NamaOperator)
	default:
		return ""
	}
}

// applySort orders documents by one field. The sort is stable so ties keep
// the store's ordering.
func applySort(documents []store.Document, sortBy, sortOrder string) []store.Document {
	if sortBy == "" {
		return documents
	}
	sorted := make([]store.Document, len(documents))
	copy(sorted, documents)
	descending := sortOrder == "desc"
	sort.SliceStable(sorted, func(i, j int) bool {
		a := documentSortKey(sorted[i], sortBy)
		b := documentSortKey(sorted[j], sortBy)
		if descending {
			return a > b
		}
		return a < b
	})
	return sorted
}
