package types

import "strings"

// RequestSortField names a column requests can be ordered by.
type RequestSortField string

const (
	SortFieldUpdated RequestSortField = "updated"
	SortFieldPlaced  RequestSortField = "placed"
	SortFieldStatus  RequestSortField = "status"
	SortFieldOrderID RequestSortField = "orderid"
)

// SortDirection is ascending or descending.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// RequestSortOption is one ordering key.
type RequestSortOption struct {
	Field     RequestSortField
	Direction SortDirection
}

// DefaultRequestSortOptions orders the most recently touched requests first.
func DefaultRequestSortOptions() []RequestSortOption {
	return []RequestSortOption{
		{Field: SortFieldUpdated, Direction: SortDesc},
	}
}

// ParseRequestSortOrder converts a comma-delimited string (e.g. "status-asc,updated-desc")
// into sort options. Unrecognised fields or directions are skipped.
func ParseRequestSortOrder(raw string) []RequestSortOption {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	options := make([]RequestSortOption, 0, len(parts))
	seen := make(map[RequestSortField]bool)

	for _, part := range parts {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}
		field, dir := token, "asc"
		if idx := strings.IndexAny(token, ":-"); idx >= 0 {
			field = strings.TrimSpace(token[:idx])
			dir = strings.TrimSpace(token[idx+1:])
		}

		sortField := mapSortField(field)
		direction := mapSortDirection(dir)
		if sortField == "" || direction == "" || seen[sortField] {
			continue
		}
		seen[sortField] = true
		options = append(options, RequestSortOption{Field: sortField, Direction: direction})
	}

	return options
}

// EncodeRequestSortOrder is the inverse of ParseRequestSortOrder.
func EncodeRequestSortOrder(options []RequestSortOption) string {
	tokens := make([]string, 0, len(options))
	for _, opt := range options {
		if opt.Field == "" || opt.Direction == "" {
			continue
		}
		tokens = append(tokens, string(opt.Field)+"-"+string(opt.Direction))
	}
	return strings.Join(tokens, ",")
}

func mapSortField(raw string) RequestSortField {
	switch strings.ToLower(raw) {
	case "updated", "updated_at":
		return SortFieldUpdated
	case "placed", "created":
		return SortFieldPlaced
	case "status":
		return SortFieldStatus
	case "orderid", "order":
		return SortFieldOrderID
	default:
		return ""
	}
}

func mapSortDirection(raw string) SortDirection {
	switch strings.ToLower(raw) {
	case "asc", "ascending":
		return SortAsc
	case "desc", "descending":
		return SortDesc
	default:
		return ""
	}
}
