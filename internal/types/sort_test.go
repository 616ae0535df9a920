package types

import "testing"

func TestParseRequestSortOrder(t *testing.T) {
	opts := ParseRequestSortOrder("updated-desc,status-asc,placed:desc")
	if len(opts) != 3 {
		t.Fatalf("expected 3 options, got %d", len(opts))
	}
	if opts[0].Field != SortFieldUpdated || opts[0].Direction != SortDesc {
		t.Fatalf("unexpected first option %+v", opts[0])
	}
	if opts[1].Field != SortFieldStatus || opts[1].Direction != SortAsc {
		t.Fatalf("unexpected second option %+v", opts[1])
	}
	if opts[2].Field != SortFieldPlaced || opts[2].Direction != SortDesc {
		t.Fatalf("unexpected third option %+v", opts[2])
	}
}

func TestParseRequestSortOrderSkipsInvalid(t *testing.T) {
	opts := ParseRequestSortOrder("unknown-desc,updated-ascending,,status-sideways,updated-desc")
	if len(opts) != 1 {
		t.Fatalf("expected 1 valid option, got %d: %+v", len(opts), opts)
	}
	if opts[0].Field != SortFieldUpdated || opts[0].Direction != SortAsc {
		t.Fatalf("unexpected updated option %+v", opts[0])
	}
}

func TestParseRequestSortOrderBareField(t *testing.T) {
	opts := ParseRequestSortOrder("orderid")
	if len(opts) != 1 || opts[0].Field != SortFieldOrderID || opts[0].Direction != SortAsc {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestEncodeRequestSortOrder(t *testing.T) {
	order := EncodeRequestSortOrder([]RequestSortOption{
		{Field: SortFieldUpdated, Direction: SortDesc},
		{Field: SortFieldStatus, Direction: SortAsc},
	})
	if order != "updated-desc,status-asc" {
		t.Fatalf("unexpected encoded order %q", order)
	}
}

func TestDefaultRequestSortOptions(t *testing.T) {
	defaults := DefaultRequestSortOptions()
	if len(defaults) != 1 {
		t.Fatalf("expected 1 default, got %d", len(defaults))
	}
	if defaults[0].Field != SortFieldUpdated || defaults[0].Direction != SortDesc {
		t.Fatalf("unexpected default %+v", defaults[0])
	}
}
