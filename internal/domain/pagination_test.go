package domain

import (
	"errors"
	"strconv"
	"testing"
)

func hotelsN(n int) []OfferedHotel {
	items := make([]OfferedHotel, n)
	for i := range items {
		items[i] = OfferedHotel{Code: strconv.Itoa(i + 1)}
	}
	return items
}

func TestClampPage(t *testing.T) {
	cases := []struct {
		page, total, want int
	}{
		{page: 0, total: 5, want: 1},
		{page: -3, total: 5, want: 1},
		{page: 3, total: 5, want: 3},
		{page: 9, total: 5, want: 5},
		{page: 4, total: 0, want: 1},
	}
	for _, tc := range cases {
		if got := ClampPage(tc.page, tc.total); got != tc.want {
			t.Fatalf("ClampPage(%d, %d) = %d, want %d", tc.page, tc.total, got, tc.want)
		}
	}
}

func TestClampPageSize(t *testing.T) {
	if got := ClampPageSize(0); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := ClampPageSize(500); got != MaxPageSize {
		t.Fatalf("expected %d, got %d", MaxPageSize, got)
	}
	if got := ClampPageSize(40); got != 40 {
		t.Fatalf("expected 40, got %d", got)
	}
}

func TestPageWindowSlicesRequestedPage(t *testing.T) {
	items := hotelsN(30)
	page := PageWindow(items, 2, 10)
	if len(page) != 10 {
		t.Fatalf("expected 10 hotels, got %d", len(page))
	}
	if page[0].Code != "11" || page[9].Code != "20" {
		t.Fatalf("unexpected window %s..%s", page[0].Code, page[9].Code)
	}

	tail := PageWindow(items, 4, 8)
	if len(tail) != 6 {
		t.Fatalf("expected short last page of 6, got %d", len(tail))
	}
	if beyond := PageWindow(items, 10, 10); len(beyond) != 0 {
		t.Fatalf("expected empty page beyond the end, got %d", len(beyond))
	}
}

func TestNewPaginationFlags(t *testing.T) {
	p := NewPagination(2, 10, 35, 10)
	if p.TotalPages != 4 {
		t.Fatalf("expected 4 pages, got %d", p.TotalPages)
	}
	if !p.HasNextPage || !p.HasPrevPage {
		t.Fatalf("expected both next and prev, got %+v", p)
	}
	last := NewPagination(4, 10, 35, 5)
	if last.HasNextPage {
		t.Fatalf("last page must not report next page")
	}
	empty := NewPagination(1, 25, 0, 0)
	if empty.TotalPages != 0 || empty.HasNextPage || empty.HasPrevPage {
		t.Fatalf("unexpected empty pagination %+v", empty)
	}
}

func TestParseSearchJobID(t *testing.T) {
	tests := []struct {
		raw     string
		want    SearchJobID
		wantErr bool
	}{
		{raw: "5830148812", want: "5830148812"},
		{raw: " 42 ", want: "42"},
		{raw: "", wantErr: true},
		{raw: "12a", wantErr: true},
		{raw: "../etc", wantErr: true},
		{raw: "123456789012345678901234567890123", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseSearchJobID(tt.raw)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidJobID) {
				t.Errorf("ParseSearchJobID(%q) err = %v, want ErrInvalidJobID", tt.raw, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseSearchJobID(%q) = %q, %v", tt.raw, got, err)
		}
	}
}
