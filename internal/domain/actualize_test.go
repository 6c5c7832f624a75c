package domain

import (
	"errors"
	"testing"
)

func TestParseTourID(t *testing.T) {
	valid := map[string]string{
		"16240000512":  "16240000512",
		" abc-DEF_09 ": "abc-DEF_09",
	}
	for raw, want := range valid {
		got, err := ParseTourID(raw)
		if err != nil || got != want {
			t.Fatalf("ParseTourID(%q) = %q, %v; want %q", raw, got, err, want)
		}
	}
	for _, raw := range []string{"", "   ", "a b", "1/2", "id?x=1", string(make([]byte, 65))} {
		if _, err := ParseTourID(raw); !errors.Is(err, ErrInvalidTourID) {
			t.Fatalf("ParseTourID(%q): expected ErrInvalidTourID, got %v", raw, err)
		}
	}
}

func TestActualizeRequestValidate(t *testing.T) {
	if err := (ActualizeRequest{TourID: "1", RequestCheck: ActualizeCached}).Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
	if err := (ActualizeRequest{}).Validate(); !errors.Is(err, ErrInvalidTourID) {
		t.Fatalf("expected ErrInvalidTourID, got %v", err)
	}
	for _, req := range []ActualizeRequest{
		{TourID: "1", RequestCheck: -1},
		{TourID: "1", RequestCheck: 3},
		{TourID: "1", Currency: -2},
	} {
		if err := req.Validate(); !errors.Is(err, ErrInvalidCriteria) {
			t.Fatalf("%+v: expected ErrInvalidCriteria, got %v", req, err)
		}
	}
}
