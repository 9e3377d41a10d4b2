package league

import (
	"errors"
	"sort"
	"testing"
)

func TestAbbrevsSorted(t *testing.T) {
	if !sort.StringsAreSorted(Abbrevs) {
		t.Fatal("Abbrevs must stay sorted for lookup")
	}
	if len(Abbrevs) != 32 {
		t.Errorf("len(Abbrevs) = %d; want 32", len(Abbrevs))
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"EDM", "EDM"},
		{" edm ", "EDM"},
		{"@NYR", "NYR"},
		{"vs BOS", "BOS"},
		{"UTA", "ARI"},
		{"Utah Hockey Club", "ARI"},
		{"Montreal Canadiens", "MTL"},
		{"T.B", "TBL"},
	}
	for _, tc := range cases {
		got, ok := Normalize(tc.in)
		if !ok || got != tc.want {
			t.Errorf("Normalize(%q) = %q, %v; want %q", tc.in, got, ok, tc.want)
		}
	}
	if _, ok := Normalize("Hartford Whalers"); ok {
		t.Error("Normalize(Hartford Whalers) should fail")
	}
}

func TestResolver_IDs(t *testing.T) {
	r, err := NewResolver("EDM")
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if r.Teams() != 32 {
		t.Fatalf("Teams() = %d; want 32", r.Teams())
	}
	id, err := r.ID("ANA")
	if err != nil || id != 1 {
		t.Errorf("ID(ANA) = %d, %v; want 1", id, err)
	}
	id, err = r.ID("WSH")
	if err != nil || id != 32 {
		t.Errorf("ID(WSH) = %d, %v; want 32", id, err)
	}
	id, _ = r.ID("FLA")
	if id != 13 || r.Abbrev(13) != "FLA" {
		t.Errorf("ID(FLA) = %d, Abbrev(13) = %q; want 13, FLA", id, r.Abbrev(13))
	}
	for i := 1; i <= r.Teams(); i++ {
		back, err := r.ID(r.Abbrev(i))
		if err != nil || back != i {
			t.Errorf("round trip id %d -> %q -> %d, %v", i, r.Abbrev(i), back, err)
		}
	}
}

func TestResolver_OwnClubResolves(t *testing.T) {
	r, _ := NewResolver("Edmonton Oilers")
	if r.Club() != "EDM" {
		t.Errorf("Club() = %q; want EDM", r.Club())
	}
	id, err := r.ID("EDM")
	if err != nil || id != 12 {
		t.Errorf("ID(own club) = %d, %v; want 12", id, err)
	}
	other, _ := NewResolver("TOR")
	if oid, _ := other.ID("EDM"); oid != id {
		t.Errorf("ids depend on the club: %d vs %d", oid, id)
	}
}

func TestResolver_UnknownName(t *testing.T) {
	r, _ := NewResolver("EDM")
	_, err := r.ID("HFD")
	var ute *UnknownTeamError
	if !errors.As(err, &ute) {
		t.Fatalf("ID(HFD) = %v; want UnknownTeamError", err)
	}
	if ute.Name != "HFD" {
		t.Errorf("Name = %q", ute.Name)
	}
}

func TestNewResolver_BadClub(t *testing.T) {
	if _, err := NewResolver("XYZ"); err == nil {
		t.Error("expected error for unknown club")
	}
	r, _ := NewResolver("EDM")
	if r.Abbrev(0) != "" || r.Abbrev(33) != "" {
		t.Error("Abbrev out of range should be empty")
	}
}
