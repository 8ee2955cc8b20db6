package scope

import "testing"

func TestParseCanonicalisesTenant(t *testing.T) {
	s, err := Parse("00000000-0000-4000-8000-00000000000A")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.IsGlobal() {
		t.Fatal("expected tenant-bound scope")
	}
	if got := s.String(); got != "00000000-0000-4000-8000-00000000000a" {
		t.Fatalf("unexpected canonical form %q", got)
	}
}

func TestParseEmptyIsGlobal(t *testing.T) {
	s, err := Parse("  ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !s.IsGlobal() || s.Key() != GlobalKey || s.String() != "" {
		t.Fatalf("expected global scope, got %+v", s)
	}
}

func TestParseRejectsNonCanonical(t *testing.T) {
	for _, raw := range []string{
		"not-a-uuid",
		"{00000000-0000-4000-8000-000000000001}",
		"urn:uuid:00000000-0000-4000-8000-000000000001",
		"00000000000040008000000000000001",
		"00000000-0000-0000-0000-000000000000",
	} {
		if _, err := Parse(raw); err != ErrInvalidTenant {
			t.Fatalf("Parse(%q): expected ErrInvalidTenant, got %v", raw, err)
		}
	}
}

func TestEqual(t *testing.T) {
	a, _ := Parse("00000000-0000-4000-8000-000000000001")
	b, _ := Parse("00000000-0000-4000-8000-000000000001")
	c, _ := Parse("00000000-0000-4000-8000-000000000002")
	if !a.Equal(b) || a.Equal(c) || a.Equal(Global()) || !Global().Equal(Scope{}) {
		t.Fatal("unexpected scope equality result")
	}
}
