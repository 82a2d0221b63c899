package sourcemap

import "testing"

func TestLocateBasic(t *testing.T) {
	m := New()
	rec := m.Register([]byte("let x = 1;\nprint(x);\n"), "a.lc", 1, 1)
	loc, ok := m.Locate(rec.Addr(11)) // start of second line
	if !ok {
		t.Fatal("expected a location")
	}
	if loc.Row != 2 || loc.Col != 1 {
		t.Fatalf("got row=%d col=%d, want row=2 col=1", loc.Row, loc.Col)
	}
	if loc.Line != "print(x);" {
		t.Fatalf("got line %q", loc.Line)
	}
}

func TestLocateOutOfRange(t *testing.T) {
	m := New()
	m.Register([]byte("abc"), "a.lc", 1, 1)
	if _, ok := m.Locate(Addr(999)); ok {
		t.Fatal("expected no match for an address outside any buffer")
	}
}

func TestNewerWinsOnOverlap(t *testing.T) {
	m := New()
	old := m.Register([]byte("old source"), "old.lc", 1, 1)
	newer := m.RegisterAt([]byte("new source"), "new.lc", 1, 1, old.Base())
	loc, ok := m.Locate(old.Base())
	if !ok {
		t.Fatal("expected a match")
	}
	if loc.File != "new.lc" {
		t.Fatalf("expected newer registration to win, got file=%q", loc.File)
	}
	_ = newer
}
