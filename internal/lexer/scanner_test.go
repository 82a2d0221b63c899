package lexer

import "testing"

func scanAll(src string) []Token {
	s := New([]byte(src), "t.lc")
	var toks []Token
	for !s.AtEnd() {
		s.SkipFiller()
		if s.AtEnd() {
			break
		}
		if tok, ok := s.MatchKeyword("fn"); ok {
			toks = append(toks, tok)
			continue
		}
		if tok, ok := s.ScanFloat(); ok {
			toks = append(toks, tok)
			continue
		}
		if tok, ok := s.ScanInteger(); ok {
			toks = append(toks, tok)
			continue
		}
		if tok, ok := s.ScanIdentifier(); ok {
			toks = append(toks, tok)
			continue
		}
		if tok, _, ok := s.ScanString(); ok {
			toks = append(toks, tok)
			continue
		}
		break
	}
	return toks
}

func TestSkipFillerNestedComments(t *testing.T) {
	s := New([]byte("/* outer /* inner */ still-outer */x"), "t.lc")
	s.SkipFiller()
	if s.peek() != 'x' {
		t.Fatalf("expected to land on 'x', got %q", string(s.peek()))
	}
}

func TestScanIntegerHexAndSigned(t *testing.T) {
	for _, c := range []struct {
		src  string
		want string
	}{
		{"0x1F", "0x1F"},
		{"-42", "-42"},
		{"42", "42"},
	} {
		s := New([]byte(c.src), "t.lc")
		tok, ok := s.ScanInteger()
		if !ok || tok.Text != c.want {
			t.Fatalf("ScanInteger(%q) = %q, %v; want %q", c.src, tok.Text, ok, c.want)
		}
	}
}

func TestScanIntegerRejectsFloat(t *testing.T) {
	s := New([]byte("3.14"), "t.lc")
	if _, ok := s.ScanInteger(); ok {
		t.Fatal("ScanInteger should decline when a float follows")
	}
	if _, ok := s.ScanFloat(); !ok {
		t.Fatal("ScanFloat should then accept the same input")
	}
}

func TestScanStringEscapes(t *testing.T) {
	s := New([]byte(`"a\n\t\"b"`), "t.lc")
	tok, errv, ok := s.ScanString()
	if !ok || errv != nil {
		t.Fatalf("unexpected failure: %v %v", errv, ok)
	}
	if tok.Text != "a\n\t\"b" {
		t.Fatalf("got %q", tok.Text)
	}
}

func TestScanStringUnterminated(t *testing.T) {
	s := New([]byte(`"abc`), "t.lc")
	_, errv, ok := s.ScanString()
	if !ok || errv == nil {
		t.Fatal("expected an unterminated-string error")
	}
}

func TestMatchKeywordRejectsIdentifierPrefix(t *testing.T) {
	s := New([]byte("function"), "t.lc")
	if _, ok := s.MatchKeyword("fn"); ok {
		t.Fatal("MatchKeyword should not match a prefix of a longer identifier")
	}
}

func TestKeywordsRejectedAsIdentifiers(t *testing.T) {
	s := New([]byte("let"), "t.lc")
	if _, ok := s.ScanIdentifier(); ok {
		t.Fatal("keywords must not scan as identifiers")
	}
}
