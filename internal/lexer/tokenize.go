package lexer

import "lucent/internal/diagnostics"

// symbol is one non-identifier, non-literal token spelling. Order matters:
// longer spellings must be tried before their prefixes (e.g. "!<=" before
// "!<" before "!").
type symbol struct {
	text string
	kind TokenKind
}

var symbols = []symbol{
	{"...", TokEllipsis},
	{"!<=", TokNotLe},
	{"!>=", TokNotGe},
	{"!<", TokNotLt},
	{"!>", TokNotGt},
	{"==", TokEq},
	{"!=", TokNotEq},
	{"<=", TokLe},
	{">=", TokGe},
	{"++", TokPlusPlus},
	{"--", TokMinusMinus},
	{"+=", TokPlusAssign},
	{"-=", TokMinusAssign},
	{"*=", TokStarAssign},
	{"/=", TokSlashAssign},
	{"(", TokLParen},
	{")", TokRParen},
	{"{", TokLBrace},
	{"}", TokRBrace},
	{"[", TokLBracket},
	{"]", TokRBracket},
	{",", TokComma},
	{".", TokDot},
	{";", TokSemicolon},
	{":", TokColon},
	{"=", TokAssign},
	{"+", TokPlus},
	{"-", TokMinus},
	{"*", TokStar},
	{"/", TokSlash},
	{"|", TokPipe},
	{"&", TokAmp},
	{"<", TokLt},
	{">", TokGt},
	{"!", TokNot},
}

// Tokenize drives the Scanner's stateless primitives over the whole buffer,
// producing the full token list the parser consumes, terminated by one
// TokEOF token. It is the one place the otherwise-stateless lexer primitives
// of spec.md §4.2 are sequenced into a stream.
func Tokenize(src []byte, file string) ([]Token, *diagnostics.Error) {
	s := New(src, file)
	var toks []Token
	havePrev := false
	var prev Token
	for {
		s.SkipFiller()
		if s.AtEnd() {
			break
		}
		if tok, ok := tryKeyword(s); ok {
			toks = append(toks, tok)
			prev, havePrev = tok, true
			continue
		}
		// A '-' immediately following an operand-ending token is binary
		// minus, not the sign of a numeric literal (otherwise `a - 1`
		// would lex as `a` `-1` instead of `a` `-` `1`).
		if !(s.peek() == '-' && havePrev && endsOperand(prev.Kind)) {
			if tok, ok := s.ScanFloat(); ok {
				toks = append(toks, tok)
				prev, havePrev = tok, true
				continue
			}
			if tok, ok := s.ScanInteger(); ok {
				toks = append(toks, tok)
				prev, havePrev = tok, true
				continue
			}
		}
		if tok, ok := s.ScanIdentifier(); ok {
			toks = append(toks, tok)
			prev, havePrev = tok, true
			continue
		}
		if tok, err, ok := s.ScanString(); ok {
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			prev, havePrev = tok, true
			continue
		}
		if tok, ok := trySymbol(s); ok {
			toks = append(toks, tok)
			prev, havePrev = tok, true
			continue
		}
		return nil, diagnostics.NewSyntax(
			"unexpected character '"+string(s.peek())+"'", file, s.Row(), s.Col())
	}
	toks = append(toks, Token{Kind: TokEOF, Offset: s.Pos(), Row: s.Row(), Col: s.Col()})
	return toks, nil
}

// endsOperand reports whether tok can be the last token of a complete
// expression, i.e. a following '-' must be a binary operator.
func endsOperand(k TokenKind) bool {
	switch k {
	case TokIdent, TokInt, TokFloat, TokString, TokTrue, TokFalse, TokNull,
		TokRParen, TokRBracket, TokRBrace, TokPlusPlus, TokMinusMinus:
		return true
	default:
		return false
	}
}

// tryKeyword tries every keyword spelling at the current position. Longer
// keywords that share a prefix with a shorter one ("for"/"fn") are fine
// since MatchKeyword itself guards against matching inside a longer
// identifier; trying them in any order is safe as only one can match the
// full identifier run.
func tryKeyword(s *Scanner) (Token, bool) {
	for word := range keywords {
		if tok, ok := s.MatchKeyword(word); ok {
			return tok, true
		}
	}
	return Token{}, false
}

func trySymbol(s *Scanner) (Token, bool) {
	row, col, off := s.Row(), s.Col(), s.Pos()
	for _, sym := range symbols {
		if s.MatchLiteral(sym.text) {
			return Token{Kind: sym.kind, Text: sym.text, Offset: off, Row: row, Col: col}, true
		}
	}
	return Token{}, false
}
