// Package parser implements the recursive-descent expression/statement
// parser of spec.md §4.4: it emits IR directly via an ir.Generator as it
// goes, there is no separate AST stage.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"lucent/internal/diagnostics"
	"lucent/internal/ir"
	"lucent/internal/lexer"
	"lucent/internal/sourcemap"
)

// opInfo is one entry of binaryOps, which maps level-0..4 binary operator
// tokens to their method name and climbing precedence, lowest first
// (spec.md §4.4's table).
type opInfo struct {
	level  int
	method string
	negate bool // "!<op>" forms: compute method then call .!() on the result
}

var binaryOps = map[lexer.TokenKind]opInfo{
	lexer.TokEq:     {0, "==", false},
	lexer.TokNotEq:  {0, "==", true},
	lexer.TokLt:     {0, "<", false},
	lexer.TokGt:     {0, ">", false},
	lexer.TokLe:     {0, "<=", false},
	lexer.TokGe:     {0, ">=", false},
	lexer.TokNotLt:  {0, "<", true},
	lexer.TokNotGt:  {0, ">", true},
	lexer.TokNotLe:  {0, "<=", true},
	lexer.TokNotGe:  {0, ">=", true},
	lexer.TokPlus:   {1, "+", false},
	lexer.TokMinus:  {1, "-", false},
	lexer.TokStar:   {2, "*", false},
	lexer.TokSlash:  {2, "/", false},
	lexer.TokPipe:   {3, "|", false},
	lexer.TokAmp:    {4, "&", false},
}

// Parser drives lexer.Tokenize's output into IR. Each compiled function (the
// module itself, and every fn/method literal) gets its own ir.Generator;
// genStack holds the enclosing generators while a nested literal compiles.
type Parser struct {
	tokens      []lexer.Token
	current     int
	file        string
	sourceLines []string

	record *sourcemap.Record

	gen      *ir.Generator
	genStack []*ir.Generator
}

// NewParser tokenizes source and prepares a Parser over it. The whole source
// buffer is registered as one sourcemap.Record, so every FileRange the parser
// hands out can resolve back to a (row, col) and a displayable line through
// it (spec.md §4.1).
func NewParser(source []byte, file string) (*Parser, *diagnostics.Error) {
	toks, err := lexer.Tokenize(source, file)
	if err != nil {
		return nil, err
	}
	sm := sourcemap.New()
	return &Parser{
		tokens:      toks,
		file:        file,
		sourceLines: strings.Split(string(source), "\n"),
		record:      sm.Register(source, file, 1, 1),
	}, nil
}

// Record returns the sourcemap.Record the module's source was registered
// under, so callers (the embedding API's profiler dump, in particular) can
// resolve the FileRanges attached to compiled instructions back to text.
func (p *Parser) Record() *sourcemap.Record { return p.record }

// openRange starts a FileRange at the next token to be consumed.
func (p *Parser) openRange() *ir.FileRange {
	tok := p.peek()
	return &ir.FileRange{
		Record:   p.record,
		TextFrom: p.record.Addr(tok.Offset),
		RowFrom:  tok.Row,
		ColFrom:  tok.Col,
	}
}

// closeRange ends fr at the token immediately following whatever construct
// was just parsed (recordEnd's role in the original generator).
func (p *Parser) closeRange(fr *ir.FileRange) {
	tok := p.peek()
	fr.TextTo = p.record.Addr(tok.Offset)
	fr.RowTo = tok.Row
	fr.ColTo = tok.Col
}

// ParseModule parses the whole token stream as a module body and returns the
// compiled UserFunction (arity 0, not a method, no variadic tail).
func (p *Parser) ParseModule() (uf *ir.UserFunction, err *diagnostics.Error) {
	defer func() {
		if r := recover(); r != nil {
			if de, ok := r.(*diagnostics.Error); ok {
				err = de
				return
			}
			panic(r)
		}
	}()
	uf = p.compileFunction("<module>", nil, false, "", func() {
		for !p.check(lexer.TokEOF) {
			p.statement()
		}
	})
	return uf, nil
}

// --- function compilation ---

// compileFunction opens a fresh Generator, emits the standard prologue
// (GetContext, allocate+bind+close the parameter scope), runs body, and
// terminates. Grounded in spec.md §4.4's "Functions compile into a fresh
// UserFunction" paragraph.
func (p *Parser) compileFunction(name string, params []string, isMethod bool, variadicName string, body func()) *ir.UserFunction {
	p.genStack = append(p.genStack, p.gen)
	g := ir.NewGenerator(0)
	p.gen = g

	fnRange := p.openRange()
	g.UseRange(fnRange)
	g.NewBlock()
	ctx := g.EmitGetContext()

	// Reserve slot i+1 for argument i before allocating anything else, so
	// the call convention (arguments land at slots 1..arity, set by the
	// interpreter before the body runs) doesn't collide with scope's own
	// slot.
	argSlots := make([]int, len(params))
	for i := range params {
		argSlots[i] = g.AllocSlot()
	}

	scope := g.EmitNewObject(ctx)
	for i, name := range params {
		key := g.EmitNewStringObject(name)
		g.EmitAssign(scope, argSlots[i], key, ir.Plain)
	}
	if variadicName != "" {
		// The interpreter's setupVariadic wraps the callee context in an
		// object carrying the gathered extra arguments under "$" before the
		// frame is pushed, so ctx (this function's own GetContext result) is
		// already that wrapper; bind variadicName to it like any other param.
		dollarKey := g.EmitNewStringObject("$")
		tail := g.EmitAccess(ctx, dollarKey)
		key := g.EmitNewStringObject(variadicName)
		g.EmitAssign(scope, tail, key, ir.Plain)
	}
	g.EmitCloseObject(scope)
	g.ScopeEnter(scope)

	body()

	p.closeRange(fnRange)
	g.ScopeLeave()
	g.Terminate()
	fb := g.Finish()

	uf := &ir.UserFunction{
		Arity:           len(params),
		Slots:           g.SlotCount(),
		Name:            name,
		IsMethod:        isMethod,
		HasVariadicTail: variadicName != "",
		Body:            fb,
		Cache:           map[int]any{},
	}

	p.gen = p.genStack[len(p.genStack)-1]
	p.genStack = p.genStack[:len(p.genStack)-1]
	return uf
}

// --- statements ---

// statement wraps each statement in its own FileRange, nested inside
// whatever range was active (the enclosing block, if/while/for header, or
// the function itself), so every instruction emitted while parsing one
// statement carries that statement's own source location.
func (p *Parser) statement() {
	fr := p.openRange()
	prev := p.gen.CurRange()
	p.gen.UseRange(fr)

	switch {
	case p.check(lexer.TokIf):
		p.ifStatement()
	case p.check(lexer.TokWhile):
		p.whileStatement()
	case p.check(lexer.TokFor):
		p.forStatement()
	case p.check(lexer.TokReturn):
		p.returnStatement()
	case p.check(lexer.TokLet):
		p.declStatement(false)
	case p.check(lexer.TokConst):
		p.declStatement(true)
	case p.check(lexer.TokFn):
		p.fnDeclStatement()
	default:
		p.exprOrAssignStatement()
	}

	p.closeRange(fr)
	p.gen.UseRange(prev)
}

// blockOrStatement parses `{ stmt* }` or a single statement. Per spec.md
// §4.4, blocks never open a new scope — declarations inside extend the
// active function-level scope chain.
func (p *Parser) blockOrStatement() {
	if p.match(lexer.TokLBrace) {
		for !p.check(lexer.TokRBrace) && !p.check(lexer.TokEOF) {
			p.statement()
		}
		p.consume(lexer.TokRBrace, "expected '}' after block")
		return
	}
	p.statement()
}

func (p *Parser) ifStatement() {
	p.advance() // 'if'
	p.consume(lexer.TokLParen, "expected '(' after 'if'")
	cond := p.expression()
	p.consume(lexer.TokRParen, "expected ')' after condition")

	testIdx := p.gen.EmitTestBranch(cond, -1, -1)
	refTrue := p.gen.NewBlockRef(testIdx, 0)
	refFalse := p.gen.NewBlockRef(testIdx, 1)

	thenBlock := p.gen.NewBlock()
	p.gen.SetBlockRef(refTrue, thenBlock)
	p.blockOrStatement()
	var thenJoin *ir.BlockRef
	if p.gen.IsOpen(p.gen.Current()) {
		idx := p.gen.EmitBranch(-1)
		r := p.gen.NewBlockRef(idx, 0)
		thenJoin = &r
	}

	hasElse := p.match(lexer.TokElse)
	var elseJoin *ir.BlockRef
	if hasElse {
		elseBlock := p.gen.NewBlock()
		p.gen.SetBlockRef(refFalse, elseBlock)
		if p.check(lexer.TokIf) {
			p.ifStatement()
		} else {
			p.blockOrStatement()
		}
		if p.gen.IsOpen(p.gen.Current()) {
			idx := p.gen.EmitBranch(-1)
			r := p.gen.NewBlockRef(idx, 0)
			elseJoin = &r
		}
	}

	join := p.gen.NewBlock()
	if !hasElse {
		p.gen.SetBlockRef(refFalse, join)
	}
	if thenJoin != nil {
		p.gen.SetBlockRef(*thenJoin, join)
	}
	if elseJoin != nil {
		p.gen.SetBlockRef(*elseJoin, join)
	}
}

func (p *Parser) whileStatement() {
	p.advance() // 'while'
	p.consume(lexer.TokLParen, "expected '(' after 'while'")

	entryIdx := p.gen.EmitBranch(-1)
	entryRef := p.gen.NewBlockRef(entryIdx, 0)

	condBlock := p.gen.NewBlock()
	p.gen.SetBlockRef(entryRef, condBlock)
	cond := p.expression()
	p.consume(lexer.TokRParen, "expected ')' after condition")

	testIdx := p.gen.EmitTestBranch(cond, -1, -1)
	refBody := p.gen.NewBlockRef(testIdx, 0)
	refExit := p.gen.NewBlockRef(testIdx, 1)

	bodyBlock := p.gen.NewBlock()
	p.gen.SetBlockRef(refBody, bodyBlock)
	p.blockOrStatement()
	if p.gen.IsOpen(p.gen.Current()) {
		p.gen.EmitBranch(condBlock)
	}

	exit := p.gen.NewBlock()
	p.gen.SetBlockRef(refExit, exit)
}

func (p *Parser) forStatement() {
	p.advance() // 'for'
	p.consume(lexer.TokLParen, "expected '(' after 'for'")

	if !p.check(lexer.TokSemicolon) {
		if p.check(lexer.TokLet) {
			p.declBindings(false)
		} else {
			p.expression()
		}
	}
	p.consume(lexer.TokSemicolon, "expected ';' after for-loop initializer")

	entryIdx := p.gen.EmitBranch(-1)
	entryRef := p.gen.NewBlockRef(entryIdx, 0)

	condBlock := p.gen.NewBlock()
	p.gen.SetBlockRef(entryRef, condBlock)

	var cond int
	if !p.check(lexer.TokSemicolon) {
		cond = p.expression()
	} else {
		cond = p.gen.EmitNewIntObject(1) // no condition => always true
	}
	p.consume(lexer.TokSemicolon, "expected ';' after for-loop condition")

	// The update expression's tokens come before the body in source order
	// but its IR is emitted after the body, at the loop back-edge (spec.md
	// §4.4's "step is re-parsed after the body").
	updateStart := p.current
	p.skipExpressionTokens()
	updateEnd := p.current
	p.consume(lexer.TokRParen, "expected ')' after for clauses")

	testIdx := p.gen.EmitTestBranch(cond, -1, -1)
	refBody := p.gen.NewBlockRef(testIdx, 0)
	refExit := p.gen.NewBlockRef(testIdx, 1)

	bodyBlock := p.gen.NewBlock()
	p.gen.SetBlockRef(refBody, bodyBlock)
	p.blockOrStatement()
	if p.gen.IsOpen(p.gen.Current()) {
		if updateEnd > updateStart {
			saved := p.current
			p.current = updateStart
			p.exprOrAssignStatement()
			p.current = saved
		}
		p.gen.EmitBranch(condBlock)
	}

	exit := p.gen.NewBlock()
	p.gen.SetBlockRef(refExit, exit)
}

// skipExpressionTokens advances past an optional expression without
// emitting IR, by bracket-depth-aware scanning until ')' or ';' at depth 0.
// Used to locate the for-loop update clause's token span up front.
func (p *Parser) skipExpressionTokens() {
	depth := 0
	for {
		k := p.peek().Kind
		if k == lexer.TokEOF {
			return
		}
		if depth == 0 && (k == lexer.TokRParen) {
			return
		}
		switch k {
		case lexer.TokLParen, lexer.TokLBracket, lexer.TokLBrace:
			depth++
		case lexer.TokRParen, lexer.TokRBracket, lexer.TokRBrace:
			depth--
		}
		p.advance()
	}
}

func (p *Parser) returnStatement() {
	p.advance() // 'return'
	var v int
	if p.check(lexer.TokSemicolon) || p.check(lexer.TokRBrace) || p.check(lexer.TokEOF) {
		v = p.nullSlot()
	} else {
		v = p.expression()
	}
	p.match(lexer.TokSemicolon)
	p.gen.EmitReturn(v)
}

// declStatement implements `let`/`const` declaration lists (spec.md §4.4).
// Each binding allocates a fresh scope object chained onto the current one,
// assigns Plain, closes it, and (for const) freezes it; the new scope
// becomes current so later statements see it.
func (p *Parser) declStatement(isConst bool) {
	p.declBindings(isConst)
	p.match(lexer.TokSemicolon)
}

// declBindings parses the `let`/`const` binding list without consuming a
// trailing semicolon, so the for-loop initializer clause (which owns the
// semicolon itself) can reuse it.
func (p *Parser) declBindings(isConst bool) {
	p.advance() // 'let' or 'const'
	for {
		nameTok := p.consume(lexer.TokIdent, "expected identifier after declaration keyword")
		var v int
		if p.match(lexer.TokAssign) {
			v = p.expression()
		} else {
			v = p.nullSlot()
		}
		parent := p.gen.Scope()
		scope := p.gen.EmitNewObject(parent)
		key := p.gen.EmitNewStringObject(nameTok.Text)
		p.gen.EmitAssign(scope, v, key, ir.Plain)
		p.gen.EmitCloseObject(scope)
		if isConst {
			p.gen.EmitFreeze(scope)
		}
		p.gen.ScopeSet(scope)
		if !p.match(lexer.TokComma) {
			break
		}
	}
}

// fnDeclStatement parses `fn name(args){...}` as a statement: it declares a
// named closure in the enclosing scope, which is then closed and frozen.
func (p *Parser) fnDeclStatement() {
	p.advance() // 'fn'
	nameTok := p.consume(lexer.TokIdent, "expected function name")
	params, variadicName := p.paramList()
	uf := p.compileFunction(nameTok.Text, params, false, variadicName, func() {
		p.consume(lexer.TokLBrace, "expected '{' before function body")
		for !p.check(lexer.TokRBrace) && !p.check(lexer.TokEOF) {
			p.statement()
		}
		p.consume(lexer.TokRBrace, "expected '}' after function body")
	})
	p.match(lexer.TokSemicolon)

	// The closure captures the scope object that binds its own name, so the
	// function body can refer to itself (recursion).
	parent := p.gen.Scope()
	scope := p.gen.EmitNewObject(parent)
	closureSlot := p.gen.EmitNewClosureObject(scope, uf)
	key := p.gen.EmitNewStringObject(nameTok.Text)
	p.gen.EmitAssign(scope, closureSlot, key, ir.Plain)
	p.gen.EmitCloseObject(scope)
	p.gen.EmitFreeze(scope)
	p.gen.ScopeSet(scope)
}

// currentContextSlot returns the slot a nested closure should capture as
// its context: the active scope's current tip, not the bare slot-0 result
// of the enclosing function's GetContext. Capturing slot 0 would skip every
// let/const binding made since the enclosing function started, breaking
// ordinary closure capture (a closure declared after `let c = 0;` must see
// `c`).
func (p *Parser) currentContextSlot() int { return p.gen.Scope() }

// paramList parses `(a, b, ...rest)`. The trailing `...name` form, if
// present, must be the last parameter; it binds name to an array gathering
// every argument past the fixed ones (spec.md §9's variadic-tail open
// question, resolved by giving it concrete surface syntax here rather than
// leaving it reachable only through the embedding API).
func (p *Parser) paramList() (params []string, variadicName string) {
	p.consume(lexer.TokLParen, "expected '(' after function name")
	readParam := func() bool {
		if p.match(lexer.TokEllipsis) {
			variadicName = p.consume(lexer.TokIdent, "expected parameter name after '...'").Text
			return false
		}
		params = append(params, p.consume(lexer.TokIdent, "expected parameter name").Text)
		return true
	}
	if !p.check(lexer.TokRParen) {
		for readParam() {
			if !p.match(lexer.TokComma) {
				break
			}
		}
	}
	p.consume(lexer.TokRParen, "expected ')' after parameters")
	return params, variadicName
}

// exprOrAssignStatement resolves the five assignment forms (`=`, `+=`,
// `-=`, `*=`, `/=`) and bare expression statements. The LHS (identifier,
// `.name`, or `[expr]`) is parsed exactly once; for compound forms the
// produced object/key slots are reused to read the current value and write
// the result back, rather than the source's literal re-parse-the-LHS-twice
// approach — equivalent for side-effect-free targets and strictly more
// correct when the target expression itself has side effects (e.g. a call
// before `.field`).
func (p *Parser) exprOrAssignStatement() {
	target := p.parseAssignTarget()

	switch {
	case p.match(lexer.TokAssign):
		v := p.expression()
		p.emitAssignTo(target, v)
	case p.match(lexer.TokPlusAssign):
		p.compoundAssign(target, "+")
	case p.match(lexer.TokMinusAssign):
		p.compoundAssign(target, "-")
	case p.match(lexer.TokStarAssign):
		p.compoundAssign(target, "*")
	case p.match(lexer.TokSlashAssign):
		p.compoundAssign(target, "/")
	default:
		// Not an assignment: target.value already holds the fully parsed
		// expression (postfix chain included), nothing further to emit.
	}
	p.match(lexer.TokSemicolon)
}

// assignTarget records enough about an lvalue to read and write it without
// re-parsing: either a named binding (ident) or obj[.key] (member/index).
type assignTarget struct {
	isIdent bool
	name    string // for isIdent
	obj     int    // for member/index
	key     int    // for member/index
	value   int    // the parsed expression's value, when the target turned out not to be assigned to
}

func (p *Parser) emitAssignTo(t assignTarget, v int) {
	if t.isIdent {
		key := p.gen.EmitNewStringObject(t.name)
		p.gen.EmitAssign(p.gen.Scope(), v, key, ir.Existing)
		return
	}
	p.gen.EmitAssign(t.obj, v, t.key, ir.Shadowing)
}

func (p *Parser) emitReadOf(t assignTarget) int {
	if t.isIdent {
		key := p.gen.EmitNewStringObject(t.name)
		return p.gen.EmitAccess(p.gen.Scope(), key)
	}
	return p.gen.EmitAccess(t.obj, t.key)
}

func (p *Parser) compoundAssign(t assignTarget, op string) {
	cur := p.emitReadOf(t)
	rhs := p.expression()
	result := p.emitBinaryOp(cur, op, rhs, false)
	p.emitAssignTo(t, result)
}

// parseAssignTarget parses a postfix chain, classifying it as an ident or
// a trailing member/index target; for anything else (a bare call, a
// literal) it returns the parsed value with isIdent=false and obj=-1, which
// exprOrAssignStatement treats as a non-assignable expression statement.
func (p *Parser) parseAssignTarget() assignTarget {
	startTok := p.peek()
	if startTok.Kind == lexer.TokIdent {
		saved := p.current
		name := p.advance().Text
		if p.isBareIdentTarget() {
			return p.postfixFromIdent(name)
		}
		p.current = saved
	}
	v := p.expression()
	return assignTarget{obj: -1, value: v}
}

// isBareIdentTarget reports whether, having just consumed an identifier,
// what follows keeps it a pure lvalue chain (a run of `.name`/`[expr]`) up
// to an assignment operator or statement end — i.e. not itself the start of
// a call or binary expression continuation that must be parsed by the full
// expression grammar.
func (p *Parser) isBareIdentTarget() bool {
	save := p.current
	defer func() { p.current = save }()
	for {
		switch p.peek().Kind {
		case lexer.TokDot, lexer.TokLBracket:
			p.skipOnePostfix()
			continue
		case lexer.TokAssign, lexer.TokPlusAssign, lexer.TokMinusAssign,
			lexer.TokStarAssign, lexer.TokSlashAssign, lexer.TokSemicolon,
			lexer.TokEOF, lexer.TokRBrace:
			return true
		default:
			return false
		}
	}
}

func (p *Parser) skipOnePostfix() {
	switch p.peek().Kind {
	case lexer.TokDot:
		p.advance()
		p.advance() // name
	case lexer.TokLBracket:
		p.advance()
		p.skipBracketedExpression()
		p.consume(lexer.TokRBracket, "expected ']'")
	}
}

func (p *Parser) skipBracketedExpression() {
	depth := 0
	for {
		k := p.peek().Kind
		if k == lexer.TokEOF {
			return
		}
		if depth == 0 && k == lexer.TokRBracket {
			return
		}
		switch k {
		case lexer.TokLBracket, lexer.TokLParen, lexer.TokLBrace:
			depth++
		case lexer.TokRBracket, lexer.TokRParen, lexer.TokRBrace:
			depth--
		}
		p.advance()
	}
}

// postfixFromIdent walks a `.name`/`[expr]` chain from a bound identifier,
// resolving every step but the last (which becomes the assignTarget), by
// emitting Access for every intermediate step.
func (p *Parser) postfixFromIdent(name string) assignTarget {
	key := p.gen.EmitNewStringObject(name)
	cur := p.gen.EmitAccess(p.gen.Scope(), key)
	haveIntermediate := false
	for {
		switch {
		case p.check(lexer.TokDot):
			p.advance()
			field := p.consume(lexer.TokIdent, "expected field name after '.'").Text
			if p.peekIsLastPostfix() {
				k := p.gen.EmitNewStringObject(field)
				return assignTarget{obj: cur, key: k}
			}
			k := p.gen.EmitNewStringObject(field)
			cur = p.gen.EmitAccess(cur, k)
			haveIntermediate = true
		case p.check(lexer.TokLBracket):
			p.advance()
			idx := p.expression()
			p.consume(lexer.TokRBracket, "expected ']' after index")
			if p.peekIsLastPostfix() {
				return assignTarget{obj: cur, key: idx}
			}
			cur = p.gen.EmitAccess(cur, idx)
			haveIntermediate = true
		default:
			if haveIntermediate {
				return assignTarget{obj: -1, value: cur}
			}
			return assignTarget{isIdent: true, name: name}
		}
	}
}

// peekIsLastPostfix reports whether the token after the just-parsed
// postfix step ends the lvalue chain (an assignment operator or statement
// terminator), meaning the step just parsed is the assignable tail.
func (p *Parser) peekIsLastPostfix() bool {
	switch p.peek().Kind {
	case lexer.TokAssign, lexer.TokPlusAssign, lexer.TokMinusAssign,
		lexer.TokStarAssign, lexer.TokSlashAssign, lexer.TokSemicolon,
		lexer.TokEOF, lexer.TokRBrace:
		return true
	default:
		return false
	}
}

// nullSlot allocates a fresh slot and emits nothing: frame slots are
// zero-initialized, so an unwritten slot already observes as the null
// value. There is no NewNullObject IR kind (spec.md §3's instruction kinds
// are a closed set); this is how `null` literals and implicit
// return-with-no-value are represented.
func (p *Parser) nullSlot() int { return p.gen.AllocSlot() }

// --- expressions ---

func (p *Parser) expression() int { return p.parseBinary(0) }

func (p *Parser) parseBinary(minLevel int) int {
	left := p.parseUnary()
	for {
		info, ok := binaryOps[p.peek().Kind]
		if !ok || info.level < minLevel {
			break
		}
		p.advance()
		right := p.parseBinary(info.level + 1)
		left = p.emitBinaryOp(left, info.method, right, info.negate)
	}
	return left
}

func (p *Parser) emitBinaryOp(lhs int, method string, rhs int, negate bool) int {
	key := p.gen.EmitNewStringObject(method)
	fn := p.gen.EmitAccess(lhs, key)
	result := p.gen.EmitCall(fn, lhs, []int{rhs})
	if !negate {
		return result
	}
	notKey := p.gen.EmitNewStringObject("!")
	notFn := p.gen.EmitAccess(result, notKey)
	return p.gen.EmitCall(notFn, result, nil)
}

func (p *Parser) parseUnary() int {
	if p.match(lexer.TokMinus) {
		operand := p.parseUnary()
		zero := p.gen.EmitNewIntObject(0)
		return p.emitBinaryOp(zero, "-", operand, false)
	}
	if p.match(lexer.TokNot) {
		operand := p.parseUnary()
		key := p.gen.EmitNewStringObject("!")
		fn := p.gen.EmitAccess(operand, key)
		return p.gen.EmitCall(fn, operand, nil)
	}
	return p.parsePostfix()
}

// parsePostfix tracks, alongside the running value, the addressable target
// the value was most recently read from (a bare identifier or the last
// `.name`/`[expr]` step) so that a following `++`/`--` can write the
// incremented/decremented value back to the right place, and so that a call
// made through a `.name`/`[expr]` step receives that object as `this`.
func (p *Parser) parsePostfix() int {
	v, addr := p.primary()
	for {
		switch {
		case p.match(lexer.TokDot):
			name := p.consume(lexer.TokIdent, "expected field name after '.'").Text
			key := p.gen.EmitNewStringObject(name)
			objSlot := v
			v = p.gen.EmitAccess(objSlot, key)
			addr = assignTarget{obj: objSlot, key: key}
		case p.match(lexer.TokLBracket):
			idx := p.expression()
			p.consume(lexer.TokRBracket, "expected ']' after index")
			objSlot := v
			v = p.gen.EmitAccess(objSlot, idx)
			addr = assignTarget{obj: objSlot, key: idx}
		case p.match(lexer.TokLParen):
			args := p.argumentList()
			self := v
			if !addr.isIdent && addr.obj >= 0 {
				self = addr.obj
			}
			v = p.gen.EmitCall(v, self, args)
			addr = assignTarget{obj: -1}
		case p.check(lexer.TokPlusPlus), p.check(lexer.TokMinusMinus):
			v = p.postfixIncDec(v, addr)
			addr = assignTarget{obj: -1}
		default:
			return v
		}
	}
}

// postfixIncDec loads the current value, adds/subs an integer 1 literal,
// writes the sum back via the assignment form matching addr's kind, and
// yields the *prior* value (spec.md §4.4).
func (p *Parser) postfixIncDec(valueSlot int, addr assignTarget) int {
	isInc := p.check(lexer.TokPlusPlus)
	p.advance()
	one := p.gen.EmitNewIntObject(1)
	op := "-"
	if isInc {
		op = "+"
	}
	result := p.emitBinaryOp(valueSlot, op, one, false)
	p.emitAssignTo(addr, result)
	return valueSlot
}

func (p *Parser) argumentList() []int {
	var args []int
	if !p.check(lexer.TokRParen) {
		args = append(args, p.expression())
		for p.match(lexer.TokComma) {
			args = append(args, p.expression())
		}
	}
	p.consume(lexer.TokRParen, "expected ')' after arguments")
	return args
}

// primary parses one leaf expression and reports, alongside its value, the
// assignable target it was read from (only a bare identifier is
// addressable here; everything else yields a non-addressable target, obj:
// -1).
func (p *Parser) primary() (int, assignTarget) {
	tok := p.advance()
	notAddr := assignTarget{obj: -1}
	switch tok.Kind {
	case lexer.TokString:
		return p.gen.EmitNewStringObject(tok.Text), notAddr
	case lexer.TokInt:
		n, err := parseIntLiteral(tok.Text)
		if err != nil {
			p.fail(tok, fmt.Sprintf("malformed integer literal %q", tok.Text))
		}
		return p.gen.EmitNewIntObject(n), notAddr
	case lexer.TokFloat:
		f, err := strconv.ParseFloat(tok.Text, 32)
		if err != nil {
			p.fail(tok, fmt.Sprintf("malformed float literal %q", tok.Text))
		}
		return p.gen.EmitNewFloatObject(float32(f)), notAddr
	case lexer.TokTrue:
		return p.emitBoolLiteral(true), notAddr
	case lexer.TokFalse:
		return p.emitBoolLiteral(false), notAddr
	case lexer.TokNull:
		return p.nullSlot(), notAddr
	case lexer.TokIdent:
		key := p.gen.EmitNewStringObject(tok.Text)
		v := p.gen.EmitAccess(p.gen.Scope(), key)
		return v, assignTarget{isIdent: true, name: tok.Text}
	case lexer.TokLParen:
		inner := p.expression()
		p.consume(lexer.TokRParen, "expected ')' after expression")
		return inner, notAddr
	case lexer.TokLBracket:
		return p.arrayLiteral(), notAddr
	case lexer.TokLBrace:
		return p.objectLiteral(-1), notAddr
	case lexer.TokNew:
		return p.newExpr(), notAddr
	case lexer.TokFn:
		return p.fnLiteral(false), notAddr
	case lexer.TokMethod:
		return p.fnLiteral(true), notAddr
	default:
		p.fail(tok, fmt.Sprintf("unexpected token %q in expression", tok.Text))
		return 0, notAddr
	}
}

// parseIntLiteral handles the scanner's two integer spellings: signed
// decimal and signed 0x-prefixed hex.
func parseIntLiteral(text string) (int32, error) {
	neg := false
	t := text
	if strings.HasPrefix(t, "-") {
		neg = true
		t = t[1:]
	}
	base := 10
	if strings.HasPrefix(t, "0x") || strings.HasPrefix(t, "0X") {
		base = 16
		t = t[2:]
	}
	n, err := strconv.ParseInt(t, base, 32)
	if err != nil {
		return 0, err
	}
	if neg {
		n = -n
	}
	return int32(n), nil
}

// emitBoolLiteral materializes a Bool leaf by reading the root's shared
// "true"/"false" constant (GetRoot, then an Access of that name), since the
// IR has no dedicated NewBoolObject kind (spec.md §3's instruction kinds are a closed set,
// listing only Int/Float/Array/String/Closure constructors).
func (p *Parser) emitBoolLiteral(v bool) int {
	root := p.gen.EmitGetRoot()
	name := "false"
	if v {
		name = "true"
	}
	key := p.gen.EmitNewStringObject(name)
	return p.gen.EmitAccess(root, key)
}

// arrayLiteral parses `[e, e, ...]`.
func (p *Parser) arrayLiteral() int {
	arr := p.gen.EmitNewArrayObject()
	if !p.check(lexer.TokRBracket) {
		pushKey := p.gen.EmitNewStringObject("push")
		first := true
		for first || p.match(lexer.TokComma) {
			first = false
			if p.check(lexer.TokRBracket) {
				break
			}
			v := p.expression()
			pushFn := p.gen.EmitAccess(arr, pushKey)
			p.gen.EmitCall(pushFn, arr, []int{v})
		}
	}
	p.consume(lexer.TokRBracket, "expected ']' after array elements")
	return arr
}

// objectLiteral parses `{ k = v, ... }`. If parentSlot >= 0 this is the
// `new expr { ... }` form and the new object's parent is parentSlot;
// otherwise the parent is the root object.
func (p *Parser) objectLiteral(parentSlot int) int {
	parent := parentSlot
	if parent < 0 {
		parent = p.gen.EmitGetRoot()
	}
	obj := p.gen.EmitNewObject(parent)
	for !p.check(lexer.TokRBrace) && !p.check(lexer.TokEOF) {
		// A field name is usually a bare identifier, but a string literal is
		// also accepted (e.g. { "[]" = method(i){...} }) so operator names
		// like "[]" and "[]=" can be given directly in a literal.
		var name string
		if p.check(lexer.TokString) {
			name = p.advance().Text
		} else {
			name = p.consume(lexer.TokIdent, "expected field name in object literal").Text
		}
		p.consume(lexer.TokAssign, "expected '=' after object literal field name")
		v := p.expression()
		key := p.gen.EmitNewStringObject(name)
		p.gen.EmitAssign(obj, v, key, ir.Plain)
		if !p.match(lexer.TokComma) {
			break
		}
	}
	p.consume(lexer.TokRBrace, "expected '}' after object literal")
	p.gen.EmitCloseObject(obj)
	return obj
}

// newExpr parses `new expr [{...}]`.
func (p *Parser) newExpr() int {
	parent := p.parsePostfix()
	if p.check(lexer.TokLBrace) {
		p.advance()
		return p.objectLiteral(parent)
	}
	return p.gen.EmitNewObject(parent)
}

// fnLiteral parses `fn(args){...}` / `method(args){...}` as an expression.
func (p *Parser) fnLiteral(isMethod bool) int {
	params, variadicName := p.paramList()
	uf := p.compileFunction("", params, isMethod, variadicName, func() {
		p.consume(lexer.TokLBrace, "expected '{' before function body")
		for !p.check(lexer.TokRBrace) && !p.check(lexer.TokEOF) {
			p.statement()
		}
		p.consume(lexer.TokRBrace, "expected '}' after function body")
	})
	ctx := p.currentContextSlot()
	return p.gen.EmitNewClosureObject(ctx, uf)
}

// --- token-stream utilities ---

func (p *Parser) peek() lexer.Token { return p.tokens[p.current] }
func (p *Parser) atEnd() bool       { return p.peek().Kind == lexer.TokEOF }

func (p *Parser) advance() lexer.Token {
	t := p.tokens[p.current]
	if !p.atEnd() {
		p.current++
	}
	return t
}

func (p *Parser) check(k lexer.TokenKind) bool { return p.peek().Kind == k }

func (p *Parser) match(k lexer.TokenKind) bool {
	if p.check(k) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) consume(k lexer.TokenKind, msg string) lexer.Token {
	if p.check(k) {
		return p.advance()
	}
	p.fail(p.peek(), fmt.Sprintf("%s (got %q)", msg, p.peek().Text))
	return lexer.Token{}
}

func (p *Parser) fail(tok lexer.Token, msg string) {
	err := diagnostics.NewSyntax(msg, p.file, tok.Row, tok.Col)
	if tok.Row > 0 && tok.Row <= len(p.sourceLines) {
		err = err.WithSource(p.sourceLines[tok.Row-1])
	}
	panic(err)
}
