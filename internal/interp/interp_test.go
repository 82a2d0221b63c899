package interp

import (
	"testing"

	"lucent/internal/diagnostics"
	"lucent/internal/gc"
	"lucent/internal/ir"
	"lucent/internal/object"
	"lucent/internal/optimizer"
	"lucent/internal/parser"
)

func mustParse(t *testing.T, src string) *ir.UserFunction {
	t.Helper()
	p, err := parser.NewParser([]byte(src), "t.lc")
	if err != nil {
		t.Fatalf("tokenize error: %v", err)
	}
	uf, perr := p.ParseModule()
	if perr != nil {
		t.Fatalf("parse error: %v", perr)
	}
	return uf
}

// run parses, optimizes and executes src against a fresh heap/state, the
// way cmd/lucent's run subcommand will.
func run(t *testing.T, src string) (*object.Object, *State, error) {
	t.Helper()
	uf := mustParse(t, src)
	optimized := optimizer.Run(uf, nil)
	heap := gc.NewHeap()
	s := NewState(heap, diagnostics.DiscardSink{}, "t.lc")
	result, err := s.RunModule(optimized)
	return result, s, err
}

func TestFactorialRecursionAndArityCheck(t *testing.T) {
	result, _, err := run(t, `
fn fact(n) { if (n == 0) { return 1; } return n * fact(n - 1); }
return fact(6);
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != object.KindInt || result.IntVal != 720 {
		t.Fatalf("expected 720, got %#v", result)
	}
}

func TestFactorialArityViolationErrors(t *testing.T) {
	_, _, err := run(t, `
fn fact(n) { return n; }
return fact(1, 2);
`)
	if err == nil {
		t.Fatal("expected arity-violation error")
	}
}

func TestClosureCaptureSeesOuterLetAcrossCalls(t *testing.T) {
	result, _, err := run(t, `
fn make() {
    let c = 0;
    fn inc() { c = c + 1; return c; }
    return inc;
}
let i = make();
let a = i();
let b = i();
let d = i();
return a * 100 + b * 10 + d;
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IntVal != 123 {
		t.Fatalf("expected 123 (1,2,3 across calls), got %#v", result)
	}
}

func TestPrototypeInheritanceWithShadowing(t *testing.T) {
	result, _, err := run(t, `
let a = { x = 1 };
let b = new a { x = 2 };
return a.x * 10 + b.x;
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IntVal != 12 {
		t.Fatalf("expected 12, got %#v", result)
	}
}

func TestConstBindingRejectsReassignment(t *testing.T) {
	_, _, err := run(t, `
const k = 1;
k = 2;
return k;
`)
	if err == nil {
		t.Fatal("expected reassigning a const binding to error")
	}
}

func TestConstDoesNotFreezeTheReferencedObject(t *testing.T) {
	// const only freezes the scope slot holding the binding, not the
	// object it points at (spec.md's open question on const semantics).
	result, _, err := run(t, `
const obj = { x = 1 };
obj.x = 2;
return obj.x;
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IntVal != 2 {
		t.Fatalf("expected obj.x to be mutable even though obj is const-bound, got %#v", result)
	}
}

func TestArrayPushAndLengthRoundTrip(t *testing.T) {
	result, _, err := run(t, `
let a = [10, 20, 30];
a.push(40);
return a.length * 1000 + a[3];
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IntVal != 4040 {
		t.Fatalf("expected 4*1000+40=4040, got %#v", result)
	}
}

func TestMethodBindsThis(t *testing.T) {
	result, _, err := run(t, `
let base = { val = 10, get = method() { return this.val; } };
let obj = new base {};
return obj.get();
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IntVal != 10 {
		t.Fatalf("expected 10, got %#v", result)
	}
}

func TestUserDefinedIndexOperatorOverload(t *testing.T) {
	result, _, err := run(t, `
let box = { "[]" = method(i) { return i * 2; } };
return box[21];
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IntVal != 42 {
		t.Fatalf("expected 42, got %#v", result)
	}
}

func TestNotEqualComposesEqualityAndNegation(t *testing.T) {
	result, _, err := run(t, `
if (1 != 2) { return 100; }
return 0;
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IntVal != 100 {
		t.Fatalf("expected 100 (1 != 2 is true), got %#v", result)
	}
}

func TestCallingANonCallableErrors(t *testing.T) {
	_, _, err := run(t, `
let n = 5;
return n();
`)
	if err == nil {
		t.Fatal("expected calling a non-closure/non-function to error")
	}
}

func TestBacktraceCapturesCallChain(t *testing.T) {
	_, _, err := run(t, `
fn inner() { return (1)(); }
fn outer() { return inner(); }
return outer();
`)
	if err == nil {
		t.Fatal("expected an error calling a non-callable int")
	}
	de, ok := err.(*diagnostics.Error)
	if !ok {
		t.Fatalf("expected *diagnostics.Error, got %T", err)
	}
	if len(de.Stack) < 2 {
		t.Fatalf("expected a multi-frame backtrace (inner, outer), got %d frames: %+v", len(de.Stack), de.Stack)
	}
}

// variadicFunction hand-builds a UserFunction exercising the same "$"
// tail-array protocol internal/parser's "...rest" syntax compiles to,
// directly against the embedding-level IR rather than through source text.
func variadicFunction() *ir.UserFunction {
	g := ir.NewGenerator(0)
	g.UseRange(&ir.FileRange{})
	g.NewBlock()
	ctx := g.EmitGetContext()
	firstArg := g.AllocSlot() // slot 1: fixed parameter "head"
	scope := g.EmitNewObject(ctx)
	headKey := g.EmitNewStringObject("head")
	g.EmitAssign(scope, firstArg, headKey, ir.Plain)
	g.EmitCloseObject(scope)
	g.ScopeEnter(scope)

	tailKey := g.EmitNewStringObject("$")
	tail := g.EmitAccess(scope, tailKey)
	sizeKey := g.EmitNewStringObject("length")
	size := g.EmitAccess(tail, sizeKey)
	g.EmitReturn(size)
	g.Terminate()
	fb := g.Finish()

	return &ir.UserFunction{
		Arity:           1,
		Slots:           g.SlotCount(),
		Name:            "tailLen",
		HasVariadicTail: true,
		Body:            fb,
		Cache:           map[int]any{},
	}
}

func TestVariadicTailGathersExtraArguments(t *testing.T) {
	heap := gc.NewHeap()
	s := NewState(heap, diagnostics.DiscardSink{}, "t.lc")

	fnProto, _ := object.Lookup(s.Root, "closure")
	moduleCtx := heap.NewObject(s.Root)
	closure := heap.NewClosure(fnProto, moduleCtx, variadicFunction())

	intProto, _ := object.Lookup(s.Root, "int")
	args := []*object.Object{
		heap.NewInt(intProto, 1),
		heap.NewInt(intProto, 2),
		heap.NewInt(intProto, 3),
		heap.NewInt(intProto, 4),
	}
	result, err := s.Call(nil, closure, args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IntVal != 3 {
		t.Fatalf("expected 3 extra (tail) arguments, got %#v", result)
	}
}

func TestVariadicParameterSyntaxGathersTailArguments(t *testing.T) {
	result, _, err := run(t, `
fn sum(base, ...rest) {
    let total = base;
    let i = 0;
    while (i < rest.length) {
        total = total + rest[i];
        i = i + 1;
    }
    return total;
}
return sum(100, 1, 2, 3);
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IntVal != 106 {
		t.Fatalf("expected 100+1+2+3=106, got %#v", result)
	}
}
