package object

import (
	"fmt"
	"strings"

	"lucent/internal/diagnostics"
)

// NewRoot builds the root object graph: root itself plus the function,
// closure, bool, int, float, string and array prototypes, each hung off
// root with the native operators s_runtime.cpp's createRoot wires onto
// them, in the same order. a is used for every allocation so the caller
// (normally a gc.Heap) controls GC bookkeeping throughout.
func NewRoot(a Allocator) *Object {
	root := a.NewObject(nil)

	functionProto := a.NewObject(root)
	closureProto := a.NewObject(root)
	addNative(a, closureProto, "mark", closureMark)

	boolProto := a.NewObject(root)
	addNative(a, boolProto, "!", boolNot)
	addNative(a, boolProto, "and", boolAnd)
	addNative(a, boolProto, "or", boolOr)

	intProto := a.NewObject(root)
	intProto.Flags &^= FlagClosed
	wireArithmetic(a, intProto, intAdd, intSub, intMul, intDiv, intMod,
		intEq, intLt, intGt, intLe, intGe)

	floatProto := a.NewObject(root)
	floatProto.Flags &^= FlagClosed
	wireArithmetic(a, floatProto, floatAdd, floatSub, floatMul, floatDiv, floatMod,
		floatEq, floatLt, floatGt, floatLe, floatGe)

	stringProto := a.NewObject(root)
	addNative(a, stringProto, "+", stringAdd)

	arrayProto := a.NewObject(root)
	addNative(a, arrayProto, "mark", arrayMarkOp)
	addNative(a, arrayProto, "resize", arrayResize)
	addNative(a, arrayProto, "push", arrayPush)
	addNative(a, arrayProto, "pop", arrayPop)
	addNative(a, arrayProto, "size", arraySize)
	addNative(a, arrayProto, "[]", arrayIndex)
	addNative(a, arrayProto, "[]=", arrayIndexAssign)

	must(SetPlain(root, "function", functionProto))
	must(SetPlain(root, "closure", closureProto))
	must(SetPlain(root, "bool", boolProto))
	must(SetPlain(root, "int", intProto))
	must(SetPlain(root, "float", floatProto))
	must(SetPlain(root, "string", stringProto))
	must(SetPlain(root, "array", arrayProto))
	must(SetPlain(root, "true", a.NewBool(boolProto, true)))
	must(SetPlain(root, "false", a.NewBool(boolProto, false)))
	addNative(a, root, "print", printNative)

	must(FreezeProtos(root, functionProto, closureProto, boolProto, stringProto, arrayProto))

	return root
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// FreezeProtos closes and immutable-flags the listed prototypes (int/float
// stay open per the original so user code may add methods to them).
func FreezeProtos(root *Object, protos ...*Object) error {
	for _, p := range protos {
		p.Flags |= FlagClosed | FlagImmutable
	}
	return nil
}

func addNative(a Allocator, proto *Object, name string, fn NativeFunc) {
	must(SetPlain(proto, name, a.NewNativeFunction(proto, fn)))
}

func wireArithmetic(a Allocator, proto *Object, add, sub, mul, div, mod,
	eq, lt, gt, le, ge NativeFunc) {
	addNative(a, proto, "+", add)
	addNative(a, proto, "-", sub)
	addNative(a, proto, "*", mul)
	addNative(a, proto, "/", div)
	addNative(a, proto, "%", mod)
	addNative(a, proto, "==", eq)
	addNative(a, proto, "<", lt)
	addNative(a, proto, ">", gt)
	addNative(a, proto, "<=", le)
	addNative(a, proto, ">=", ge)
}

func runtimeErr(msg string) error {
	return diagnostics.NewRuntime(msg, "", 0, 0)
}

func arg(args []*Object, i int) (*Object, error) {
	if i >= len(args) {
		return nil, runtimeErr(fmt.Sprintf("missing argument %d", i))
	}
	return args[i], nil
}

// closure/function ---------------------------------------------------------

// closureMark is a no-op native: a closure's captured context is already
// reached through its MarkHook, so this exists only because the original
// exposes it as a settable method slot.
func closureMark(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	return self, nil
}

// bool -----------------------------------------------------------------

func boolNot(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	return RootOf(self).boolConst(!self.BoolVal), nil
}

func boolAnd(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	other, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return RootOf(self).boolConst(self.BoolVal && other.BoolVal), nil
}

func boolOr(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	other, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return RootOf(self).boolConst(self.BoolVal || other.BoolVal), nil
}

// boolConst fetches the shared true/false singleton off root rather than
// allocating a fresh bool object per comparison.
func (root *Object) boolConst(v bool) *Object {
	name := "false"
	if v {
		name = "true"
	}
	if obj, ok := Lookup(root, name); ok {
		return obj
	}
	return nil
}

// int --------------------------------------------------------------------

// arithOp names an arithmetic operator for the shared int/float dispatchers
// below, mirroring s_runtime.cpp's int_math/float_math op parameter.
type arithOp int

const (
	opAdd arithOp = iota
	opSub
	opMul
	opDiv
	opMod
)

// cmpOp names a comparison operator for intCompare/floatCompare, mirroring
// s_runtime.cpp's int_compare/float_compare cmp parameter.
type cmpOp int

const (
	cmpEq cmpOp = iota
	cmpLt
	cmpGt
	cmpLe
	cmpGe
)

// protoOf looks up name off obj's root, for fetching the float/int
// prototype a coerced result should hang off of.
func protoOf(obj *Object, name string) *Object {
	p, _ := Lookup(RootOf(obj), name)
	return p
}

// intMath is int_math: if the argument is itself an int, the whole
// operation stays in int; if it's a float, self promotes to float and the
// result is a float, per spec's int/float coercion rule.
func intMath(a Allocator, self, o *Object, op arithOp) (*Object, error) {
	switch o.Kind {
	case KindInt:
		v1, v2 := self.IntVal, o.IntVal
		switch op {
		case opAdd:
			return a.NewInt(self.Parent, v1+v2), nil
		case opSub:
			return a.NewInt(self.Parent, v1-v2), nil
		case opMul:
			return a.NewInt(self.Parent, v1*v2), nil
		case opDiv:
			if v2 == 0 {
				return nil, runtimeErr("integer division by zero")
			}
			return a.NewInt(self.Parent, v1/v2), nil
		case opMod:
			if v2 == 0 {
				return nil, runtimeErr("integer modulo by zero")
			}
			return a.NewInt(self.Parent, v1%v2), nil
		}
	case KindFloat:
		v1, v2 := float32(self.IntVal), o.FloatVal
		floatProto := protoOf(self, "float")
		switch op {
		case opAdd:
			return a.NewFloat(floatProto, v1+v2), nil
		case opSub:
			return a.NewFloat(floatProto, v1-v2), nil
		case opMul:
			return a.NewFloat(floatProto, v1*v2), nil
		case opDiv:
			if v2 == 0 {
				return nil, runtimeErr("float division by zero")
			}
			return a.NewFloat(floatProto, v1/v2), nil
		case opMod:
			if v2 == 0 {
				return nil, runtimeErr("float modulo by zero")
			}
			return a.NewFloat(floatProto, fmod32(v1, v2)), nil
		}
	}
	return nil, runtimeErr("expected an int or float argument")
}

// intCompare is int_compare: against a float argument it promotes self to
// float32 and compares as floats, exactly like intMath.
func intCompare(self, o *Object, cmp cmpOp) (*Object, error) {
	root := RootOf(self)
	switch o.Kind {
	case KindInt:
		v1, v2 := self.IntVal, o.IntVal
		switch cmp {
		case cmpEq:
			return root.boolConst(v1 == v2), nil
		case cmpLt:
			return root.boolConst(v1 < v2), nil
		case cmpGt:
			return root.boolConst(v1 > v2), nil
		case cmpLe:
			return root.boolConst(v1 <= v2), nil
		case cmpGe:
			return root.boolConst(v1 >= v2), nil
		}
	case KindFloat:
		v1, v2 := float32(self.IntVal), o.FloatVal
		switch cmp {
		case cmpEq:
			return root.boolConst(v1 == v2), nil
		case cmpLt:
			return root.boolConst(v1 < v2), nil
		case cmpGt:
			return root.boolConst(v1 > v2), nil
		case cmpLe:
			return root.boolConst(v1 <= v2), nil
		case cmpGe:
			return root.boolConst(v1 >= v2), nil
		}
	}
	return nil, runtimeErr("expected an int or float argument")
}

func intAdd(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return intMath(a, self, o, opAdd)
}

func intSub(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return intMath(a, self, o, opSub)
}

func intMul(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return intMath(a, self, o, opMul)
}

func intDiv(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return intMath(a, self, o, opDiv)
}

func intMod(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return intMath(a, self, o, opMod)
}

func intEq(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return intCompare(self, o, cmpEq)
}

func intLt(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return intCompare(self, o, cmpLt)
}

func intGt(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return intCompare(self, o, cmpGt)
}

func intLe(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return intCompare(self, o, cmpLe)
}

func intGe(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return intCompare(self, o, cmpGe)
}

// float --------------------------------------------------------------------

// fmod32 is float modulo, truncation-rounded the same way as the original's
// fmodf (Go's math.Mod operates on float64 only).
func fmod32(v1, v2 float32) float32 {
	return v1 - v2*float32(int32(v1/v2))
}

// floatMath is float_math: a float argument stays in float; an int argument
// coerces to float, per spec's int/float coercion rule.
func floatMath(a Allocator, self, o *Object, op arithOp) (*Object, error) {
	floatProto := protoOf(self, "float")
	switch o.Kind {
	case KindFloat:
		v1, v2 := self.FloatVal, o.FloatVal
		switch op {
		case opAdd:
			return a.NewFloat(floatProto, v1+v2), nil
		case opSub:
			return a.NewFloat(floatProto, v1-v2), nil
		case opMul:
			return a.NewFloat(floatProto, v1*v2), nil
		case opDiv:
			if v2 == 0 {
				return nil, runtimeErr("float division by zero")
			}
			return a.NewFloat(floatProto, v1/v2), nil
		case opMod:
			if v2 == 0 {
				return nil, runtimeErr("float modulo by zero")
			}
			return a.NewFloat(floatProto, fmod32(v1, v2)), nil
		}
	case KindInt:
		v1, v2 := self.FloatVal, float32(o.IntVal)
		switch op {
		case opAdd:
			return a.NewFloat(floatProto, v1+v2), nil
		case opSub:
			return a.NewFloat(floatProto, v1-v2), nil
		case opMul:
			return a.NewFloat(floatProto, v1*v2), nil
		case opDiv:
			if v2 == 0 {
				return nil, runtimeErr("float division by zero")
			}
			return a.NewFloat(floatProto, v1/v2), nil
		case opMod:
			if v2 == 0 {
				return nil, runtimeErr("float modulo by zero")
			}
			return a.NewFloat(floatProto, fmod32(v1, v2)), nil
		}
	}
	return nil, runtimeErr("expected an int or float argument")
}

// floatCompare is float_compare: coerces an int argument to float before
// comparing.
func floatCompare(self, o *Object, cmp cmpOp) (*Object, error) {
	root := RootOf(self)
	switch o.Kind {
	case KindFloat:
		v1, v2 := self.FloatVal, o.FloatVal
		switch cmp {
		case cmpEq:
			return root.boolConst(v1 == v2), nil
		case cmpLt:
			return root.boolConst(v1 < v2), nil
		case cmpGt:
			return root.boolConst(v1 > v2), nil
		case cmpLe:
			return root.boolConst(v1 <= v2), nil
		case cmpGe:
			return root.boolConst(v1 >= v2), nil
		}
	case KindInt:
		v1, v2 := self.FloatVal, float32(o.IntVal)
		switch cmp {
		case cmpEq:
			return root.boolConst(v1 == v2), nil
		case cmpLt:
			return root.boolConst(v1 < v2), nil
		case cmpGt:
			return root.boolConst(v1 > v2), nil
		case cmpLe:
			return root.boolConst(v1 <= v2), nil
		case cmpGe:
			return root.boolConst(v1 >= v2), nil
		}
	}
	return nil, runtimeErr("expected an int or float argument")
}

func floatAdd(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return floatMath(a, self, o, opAdd)
}

func floatSub(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return floatMath(a, self, o, opSub)
}

func floatMul(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return floatMath(a, self, o, opMul)
}

func floatDiv(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return floatMath(a, self, o, opDiv)
}

func floatMod(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return floatMath(a, self, o, opMod)
}

func floatEq(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return floatCompare(self, o, cmpEq)
}

func floatLt(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return floatCompare(self, o, cmpLt)
}

func floatGt(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return floatCompare(self, o, cmpGt)
}

func floatLe(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return floatCompare(self, o, cmpLe)
}

func floatGe(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return floatCompare(self, o, cmpGe)
}

// string -------------------------------------------------------------------

func stringAdd(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	return a.NewString(self.Parent, self.StrVal+stringify(o)), nil
}

// Stringify exposes stringify to callers outside this package (the REPL,
// printing a bare expression's result).
func Stringify(o *Object) string { return stringify(o) }

// stringify renders an argument for print/string-concat exactly the way
// s_runtime.cpp's print does: ints/floats/strings/bools in their natural
// textual form, nothing else.
func stringify(o *Object) string {
	switch o.Kind {
	case KindString:
		return o.StrVal
	case KindInt:
		return fmt.Sprintf("%d", o.IntVal)
	case KindFloat:
		return fmt.Sprintf("%g", o.FloatVal)
	case KindBool:
		if o.BoolVal {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// array ----------------------------------------------------------------

func arrayMarkOp(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	return self, nil
}

func arrayResize(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	o, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	n := int(o.IntVal)
	if n < 0 {
		return nil, runtimeErr("array.resize: negative size")
	}
	grown := make([]*Object, n)
	copy(grown, self.ArrVal)
	self.ArrVal = grown
	syncLength(a, self)
	return self, nil
}

func arrayPush(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	v, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	self.ArrVal = append(self.ArrVal, v)
	syncLength(a, self)
	return self, nil
}

func arrayPop(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	if len(self.ArrVal) == 0 {
		return nil, runtimeErr("array.pop: empty array")
	}
	v := self.ArrVal[len(self.ArrVal)-1]
	self.ArrVal = self.ArrVal[:len(self.ArrVal)-1]
	syncLength(a, self)
	return v, nil
}

func arraySize(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	return a.NewInt(protoOf(self, "int"), int32(len(self.ArrVal))), nil
}

func arrayIndex(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	idx, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	i := int(idx.IntVal)
	if i < 0 || i >= len(self.ArrVal) {
		return nil, runtimeErr(fmt.Sprintf("array index %d out of range (size %d)", i, len(self.ArrVal)))
	}
	return self.ArrVal[i], nil
}

func arrayIndexAssign(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	idx, err := arg(args, 0)
	if err != nil {
		return nil, err
	}
	v, err := arg(args, 1)
	if err != nil {
		return nil, err
	}
	i := int(idx.IntVal)
	if i < 0 || i >= len(self.ArrVal) {
		return nil, runtimeErr(fmt.Sprintf("array index %d out of range (size %d)", i, len(self.ArrVal)))
	}
	self.ArrVal[i] = v
	return v, nil
}

// print --------------------------------------------------------------

// printNative writes every argument back-to-back with no separator, per
// s_runtime.cpp's print (verified against the original: arguments are
// concatenated, not space-joined), followed by one newline.
func printNative(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error) {
	var sb strings.Builder
	for _, v := range args {
		sb.WriteString(stringify(v))
	}
	sb.WriteByte('\n')
	fmt.Print(sb.String())
	return nil, nil
}
