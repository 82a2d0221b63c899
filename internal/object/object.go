// Package object implements the prototype-based object model of spec.md
// §3/§4.6: a field table with a bloom-filter pre-check backed by either a
// linear scan (small tables) or open addressing (large tables), and the
// Object header every value (plain, Int, Float, Bool, String, Array,
// Function, Closure) embeds.
package object

import (
	"lucent/internal/diagnostics"
	"lucent/internal/ir"
)

// Flag is the bit set of per-object flags from spec.md §3.
type Flag uint8

const (
	FlagClosed Flag = 1 << iota
	FlagImmutable
	FlagNoInherit
	FlagMarked
)

// Kind distinguishes the typed leaf variants from a plain object. Unlike the
// original's separate embedded structs, a single Object carries every leaf's
// payload fields (Go has no struct embedding shortcut that keeps a single
// allocation and a uniform *Object handle, which is what the GC and the
// frame-slot model both need).
type Kind int

const (
	KindPlain Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindArray
	KindFunction
	KindClosure
)

// NativeFunc is a root-prototype builtin, the Go analogue of the original's
// FunctionPointer. a is the allocator the call is running under (so a
// native's results are tracked the same way any other allocation is, per
// gc.Heap), ctx is the interpreter's root object (natives themselves find
// the root via RootOf(self)), self is the receiver, fn is the Function object being invoked,
// args is the argument list.
type NativeFunc func(a Allocator, ctx, self, fn *Object, args []*Object) (*Object, error)

// Object is one allocated value. Fields beyond Table/Parent/Flags are only
// meaningful per Kind; see the Kind constants.
type Object struct {
	table  Table
	Parent *Object
	Flags  Flag

	// PrevInAlloc threads the GC's allocation list (spec.md §4.7); only the
	// gc package reads or writes it.
	PrevInAlloc *Object

	// MarkHook reports any reference this object holds beyond its table and
	// Parent (a closure's captured context, an array's elements) so the GC's
	// mark phase can reach them. Called with a callback to mark each extra
	// reference.
	MarkHook func(mark func(*Object))

	Kind Kind

	IntVal   int32
	FloatVal float32
	BoolVal  bool
	StrVal   string
	ArrVal   []*Object

	Native NativeFunc

	// Closure payload.
	Context         *Object
	Function        *ir.UserFunction
	IsMethodClosure bool
}

// Allocator is what prototypes.go needs to build the root object graph: raw
// construction plus parent wiring, without this package depending on the gc
// package that actually implements it (gc.Heap satisfies this interface).
// This breaks what would otherwise be an object<->gc import cycle: gc needs
// Object, and prototype construction needs allocation bookkeeping, so the
// dependency is inverted through this interface.
type Allocator interface {
	NewObject(parent *Object) *Object
	NewInt(parent *Object, v int32) *Object
	NewFloat(parent *Object, v float32) *Object
	NewString(parent *Object, v string) *Object
	NewBool(parent *Object, v bool) *Object
	NewArray(parent *Object) *Object
	NewNativeFunction(parent *Object, fn NativeFunc) *Object
}

// AllocObject is the raw, GC-list-agnostic constructor; callers that need GC
// bookkeeping (the gc package) wrap this rather than calling it directly
// from script-visible code.
func AllocObject(parent *Object) *Object {
	return &Object{Parent: parent}
}

func AllocInt(parent *Object, v int32) *Object {
	return &Object{Parent: parent, Kind: KindInt, IntVal: v, Flags: FlagClosed | FlagImmutable}
}

func AllocFloat(parent *Object, v float32) *Object {
	return &Object{Parent: parent, Kind: KindFloat, FloatVal: v, Flags: FlagClosed | FlagImmutable}
}

func AllocBool(parent *Object, v bool) *Object {
	return &Object{Parent: parent, Kind: KindBool, BoolVal: v, Flags: FlagClosed | FlagImmutable}
}

func AllocString(parent *Object, v string) *Object {
	return &Object{Parent: parent, Kind: KindString, StrVal: v, Flags: FlagClosed | FlagImmutable}
}

// AllocArray takes an Allocator so the "length" sub-object syncLength
// installs is tracked by the same GC the array itself will be tracked by
// (gc.Heap.NewArray passes itself).
func AllocArray(a Allocator, parent *Object) *Object {
	o := &Object{Parent: parent, Kind: KindArray}
	o.MarkHook = func(mark func(*Object)) {
		for _, el := range o.ArrVal {
			mark(el)
		}
	}
	syncLength(a, o)
	return o
}

// syncLength keeps an array's "length" field (a real Int field, not a
// method — original_source/s_object.cpp's Object::newArray sets it the same
// way via setNormal) current with len(ArrVal); every mutator (push, pop,
// resize) calls this after changing ArrVal.
func syncLength(a Allocator, o *Object) {
	intProto, _ := Lookup(RootOf(o), "int")
	_ = SetPlain(o, "length", a.NewInt(intProto, int32(len(o.ArrVal))))
}

func AllocNativeFunction(parent *Object, fn NativeFunc) *Object {
	return &Object{Parent: parent, Kind: KindFunction, Native: fn, Flags: FlagClosed}
}

func AllocClosure(parent, context *Object, fn *ir.UserFunction) *Object {
	o := &Object{Parent: parent, Kind: KindClosure, Context: context, Function: fn,
		IsMethodClosure: fn.IsMethod, Flags: FlagClosed}
	o.MarkHook = func(mark func(*Object)) { mark(o.Context) }
	return o
}

// RootOf walks the parent chain to the outermost object (the root every
// prototype chain bottoms out at).
func RootOf(o *Object) *Object {
	for o.Parent != nil {
		o = o.Parent
	}
	return o
}

// Lookup walks the prototype chain starting at obj, returning the first
// table that contains key.
func Lookup(obj *Object, key string) (*Object, bool) {
	for cur := obj; cur != nil; cur = cur.Parent {
		if v, ok := cur.table.find(key); ok {
			return v, true
		}
	}
	return nil, false
}

// InstanceOf walks obj's parent chain looking for a link whose parent is
// exactly proto, returning that child (spec.md §4.6). This is how typed
// dispatch against the root's int/float/bool/string/array/function/closure
// prototypes works: instanceOf(value, root.lookup("int")) is non-nil iff
// value is (transitively) an int.
func InstanceOf(obj *Object, proto *Object) *Object {
	for cur := obj; cur != nil; cur = cur.Parent {
		if cur.Parent == proto {
			return cur
		}
	}
	return nil
}

// SetPlain implements spec.md §4.6's setPlain: error if obj is Closed and
// key is new, error if obj is Immutable and key already exists, else write.
func SetPlain(obj *Object, key string, v *Object) error {
	if _, ok := obj.table.find(key); ok {
		if obj.Flags&FlagImmutable != 0 {
			return diagnostics.NewRuntime("cannot assign to immutable object", "", 0, 0)
		}
		obj.table.set(key, v)
		return nil
	}
	if obj.Flags&FlagClosed != 0 {
		return diagnostics.NewRuntime("cannot add key \""+key+"\" to a closed object", "", 0, 0)
	}
	obj.table.set(key, v)
	return nil
}

// SetExisting implements setExisting: write at the first owner found in the
// chain, or error if key is nowhere in the chain.
func SetExisting(obj *Object, key string, v *Object) error {
	for cur := obj; cur != nil; cur = cur.Parent {
		if _, ok := cur.table.find(key); ok {
			if cur.Flags&FlagImmutable != 0 {
				return diagnostics.NewRuntime("cannot assign to immutable object", "", 0, 0)
			}
			cur.table.set(key, v)
			return nil
		}
	}
	return diagnostics.NewRuntime("no existing key \""+key+"\" in prototype chain", "", 0, 0)
}

// SetShadowing implements setShadowing: if key exists anywhere in the
// chain, SetPlain it onto obj itself (creating a shadowing local copy);
// else error.
func SetShadowing(obj *Object, key string, v *Object) error {
	for cur := obj; cur != nil; cur = cur.Parent {
		if _, ok := cur.table.find(key); ok {
			return SetPlain(obj, key, v)
		}
	}
	return diagnostics.NewRuntime("no key \""+key+"\" in prototype chain to shadow", "", 0, 0)
}

// FieldCell returns a pointer to the i-th field's value slot in obj's own
// table (not walking Parent), stable for as long as obj stays Closed — this
// is the address an optimizer-introduced fast slot caches (spec.md §9).
func (o *Object) FieldCell(i int) **Object {
	return &o.table.fields[i].Value
}

// FieldIndex returns the position of key in obj's own table, for
// DefineFastSlot to resolve once at a static object's close.
func (o *Object) FieldIndex(key string) (int, bool) {
	return o.table.indexOf(key)
}

// ForEachField calls fn for every (key, value) pair in obj's own table. Used
// by the GC mark phase.
func (o *Object) ForEachField(fn func(key string, v *Object)) {
	o.table.forEach(fn)
}
