package interp

import (
	"fmt"

	"lucent/internal/diagnostics"
	"lucent/internal/ir"
	"lucent/internal/object"
)

// access implements Access(t,o,k): string-keyed lookup against slots[o]
// using slots[k]'s string value when k is a string instance, falling back
// to the "[]" operator overload (passing slots[k] itself, e.g. an int
// index) on a miss or a non-string key.
func (s *State) access(top *CallFrame, in ir.Instr) error {
	obj := top.Slots[in.Object]
	keyObj := top.Slots[in.Key]
	if strInst := object.InstanceOf(keyObj, s.protos.String); strInst != nil {
		if v, ok := object.Lookup(obj, strInst.StrVal); ok {
			top.Slots[in.Dst] = v
			top.PC++
			return nil
		}
	}
	return s.accessFallback(top, in, obj, keyObj)
}

// accessStringKey is Access with a literal key name baked in by the
// inline-string-keys optimizer pass; the fallback still needs a key object
// to hand the "[]" operator, so one is allocated on demand.
func (s *State) accessStringKey(top *CallFrame, in ir.Instr) error {
	obj := top.Slots[in.Object]
	if v, ok := object.Lookup(obj, in.KeyName); ok {
		top.Slots[in.Dst] = v
		top.PC++
		return nil
	}
	return s.accessFallback(top, in, obj, s.heap.NewString(s.protos.String, in.KeyName))
}

func (s *State) accessFallback(top *CallFrame, in ir.Instr, obj, keyObj *object.Object) error {
	idxOp, ok := object.Lookup(obj, "[]")
	if !ok {
		return s.runtimeErr(in, "property not found and no \"[]\" operator defined")
	}
	result, err := s.Call(obj, idxOp, []*object.Object{keyObj})
	if err != nil {
		return err
	}
	top.Slots[in.Dst] = result
	top.PC++
	return nil
}

// assign implements Assign(o,k,v,ty): per AssignType when k is a string
// instance, else a fallback through the "[]=" operator overload.
func (s *State) assign(top *CallFrame, in ir.Instr) error {
	obj := top.Slots[in.Object]
	keyObj := top.Slots[in.Key]
	val := top.Slots[in.Value]
	if strInst := object.InstanceOf(keyObj, s.protos.String); strInst != nil {
		if err := s.doAssign(obj, strInst.StrVal, val, in.AssignType); err != nil {
			return s.wrapNativeErr(err)
		}
		top.PC++
		return nil
	}
	idxAssign, ok := object.Lookup(obj, "[]=")
	if !ok {
		return s.runtimeErr(in, "non-string key and no \"[]=\" operator defined")
	}
	if _, err := s.Call(obj, idxAssign, []*object.Object{keyObj, val}); err != nil {
		return err
	}
	top.PC++
	return nil
}

// doAssign dispatches an already-resolved string key to the object model's
// three assignment forms. Plain is the only form that rejects a null
// target up front, matching the scope-declaration path that's its only
// caller from the generator.
func (s *State) doAssign(obj *object.Object, key string, val *object.Object, at ir.AssignType) error {
	switch at {
	case ir.Plain:
		if obj == nil {
			return diagnostics.NewRuntime("assignment to null object", "", 0, 0)
		}
		return object.SetPlain(obj, key, val)
	case ir.Existing:
		return object.SetExisting(obj, key, val)
	case ir.Shadowing:
		return object.SetShadowing(obj, key, val)
	default:
		return diagnostics.NewRuntime("unknown assignment type", "", 0, 0)
	}
}

// cachedInt/cachedFloat/cachedString implement the lazy-permanent-constant
// pattern: the first execution of a NewIntObject/NewFloatObject/
// NewStringObject instruction allocates and pins the object, subsequent
// executions (typically inside a loop) reuse it via the instruction's own
// per-PC cache slot.
func (s *State) cachedInt(top *CallFrame, in ir.Instr) *object.Object {
	if v, ok := top.Function.Cache[top.PC]; ok {
		return v.(*object.Object)
	}
	o := s.heap.NewInt(s.protos.Int, in.IntVal)
	s.heap.AddPermanent(o)
	s.cache(top, o)
	return o
}

func (s *State) cachedFloat(top *CallFrame, in ir.Instr) *object.Object {
	if v, ok := top.Function.Cache[top.PC]; ok {
		return v.(*object.Object)
	}
	o := s.heap.NewFloat(s.protos.Float, in.FloatVal)
	s.heap.AddPermanent(o)
	s.cache(top, o)
	return o
}

func (s *State) cachedString(top *CallFrame, in ir.Instr) *object.Object {
	if v, ok := top.Function.Cache[top.PC]; ok {
		return v.(*object.Object)
	}
	o := s.heap.NewString(s.protos.String, in.StrVal)
	s.heap.AddPermanent(o)
	s.cache(top, o)
	return o
}

func (s *State) cache(top *CallFrame, o *object.Object) {
	if top.Function.Cache == nil {
		top.Function.Cache = map[int]any{}
	}
	top.Function.Cache[top.PC] = o
}

func fnLabel(fn *ir.UserFunction) string {
	if fn.Name != "" {
		return fn.Name
	}
	return "<closure>"
}

func (s *State) notCallableErr() error {
	loc := s.currentLocation()
	return diagnostics.NewRuntime("value is not callable", loc.File, loc.Row, loc.Col).WithStack(s.Backtrace())
}

func (s *State) arityErr(fn *ir.UserFunction, got int) error {
	loc := s.currentLocation()
	msg := fmt.Sprintf("%s expects %d argument(s), got %d", fnLabel(fn), fn.Arity, got)
	return diagnostics.NewRuntime(msg, loc.File, loc.Row, loc.Col).WithStack(s.Backtrace())
}

func (s *State) runtimeErr(in ir.Instr, msg string) error {
	loc := s.location(in.BelongsTo)
	return diagnostics.NewRuntime(msg, loc.File, loc.Row, loc.Col).WithStack(s.Backtrace())
}

// wrapNativeErr attaches the current backtrace to an error returned by a
// native function, passing a *diagnostics.Error through unchanged (aside
// from filling in a stack if it has none) rather than double-wrapping it.
func (s *State) wrapNativeErr(err error) error {
	if err == nil {
		return nil
	}
	if de, ok := err.(*diagnostics.Error); ok {
		if len(de.Stack) == 0 {
			de.Stack = s.Backtrace()
		}
		return de
	}
	loc := s.currentLocation()
	return diagnostics.NewRuntime(err.Error(), loc.File, loc.Row, loc.Col).WithStack(s.Backtrace())
}

// Backtrace renders the live call stack innermost-first, the shape
// SPEC_FULL.md's backtrace rendering section names explicitly.
func (s *State) Backtrace() []diagnostics.Frame {
	frames := make([]diagnostics.Frame, 0, len(s.Frames))
	for i := len(s.Frames) - 1; i >= 0; i-- {
		f := s.Frames[i]
		frames = append(frames, diagnostics.Frame{
			Function: fnLabel(f.Function),
			Location: s.location(f.currentRange()),
		})
	}
	return frames
}

func (s *State) currentLocation() diagnostics.Location {
	if len(s.Frames) == 0 {
		return diagnostics.Location{File: s.File}
	}
	return s.location(s.Frames[len(s.Frames)-1].currentRange())
}

func (s *State) location(r *ir.FileRange) diagnostics.Location {
	if r == nil {
		return diagnostics.Location{File: s.File}
	}
	file := s.File
	if r.Record != nil {
		file = r.Record.Name
	}
	return diagnostics.Location{File: file, Row: r.RowFrom, Col: r.ColFrom}
}
