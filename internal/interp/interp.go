// Package interp implements the threaded interpreter of spec.md §4.8: a
// single unified call-frame stack executing the three-address IR one
// instruction at a time, with native and closure calls both routed through
// dispatchCall so operator-overload dispatch ("[]"/"[]=") and ordinary script
// calls share one code path. Grounded on original_source/s_vm.cpp/s_vm.h.
package interp

import (
	"fmt"

	"lucent/internal/diagnostics"
	"lucent/internal/gc"
	"lucent/internal/ir"
	"lucent/internal/object"
)

// profileBatchSize bounds how many instructions run between Profiler.Sample
// calls, the Go analogue of the original's 128-iterations-of-9-dispatches
// batch: Go's switch dispatch gets nothing from manual unrolling, but
// batching still amortizes a profiler's wall-clock read.
const profileBatchSize = 1152

// CallFrame is one entry of the interpreter's unified call stack. Unlike the
// original's separate State/CallFrame split (a fresh State per reentrant
// call, e.g. for "[]" operator overloads), every call — script call,
// operator overload, top-level module — pushes onto the same Frames stack;
// ReturnsTo tells Return where to deliver the result.
type CallFrame struct {
	Function  *ir.UserFunction
	Context   *object.Object
	Slots     []*object.Object
	FastSlots []**object.Object
	PC        int

	// ReturnsTo is the caller-frame slot this call's result is written to
	// on Return, or -1 when the caller is draining synchronously via
	// State.Call and will read state.Result directly instead.
	ReturnsTo int

	rootHandle gc.RootHandle
}

func (f *CallFrame) currentRange() *ir.FileRange { return f.CurrentRange() }

// CurrentRange is the FileRange the frame's current instruction belongs to,
// the location internal/profiler attributes a sample to.
func (f *CallFrame) CurrentRange() *ir.FileRange {
	instrs := f.Function.Body.Instructions
	if f.PC < 0 || f.PC >= len(instrs) {
		return nil
	}
	return instrs[f.PC].BelongsTo
}

// Profiler receives periodic samples of the call stack. Implemented by
// internal/profiler; declared here (rather than interp depending on
// profiler) so this package stays the dependency root.
type Profiler interface {
	Sample(s *State)
}

type protoSet struct {
	Int, Float, Bool, String, Array, Function, Closure *object.Object
}

func lookupProtos(root *object.Object) protoSet {
	get := func(name string) *object.Object {
		p, _ := object.Lookup(root, name)
		return p
	}
	return protoSet{
		Int:      get("int"),
		Float:    get("float"),
		Bool:     get("bool"),
		String:   get("string"),
		Array:    get("array"),
		Function: get("function"),
		Closure:  get("closure"),
	}
}

// State is one interpreter instance: a heap, its root object graph, and the
// unified call-frame stack. One State is shared for a script's whole
// lifetime (REPL sessions included); RunModule/Call may be invoked
// repeatedly against it.
type State struct {
	heap   *gc.Heap
	Root   *object.Object
	protos protoSet

	Frames []*CallFrame
	Result *object.Object

	// resultHolder keeps Result GC-rooted between calls, the Go analogue
	// of the original's dedicated resultSet root registration.
	resultHolder []*object.Object

	Sink     diagnostics.Sink
	Profiler Profiler

	CycleCount       uint64
	instrSinceSample int

	File string
	Err  error
}

// NewState builds an interpreter over heap's object graph.
func NewState(heap *gc.Heap, sink diagnostics.Sink, file string) *State {
	root := heap.Root()
	s := &State{
		heap:         heap,
		Root:         root,
		protos:       lookupProtos(root),
		Sink:         sink,
		resultHolder: make([]*object.Object, 1),
		File:         file,
	}
	heap.AddRoots(s.resultHolder)
	return s
}

func (s *State) setResult(v *object.Object) {
	s.Result = v
	s.resultHolder[0] = v
}

// RunModule pushes fn (a freshly parsed module or script, not a closure) as
// a new frame under a fresh object rooted at the language root, and drains
// it to completion.
func (s *State) RunModule(fn *ir.UserFunction) (*object.Object, error) {
	context := s.heap.NewObject(s.Root)
	depth := len(s.Frames)
	s.pushFrame(fn, context, nil, -1)
	return s.drain(depth)
}

// Call invokes fn (native or closure) with self bound as receiver, and
// drains any pushed closure frame to completion before returning — the
// synchronous call path both ordinary script calls (outside a Call
// instruction's own inline continuation) and "[]"/"[]=" operator overload
// dispatch use.
func (s *State) Call(self, fn *object.Object, args []*object.Object) (*object.Object, error) {
	depth := len(s.Frames)
	if err := s.dispatchCall(self, fn, args, -1); err != nil {
		return nil, err
	}
	return s.drain(depth)
}

func (s *State) drain(depth int) (*object.Object, error) {
	for len(s.Frames) > depth {
		if err := s.stepOnce(); err != nil {
			return nil, err
		}
		s.afterInstruction()
	}
	return s.Result, nil
}

func (s *State) afterInstruction() {
	s.CycleCount++
	s.instrSinceSample++
	if s.instrSinceSample >= profileBatchSize {
		s.instrSinceSample = 0
		if s.Profiler != nil {
			s.Profiler.Sample(s)
		}
	}
}

func (s *State) pushFrame(fn *ir.UserFunction, context *object.Object, args []*object.Object, returnsTo int) {
	slots := make([]*object.Object, fn.Slots)
	for i := 0; i < fn.Arity && i < len(args); i++ {
		slots[i+1] = args[i]
	}
	frame := &CallFrame{
		Function:  fn,
		Context:   context,
		Slots:     slots,
		FastSlots: make([]**object.Object, fn.FastSlots),
		PC:        fn.Body.Blocks[0].Start,
		ReturnsTo: returnsTo,
	}
	frame.rootHandle = s.heap.AddRoots(slots)
	s.Frames = append(s.Frames, frame)
}

// dispatchCall resolves fn as either a native function (calls it
// synchronously and, if returnsTo names a live caller slot, writes the
// result there immediately) or a closure (pushes a frame; the result lands
// via Return once it eventually pops). Both Call-instruction's inline
// continuation and the synchronous Call/RunModule drain loop route through
// this.
func (s *State) dispatchCall(self, fn *object.Object, args []*object.Object, returnsTo int) error {
	if fn == nil {
		return s.notCallableErr()
	}
	switch fn.Kind {
	case object.KindFunction:
		if fn.Native == nil {
			return s.notCallableErr()
		}
		result, err := fn.Native(s.heap, s.Root, self, fn, args)
		if err != nil {
			return s.wrapNativeErr(err)
		}
		s.setResult(result)
		if returnsTo >= 0 && len(s.Frames) > 0 {
			s.Frames[len(s.Frames)-1].Slots[returnsTo] = result
		}
		return nil
	case object.KindClosure:
		return s.pushClosureFrame(self, fn, args, returnsTo)
	default:
		return s.notCallableErr()
	}
}

// pushClosureFrame builds the callee context (method receiver binding,
// variadic tail array) and pushes the frame. The whole sequence runs with
// the heap's GC disabled, per spec.md §4.7: a collection mid-setup could
// observe a partially bound context.
func (s *State) pushClosureFrame(self, fn *object.Object, args []*object.Object, returnsTo int) error {
	function := fn.Function
	if function.HasVariadicTail {
		if len(args) < function.Arity {
			return s.arityErr(function, len(args))
		}
	} else if len(args) != function.Arity {
		return s.arityErr(function, len(args))
	}

	s.heap.Disable()
	context := fn.Context
	if fn.IsMethodClosure {
		context = s.heap.NewObject(context)
		object.SetPlain(context, "this", self)
		context.Flags |= object.FlagClosed
	}
	context = s.setupVariadic(context, function, args)
	s.pushFrame(function, context, args, returnsTo)
	s.heap.Enable()
	return nil
}

func (s *State) setupVariadic(context *object.Object, function *ir.UserFunction, args []*object.Object) *object.Object {
	if !function.HasVariadicTail {
		return context
	}
	context = s.heap.NewObject(context)
	arr := s.heap.NewArray(s.protos.Array)
	arr.ArrVal = append(arr.ArrVal, args[function.Arity:]...)
	object.SetPlain(arr, "length", s.heap.NewInt(s.protos.Int, int32(len(arr.ArrVal))))
	object.SetPlain(context, "$", arr)
	context.Flags |= object.FlagClosed
	return context
}

func (s *State) truthy(o *object.Object) bool {
	if o == nil {
		return false
	}
	if inst := object.InstanceOf(o, s.protos.Bool); inst != nil {
		return inst.BoolVal
	}
	if inst := object.InstanceOf(o, s.protos.Int); inst != nil {
		return inst.IntVal != 0
	}
	return true
}

// stepOnce executes exactly one instruction on the top frame. Slot indices
// are never bounds-checked against frame.Slots: the generator/optimizer
// pipeline is the only producer of IR, and its invariant (every slot index
// it emits is one it allocated) makes an out-of-range index unreachable —
// Go's own slice-index panic is the fail-fast a defensive check would add
// nothing over.
func (s *State) stepOnce() error {
	top := s.Frames[len(s.Frames)-1]
	in := top.Function.Body.Instructions[top.PC]

	switch in.Kind {
	case ir.GetRoot:
		top.Slots[in.Dst] = s.Root
		top.PC++

	case ir.GetContext:
		top.Slots[in.Dst] = top.Context
		top.PC++

	case ir.NewObject:
		parent := top.Slots[in.Object]
		if parent != nil && parent.Flags&object.FlagNoInherit != 0 {
			return s.runtimeErr(in, "cannot inherit from this object")
		}
		top.Slots[in.Dst] = s.heap.NewObject(parent)
		top.PC++

	case ir.NewIntObject:
		top.Slots[in.Dst] = s.cachedInt(top, in)
		top.PC++

	case ir.NewFloatObject:
		top.Slots[in.Dst] = s.cachedFloat(top, in)
		top.PC++

	case ir.NewStringObject:
		top.Slots[in.Dst] = s.cachedString(top, in)
		top.PC++

	case ir.NewArrayObject:
		top.Slots[in.Dst] = s.heap.NewArray(s.protos.Array)
		top.PC++

	case ir.NewClosureObject:
		context := top.Slots[in.Object]
		top.Slots[in.Dst] = s.heap.NewClosure(s.protos.Closure, context, in.Function)
		top.PC++

	case ir.CloseObject:
		obj := top.Slots[in.Object]
		if obj.Flags&object.FlagClosed != 0 {
			return s.runtimeErr(in, "object is already closed")
		}
		obj.Flags |= object.FlagClosed
		top.PC++

	case ir.Freeze:
		obj := top.Slots[in.Object]
		if obj.Flags&object.FlagImmutable != 0 {
			return s.runtimeErr(in, "object is already frozen")
		}
		obj.Flags |= object.FlagImmutable
		top.PC++

	case ir.SetConstraint, ir.SetConstraintStringKey:
		// Never enforced: the parser emits neither kind, the optimizer only
		// carries them through, and the original VM's own dispatch table has
		// no handler for either kind (s_vm.cpp).
		top.PC++

	case ir.Access:
		if err := s.access(top, in); err != nil {
			return err
		}

	case ir.AccessStringKey:
		if err := s.accessStringKey(top, in); err != nil {
			return err
		}

	case ir.Assign:
		if err := s.assign(top, in); err != nil {
			return err
		}

	case ir.AssignStringKey:
		if err := s.doAssign(top.Slots[in.Object], in.KeyName, top.Slots[in.Value], in.AssignType); err != nil {
			return s.wrapNativeErr(err)
		}
		top.PC++

	case ir.Call:
		fn := top.Slots[in.Object]
		self := top.Slots[in.Value]
		args := make([]*object.Object, len(in.Args))
		for i, slot := range in.Args {
			args[i] = top.Slots[slot]
		}
		top.PC++
		if err := s.dispatchCall(self, fn, args, in.Dst); err != nil {
			return err
		}

	case ir.SaveResult:
		top.Slots[in.Dst] = s.Result
		s.Result = nil
		top.PC++

	case ir.Return:
		val := top.Slots[in.Value]
		s.heap.DelRoots(top.rootHandle)
		s.Frames = s.Frames[:len(s.Frames)-1]
		s.setResult(val)
		if top.ReturnsTo >= 0 && len(s.Frames) > 0 {
			s.Frames[len(s.Frames)-1].Slots[top.ReturnsTo] = val
		}

	case ir.Branch:
		top.PC = top.Function.Body.Blocks[in.Targets[0]].Start

	case ir.TestBranch:
		target := in.Targets[1]
		if s.truthy(top.Slots[in.Cond]) {
			target = in.Targets[0]
		}
		top.PC = top.Function.Body.Blocks[target].Start

	case ir.DefineFastSlot:
		obj := top.Slots[in.Object]
		idx, ok := obj.FieldIndex(in.KeyName)
		if !ok {
			return s.runtimeErr(in, fmt.Sprintf("key %q not in object", in.KeyName))
		}
		top.FastSlots[int(in.IntVal)] = obj.FieldCell(idx)
		top.PC++

	case ir.ReadFastSlot:
		top.Slots[in.Dst] = *top.FastSlots[int(in.IntVal)]
		top.PC++

	case ir.WriteFastSlot:
		*top.FastSlots[int(in.IntVal)] = top.Slots[in.Value]
		top.PC++

	default:
		return s.runtimeErr(in, fmt.Sprintf("unhandled instruction kind %v", in.Kind))
	}
	return nil
}
