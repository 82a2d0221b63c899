// Package gc implements the emulated tracing collector of spec.md §4.7: a
// mark-and-sweep pass over every object reachable from a set of root
// slices, run whenever the allocation count crosses a growing threshold.
// Go's own garbage collector still owns the underlying memory — this
// package exists to give the embedded language the explicit, observable
// object lifecycle (collection triggered by allocation counts, a
// disable/enable window around GC-unsafe native code) spec.md requires,
// grounded on original_source/s_gc.cpp/s_gc.h and Object::allocate in
// s_object.cpp.
package gc

import (
	"github.com/google/uuid"

	"lucent/internal/ir"
	"lucent/internal/object"
)

// RootHandle identifies one AddRoots registration, for DelRoots.
type RootHandle uuid.UUID

type rootSet struct {
	handle  RootHandle
	objects []*object.Object
}

// Heap implements object.Allocator, threading every allocation onto a
// singly linked list (Object.PrevInAlloc) for sweep to walk, and running a
// mark/sweep pass whenever allocation count crosses nextRun — exactly
// Object::allocate's threshold check in s_object.cpp.
type Heap struct {
	last      *object.Object
	allocated int
	nextRun   int

	disabledness int
	missed       bool

	roots      []*rootSet
	permanents []*object.Object

	root *object.Object
}

// NewHeap constructs a heap and builds the root object graph via
// object.NewRoot, registering the root object as a permanent so a sweep
// started before any user root set is registered never collects it or
// anything it reaches (the prototypes and the true/false constants).
func NewHeap() *Heap {
	h := &Heap{nextRun: 10000}
	h.root = object.NewRoot(h)
	h.AddPermanent(h.root)
	return h
}

// Root returns the root object graph built by NewRoot.
func (h *Heap) Root() *object.Object { return h.root }

func (h *Heap) track(o *object.Object) *object.Object {
	if h.allocated > h.nextRun {
		h.Run()
		h.nextRun = int(float64(h.allocated)*1.5) + 10000
	}
	o.PrevInAlloc = h.last
	h.last = o
	h.allocated++
	return o
}

func (h *Heap) NewObject(parent *object.Object) *object.Object {
	return h.track(object.AllocObject(parent))
}

func (h *Heap) NewInt(parent *object.Object, v int32) *object.Object {
	return h.track(object.AllocInt(parent, v))
}

func (h *Heap) NewFloat(parent *object.Object, v float32) *object.Object {
	return h.track(object.AllocFloat(parent, v))
}

func (h *Heap) NewString(parent *object.Object, v string) *object.Object {
	return h.track(object.AllocString(parent, v))
}

func (h *Heap) NewBool(parent *object.Object, v bool) *object.Object {
	return h.track(object.AllocBool(parent, v))
}

func (h *Heap) NewArray(parent *object.Object) *object.Object {
	return h.track(object.AllocArray(h, parent))
}

func (h *Heap) NewNativeFunction(parent *object.Object, fn object.NativeFunc) *object.Object {
	return h.track(object.AllocNativeFunction(parent, fn))
}

// NewClosure allocates a closure object, not part of object.Allocator since
// prototype construction never creates one directly; the interpreter's
// NewClosureObject instruction calls this.
func (h *Heap) NewClosure(parent, context *object.Object, fn *ir.UserFunction) *object.Object {
	return h.track(object.AllocClosure(parent, context, fn))
}

// AddPermanent keeps object alive for the heap's whole lifetime, independent
// of any root set (GC::addPermanent).
func (h *Heap) AddPermanent(o *object.Object) {
	h.permanents = append(h.permanents, o)
}

// AddRoots registers a caller-owned slice of roots (typically a call
// frame's slots) and returns a handle for a later DelRoots (GC::addRoots).
// The slice is held by reference: objects appended to it after
// registration are still marked, since mark reads it fresh on every run.
func (h *Heap) AddRoots(objects []*object.Object) RootHandle {
	handle := RootHandle(uuid.New())
	h.roots = append(h.roots, &rootSet{handle: handle, objects: objects})
	return handle
}

// DelRoots unregisters a previously added root set (GC::delRoots).
func (h *Heap) DelRoots(handle RootHandle) {
	for i, rs := range h.roots {
		if rs.handle == handle {
			h.roots = append(h.roots[:i], h.roots[i+1:]...)
			return
		}
	}
}

// Disable increments the disabledness counter; a Run requested while
// disabled is deferred until a matching Enable (GC::disable/run).
func (h *Heap) Disable() { h.disabledness++ }

// Enable decrements the disabledness counter; if it reaches zero and a run
// was missed while disabled, runs it now (GC::enable).
func (h *Heap) Enable() {
	if h.disabledness == 0 {
		panic("gc: Enable with no matching Disable")
	}
	h.disabledness--
	if h.disabledness == 0 && h.missed {
		h.missed = false
		h.run()
	}
}

// Run requests a collection; if the heap is currently disabled the request
// is recorded and replayed on the matching Enable (GC::run).
func (h *Heap) Run() {
	if h.disabledness > 0 {
		h.missed = true
		return
	}
	h.run()
}

func (h *Heap) run() {
	h.mark()
	h.sweep()
}

func (h *Heap) mark() {
	for _, o := range h.permanents {
		markObject(o)
	}
	for _, rs := range h.roots {
		for _, o := range rs.objects {
			markObject(o)
		}
	}
}

// markObject is Object::mark: break cycles via the Marked flag, then mark
// the parent, every field value, and run the object's own mark hook (the Go
// analogue of the original's per-object m_mark callback, set per-instance
// by object.AllocArray/AllocClosure rather than looked up through the
// prototype chain, since only instances ever hold extra references).
func markObject(o *object.Object) {
	if o == nil || o.Flags&object.FlagMarked != 0 {
		return
	}
	o.Flags |= object.FlagMarked
	markObject(o.Parent)
	o.ForEachField(func(_ string, v *object.Object) { markObject(v) })
	if o.MarkHook != nil {
		o.MarkHook(markObject)
	}
}

// sweep walks the allocation list, freeing every unmarked object and
// clearing Marked on survivors (GC::sweep).
func (h *Heap) sweep() {
	cur := &h.last
	for *cur != nil {
		o := *cur
		if o.Flags&object.FlagMarked != 0 {
			o.Flags &^= object.FlagMarked
			cur = &o.PrevInAlloc
			continue
		}
		prev := o.PrevInAlloc
		h.allocated--
		*cur = prev
	}
}
