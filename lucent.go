// Package lucent is the embedding surface spec.md §6 describes: build a
// root object graph, parse source into a callable module, run it, and pull
// a sampling-profiler report back out. Everything here is a thin facade
// over internal/gc, internal/interp, internal/parser and internal/profiler;
// the interesting behavior lives in those packages.
package lucent

import (
	"io"

	"github.com/pkg/errors"

	"lucent/internal/diagnostics"
	"lucent/internal/gc"
	"lucent/internal/interp"
	"lucent/internal/ir"
	"lucent/internal/object"
	"lucent/internal/optimizer"
	"lucent/internal/parser"
	"lucent/internal/profiler"
	"lucent/internal/sourcemap"
)

// State is one embedded runtime: a heap with its root prototype graph, an
// interpreter bound to it, and (once EnableProfiler is called) a sampling
// profiler. The zero value is not usable; build one with NewRoot.
type State struct {
	heap   *gc.Heap
	Interp *interp.State

	record *sourcemap.Record
	prof   *profiler.Profiler
}

// NewRoot is spec.md §6's new_root: it allocates a fresh heap, builds the
// root prototype chain (int, float, bool, string, array, function, closure,
// plus top-level print) via internal/object.NewRoot, and wraps it in a
// State ready to parse and run modules against. file labels diagnostics
// produced before any module has been parsed (e.g. by a REPL prompt).
func NewRoot(file string, sink diagnostics.Sink) *State {
	if sink == nil {
		sink = diagnostics.DiscardSink{}
	}
	heap := gc.NewHeap()
	return &State{heap: heap, Interp: interp.NewState(heap, sink, file)}
}

// Root is the root object graph's head, for embedders that want to look up
// a prototype (object.Lookup(s.Root(), "int")) directly.
func (s *State) Root() *object.Object { return s.Interp.Root }

// Module is source compiled and optimized into a runnable UserFunction,
// plus the sourcemap.Record its FileRanges resolve against (needed for
// DumpProfile's HTML reconstruction).
type Module struct {
	fn     *ir.UserFunction
	record *sourcemap.Record
}

// ParseModule is spec.md §6's parse_module: tokenize, parse into IR, and
// run the three optimizer passes. The diagnostics sink receives the
// optimizer passes' debug counts; lexical/parse errors (spec.md §7's class
// 1) come back as the *diagnostics.Error instead of a Module.
func ParseModule(source []byte, file string, sink diagnostics.Sink) (*Module, *diagnostics.Error) {
	if sink == nil {
		sink = diagnostics.DiscardSink{}
	}
	p, perr := parser.NewParser(source, file)
	if perr != nil {
		return nil, perr
	}
	uf, perr := p.ParseModule()
	if perr != nil {
		return nil, perr
	}
	optimized := optimizer.Run(uf, sink)
	return &Module{fn: optimized, record: p.Record()}, nil
}

// Run executes m under s and records m's source as the one DumpProfile
// renders against (the most recently run module). It is the entry point
// cmd/lucent's run subcommand and the REPL both drive.
func (s *State) Run(m *Module) (*object.Object, error) {
	s.record = m.record
	return s.Interp.RunModule(m.fn)
}

// Call is spec.md §6's call: invoke any callable (a parsed module's
// UserFunction wrapped in a closure, or a closure/method value a script
// produced) with an explicit receiver and argument list.
func (s *State) Call(self, callee *object.Object, args []*object.Object) (*object.Object, error) {
	return s.Interp.Call(self, callee, args)
}

// AddPermanent is spec.md §6's add_permanent: pins an object against GC for
// the lifetime of the heap (e.g. a constant the host keeps calling back
// into).
func (s *State) AddPermanent(o *object.Object) { s.heap.AddPermanent(o) }

// AddRoots is spec.md §6's add_roots: registers a host-owned slice of
// objects as GC roots until DelRoots releases the returned handle.
func (s *State) AddRoots(objects []*object.Object) gc.RootHandle { return s.heap.AddRoots(objects) }

// DelRoots releases a root-set registration returned by AddRoots.
func (s *State) DelRoots(handle gc.RootHandle) { s.heap.DelRoots(handle) }

// EnableProfiler attaches a sampling profiler to s's interpreter; every Run/
// Call after this point contributes samples DumpProfile can later report.
func (s *State) EnableProfiler() { s.prof = profiler.New(); s.Interp.Profiler = s.prof }

// DumpProfile is spec.md §6's dump_profile: writes the HTML heatmap report
// for whatever module was most recently Run, covering samples taken since
// EnableProfiler. Returns an error if no profiler is attached or nothing
// has been Run yet.
func (s *State) DumpProfile(w io.Writer) error {
	if s.prof == nil {
		return errors.New("lucent: DumpProfile called without EnableProfiler")
	}
	if s.record == nil {
		return errors.New("lucent: DumpProfile called before any module was run")
	}
	return s.prof.Dump(w, s.record)
}
