package ir

import "fmt"

// Generator accumulates IR as the parser drives it: it owns slot allocation,
// the current scope slot, block termination state, and unresolved block
// references (forward branches), per spec.md §4.3.
type Generator struct {
	body        *FunctionBody
	blockOpen   []bool
	current     BlockID
	nextSlot    int
	contextSlot int
	curRange    *FileRange
	scopeStack  []int // scopeSlot stack; top is the active scope's slot
}

// NewGenerator starts a fresh function body. contextSlot is the slot every
// emitted instruction's header records (spec.md §3's common header).
func NewGenerator(contextSlot int) *Generator {
	return &Generator{
		body:        &FunctionBody{},
		contextSlot: contextSlot,
		current:     -1,
	}
}

// NewBlock opens a fresh block and makes it current.
func (g *Generator) NewBlock() BlockID {
	id := BlockID(len(g.body.Blocks))
	g.body.Blocks = append(g.body.Blocks, InstructionBlock{Start: len(g.body.Instructions), End: len(g.body.Instructions)})
	g.blockOpen = append(g.blockOpen, true)
	g.current = id
	return id
}

// Current returns the block currently being appended to.
func (g *Generator) Current() BlockID { return g.current }

// SwitchTo makes an already-open block current again (used when a pass
// re-enters a block, e.g. after patching a forward branch target).
func (g *Generator) SwitchTo(id BlockID) { g.current = id }

// UseRange sets the FileRange subsequently emitted instructions attach to,
// until the next call. The parser calls this once per function body and once
// per statement it starts compiling (its "useRangeStart/End").
func (g *Generator) UseRange(fr *FileRange) { g.curRange = fr }

// CurRange returns the FileRange currently in effect, so the parser can save
// and restore it around a nested range (e.g. a statement inside a block).
func (g *Generator) CurRange() *FileRange { return g.curRange }

// AllocSlot returns a fresh slot number. Once returned, a slot index is
// never reused within the function (spec.md §4.3 invariant).
func (g *Generator) AllocSlot() int {
	s := g.nextSlot
	g.nextSlot++
	return s
}

// SlotCount is the number of slots allocated so far (UserFunction.Slots).
func (g *Generator) SlotCount() int { return g.nextSlot }

// ScopeEnter pushes a new active scope slot (the object a `let`/`const`
// scope body writes into).
func (g *Generator) ScopeEnter(slot int) { g.scopeStack = append(g.scopeStack, slot) }

// ScopeLeave pops the active scope.
func (g *Generator) ScopeLeave() {
	if len(g.scopeStack) == 0 {
		panic("ir: ScopeLeave with no active scope")
	}
	g.scopeStack = g.scopeStack[:len(g.scopeStack)-1]
}

// ScopeSet replaces the top of the scope stack in place (e.g. when a block
// extends the active scope rather than opening a new one).
func (g *Generator) ScopeSet(slot int) {
	if len(g.scopeStack) == 0 {
		g.scopeStack = append(g.scopeStack, slot)
		return
	}
	g.scopeStack[len(g.scopeStack)-1] = slot
}

// Scope returns the active scope slot, or -1 if none.
func (g *Generator) Scope() int {
	if len(g.scopeStack) == 0 {
		return -1
	}
	return g.scopeStack[len(g.scopeStack)-1]
}

// addInstruction appends instr to the current block, filling in the common
// header. It panics (an internal invariant violation, spec.md §7 class 2)
// if the current block is already terminated or no range is active.
func (g *Generator) addInstruction(instr Instr) int {
	if g.current < 0 {
		panic("ir: addInstruction with no open block")
	}
	if !g.blockOpen[g.current] {
		panic(fmt.Sprintf("ir: addInstruction into terminated block %d", g.current))
	}
	if g.curRange == nil {
		panic("ir: addInstruction with no active FileRange")
	}
	instr.ContextSlot = g.contextSlot
	instr.BelongsTo = g.curRange
	idx := len(g.body.Instructions)
	g.body.Instructions = append(g.body.Instructions, instr)
	g.body.Blocks[g.current].End = idx + 1
	if isTerminator(instr.Kind) {
		g.blockOpen[g.current] = false
	}
	return idx
}

// BlockRef is an unresolved forward branch target: the instruction index and
// which of its two Targets slots to patch.
type BlockRef struct {
	InstrIndex int
	Which      int
}

// NewBlockRef records a forward reference from instr's Targets[which] to be
// patched once the target block exists.
func (g *Generator) NewBlockRef(instrIndex, which int) BlockRef {
	return BlockRef{InstrIndex: instrIndex, Which: which}
}

// SetBlockRef patches a previously recorded forward reference.
func (g *Generator) SetBlockRef(ref BlockRef, target BlockID) {
	g.body.Instructions[ref.InstrIndex].Targets[ref.Which] = target
}

// Terminate appends `Return 0` to the current block if it is still open —
// used to close off a function/block whose final statement did not already
// terminate it.
func (g *Generator) Terminate() {
	if g.current < 0 || !g.blockOpen[g.current] {
		return
	}
	g.addInstruction(Instr{Kind: Return, Value: 0})
}

// IsOpen reports whether block id can still be appended to.
func (g *Generator) IsOpen(id BlockID) bool { return g.blockOpen[id] }

// Finish returns the accumulated FunctionBody. Every block must be
// terminated (the spec.md §3 invariant); callers should call Terminate on
// any block left open before calling Finish.
func (g *Generator) Finish() *FunctionBody {
	for i, open := range g.blockOpen {
		if open {
			panic(fmt.Sprintf("ir: block %d left unterminated", i))
		}
	}
	return g.body
}

// --- Per-kind emitters. Each assigns any slots it produces and returns them. ---

func (g *Generator) EmitGetRoot() int {
	dst := g.AllocSlot()
	g.addInstruction(Instr{Kind: GetRoot, Dst: dst})
	return dst
}

func (g *Generator) EmitGetContext() int {
	dst := g.AllocSlot()
	g.addInstruction(Instr{Kind: GetContext, Dst: dst})
	return dst
}

func (g *Generator) EmitNewObject(parentSlot int) int {
	dst := g.AllocSlot()
	g.addInstruction(Instr{Kind: NewObject, Dst: dst, Object: parentSlot})
	return dst
}

func (g *Generator) EmitNewIntObject(v int32) int {
	dst := g.AllocSlot()
	g.addInstruction(Instr{Kind: NewIntObject, Dst: dst, IntVal: v})
	return dst
}

func (g *Generator) EmitNewFloatObject(v float32) int {
	dst := g.AllocSlot()
	g.addInstruction(Instr{Kind: NewFloatObject, Dst: dst, FloatVal: v})
	return dst
}

func (g *Generator) EmitNewStringObject(v string) int {
	dst := g.AllocSlot()
	g.addInstruction(Instr{Kind: NewStringObject, Dst: dst, StrVal: v})
	return dst
}

func (g *Generator) EmitNewArrayObject() int {
	dst := g.AllocSlot()
	g.addInstruction(Instr{Kind: NewArrayObject, Dst: dst})
	return dst
}

func (g *Generator) EmitNewClosureObject(contextSlot int, fn *UserFunction) int {
	dst := g.AllocSlot()
	g.addInstruction(Instr{Kind: NewClosureObject, Dst: dst, Object: contextSlot, Function: fn})
	return dst
}

func (g *Generator) EmitCloseObject(slot int) {
	g.addInstruction(Instr{Kind: CloseObject, Object: slot})
}

func (g *Generator) EmitFreeze(slot int) {
	g.addInstruction(Instr{Kind: Freeze, Object: slot})
}

func (g *Generator) EmitSetConstraint(objSlot, keySlot, constraintSlot int) {
	g.addInstruction(Instr{Kind: SetConstraint, Object: objSlot, Key: keySlot, Value: constraintSlot})
}

func (g *Generator) EmitAccess(objSlot, keySlot int) int {
	dst := g.AllocSlot()
	g.addInstruction(Instr{Kind: Access, Dst: dst, Object: objSlot, Key: keySlot})
	return dst
}

func (g *Generator) EmitAssign(objSlot, valueSlot, keySlot int, at AssignType) {
	g.addInstruction(Instr{Kind: Assign, Object: objSlot, Value: valueSlot, Key: keySlot, AssignType: at})
}

func (g *Generator) EmitCall(funcSlot, thisSlot int, args []int) int {
	dst := g.AllocSlot()
	g.addInstruction(Instr{Kind: Call, Dst: dst, Object: funcSlot, Value: thisSlot, Args: args})
	return dst
}

func (g *Generator) EmitReturn(slot int) {
	g.addInstruction(Instr{Kind: Return, Value: slot})
}

func (g *Generator) EmitSaveResult() int {
	dst := g.AllocSlot()
	g.addInstruction(Instr{Kind: SaveResult, Dst: dst})
	return dst
}

// EmitBranch appends an unconditional branch. If target is unknown yet, pass
// -1 and patch it via NewBlockRef/SetBlockRef.
func (g *Generator) EmitBranch(target BlockID) int {
	return g.addInstruction(Instr{Kind: Branch, Targets: [2]BlockID{target, 0}})
}

func (g *Generator) EmitTestBranch(condSlot int, trueBlock, falseBlock BlockID) int {
	return g.addInstruction(Instr{Kind: TestBranch, Cond: condSlot, Targets: [2]BlockID{trueBlock, falseBlock}})
}
