// Package optimizer implements the three rewrite passes of spec.md §4.5:
// inline-string-keys, predict-miss, and fast-slot promotion. Each pass reads
// an *ir.UserFunction and produces a fresh one with the same calling
// convention but a rewritten instruction stream; grounded in
// original_source/s_optimize.cpp's three Optimize:: passes.
package optimizer

import "lucent/internal/ir"

// builder accumulates a rewritten instruction stream block-by-block,
// mirroring the original's Gen::newBlock/Gen::addLike bookkeeping.
type builder struct {
	instrs []ir.Instr
	blocks []ir.InstructionBlock
}

func (b *builder) startBlock() {
	b.blocks = append(b.blocks, ir.InstructionBlock{Start: len(b.instrs)})
}

func (b *builder) endBlock() {
	b.blocks[len(b.blocks)-1].End = len(b.instrs)
}

func (b *builder) emit(in ir.Instr) {
	b.instrs = append(b.instrs, in)
}

func (b *builder) finish() *ir.FunctionBody {
	return &ir.FunctionBody{Blocks: b.blocks, Instructions: b.instrs}
}

// copyStats carries over everything a pass leaves unchanged about a
// function's calling convention (original's copyFunctionStats).
func copyStats(from, to *ir.UserFunction) {
	to.Slots = from.Slots
	to.FastSlots = from.FastSlots
	to.Arity = from.Arity
	to.Name = from.Name
	to.IsMethod = from.IsMethod
	to.HasVariadicTail = from.HasVariadicTail
}

// forEachBlock walks fn's blocks in order, calling visit with the old
// instructions of each block; visit is responsible for calling b.emit for
// whatever the rewritten block should contain.
func forEachBlock(fn *ir.UserFunction, b *builder, visit func(b *builder, block []ir.Instr)) {
	for _, blk := range fn.Body.Blocks {
		b.startBlock()
		visit(b, fn.Body.Instructions[blk.Start:blk.End])
		b.endBlock()
	}
}

// forEachBlockIndexed is forEachBlock plus the global (whole-arena) index of
// each instruction passed to visit, needed by passes that must line up with
// positions computed by findStaticObjectSlots.
func forEachBlockIndexed(fn *ir.UserFunction, b *builder, visit func(b *builder, globalIdx int, in ir.Instr)) {
	for _, blk := range fn.Body.Blocks {
		b.startBlock()
		for idx := blk.Start; idx < blk.End; idx++ {
			visit(b, idx, fn.Body.Instructions[idx])
		}
		b.endBlock()
	}
}
