package optimizer

import (
	"lucent/internal/diagnostics"
	"lucent/internal/ir"
)

// PromoteFastSlots defines a fast slot for every field of every static
// object right after its CloseObject, then rewrites AccessStringKey/
// AssignStringKey instructions against that object's fields (once the
// defines are in scope) into ReadFastSlot/WriteFastSlot. Writes to an object
// that a Freeze instruction targets stay AssignStringKey, so the interpreter
// still refuses them. Grounded on s_optimize.cpp's Optimize::fastSlotPass.
func PromoteFastSlots(fn *ir.UserFunction, sink diagnostics.Sink) *ir.UserFunction {
	info := findStaticObjectSlots(fn)

	frozen := map[int]bool{}
	for _, in := range fn.Body.Instructions {
		if in.Kind == ir.Freeze {
			frozen[in.Object] = true
		}
	}

	definesAt := make(map[int][]int, len(info)) // global idx -> static slots to define there
	for slot, si := range info {
		if si.isStatic {
			definesAt[si.afterCloseIdx] = append(definesAt[si.afterCloseIdx], slot)
		}
	}

	fastSlotsOf := make(map[int]map[string]int, len(info))
	initialized := make(map[int]bool, len(info))
	nextFastSlot := fn.FastSlots

	var defines, reads, writes int

	b := &builder{}
	forEachBlockIndexed(fn, b, func(b *builder, idx int, in ir.Instr) {
		for _, slot := range definesAt[idx] {
			si := info[slot]
			names := map[string]int{}
			for _, name := range si.names {
				b.emit(ir.Instr{Kind: ir.DefineFastSlot, ContextSlot: si.contextSlot,
					BelongsTo: si.belongsTo, Object: slot, KeyName: name, IntVal: int32(nextFastSlot)})
				names[name] = nextFastSlot
				nextFastSlot++
				defines++
			}
			fastSlotsOf[slot] = names
			initialized[slot] = true
		}

		if in.Kind == ir.AccessStringKey && info[in.Object].isStatic && initialized[in.Object] {
			if fs, ok := fastSlotsOf[in.Object][in.KeyName]; ok {
				b.emit(ir.Instr{Kind: ir.ReadFastSlot, ContextSlot: in.ContextSlot, BelongsTo: in.BelongsTo,
					Dst: in.Dst, Object: in.Object, IntVal: int32(fs)})
				reads++
				return
			}
		}
		if in.Kind == ir.AssignStringKey && info[in.Object].isStatic && initialized[in.Object] && !frozen[in.Object] {
			if fs, ok := fastSlotsOf[in.Object][in.KeyName]; ok {
				b.emit(ir.Instr{Kind: ir.WriteFastSlot, ContextSlot: in.ContextSlot, BelongsTo: in.BelongsTo,
					Object: in.Object, IntVal: int32(fs), Value: in.Value})
				writes++
				return
			}
		}
		b.emit(in)
	})

	optimized := &ir.UserFunction{Body: b.finish(), Cache: fn.Cache}
	copyStats(fn, optimized)
	optimized.FastSlots = nextFastSlot
	if sink != nil {
		sink.Log("debug", "generated fast slots", "defines", defines, "reads", reads, "writes", writes)
	}
	return optimized
}
