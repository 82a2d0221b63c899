package optimizer

import (
	"lucent/internal/diagnostics"
	"lucent/internal/ir"
)

// findPrimitiveSlots marks every slot true except those used as a genuine
// value somewhere (an object operand, a value operand, a call target/this/
// argument, a return value, a test condition) — a key-slot use alone does
// not disqualify a slot, since that is exactly the use InlineStringKeys
// wants to fold away. Grounded on s_optimize.cpp's findPrimitiveSlots.
func findPrimitiveSlots(fn *ir.UserFunction) []bool {
	primitive := make([]bool, fn.Slots)
	for i := range primitive {
		primitive[i] = true
	}
	for _, in := range fn.Body.Instructions {
		switch in.Kind {
		case ir.NewObject:
			primitive[in.Object] = false
		case ir.Access:
			primitive[in.Object] = false
		case ir.Assign:
			primitive[in.Object] = false
			primitive[in.Value] = false
		case ir.SetConstraint:
			primitive[in.Object] = false
			primitive[in.Value] = false
		case ir.Call:
			primitive[in.Object] = false
			primitive[in.Value] = false
			for _, a := range in.Args {
				primitive[a] = false
			}
		case ir.Return:
			primitive[in.Value] = false
		case ir.TestBranch:
			primitive[in.Cond] = false
		}
	}
	return primitive
}

// InlineStringKeys rewrites Access/Assign/SetConstraint instructions whose
// key slot holds a statically known string (produced by a NewStringObject
// instruction never used as anything but a key) into their *StringKey
// counterparts, dropping the now-dead NewStringObject.
func InlineStringKeys(fn *ir.UserFunction, sink diagnostics.Sink) *ir.UserFunction {
	primitive := findPrimitiveSlots(fn)
	slotTable := map[int]string{}

	b := &builder{}
	var accesses, assignments, constraints int
	forEachBlock(fn, b, func(b *builder, block []ir.Instr) {
		for _, in := range block {
			switch {
			case in.Kind == ir.NewStringObject && primitive[in.Dst]:
				slotTable[in.Dst] = in.StrVal
				continue
			case in.Kind == ir.SetConstraint:
				if key, ok := slotTable[in.Key]; ok {
					b.emit(ir.Instr{Kind: ir.SetConstraintStringKey, ContextSlot: in.ContextSlot,
						BelongsTo: in.BelongsTo, Object: in.Object, Value: in.Value, KeyName: key})
					constraints++
					continue
				}
			case in.Kind == ir.Access:
				if key, ok := slotTable[in.Key]; ok {
					b.emit(ir.Instr{Kind: ir.AccessStringKey, ContextSlot: in.ContextSlot,
						BelongsTo: in.BelongsTo, Dst: in.Dst, Object: in.Object, KeyName: key})
					accesses++
					continue
				}
			case in.Kind == ir.Assign:
				if key, ok := slotTable[in.Key]; ok {
					b.emit(ir.Instr{Kind: ir.AssignStringKey, ContextSlot: in.ContextSlot,
						BelongsTo: in.BelongsTo, Object: in.Object, Value: in.Value, KeyName: key,
						AssignType: in.AssignType})
					assignments++
					continue
				}
			}
			b.emit(in)
		}
	})

	optimized := &ir.UserFunction{Body: b.finish(), Cache: fn.Cache}
	copyStats(fn, optimized)
	if sink != nil {
		sink.Log("debug", "inlined operations", "assignments", assignments, "accesses", accesses,
			"constraints", constraints)
	}
	return optimized
}
