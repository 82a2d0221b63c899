package optimizer

import (
	"lucent/internal/diagnostics"
	"lucent/internal/ir"
)

// PredictMiss rewrites AccessStringKey instructions whose object slot is a
// known static object that provably lacks the key: since the lookup can
// never succeed there, the object operand is redirected straight to that
// object's parent (repeating while the parent is itself a static object
// missing the key too), skipping a chain walk that would fail anyway.
// Grounded on s_optimize.cpp's Optimize::predictPass.
func PredictMiss(fn *ir.UserFunction, sink diagnostics.Sink) *ir.UserFunction {
	info := findStaticObjectSlots(fn)

	redirected := 0
	b := &builder{}
	forEachBlock(fn, b, func(b *builder, block []ir.Instr) {
		for _, in := range block {
			if in.Kind == ir.AccessStringKey {
				obj := in.Object
				for info[obj].isStatic && !info[obj].hasKey(in.KeyName) {
					obj = info[obj].parentSlot
					redirected++
				}
				in.Object = obj
			}
			b.emit(in)
		}
	})

	optimized := &ir.UserFunction{Body: b.finish(), Cache: fn.Cache}
	copyStats(fn, optimized)
	if sink != nil {
		sink.Log("debug", "redirected predictable lookup misses", "count", redirected)
	}
	return optimized
}
