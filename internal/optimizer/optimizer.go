package optimizer

import (
	"lucent/internal/diagnostics"
	"lucent/internal/ir"
)

// Run applies all three passes in the order s_gen.cpp wires them: inline
// string keys first (so predict-miss and fast-slot promotion see the
// AssignStringKey instructions a static object's recognition pattern needs),
// then predict-miss, then fast-slot promotion.
func Run(fn *ir.UserFunction, sink diagnostics.Sink) *ir.UserFunction {
	fn = InlineStringKeys(fn, sink)
	fn = PredictMiss(fn, sink)
	fn = PromoteFastSlots(fn, sink)
	return fn
}
