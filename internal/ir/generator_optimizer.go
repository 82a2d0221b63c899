package ir

// Emitters for the optimizer-introduced instruction kinds (spec.md §4.5):
// string-keyed variants that skip the NewStringObject+Access/Assign pair for
// a statically known key, and fast-slot variants that skip the field table
// entirely for a key resolved once at a known-Closed object.

func (g *Generator) EmitAccessStringKey(objSlot int, key string) int {
	dst := g.AllocSlot()
	g.addInstruction(Instr{Kind: AccessStringKey, Dst: dst, Object: objSlot, KeyName: key})
	return dst
}

func (g *Generator) EmitAssignStringKey(objSlot, valueSlot int, key string, at AssignType) {
	g.addInstruction(Instr{Kind: AssignStringKey, Object: objSlot, Value: valueSlot, KeyName: key, AssignType: at})
}

func (g *Generator) EmitSetConstraintStringKey(objSlot int, key string, constraintSlot int) {
	g.addInstruction(Instr{Kind: SetConstraintStringKey, Object: objSlot, KeyName: key, Value: constraintSlot})
}

// EmitDefineFastSlot records that fieldIndex within objSlot's own table
// corresponds to key, once objSlot is known Closed and its layout frozen.
func (g *Generator) EmitDefineFastSlot(objSlot int, key string, fieldIndex int) {
	g.addInstruction(Instr{Kind: DefineFastSlot, Object: objSlot, KeyName: key, IntVal: int32(fieldIndex)})
}

func (g *Generator) EmitReadFastSlot(objSlot, fieldIndex int) int {
	dst := g.AllocSlot()
	g.addInstruction(Instr{Kind: ReadFastSlot, Dst: dst, Object: objSlot, IntVal: int32(fieldIndex)})
	return dst
}

func (g *Generator) EmitWriteFastSlot(objSlot, fieldIndex, valueSlot int) {
	g.addInstruction(Instr{Kind: WriteFastSlot, Object: objSlot, IntVal: int32(fieldIndex), Value: valueSlot})
}
