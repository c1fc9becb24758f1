package vm

import (
	"fmt"

	"go.creack.net/threebit/op"
)

type Instruction struct {
	PC      int       // Address of the opcode byte.
	OpCode  op.OpCode // OpCode reference.
	Operand byte      // Raw operand byte.
}

func (ins Instruction) String() string {
	if ins.OpCode.Operand == op.OperandIgnored {
		return "<" + ins.OpCode.Name + ">"
	}
	return fmt.Sprintf("<%s %s>", ins.OpCode.Name, ins.OpCode.Operand.Format(ins.Operand))
}

// Decode reads the instruction at pc.
// ok is false when no full instruction is available, which is the normal
// end of a program. Opcodes outside the table are reported as a *TrapError.
func Decode(code Code, pc int) (ins Instruction, ok bool, err error) {
	opcode, operand, ok := code.Fetch(pc)
	if !ok {
		return Instruction{}, false, nil
	}
	def, found := op.Lookup(opcode)
	if !found {
		return Instruction{PC: pc, Operand: operand}, true, &TrapError{PC: pc, Opcode: opcode, Operand: operand, Err: ErrInvalidOpcode}
	}
	return Instruction{PC: pc, OpCode: def, Operand: operand}, true, nil
}
